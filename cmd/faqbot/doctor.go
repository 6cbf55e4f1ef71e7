package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"faqbot/internal/config"
	"faqbot/internal/content"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your FAQBot installation",
		Long: `Verifies that FAQBot's configuration, content pack, database, and
credentials are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("FAQBot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'faqbot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. Verify token set (unexpanded ${VAR} means the env var is missing)
			if strings.Contains(cfg.Server.VerifyToken, "${") {
				printFail("Verify token", "environment variable not set")
				failed++
			} else {
				printPass("Verify token", "configured")
				passed++
			}

			// 4. Content pack loads
			pack, err := content.Load(cfg.Content.Path, logger)
			if err != nil {
				printFail("Content pack", err.Error())
				failed++
			} else {
				printPass("Content pack", fmt.Sprintf("%d questions, %d admins", len(pack.Questions), len(pack.Admins)))
				passed++
				if len(pack.Questions) == 0 {
					printWarn("FAQ questions", "none configured, greeting will have no quick replies")
					warned++
				}
			}

			// 5. Database writable
			if err := checkDatabase(cfg.Store.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Store.DBPath)
				passed++
			}

			// 6. Channel credentials
			if len(cfg.Channels) == 0 {
				printWarn("Channels", "no channels configured, all events will be dropped")
				warned++
			}
			for _, ch := range cfg.Channels {
				if strings.Contains(ch.AccessToken, "${") {
					printFail("Channel: "+ch.ID, "access token environment variable not set")
					failed++
				} else {
					printPass("Channel: "+ch.ID, "token configured")
					passed++
				}
			}

			// 7. OpenAI key
			if cfg.OpenAI.APIKey == "" || strings.Contains(cfg.OpenAI.APIKey, "${") {
				printWarn("OpenAI key", "not set, every chat reply will be the fallback")
				warned++
			} else {
				printPass("OpenAI key", "configured")
				passed++
			}

			// 8. Webhook port
			port := cfg.Server.Port
			if port == 0 {
				port = 8080
			}
			if err := checkPort(port); err != nil {
				printWarn("Webhook port", fmt.Sprintf("port %d may be in use: %v", port, err))
				warned++
			} else {
				printPass("Webhook port", fmt.Sprintf(":%d available", port))
				passed++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running FAQBot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nFAQBot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! FAQBot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
