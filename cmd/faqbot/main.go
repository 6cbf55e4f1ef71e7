package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"faqbot/internal/bot"
	"faqbot/internal/config"
	"faqbot/internal/content"
	"faqbot/internal/messenger"
	"faqbot/internal/provider"
	"faqbot/internal/server"
	"faqbot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "faqbot",
		Short: "FAQBot: Messenger FAQ assistant",
		Long:  "FAQBot answers page messages with a configurable FAQ menu and an OpenAI-backed chat fallback.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.faqbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and starter content pack",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			contentPath := filepath.Join(cfgDir, "content.yaml")
			if err := content.WriteStarter(contentPath); err != nil {
				logger.Warn("content pack not written", "path", contentPath, "err", err)
			}
			logger.Info("initialized", "config", cfgPath, "content", contentPath)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long:  "Loads config and content, opens the store, and serves the webhook until Ctrl+C.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Configured channels are the source of truth for credentials.
	for _, ch := range cfg.Channels {
		if err := st.PutChannel(ctx, ch.ID, ch.AccessToken); err != nil {
			return err
		}
	}
	logger.Info("channels registered", "count", len(cfg.Channels))

	pack, err := content.Load(cfg.Content.Path, logger)
	if err != nil {
		return err
	}

	client := messenger.New(messenger.Config{
		APIBase:    cfg.Graph.APIBase,
		APIVersion: cfg.Graph.APIVersion,
		Logger:     logger,
	})

	completer := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:       cfg.OpenAI.APIKey,
		Organization: cfg.OpenAI.Organization,
		APIBase:      cfg.OpenAI.APIBase,
		Model:        cfg.OpenAI.Model,
		MaxTokens:    cfg.OpenAI.MaxTokens,
		Logger:       logger,
	})

	dispatcher := bot.NewDispatcher(bot.Config{
		Client:    client,
		Completer: completer,
		Users:     st,
		Content:   pack,
		Logger:    logger,
	})

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		WebhookPath:     cfg.Server.WebhookPath,
		VerifyToken:     cfg.Server.VerifyToken,
		BroadcastEchoes: cfg.Graph.BroadcastEchoes,
		Channels:        st,
		Dispatcher:      dispatcher,
		Logger:          logger,
	})

	logger.Info("faqbot starting", "version", version, "questions", len(pack.Questions))
	return srv.Start(ctx)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("faqbot " + version)
		},
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
