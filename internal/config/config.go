package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the bot.
type Config struct {
	General  GeneralConfig   `json:"general"`
	Server   ServerConfig    `json:"server"`
	Graph    GraphConfig     `json:"graph"`
	OpenAI   OpenAIConfig    `json:"openai"`
	Store    StoreConfig     `json:"store"`
	Content  ContentConfig   `json:"content"`
	Channels []ChannelConfig `json:"channels"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
}

// ServerConfig configures the inbound webhook HTTP server.
type ServerConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	WebhookPath string `json:"webhookPath"`
	VerifyToken string `json:"verifyToken"` // subscription handshake secret
}

// GraphConfig configures the outbound messaging-platform client.
type GraphConfig struct {
	APIBase         string `json:"apiBase,omitempty"`
	APIVersion      string `json:"apiVersion"`
	BroadcastEchoes bool   `json:"broadcastEchoes"` // reprocess self-sent messages
}

// OpenAIConfig configures the chat-completion bridge.
type OpenAIConfig struct {
	APIKey       string `json:"apiKey"`
	Organization string `json:"organization,omitempty"`
	APIBase      string `json:"apiBase,omitempty"`
	Model        string `json:"model,omitempty"`
	MaxTokens    int    `json:"maxTokens,omitempty"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

type ContentConfig struct {
	Path string `json:"path"`
}

// ChannelConfig is one connected page and its access token. Entries are
// upserted into the channel store at startup.
type ChannelConfig struct {
	ID          string `json:"id"`
	AccessToken string `json:"accessToken"`
}

// DefaultConfigDir returns the default config directory (~/.faqbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".faqbot"
	}
	return filepath.Join(home, ".faqbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Content.Path = ExpandPath(cfg.Content.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		errs = append(errs, "server.webhookPath must start with /")
	}
	if cfg.Server.VerifyToken == "" {
		errs = append(errs, "server.verifyToken is required")
	}

	if cfg.Graph.APIVersion == "" {
		errs = append(errs, "graph.apiVersion is required")
	}

	if cfg.OpenAI.MaxTokens < 1 {
		errs = append(errs, "openai.maxTokens must be >= 1")
	}

	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}

	for i, ch := range cfg.Channels {
		if ch.ID == "" {
			errs = append(errs, fmt.Sprintf("channels[%d].id is required", i))
		}
		if ch.AccessToken == "" {
			errs = append(errs, fmt.Sprintf("channels[%d].accessToken is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
