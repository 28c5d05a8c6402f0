package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "ARTICLE_STOCK_CONFIG"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	geminiAPIKeyEnv   = "GEMINI_API_KEY"
	geminiModelEnv    = "GEMINI_MODEL"
	vaultRemoteEnv    = "VAULT_REMOTE_URL"
	vaultTokenEnv     = "VAULT_PUSH_TOKEN"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Telegram TelegramConfig `yaml:"telegram"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Vault    VaultConfig    `yaml:"vault"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TelegramConfig wires the chat collaborator.
type TelegramConfig struct {
	BotToken   string `yaml:"botToken"`
	ChatID     string `yaml:"chatId"`
	APIBaseURL string `yaml:"apiBaseUrl"`
}

// GeminiConfig defines how to contact the Gemini API.
type GeminiConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"apiKey"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// VaultConfig describes the content repository working copy.
type VaultConfig struct {
	Path        string `yaml:"path"`
	RemoteURL   string `yaml:"remoteUrl"`
	PushToken   string `yaml:"pushToken"`
	StateDBPath string `yaml:"stateDbPath"`
	AuthorName  string `yaml:"authorName"`
	AuthorEmail string `yaml:"authorEmail"`
}

// PipelineConfig bounds the per-message workflow.
type PipelineConfig struct {
	MaxConcurrent       int   `yaml:"maxConcurrent"`
	FetchTimeoutSeconds int   `yaml:"fetchTimeoutSeconds"`
	FetchMaxBytes       int64 `yaml:"fetchMaxBytes"`
	PushRetries         int   `yaml:"pushRetries"`
	PushBackoffSeconds  int   `yaml:"pushBackoffSeconds"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv(geminiAPIKeyEnv); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv(geminiModelEnv); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv(vaultRemoteEnv); v != "" {
		c.Vault.RemoteURL = v
	}
	if v := os.Getenv(vaultTokenEnv); v != "" {
		c.Vault.PushToken = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.ChatID != "" {
		base.Telegram.ChatID = override.Telegram.ChatID
	}
	if override.Telegram.APIBaseURL != "" {
		base.Telegram.APIBaseURL = override.Telegram.APIBaseURL
	}

	if override.Gemini.Endpoint != "" {
		base.Gemini.Endpoint = override.Gemini.Endpoint
	}
	if override.Gemini.Model != "" {
		base.Gemini.Model = override.Gemini.Model
	}
	if override.Gemini.APIKey != "" {
		base.Gemini.APIKey = override.Gemini.APIKey
	}
	if override.Gemini.TimeoutSeconds > 0 {
		base.Gemini.TimeoutSeconds = override.Gemini.TimeoutSeconds
	}

	if override.Vault.Path != "" {
		base.Vault.Path = override.Vault.Path
	}
	if override.Vault.RemoteURL != "" {
		base.Vault.RemoteURL = override.Vault.RemoteURL
	}
	if override.Vault.PushToken != "" {
		base.Vault.PushToken = override.Vault.PushToken
	}
	if override.Vault.StateDBPath != "" {
		base.Vault.StateDBPath = override.Vault.StateDBPath
	}
	if override.Vault.AuthorName != "" {
		base.Vault.AuthorName = override.Vault.AuthorName
	}
	if override.Vault.AuthorEmail != "" {
		base.Vault.AuthorEmail = override.Vault.AuthorEmail
	}

	if override.Pipeline.MaxConcurrent > 0 {
		base.Pipeline.MaxConcurrent = override.Pipeline.MaxConcurrent
	}
	if override.Pipeline.FetchTimeoutSeconds > 0 {
		base.Pipeline.FetchTimeoutSeconds = override.Pipeline.FetchTimeoutSeconds
	}
	if override.Pipeline.FetchMaxBytes > 0 {
		base.Pipeline.FetchMaxBytes = override.Pipeline.FetchMaxBytes
	}
	if override.Pipeline.PushRetries > 0 {
		base.Pipeline.PushRetries = override.Pipeline.PushRetries
	}
	if override.Pipeline.PushBackoffSeconds > 0 {
		base.Pipeline.PushBackoffSeconds = override.Pipeline.PushBackoffSeconds
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Telegram: TelegramConfig{
			APIBaseURL: "https://api.telegram.org",
		},
		Gemini: GeminiConfig{
			Endpoint:       "https://generativelanguage.googleapis.com/v1beta",
			Model:          "gemini-2.0-flash",
			TimeoutSeconds: 30,
		},
		Vault: VaultConfig{
			Path:        "./vault",
			StateDBPath: "./vault/.articlestock.db",
			AuthorName:  "Article Stock Bot",
			AuthorEmail: "articlestock@localhost",
		},
		Pipeline: PipelineConfig{
			MaxConcurrent:       3,
			FetchTimeoutSeconds: 10,
			FetchMaxBytes:       10 * 1024 * 1024,
			PushRetries:         3,
			PushBackoffSeconds:  2,
		},
	}
}
