// Package config holds all aikun configuration: the YAML file format,
// defaults, environment overrides and the hot-reload watcher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all aikun configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM backend
	LLM LLMConfig `yaml:"llm"`

	// Search backend
	Search SearchConfig `yaml:"search"`

	// Conversation history
	Conversation ConversationConfig `yaml:"conversation"`

	// Reply synthesis and evidence bounds
	Reply ReplyConfig `yaml:"reply"`

	// Webhook transport
	Transport TransportConfig `yaml:"transport"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the language-model backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, genai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// SearchConfig configures the search backend.
type SearchConfig struct {
	Locale      string `yaml:"locale"`       // backend locale pair
	ResultCount int    `yaml:"result_count"` // raw results requested per sub-fetch
	Timeout     string `yaml:"timeout"`
	CacheTTL    string `yaml:"cache_ttl"`
	CacheSize   int    `yaml:"cache_size"`
}

// ConversationConfig configures the turn log.
type ConversationConfig struct {
	DatabasePath string `yaml:"database_path"`
	// HistoryWindow is W in exchanges; a read returns up to 2*W turns.
	HistoryWindow int `yaml:"history_window"`
	// PendingLookbackTurns bounds the backward scan for a pending
	// clarification query. Heuristic, tunable.
	PendingLookbackTurns int `yaml:"pending_lookback_turns"`
}

// ReplyConfig configures evidence bounds and reply behavior.
type ReplyConfig struct {
	CitationCap int `yaml:"citation_cap"` // final evidence cap
	RecencyDays int `yaml:"recency_days"` // freshness parameter R
	DailyQuota  int `yaml:"daily_quota"`  // per-user replies per day, 0 = unlimited
	// AlwaysCrossSell appends the marketplace link even when the model
	// already mentioned it.
	AlwaysCrossSell bool `yaml:"always_cross_sell"`
}

// TransportConfig configures the webhook server.
type TransportConfig struct {
	Addr          string `yaml:"addr"`
	ChannelSecret string `yaml:"channel_secret"`
	ChannelToken  string `yaml:"channel_token"`
	ReplyEndpoint string `yaml:"reply_endpoint"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Dir        string          `yaml:"dir"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "aikun",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  "30s",
		},

		Search: SearchConfig{
			Locale:      "jp-jp",
			ResultCount: 6,
			Timeout:     "10s",
			CacheTTL:    "30m",
			CacheSize:   1000,
		},

		Conversation: ConversationConfig{
			DatabasePath:         "data/aikun.db",
			HistoryWindow:        12,
			PendingLookbackTurns: 6,
		},

		Reply: ReplyConfig{
			CitationCap: 2,
			RecencyDays: 14,
			DailyQuota:  0,
		},

		Transport: TransportConfig{
			Addr:          ":3000",
			ReplyEndpoint: "https://api.line.me/v2/bot/message/reply",
		},

		Logging: LoggingConfig{
			Level: "info",
			Dir:   "data",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment variables override the file in either case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment win over the file for secrets and
// the tunables operators most often flip.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("AIKUN_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("AIKUN_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("AIKUN_CHANNEL_SECRET"); v != "" {
		c.Transport.ChannelSecret = v
	}
	if v := os.Getenv("AIKUN_CHANNEL_TOKEN"); v != "" {
		c.Transport.ChannelToken = v
	}
	if v := os.Getenv("AIKUN_ADDR"); v != "" {
		c.Transport.Addr = v
	}
	if v := os.Getenv("AIKUN_DB_PATH"); v != "" {
		c.Conversation.DatabasePath = v
	}
	if v := os.Getenv("AIKUN_RECENCY_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Reply.RecencyDays = n
		}
	}
	if v := os.Getenv("AIKUN_DAILY_QUOTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Reply.DailyQuota = n
		}
	}
	if v := os.Getenv("AIKUN_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Debug = b
		}
	}
}

// ParseDuration parses a duration string from the config, falling back to
// def when the field is empty or malformed.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
