package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration.
type Config struct {
	Server struct {
		Port     int    `koanf:"port"`
		LogLevel string `koanf:"log_level"`
		Pretty   bool   `koanf:"pretty_logs"`
	} `koanf:"server"`

	ToolServer struct {
		Port      int    `koanf:"port"`
		URL       string `koanf:"url"`
		AccessKey string `koanf:"access_key"`
	} `koanf:"toolserver"`

	Mongo struct {
		URI      string `koanf:"uri"`
		Database string `koanf:"database"`
	} `koanf:"mongo"`

	Postgres struct {
		URL    string `koanf:"url"`
		Schema string `koanf:"schema"`
	} `koanf:"postgres"`

	AI struct {
		APIKey      string  `koanf:"api_key"`
		Model       string  `koanf:"model"`
		BaseURL     string  `koanf:"base_url"`
		Temperature float64 `koanf:"temperature"`
		MaxTokens   int     `koanf:"max_tokens"`
	} `koanf:"ai"`

	Chat struct {
		MaxIterations  int     `koanf:"max_iterations"`
		HistoryLimit   int     `koanf:"history_limit"`
		HistoryKeep    int     `koanf:"history_keep"`
		RatePerMinute  float64 `koanf:"rate_per_minute"`
		RateBurst      int     `koanf:"rate_burst"`
		ModelTimeoutS  int     `koanf:"model_timeout_seconds"`
		ToolTimeoutS   int     `koanf:"tool_timeout_seconds"`
		ListTimeoutS   int     `koanf:"list_timeout_seconds"`
		DefaultSamples int     `koanf:"default_sample_size"`
	} `koanf:"chat"`
}

// ModelTimeout returns the per-call budget for outbound model requests.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Chat.ModelTimeoutS) * time.Second
}

// ToolTimeout returns the per-call budget for tool dispatches.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Chat.ToolTimeoutS) * time.Second
}

// ListTimeout returns the budget for the startup catalogue fetch.
func (c *Config) ListTimeout() time.Duration {
	return time.Duration(c.Chat.ListTimeoutS) * time.Second
}

// LoadConfig loads the configuration from a file, falling back to default
// locations and applying FLEETMETRY_ environment overrides on top.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":                3000,
		"server.log_level":           "info",
		"toolserver.port":            3003,
		"toolserver.url":             "http://localhost:3003",
		"postgres.schema":            "common_data",
		"ai.model":                   "google/gemini-2.5-flash",
		"ai.base_url":                "https://openrouter.ai/api/v1",
		"ai.temperature":             0.1,
		"ai.max_tokens":              2048,
		"chat.max_iterations":        15,
		"chat.history_limit":         25,
		"chat.history_keep":          20,
		"chat.rate_per_minute":       30.0,
		"chat.rate_burst":            5,
		"chat.model_timeout_seconds": 60,
		"chat.tool_timeout_seconds":  60,
		"chat.list_timeout_seconds":  30,
		"chat.default_sample_size":   5,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./fleetmetry.toml", "$HOME/.fleetmetry.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix FLEETMETRY_
	k.Load(env.Provider("FLEETMETRY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "FLEETMETRY_")), "_", ".", 1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# FleetMetry Configuration

[server]
port = 3000
log_level = "info"

[toolserver]
port = 3003
url = "http://localhost:3003"
access_key = "change-me"

[mongo]
uri = "mongodb://localhost:27017"
database = "fleetmetry"

[postgres]
url = "postgres://localhost:5432/fleetmetry?sslmode=disable"
schema = "common_data"

[ai]
api_key = "your-openrouter-api-key"
model = "google/gemini-2.5-flash"
base_url = "https://openrouter.ai/api/v1"
temperature = 0.1
max_tokens = 2048
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration.
func Validate(config *Config) error {
	if config.Mongo.URI == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if config.Mongo.Database == "" {
		return fmt.Errorf("mongo database is required")
	}
	if config.Postgres.URL == "" {
		return fmt.Errorf("postgres url is required")
	}
	if config.AI.APIKey == "" {
		return fmt.Errorf("ai api_key is required")
	}
	if config.ToolServer.AccessKey == "" {
		return fmt.Errorf("toolserver access_key is required")
	}
	if config.Chat.MaxIterations <= 0 {
		return fmt.Errorf("chat max_iterations must be positive")
	}
	if config.Chat.HistoryKeep >= config.Chat.HistoryLimit {
		return fmt.Errorf("chat history_keep must be smaller than history_limit")
	}
	return nil
}
