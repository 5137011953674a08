package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/scribo/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Processor   ProcessorConfig `toml:"processor"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// QueueConfig configures the internal at-least-once delivery queue.
type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m" - redelivery window for unacked messages
	MaxReceive        int    `toml:"max_receive"`        // max receives before a message is dropped
	QueueName         string `toml:"queue_name"`         // queue key prefix in Badger
}

type StorageConfig struct {
	Badger     BadgerConfig     `toml:"badger"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // delete database on startup for clean test runs
}

type FilesystemConfig struct {
	Attachments string `toml:"attachments"` // root for uploaded attachment blobs
	BaseURL     string `toml:"base_url"`    // public URL prefix for uploaded blobs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// ProcessorConfig configures message processing behavior.
type ProcessorConfig struct {
	// AckMalformed controls the ingress response for unparseable messages:
	// true acks-and-drops (they can never succeed on redelivery), false
	// rejects so the transport retries anyway.
	AckMalformed bool `toml:"ack_malformed"`

	// AckGenerationErrors controls whether a failed generation is acked
	// (recorded as an error state, awaiting a manual regenerate) or nacked
	// for transport-level redelivery.
	AckGenerationErrors bool `toml:"ack_generation_errors"`

	// MaxRetries bounds redelivery processing per jobId before the record is
	// marked permanently failed.
	MaxRetries int `toml:"max_retries"`

	// GenerationTimeout bounds a single AI call, duration string (e.g. "5m").
	GenerationTimeout string `toml:"generation_timeout"`

	// StaleAfter is how long a record may sit in processing before the
	// maintenance sweep re-enqueues it, duration string.
	StaleAfter string `toml:"stale_after"`

	// SweepSchedule is the cron schedule for the stale-job sweep.
	SweepSchedule string `toml:"sweep_schedule"`

	// SweepEnabled toggles the maintenance sweep.
	SweepEnabled bool `toml:"sweep_enabled"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Gemini API key
	Model       string  `toml:"model"`       // model for generation (default: "gemini-2.5-pro")
	Temperature float32 `toml:"temperature"` // completion temperature (default: 0.7)
	RateLimit   string  `toml:"rate_limit"`  // minimum spacing between calls, duration string
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // model for generation (default: "claude-sonnet-4-20250514")
	MaxTokens   int     `toml:"max_tokens"`  // maximum tokens in response (default: 16000)
	Temperature float32 `toml:"temperature"` // completion temperature (default: 0.7)
	RateLimit   string  `toml:"rate_limit"`  // minimum spacing between calls, duration string
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini" or "claude" (default: "gemini")
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings should be exposed in scribo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "scribo_jobs",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Filesystem: FilesystemConfig{
				Attachments: "./data/attachments",
				BaseURL:     "/attachments",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Processor: ProcessorConfig{
			AckMalformed:        true,
			AckGenerationErrors: true,
			MaxRetries:          3,
			GenerationTimeout:   "5m",
			StaleAfter:          "30m",
			SweepSchedule:       "*/10 * * * *", // every 10 minutes
			SweepEnabled:        true,
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-2.5-pro",
			Temperature: 0.7,
			RateLimit:   "4s",
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   16000,
			Temperature: 0.7,
			RateLimit:   "1s",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCRIBO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("SCRIBO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SCRIBO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("SCRIBO_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if level := os.Getenv("SCRIBO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if key := os.Getenv("SCRIBO_GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("SCRIBO_CLAUDE_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if provider := os.Getenv("SCRIBO_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	if retries := os.Getenv("SCRIBO_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil && r > 0 {
			config.Processor.MaxRetries = r
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key with priority: environment variable ->
// KV store -> config fallback. kvStorage may be nil.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key": {"SCRIBO_GEMINI_API_KEY"},
		"claude_api_key": {"SCRIBO_CLAUDE_API_KEY"},
	}

	// For Claude, also honor the standard ANTHROPIC_API_KEY env var
	if name == "claude_api_key" {
		if envValue := os.Getenv("ANTHROPIC_API_KEY"); envValue != "" {
			return envValue, nil
		}
	}

	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// ParseDuration parses a duration string from config, falling back to the
// given default when the value is empty or invalid.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
