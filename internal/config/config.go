package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all glyphdeck configuration.
type Config struct {
	// LLM annotation settings
	LLM LLMConfig `yaml:"llm"`

	// Dispatcher concurrency bounds
	Limits Limits `yaml:"limits"`

	// Content cache
	Cache CacheConfig `yaml:"cache"`

	// Transient error backoff
	Retry RetryConfig `yaml:"retry"`

	// Output writing
	Export ExportConfig `yaml:"export"`

	// Regex sanitiser
	Sanitiser SanitiserConfig `yaml:"sanitiser"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig configures the disk-backed content cache.
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	SizeMB        int    `yaml:"size_mb"`
	MemoryEntries int    `yaml:"memory_entries"` // in-process front tier, 0 disables
}

// RetryConfig configures exponential backoff for transient provider errors.
type RetryConfig struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	InitialDelay string  `yaml:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
}

// ExportConfig configures output files and the optional S3 upload.
type ExportConfig struct {
	Dir    string   `yaml:"dir"`
	Prefix string   `yaml:"prefix"`
	Format string   `yaml:"format"` // csv, xlsx
	Sheets bool     `yaml:"sheets"` // xlsx only: one workbook, one sheet per table
	S3     S3Config `yaml:"s3"`
}

// S3Config configures uploading written files to an S3-compatible bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// SanitiserConfig selects sanitiser groups and placeholder overrides.
type SanitiserConfig struct {
	Groups       []string          `yaml:"groups"`
	Placeholders map[string]string `yaml:"placeholders"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:             "openai",
			Model:                "gpt-4o-mini",
			Timeout:              "60s",
			Validator:            "sentiment",
			Temperature:          0.2,
			MaxValidationRetries: 2,
		},
		Limits: Limits{
			Preprepared: 10,
			Awaiting:    100,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(".glyphdeck", "cache"),
			SizeMB:  100,
		},
		Retry: RetryConfig{
			MaxAttempts:  300,
			InitialDelay: "1s",
			MaxDelay:     "60s",
			Multiplier:   2,
		},
		Export: ExportConfig{
			Dir:    "output",
			Prefix: "glyphdeck",
			Format: "csv",
		},
		Sanitiser: SanitiserConfig{
			Groups: []string{"date", "email", "path", "url", "number"},
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(".glyphdeck", "logs"),
		},
	}
}

// Load loads configuration from a YAML file.
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

func (c *Config) applyEnvOverrides() {
	// Provider keys, later entries win
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if model := os.Getenv("GLYPHDECK_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if dir := os.Getenv("GLYPHDECK_CACHE_DIR"); dir != "" {
		c.Cache.Dir = dir
	}
}

// GetTimeout returns the per-request provider timeout.
func (c *Config) GetTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// GetRetryDelays returns the initial and maximum backoff delays.
func (c *Config) GetRetryDelays() (initial, max time.Duration) {
	return parseDuration(c.Retry.InitialDelay, time.Second), parseDuration(c.Retry.MaxDelay, 60*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if c.Cache.Enabled && c.Cache.SizeMB <= 0 {
		return fmt.Errorf("%w: cache size_mb must be positive, got %d", ErrInvalidConfig, c.Cache.SizeMB)
	}
	if c.Cache.MemoryEntries < 0 {
		return fmt.Errorf("%w: cache memory_entries must be non-negative, got %d", ErrInvalidConfig, c.Cache.MemoryEntries)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry max_attempts must be >= 1, got %d", ErrInvalidConfig, c.Retry.MaxAttempts)
	}
	switch c.Export.Format {
	case "csv", "xlsx":
	default:
		return fmt.Errorf("%w: export format must be csv or xlsx, got %q", ErrInvalidConfig, c.Export.Format)
	}
	if c.Export.Sheets && c.Export.Format != "xlsx" {
		return fmt.Errorf("%w: export sheets requires xlsx format", ErrInvalidConfig)
	}
	return nil
}
