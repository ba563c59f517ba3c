package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mlundqvist/buildfetch/internal/progress"
)

// Config defines configuration for the buildfetch CLI.
type Config struct {
	RootURL       string        `yaml:"root_url"`
	Dir           string        `yaml:"dir"`
	MaxDepth      int           `yaml:"max_depth"`
	PreferredDirs []string      `yaml:"preferred_dirs"`
	StateInterval int64         `yaml:"state_interval"`
	MaxAttempts   int           `yaml:"max_attempts"`
	Timeout       time.Duration `yaml:"timeout"`
	Progress      bool          `yaml:"progress"`
	Retry         RetryConfig   `yaml:"retry"`
	Log           LogConfig     `yaml:"log"`
}

// RetryConfig defines per-request retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// LogConfig defines logging behavior.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Dir:           ".",
		MaxDepth:      5,
		PreferredDirs: []string{"user", "gms"},
		StateInterval: 8 * 1024 * 1024, // 8MB
		MaxAttempts:   3,
		Timeout:       30 * time.Second,
		Progress:      true,
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	RootURL       string          `yaml:"root_url"`
	Dir           string          `yaml:"dir"`
	MaxDepth      int             `yaml:"max_depth"`
	PreferredDirs []string        `yaml:"preferred_dirs"`
	StateInterval string          `yaml:"state_interval"`
	MaxAttempts   int             `yaml:"max_attempts"`
	Timeout       string          `yaml:"timeout"`
	Progress      *bool           `yaml:"progress"`
	Retry         yamlRetryConfig `yaml:"retry"`
	Log           LogConfig       `yaml:"log"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.RootURL != "" {
		cfg.RootURL = yc.RootURL
	}
	if yc.Dir != "" {
		cfg.Dir = yc.Dir
	}
	if yc.MaxDepth != 0 {
		cfg.MaxDepth = yc.MaxDepth
	}
	if yc.PreferredDirs != nil {
		cfg.PreferredDirs = yc.PreferredDirs
	}
	if yc.StateInterval != "" {
		size, err := progress.ParseBytes(yc.StateInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse state_interval: %w", err)
		}
		cfg.StateInterval = size
	}
	if yc.MaxAttempts != 0 {
		cfg.MaxAttempts = yc.MaxAttempts
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.Progress != nil {
		cfg.Progress = *yc.Progress
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}
	if yc.Log.Level != "" {
		cfg.Log.Level = yc.Log.Level
	}
	if yc.Log.Format != "" {
		cfg.Log.Format = yc.Log.Format
	}

	return cfg, nil
}

// LoadFromEnv overlays configuration from environment variables with the
// BUILDFETCH_ prefix. A .env file in the working directory is loaded first
// when present; real environment variables win over it.
func (c *Config) LoadFromEnv() error {
	_ = godotenv.Load()

	if v := os.Getenv("BUILDFETCH_ROOT_URL"); v != "" {
		c.RootURL = v
	}
	if v := os.Getenv("BUILDFETCH_DIR"); v != "" {
		c.Dir = v
	}
	if v := os.Getenv("BUILDFETCH_MAX_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse BUILDFETCH_MAX_DEPTH: %w", err)
		}
		c.MaxDepth = n
	}
	if v := os.Getenv("BUILDFETCH_PREFERRED_DIRS"); v != "" {
		dirs := strings.Split(v, ",")
		for i := range dirs {
			dirs[i] = strings.TrimSpace(dirs[i])
		}
		c.PreferredDirs = dirs
	}
	if v := os.Getenv("BUILDFETCH_STATE_INTERVAL"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse BUILDFETCH_STATE_INTERVAL: %w", err)
		}
		c.StateInterval = size
	}
	if v := os.Getenv("BUILDFETCH_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse BUILDFETCH_MAX_ATTEMPTS: %w", err)
		}
		c.MaxAttempts = n
	}
	if v := os.Getenv("BUILDFETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse BUILDFETCH_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("BUILDFETCH_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("BUILDFETCH_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse BUILDFETCH_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("BUILDFETCH_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse BUILDFETCH_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("BUILDFETCH_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse BUILDFETCH_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}
	if v := os.Getenv("BUILDFETCH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("BUILDFETCH_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RootURL == "" {
		return errors.New("config: root URL is required")
	}
	if !strings.HasPrefix(c.RootURL, "http://") && !strings.HasPrefix(c.RootURL, "https://") {
		return fmt.Errorf("config: root URL must be http or https: %s", c.RootURL)
	}
	if c.Dir == "" {
		return errors.New("config: dir is required")
	}
	if c.MaxDepth <= 0 {
		return errors.New("config: max_depth must be positive")
	}
	if c.StateInterval <= 0 {
		return errors.New("config: state_interval must be positive")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("config: max_attempts must be positive")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.RootURL != "" {
		c.RootURL = override.RootURL
	}
	if override.Dir != "" {
		c.Dir = override.Dir
	}
	if override.MaxDepth != 0 {
		c.MaxDepth = override.MaxDepth
	}
	if override.PreferredDirs != nil {
		c.PreferredDirs = override.PreferredDirs
	}
	if override.StateInterval != 0 {
		c.StateInterval = override.StateInterval
	}
	if override.MaxAttempts != 0 {
		c.MaxAttempts = override.MaxAttempts
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	return c
}
