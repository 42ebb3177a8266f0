package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the mailbox backup tool
type Config struct {
	// Account credentials for the remote mailbox API
	Account AccountConfig `yaml:"account" json:"account"`

	// Rate limiting and retry configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Daily quota budget configuration
	Quota QuotaConfig `yaml:"quota" json:"quota"`

	// Backup run settings
	Backup BackupConfig `yaml:"backup" json:"backup"`

	// Checkpoint persistence settings
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// AccountConfig holds credentials for the remote mailbox API
type AccountConfig struct {
	Email    string `yaml:"email" json:"email"`
	APIToken string `yaml:"api_token" json:"api_token"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
}

// RateLimitConfig holds pacing and retry configuration
type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	Jitter            bool          `yaml:"jitter" json:"jitter"`
}

// QuotaConfig holds the daily quota budget and per-operation costs
type QuotaConfig struct {
	DailyLimit int64            `yaml:"daily_limit" json:"daily_limit"`
	Costs      map[string]int64 `yaml:"costs" json:"costs"`
}

// BackupConfig holds backup run settings
type BackupConfig struct {
	OutputDirectory    string        `yaml:"output_directory" json:"output_directory"`
	Query              string        `yaml:"query" json:"query"`
	CheckpointInterval int           `yaml:"checkpoint_interval" json:"checkpoint_interval"`
	HashWorkers        int           `yaml:"hash_workers" json:"hash_workers"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	PageSize           int           `yaml:"page_size" json:"page_size"`
}

// CheckpointConfig holds checkpoint persistence settings
type CheckpointConfig struct {
	Directory      string        `yaml:"directory" json:"directory"`
	RetentionAge   time.Duration `yaml:"retention_age" json:"retention_age"`
	RetentionCount int           `yaml:"retention_count" json:"retention_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			BaseURL: "https://mail.googleapis.com/gmail/v1",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2.0,
			MaxRetries:        3,
			BaseDelay:         1 * time.Second,
			MaxDelay:          60 * time.Second,
			Jitter:            true,
		},
		Quota: QuotaConfig{
			DailyLimit: 1000000,
			Costs: map[string]int64{
				"list":         5,
				"get":          5,
				"delete":       10,
				"batch_delete": 50,
			},
		},
		Backup: BackupConfig{
			OutputDirectory:    "./backups",
			Query:              "",
			CheckpointInterval: 10,
			HashWorkers:        4,
			FetchTimeout:       30 * time.Second,
			PageSize:           100,
		},
		Checkpoint: CheckpointConfig{
			Directory:      "", // empty means the platform data directory
			RetentionAge:   30 * 24 * time.Hour,
			RetentionCount: 10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if email := os.Getenv("MAILVAULT_EMAIL"); email != "" {
		c.Account.Email = email
	}
	if token := os.Getenv("MAILVAULT_API_TOKEN"); token != "" {
		c.Account.APIToken = token
	}
	if baseURL := os.Getenv("MAILVAULT_BASE_URL"); baseURL != "" {
		c.Account.BaseURL = baseURL
	}

	if rps := os.Getenv("MAILVAULT_REQUESTS_PER_SECOND"); rps != "" {
		if val, err := strconv.ParseFloat(rps, 64); err == nil && val > 0 {
			c.RateLimit.RequestsPerSecond = val
		}
	}
	if retries := os.Getenv("MAILVAULT_MAX_RETRIES"); retries != "" {
		if val, err := strconv.Atoi(retries); err == nil && val >= 0 {
			c.RateLimit.MaxRetries = val
		}
	}

	if limit := os.Getenv("MAILVAULT_DAILY_QUOTA"); limit != "" {
		if val, err := strconv.ParseInt(limit, 10, 64); err == nil && val > 0 {
			c.Quota.DailyLimit = val
		}
	}

	if outputDir := os.Getenv("MAILVAULT_OUTPUT_DIR"); outputDir != "" {
		c.Backup.OutputDirectory = outputDir
	}
	if query := os.Getenv("MAILVAULT_QUERY"); query != "" {
		c.Backup.Query = query
	}

	if checkpointDir := os.Getenv("MAILVAULT_CHECKPOINT_DIR"); checkpointDir != "" {
		c.Checkpoint.Directory = checkpointDir
	}

	if level := os.Getenv("MAILVAULT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile looks for a config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		"mailvault.yaml",
		"mailvault.yml",
		".mailvault.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations,
			filepath.Join(home, ".mailvault.yaml"),
			filepath.Join(home, ".config", "mailvault", "config.yaml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("rate_limit.requests_per_second must be positive")
	}
	if c.RateLimit.MaxRetries < 0 {
		return errors.New("rate_limit.max_retries cannot be negative")
	}
	if c.RateLimit.BaseDelay <= 0 {
		return errors.New("rate_limit.base_delay must be positive")
	}
	if c.RateLimit.MaxDelay < c.RateLimit.BaseDelay {
		return errors.New("rate_limit.max_delay cannot be less than base_delay")
	}
	if c.Quota.DailyLimit <= 0 {
		return errors.New("quota.daily_limit must be positive")
	}
	for op, cost := range c.Quota.Costs {
		if cost <= 0 {
			return fmt.Errorf("quota.costs[%s] must be positive", op)
		}
	}
	if c.Backup.OutputDirectory == "" {
		return errors.New("backup.output_directory is required")
	}
	if c.Backup.CheckpointInterval <= 0 {
		return errors.New("backup.checkpoint_interval must be positive")
	}
	if c.Backup.HashWorkers <= 0 {
		return errors.New("backup.hash_workers must be positive")
	}
	if c.Backup.PageSize <= 0 {
		return errors.New("backup.page_size must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("unknown logging level: %s", c.Logging.Level)
	}

	return nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags applies command line flag overrides
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["email"].(string); ok && v != "" {
		c.Account.Email = v
	}
	if v, ok := flags["api-token"].(string); ok && v != "" {
		c.Account.APIToken = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Backup.OutputDirectory = v
	}
	if v, ok := flags["query"].(string); ok && v != "" {
		c.Backup.Query = v
	}
	if v, ok := flags["requests-per-second"].(float64); ok && v > 0 {
		c.RateLimit.RequestsPerSecond = v
	}
	if v, ok := flags["max-retries"].(int); ok && v >= 0 {
		c.RateLimit.MaxRetries = v
	}
	if v, ok := flags["daily-quota"].(int64); ok && v > 0 {
		c.Quota.DailyLimit = v
	}
	if v, ok := flags["checkpoint-interval"].(int); ok && v > 0 {
		c.Backup.CheckpointInterval = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load builds the effective configuration: defaults, then config file,
// then environment, then command line flags.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// A .env file is optional; ignore the error when absent.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if configPath == "" {
		configPath = cfg.findConfigFile()
	}
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
