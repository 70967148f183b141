package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hession/taskmem/internal/logger"
	"github.com/hession/taskmem/internal/memory"
	"github.com/hession/taskmem/internal/persistence"
	"gopkg.in/yaml.v3"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Config application configuration structure
type Config struct {
	Memory MemoryConfig `yaml:"memory"`
	Search SearchConfig `yaml:"search"`
	Log    LogConfig    `yaml:"log"`
}

// MemoryConfig task memory storage configuration
type MemoryConfig struct {
	DBPath          string `yaml:"db_path"`
	MaxEntries      int    `yaml:"max_entries"`
	MaxStorageBytes int64  `yaml:"max_storage_bytes"`
	KeyPrefix       string `yaml:"key_prefix"`
	CacheEntries    int64  `yaml:"cache_entries"` // 0 disables the read cache
	Timezone        string `yaml:"timezone"`      // IANA name for hour-of-day patterns, empty for local
}

// SearchConfig defaults applied by the command line and REPL
type SearchConfig struct {
	DefaultLimit        int     `yaml:"default_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	SimilarLimit        int     `yaml:"similar_limit"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level   string `yaml:"level"`
	MaxDays int    `yaml:"max_days"`
	Console bool   `yaml:"console"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Memory: MemoryConfig{
			DBPath:          filepath.Join(homeDir, ".taskmem", "memory.db"),
			MaxEntries:      memory.DefaultMaxEntries,
			MaxStorageBytes: persistence.DefaultCapacityBytes,
			KeyPrefix:       persistence.DefaultKeyPrefix,
			CacheEntries:    persistence.DefaultCacheEntries,
		},
		Search: SearchConfig{
			DefaultLimit:        20,
			SimilarityThreshold: 0.6,
			SimilarLimit:        5,
		},
		Log: LogConfig{
			Level:   "info",
			MaxDays: 7,
			Console: false,
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func LogDir() string {
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file, creating it with defaults if missing
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig() // Use default values as base
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to file
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	content := "# taskmem configuration file\n\n" + string(data)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Memory.DBPath == "" {
		return fmt.Errorf("config error: memory.db_path cannot be empty")
	}
	if c.Memory.MaxEntries <= 0 {
		return fmt.Errorf("config error: memory.max_entries must be greater than 0")
	}
	if c.Memory.MaxStorageBytes <= 0 {
		return fmt.Errorf("config error: memory.max_storage_bytes must be greater than 0")
	}
	if c.Memory.CacheEntries < 0 {
		return fmt.Errorf("config error: memory.cache_entries cannot be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config error: memory.timezone: %w", err)
	}

	if c.Search.DefaultLimit < 0 {
		return fmt.Errorf("config error: search.default_limit cannot be negative")
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("config error: search.similarity_threshold must be between 0 and 1")
	}
	if c.Search.SimilarLimit < 0 {
		return fmt.Errorf("config error: search.similar_limit cannot be negative")
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config error: log.level: %w", err)
	}

	return nil
}

// Location returns the configured time zone, or time.Local when unset
func (c *Config) Location() (*time.Location, error) {
	if c.Memory.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Memory.Timezone)
}

// MemoryOptions converts the memory section into store options
func (c *Config) MemoryOptions() memory.Options {
	opts := memory.DefaultOptions()
	opts.MaxEntries = c.Memory.MaxEntries
	opts.Persistence.CapacityBytes = c.Memory.MaxStorageBytes
	opts.Persistence.CacheEntries = c.Memory.CacheEntries
	if c.Memory.KeyPrefix != "" {
		opts.Persistence.KeyPrefix = c.Memory.KeyPrefix
	}
	if loc, err := c.Location(); err == nil {
		opts.Location = loc
	}
	return opts
}

// LoggerConfig converts the log section into logger settings
func (c *Config) LoggerConfig() logger.Config {
	level, _ := logger.ParseLevel(c.Log.Level)
	return logger.Config{
		LogDir:     LogDir(),
		Level:      level,
		MaxDays:    c.Log.MaxDays,
		ConsoleOut: c.Log.Console,
	}
}

// String returns string representation of config
func (c *Config) String() string {
	timezone := c.Memory.Timezone
	if timezone == "" {
		timezone = "(local)"
	}

	return fmt.Sprintf(`taskmem Configuration:
  Memory:
    DB Path: %s
    Max Entries: %d
    Max Storage Bytes: %d
    Key Prefix: %s
    Cache Entries: %d
    Timezone: %s
  Search:
    Default Limit: %d
    Similarity Threshold: %.2f
    Similar Limit: %d
  Log:
    Level: %s
    Max Days: %d
    Console: %v`,
		c.Memory.DBPath,
		c.Memory.MaxEntries,
		c.Memory.MaxStorageBytes,
		c.Memory.KeyPrefix,
		c.Memory.CacheEntries,
		timezone,
		c.Search.DefaultLimit,
		c.Search.SimilarityThreshold,
		c.Search.SimilarLimit,
		c.Log.Level,
		c.Log.MaxDays,
		c.Log.Console,
	)
}
