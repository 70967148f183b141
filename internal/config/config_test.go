package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hession/taskmem/internal/logger"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Memory.MaxEntries != 1000 {
		t.Errorf("Expected MaxEntries to be 1000, got %d", cfg.Memory.MaxEntries)
	}

	if cfg.Memory.MaxStorageBytes != 5*1024*1024 {
		t.Errorf("Expected MaxStorageBytes to be 5 MiB, got %d", cfg.Memory.MaxStorageBytes)
	}

	if cfg.Memory.KeyPrefix != "taskmem_" {
		t.Errorf("Expected KeyPrefix to be taskmem_, got %s", cfg.Memory.KeyPrefix)
	}

	if !strings.HasSuffix(cfg.Memory.DBPath, filepath.Join(".taskmem", "memory.db")) {
		t.Errorf("Unexpected DBPath %s", cfg.Memory.DBPath)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected log level info, got %s", cfg.Log.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "empty DBPath", mutate: func(c *Config) { c.Memory.DBPath = "" }, wantErr: true},
		{name: "zero MaxEntries", mutate: func(c *Config) { c.Memory.MaxEntries = 0 }, wantErr: true},
		{name: "zero MaxStorageBytes", mutate: func(c *Config) { c.Memory.MaxStorageBytes = 0 }, wantErr: true},
		{name: "negative CacheEntries", mutate: func(c *Config) { c.Memory.CacheEntries = -1 }, wantErr: true},
		{name: "disabled cache", mutate: func(c *Config) { c.Memory.CacheEntries = 0 }},
		{name: "unknown timezone", mutate: func(c *Config) { c.Memory.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "UTC timezone", mutate: func(c *Config) { c.Memory.Timezone = "UTC" }},
		{name: "threshold above 1", mutate: func(c *Config) { c.Search.SimilarityThreshold = 1.5 }, wantErr: true},
		{name: "negative default limit", mutate: func(c *Config) { c.Search.DefaultLimit = -1 }, wantErr: true},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "taskmem-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	configTestDir := filepath.Join(tmpDir, "config")
	SetConfigDir(configTestDir)

	cfg := DefaultConfig()
	cfg.Memory.MaxEntries = 50
	cfg.Search.SimilarityThreshold = 0.8

	err = Save(cfg)
	if err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	configPath := filepath.Join(configTestDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file not created")
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loadedCfg.Memory.MaxEntries != 50 {
		t.Errorf("MaxEntries mismatch: expected 50, got %d", loadedCfg.Memory.MaxEntries)
	}
	if loadedCfg.Search.SimilarityThreshold != 0.8 {
		t.Errorf("SimilarityThreshold mismatch: expected 0.8, got %f", loadedCfg.Search.SimilarityThreshold)
	}
}

func TestLoad_CreatesDefault(t *testing.T) {
	tmpDir := t.TempDir()
	SetConfigDir(filepath.Join(tmpDir, "fresh"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Memory.MaxEntries != DefaultConfig().Memory.MaxEntries {
		t.Errorf("Expected default MaxEntries, got %d", cfg.Memory.MaxEntries)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "fresh", "config.yaml")); err != nil {
		t.Errorf("Default config file should be written: %v", err)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	SetConfigDir(tmpDir)

	content := "memory:\n  max_entries: 7\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Memory.MaxEntries != 7 {
		t.Errorf("Expected MaxEntries 7, got %d", cfg.Memory.MaxEntries)
	}
	if cfg.Search.SimilarLimit != DefaultConfig().Search.SimilarLimit {
		t.Errorf("Unset fields should keep defaults, got SimilarLimit %d", cfg.Search.SimilarLimit)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	SetConfigDir(tmpDir)

	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("memory: [oops"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Error("Malformed YAML should fail to load")
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("memory:\n  max_entries: -3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Error("Invalid values should fail validation")
	}
}

func TestMemoryOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Memory.MaxEntries = 12
	cfg.Memory.MaxStorageBytes = 4096
	cfg.Memory.KeyPrefix = "custom_"
	cfg.Memory.CacheEntries = 0
	cfg.Memory.Timezone = "UTC"

	opts := cfg.MemoryOptions()
	if opts.MaxEntries != 12 {
		t.Errorf("Expected MaxEntries 12, got %d", opts.MaxEntries)
	}
	if opts.Persistence.CapacityBytes != 4096 {
		t.Errorf("Expected CapacityBytes 4096, got %d", opts.Persistence.CapacityBytes)
	}
	if opts.Persistence.KeyPrefix != "custom_" {
		t.Errorf("Expected KeyPrefix custom_, got %s", opts.Persistence.KeyPrefix)
	}
	if opts.Persistence.CacheEntries != 0 {
		t.Errorf("Expected cache disabled, got %d", opts.Persistence.CacheEntries)
	}
	if opts.Location != time.UTC {
		t.Errorf("Expected UTC location, got %v", opts.Location)
	}
}

func TestLoggerConfig(t *testing.T) {
	SetConfigDir(t.TempDir())
	cfg := DefaultConfig()
	cfg.Log.Level = "warn"
	cfg.Log.Console = true

	lc := cfg.LoggerConfig()
	if lc.Level != logger.WARN {
		t.Errorf("Expected WARN, got %v", lc.Level)
	}
	if !lc.ConsoleOut {
		t.Error("Expected console output enabled")
	}
	if lc.LogDir != LogDir() {
		t.Errorf("Expected log dir %s, got %s", LogDir(), lc.LogDir)
	}
}

func TestString(t *testing.T) {
	s := DefaultConfig().String()
	for _, want := range []string{"Max Entries: 1000", "Similarity Threshold: 0.60", "Level: info", "Timezone: (local)"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q:\n%s", want, s)
		}
	}
}
