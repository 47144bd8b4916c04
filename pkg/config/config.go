// Package config handles Vantage configuration via YAML files and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--backend, --metric, etc.)
//  2. Environment variables (VANTAGE_*)
//  3. Config file (config.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("Backend: %s, metric: %s\n", cfg.Device.Backend, cfg.Index.Metric)
//
// Environment Variables (all use VANTAGE_ prefix):
//
// Device:
//   - VANTAGE_BACKEND="auto", "host" or "vulkan"
//   - VANTAGE_DEVICE_ID=0
//   - VANTAGE_MAX_MEMORY_MB=0 (0 = unlimited)
//
// Index:
//   - VANTAGE_METRIC="euclidean"
//   - VANTAGE_MAX_STACK_DEPTH=64
//
// Search:
//   - VANTAGE_GROUP_SIZE=256
//
// Storage:
//   - VANTAGE_DATA_DIR="./data"
//
// Logging:
//   - VANTAGE_LOG_LEVEL="info"
//   - VANTAGE_LOG_FORMAT="console" or "json"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all Vantage configuration.
//
// Configuration is organized into logical sections:
//   - Device: compute backend selection and memory budget
//   - Index: tree construction settings
//   - Search: batch dispatch settings
//   - Storage: snapshot persistence
//   - Logging: log level and format
//
// Use LoadDefaults() for built-in defaults, LoadFromEnv() to overlay
// environment variables, or LoadFromFile() for the full precedence chain.
type Config struct {
	// Device holds compute backend settings
	Device DeviceConfig

	// Index holds tree construction settings
	Index IndexConfig

	// Search holds batch dispatch settings
	Search SearchConfig

	// Storage holds snapshot persistence settings
	Storage StorageConfig

	// Logging
	Logging LoggingConfig
}

// DeviceConfig holds compute backend settings.
type DeviceConfig struct {
	// Backend selects the compute backend: auto, host, vulkan
	// Env: VANTAGE_BACKEND
	Backend string
	// DeviceID selects a specific device on multi-GPU systems
	// Env: VANTAGE_DEVICE_ID
	DeviceID int
	// MaxMemoryMB caps mirrored device memory (0 = unlimited)
	// Env: VANTAGE_MAX_MEMORY_MB
	MaxMemoryMB int
}

// IndexConfig holds tree construction settings.
type IndexConfig struct {
	// Metric names the distance metric used for building and searching
	// Env: VANTAGE_METRIC
	Metric string
	// MaxStackDepth bounds the per-worker traversal stack.
	// The default of 64 covers any tree addressable with 32-bit indices.
	// Env: VANTAGE_MAX_STACK_DEPTH
	MaxStackDepth int
}

// SearchConfig holds batch dispatch settings.
type SearchConfig struct {
	// GroupSize is the number of queries each dispatch worker handles
	// Env: VANTAGE_GROUP_SIZE
	GroupSize int
}

// StorageConfig holds snapshot persistence settings.
type StorageConfig struct {
	// DataDir is the directory for the snapshot store
	// Env: VANTAGE_DATA_DIR
	DataDir string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level: trace, debug, info, warn, error
	// Env: VANTAGE_LOG_LEVEL
	Level string
	// Format: console or json
	// Env: VANTAGE_LOG_FORMAT
	Format string
}

// LoadDefaults returns the built-in defaults without reading the
// environment or any file.
func LoadDefaults() *Config {
	return &Config{
		Device: DeviceConfig{
			Backend:     "auto",
			DeviceID:    0,
			MaxMemoryMB: 0,
		},
		Index: IndexConfig{
			Metric:        "euclidean",
			MaxStackDepth: 64,
		},
		Search: SearchConfig{
			GroupSize: 256,
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv returns the defaults overlaid with VANTAGE_* environment
// variables.
func LoadFromEnv() *Config {
	cfg := LoadDefaults()
	ApplyEnvVars(cfg)
	return cfg
}

// ApplyEnvVars applies VANTAGE_* environment variable overrides to an
// existing config.
func ApplyEnvVars(cfg *Config) {
	cfg.Device.Backend = getEnv("VANTAGE_BACKEND", cfg.Device.Backend)
	cfg.Device.DeviceID = getEnvInt("VANTAGE_DEVICE_ID", cfg.Device.DeviceID)
	cfg.Device.MaxMemoryMB = getEnvInt("VANTAGE_MAX_MEMORY_MB", cfg.Device.MaxMemoryMB)

	cfg.Index.Metric = getEnv("VANTAGE_METRIC", cfg.Index.Metric)
	cfg.Index.MaxStackDepth = getEnvInt("VANTAGE_MAX_STACK_DEPTH", cfg.Index.MaxStackDepth)

	cfg.Search.GroupSize = getEnvInt("VANTAGE_GROUP_SIZE", cfg.Search.GroupSize)

	cfg.Storage.DataDir = getEnv("VANTAGE_DATA_DIR", cfg.Storage.DataDir)

	cfg.Logging.Level = getEnv("VANTAGE_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("VANTAGE_LOG_FORMAT", cfg.Logging.Format)
}

// YAMLConfig mirrors the YAML file layout. Zero values mean "not set" so
// the file only overrides what it mentions.
type YAMLConfig struct {
	Device struct {
		Backend     string `yaml:"backend"`
		DeviceID    int    `yaml:"device_id"`
		MaxMemoryMB int    `yaml:"max_memory_mb"`
	} `yaml:"device"`
	Index struct {
		Metric        string `yaml:"metric"`
		MaxStackDepth int    `yaml:"max_stack_depth"`
	} `yaml:"index"`
	Search struct {
		GroupSize int `yaml:"group_size"`
	} `yaml:"search"`
	Storage struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadFromFile loads configuration with proper precedence:
//  1. Built-in defaults (lowest priority)
//  2. YAML config file
//  3. Environment variables (highest priority before CLI flags)
//
// Command-line flags are applied by the caller after this.
//
// Example YAML:
//
//	device:
//	  backend: vulkan
//	  max_memory_mb: 2048
//	index:
//	  metric: manhattan
//	logging:
//	  level: debug
//
// A missing file is not an error; the defaults plus environment apply.
func LoadFromFile(configPath string) (*Config, error) {
	cfg := LoadDefaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			var yamlCfg YAMLConfig
			if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			applyYAML(cfg, &yamlCfg)
		}
	}

	ApplyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyYAML(cfg *Config, y *YAMLConfig) {
	if y.Device.Backend != "" {
		cfg.Device.Backend = y.Device.Backend
	}
	if y.Device.DeviceID > 0 {
		cfg.Device.DeviceID = y.Device.DeviceID
	}
	if y.Device.MaxMemoryMB > 0 {
		cfg.Device.MaxMemoryMB = y.Device.MaxMemoryMB
	}
	if y.Index.Metric != "" {
		cfg.Index.Metric = y.Index.Metric
	}
	if y.Index.MaxStackDepth > 0 {
		cfg.Index.MaxStackDepth = y.Index.MaxStackDepth
	}
	if y.Search.GroupSize > 0 {
		cfg.Search.GroupSize = y.Search.GroupSize
	}
	if y.Storage.DataDir != "" {
		cfg.Storage.DataDir = y.Storage.DataDir
	}
	if y.Logging.Level != "" {
		cfg.Logging.Level = y.Logging.Level
	}
	if y.Logging.Format != "" {
		cfg.Logging.Format = y.Logging.Format
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Device.Backend {
	case "auto", "host", "vulkan":
	default:
		return fmt.Errorf("invalid backend %q (must be auto, host or vulkan)", c.Device.Backend)
	}
	if c.Device.DeviceID < 0 {
		return fmt.Errorf("invalid device_id %d", c.Device.DeviceID)
	}
	if c.Device.MaxMemoryMB < 0 {
		return fmt.Errorf("invalid max_memory_mb %d", c.Device.MaxMemoryMB)
	}
	if c.Index.Metric == "" {
		return fmt.Errorf("metric must not be empty")
	}
	if c.Index.MaxStackDepth < 1 {
		return fmt.Errorf("invalid max_stack_depth %d (must be >= 1)", c.Index.MaxStackDepth)
	}
	if c.Search.GroupSize < 1 {
		return fmt.Errorf("invalid group_size %d (must be >= 1)", c.Search.GroupSize)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be console or json)", c.Logging.Format)
	}
	return nil
}

// String returns a human-readable summary for startup logging.
func (c *Config) String() string {
	return fmt.Sprintf("backend=%s metric=%s stack_depth=%d group_size=%d data_dir=%s",
		c.Device.Backend, c.Index.Metric, c.Index.MaxStackDepth, c.Search.GroupSize, c.Storage.DataDir)
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first config file found, or empty string if none.
// Search order:
//  1. ~/.vantage/config.yaml (user home directory)
//  2. Same directory as the binary (config.yaml, vantage.yaml)
//  3. Current working directory (config.yaml, vantage.yaml)
//  4. ~/.config/vantage/config.yaml (Linux/Unix XDG standard)
func FindConfigFile() string {
	var candidates []string

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".vantage", "config.yaml"))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "config.yaml"),
			filepath.Join(exeDir, "vantage.yaml"),
		)
	}

	candidates = append(candidates,
		"config.yaml",
		"vantage.yaml",
	)

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "vantage", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
