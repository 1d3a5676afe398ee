// Package config loads homestock configuration from YAML or TOML files and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/homestock/homestock/internal/suggest"
)

type Config struct {
	DataDir   string          `yaml:"data_dir" toml:"data_dir"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Suggest   SuggestConfig   `yaml:"suggest" toml:"suggest"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

type ServerConfig struct {
	Addr             string        `yaml:"addr" toml:"addr"`
	ReadTimeout      time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	DefaultHousehold string        `yaml:"default_household" toml:"default_household"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes" toml:"max_body_bytes"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite|memory
	Path   string `yaml:"path" toml:"path"`     // defaults to <data_dir>/homestock.db
}

type SuggestConfig struct {
	MaxCacheSize          int `yaml:"max_cache_size" toml:"max_cache_size"`
	MinFrequencyThreshold int `yaml:"min_frequency_threshold" toml:"min_frequency_threshold"`
	DefaultLimit          int `yaml:"default_limit" toml:"default_limit"`
	TopValues             int `yaml:"top_values" toml:"top_values"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // json|text
}

type TelemetryConfig struct {
	MetricsEnabled  bool    `yaml:"metrics_enabled" toml:"metrics_enabled"`
	MetricsExporter string  `yaml:"metrics_exporter" toml:"metrics_exporter"`
	TracingEnabled  bool    `yaml:"tracing_enabled" toml:"tracing_enabled"`
	TracingExporter string  `yaml:"tracing_exporter" toml:"tracing_exporter"`
	SamplePct       float64 `yaml:"sample_pct" toml:"sample_pct"`
}

// Default returns the built-in configuration rooted at ~/.homestock.
func Default() Config {
	dataDir := ".homestock"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".homestock")
	}
	return Config{
		DataDir: dataDir,
		Server: ServerConfig{
			Addr:             "127.0.0.1:9090",
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     30 * time.Second,
			ShutdownTimeout:  5 * time.Second,
			DefaultHousehold: "1",
			MaxBodyBytes:     10 << 20,
		},
		Storage: StorageConfig{Driver: "sqlite"},
		Suggest: SuggestConfig{
			MaxCacheSize:          suggest.DefaultMaxCacheSize,
			MinFrequencyThreshold: suggest.DefaultMinFrequencyThreshold,
			DefaultLimit:          suggest.DefaultLimit,
			TopValues:             suggest.DefaultTopValues,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			MetricsEnabled:  true,
			MetricsExporter: "prometheus",
			TracingExporter: "none",
			SamplePct:       1.0,
		},
	}
}

// Load reads a config file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported format %q", path, filepath.Ext(path))
	}
	return nil
}

// ApplyEnv overrides fields from HOMESTOCK_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("HOMESTOCK_DATA"); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup("HOMESTOCK_API_ADDR"); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup("HOMESTOCK_DB"); ok && v != "" {
		c.Storage.Path = v
	}
	if v, ok := lookup("HOMESTOCK_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("HOMESTOCK_LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup("HOMESTOCK_MAX_CACHE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HOMESTOCK_MAX_CACHE_SIZE: %w", err)
		}
		c.Suggest.MaxCacheSize = n
	}
	return nil
}

// Validate checks field ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if strings.TrimSpace(c.Server.DefaultHousehold) == "" {
		errs = append(errs, errors.New("server.default_household is required"))
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Suggest.MaxCacheSize < 1 {
		errs = append(errs, fmt.Errorf("suggest.max_cache_size must be >= 1, got %d", c.Suggest.MaxCacheSize))
	}
	if c.Suggest.MinFrequencyThreshold < 1 {
		errs = append(errs, fmt.Errorf("suggest.min_frequency_threshold must be >= 1, got %d", c.Suggest.MinFrequencyThreshold))
	}
	if c.Suggest.DefaultLimit < 1 {
		errs = append(errs, fmt.Errorf("suggest.default_limit must be >= 1, got %d", c.Suggest.DefaultLimit))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// DBPath resolves the SQLite database location.
func (c Config) DBPath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.DataDir, "homestock.db")
}
