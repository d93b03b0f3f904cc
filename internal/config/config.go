// Package config loads pipeline configuration with koanf: struct defaults,
// then an optional YAML file, then CONTENTGUARD_* environment variables.
// The policy constants that are deliberately tunable (expansion ratio,
// nesting depth, batch sizes, backoff) all live here with conservative
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultDirName is the per-user data directory.
	DefaultDirName = ".contentguard"

	envPrefix = "CONTENTGUARD_"
)

type Config struct {
	LogLevel    string `koanf:"log_level"`
	Development bool   `koanf:"development"`

	// DataDir holds the entry database and audit log by default.
	DataDir     string `koanf:"data_dir"`
	EntryDB     string `koanf:"entry_db"`
	AuditLog    string `koanf:"audit_log"`
	CatalogPath string `koanf:"catalog_path"`

	Parser      ParserConfig      `koanf:"parser"`
	Validator   ValidatorConfig   `koanf:"validator"`
	Revalidator RevalidatorConfig `koanf:"revalidator"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ParserConfig mirrors the structural parser's hard ceilings.
type ParserConfig struct {
	MaxInputBytes     int     `koanf:"max_input_bytes"`
	MaxDepth          int     `koanf:"max_depth"`
	MaxNodes          int     `koanf:"max_nodes"`
	MaxAliasCount     int     `koanf:"max_alias_count"`
	MaxExpansionRatio float64 `koanf:"max_expansion_ratio"`
}

type ValidatorConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type RevalidatorConfig struct {
	Interval    time.Duration `koanf:"interval"`
	BatchSize   int           `koanf:"batch_size"`
	Workers     int           `koanf:"workers"`
	BackoffBase time.Duration `koanf:"backoff_base"`
	BackoffCap  time.Duration `koanf:"backoff_cap"`
	// RatePerSecond caps background revalidations globally.
	RatePerSecond float64 `koanf:"rate_per_second"`
}

type TelemetryConfig struct {
	BufferCapacity int `koanf:"buffer_capacity"`
}

// Default returns the conservative baseline configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Parser: ParserConfig{
			MaxInputBytes:     256 * 1024,
			MaxDepth:          20,
			MaxNodes:          10000,
			MaxAliasCount:     100,
			MaxExpansionRatio: 10,
		},
		Validator: ValidatorConfig{
			Timeout: 5 * time.Second,
		},
		Revalidator: RevalidatorConfig{
			Interval:      5 * time.Minute,
			BatchSize:     10,
			Workers:       4,
			BackoffBase:   time.Minute,
			BackoffCap:    4 * time.Hour,
			RatePerSecond: 5,
		},
		Telemetry: TelemetryConfig{
			BufferCapacity: 1000,
		},
	}
}

// Load layers defaults, the optional YAML file at path (skipped when path
// is empty or missing), and CONTENTGUARD_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolvePaths() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving data dir: %w", err)
		}
		c.DataDir = filepath.Join(home, DefaultDirName)
	}
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	if c.EntryDB == "" {
		c.EntryDB = filepath.Join(c.DataDir, "entries.db")
	}
	if c.AuditLog == "" {
		c.AuditLog = filepath.Join(c.DataDir, "audit.jsonl")
	}
	return nil
}
