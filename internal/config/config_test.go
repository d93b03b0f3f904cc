package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Parser.MaxExpansionRatio != 10 {
		t.Errorf("expansion ratio = %v", cfg.Parser.MaxExpansionRatio)
	}
	if cfg.Revalidator.BatchSize != 10 {
		t.Errorf("batch size = %d", cfg.Revalidator.BatchSize)
	}
	if cfg.Validator.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Validator.Timeout)
	}
	if cfg.EntryDB == "" || cfg.AuditLog == "" {
		t.Error("paths not resolved")
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "config.yaml")
	data := []byte("parser:\n  max_depth: 7\nrevalidator:\n  batch_size: 3\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Parser.MaxDepth != 7 {
		t.Errorf("max depth = %d, want 7", cfg.Parser.MaxDepth)
	}
	if cfg.Revalidator.BatchSize != 3 {
		t.Errorf("batch size = %d, want 3", cfg.Revalidator.BatchSize)
	}
	// Untouched fields keep defaults.
	if cfg.Parser.MaxAliasCount != 100 {
		t.Errorf("alias count = %d, want 100", cfg.Parser.MaxAliasCount)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CONTENTGUARD_LOG_LEVEL", "debug")
	t.Setenv("CONTENTGUARD_PARSER__MAX_NODES", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Parser.MaxNodes != 42 {
		t.Errorf("max nodes = %d, want 42", cfg.Parser.MaxNodes)
	}
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
}
