package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default configuration failed validation: %v", err)
	}
}

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	created, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to reload written config: %v", err)
	}

	if loaded.Database.Path != created.Database.Path {
		t.Errorf("Round trip changed database path: %q vs %q", loaded.Database.Path, created.Database.Path)
	}
	if len(loaded.Library.SupportedFormats) != len(created.Library.SupportedFormats) {
		t.Error("Round trip changed supported formats")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"EmptyDatabasePath", func(c *Config) { c.Database.Path = "" }},
		{"NoRoots", func(c *Config) { c.Library.Roots = nil }},
		{"NoFormats", func(c *Config) { c.Library.SupportedFormats = nil }},
		{"ZeroWorkers", func(c *Config) { c.Ingest.MinWorkers = 0 }},
		{"MaxBelowMin", func(c *Config) { c.Ingest.MaxWorkers = c.Ingest.MinWorkers - 1 }},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation to fail")
			}
		})
	}
}

func TestIsFormatSupported(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.IsFormatSupported(".mp3") {
		t.Error("Expected .mp3 to be supported by default")
	}
	if cfg.IsFormatSupported(".ogg") {
		t.Error("Expected .ogg to be unsupported by default")
	}
}
