package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.MaxFileSize != 500*1024*1024 {
		t.Errorf("unexpected max file size %d", cfg.MaxFileSize)
	}
	if !cfg.FormatAllowed("mp3") {
		t.Error("mp3 should be allowed by default")
	}
}

func TestFormatAllowed(t *testing.T) {
	cfg := Default()

	tests := []struct {
		ext  string
		want bool
	}{
		{"wav", true},
		{".wav", true},
		{"FLAC", true},
		{"exe", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := cfg.FormatAllowed(tt.ext); got != tt.want {
				t.Errorf("FormatAllowed(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	data := []byte("max_file_size: 2048\nallowed_formats: [wav, ogg]\nbusy_timeout: 5s\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MaxFileSize != 2048 {
		t.Errorf("max_file_size = %d, want 2048", cfg.MaxFileSize)
	}
	if cfg.FormatAllowed("mp3") {
		t.Error("mp3 should not be allowed after override")
	}
	if cfg.BusyTimeout != 5*time.Second {
		t.Errorf("busy_timeout = %v, want 5s", cfg.BusyTimeout)
	}
	// Untouched keys keep their defaults.
	if cfg.MinFileSize != 1024 {
		t.Errorf("min_file_size = %d, want default 1024", cfg.MinFileSize)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SCRIBE_MAX_FILE_SIZE", "4096")
	t.Setenv("SCRIBE_ALLOWED_FORMATS", "wav, MP3")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.MaxFileSize != 4096 {
		t.Errorf("max_file_size = %d, want 4096", cfg.MaxFileSize)
	}
	if !cfg.FormatAllowed("mp3") || !cfg.FormatAllowed("wav") {
		t.Error("env format list not applied")
	}
	if cfg.FormatAllowed("flac") {
		t.Error("flac should have been dropped by env override")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Storage)
	}{
		{"max below min", func(c *Storage) { c.MaxFileSize = c.MinFileSize }},
		{"zero quota", func(c *Storage) { c.QuotaMaxBytes = 0 }},
		{"no formats", func(c *Storage) { c.AllowedFormats = nil }},
		{"bad warning ratio", func(c *Storage) { c.QuotaWarningRatio = 1.5 }},
		{"critical below warning", func(c *Storage) { c.QuotaCriticalRatio = 0.5 }},
		{"zero retries", func(c *Storage) { c.MaxWriteRetries = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
