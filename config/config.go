package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to key names for environment variable lookup.
// For example, key "max_file_size" maps to SCRIBE_MAX_FILE_SIZE.
const EnvPrefix = "SCRIBE_"

// Storage holds every knob of the storage layer.
type Storage struct {
	// BaseDir is the root of the date-partitioned upload layout.
	BaseDir string `yaml:"base_dir"`

	// ArchiveDir receives files moved out of the live layout.
	ArchiveDir string `yaml:"archive_dir"`

	// TempDir holds in-flight uploads before they are committed.
	TempDir string `yaml:"temp_dir"`

	// MinFileSize rejects uploads below this many bytes.
	MinFileSize int64 `yaml:"min_file_size"`

	// MaxFileSize rejects uploads above this many bytes.
	MaxFileSize int64 `yaml:"max_file_size"`

	// QuotaMaxBytes caps the total stored bytes across all files.
	QuotaMaxBytes int64 `yaml:"quota_max_bytes"`

	// QuotaWarningRatio and QuotaCriticalRatio mark usage thresholds
	// reported by quota checks.
	QuotaWarningRatio  float64 `yaml:"quota_warning_ratio"`
	QuotaCriticalRatio float64 `yaml:"quota_critical_ratio"`

	// AllowedFormats lists the accepted audio container extensions.
	AllowedFormats []string `yaml:"allowed_formats"`

	// ArchiveAfterDays is the default age for Archive runs.
	ArchiveAfterDays int `yaml:"archive_after_days"`

	// OrphanMinAgeDays is the default minimum age before an unreferenced
	// file may be cleaned up.
	OrphanMinAgeDays int `yaml:"orphan_min_age_days"`

	// BusyTimeout bounds how long a writer keeps retrying before it
	// gives up with a busy error.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MaxWriteRetries bounds how many times a conflicting write is
	// retried within BusyTimeout.
	MaxWriteRetries int `yaml:"max_write_retries"`
}

// Default returns the built-in configuration.
func Default() Storage {
	return Storage{
		BaseDir:            "audio/uploads",
		ArchiveDir:         "audio/archive",
		TempDir:            "audio/temp",
		MinFileSize:        1024,              // 1 KB
		MaxFileSize:        500 * 1024 * 1024, // 500 MB
		QuotaMaxBytes:      50 * 1024 * 1024 * 1024,
		QuotaWarningRatio:  0.8,
		QuotaCriticalRatio: 0.95,
		AllowedFormats: []string{
			"wav", "mp3", "m4a", "mp4", "aac", "flac",
			"opus", "ogg", "wma", "webm",
		},
		ArchiveAfterDays: 90,
		OrphanMinAgeDays: 30,
		BusyTimeout:      30 * time.Second,
		MaxWriteRetries:  8,
	}
}

// Load reads a YAML config file over the defaults, then applies
// environment overrides. An empty path skips the file layer.
func Load(path string) (Storage, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (Storage, error) {
	return Load("")
}

// Validate checks the configuration for internally inconsistent values.
func (c Storage) Validate() error {
	if c.MinFileSize < 0 {
		return fmt.Errorf("min_file_size must not be negative")
	}
	if c.MaxFileSize <= c.MinFileSize {
		return fmt.Errorf("max_file_size must exceed min_file_size")
	}
	if c.QuotaMaxBytes <= 0 {
		return fmt.Errorf("quota_max_bytes must be positive")
	}
	if c.QuotaWarningRatio <= 0 || c.QuotaWarningRatio > 1 {
		return fmt.Errorf("quota_warning_ratio must be in (0, 1]")
	}
	if c.QuotaCriticalRatio < c.QuotaWarningRatio || c.QuotaCriticalRatio > 1 {
		return fmt.Errorf("quota_critical_ratio must be in [warning, 1]")
	}
	if len(c.AllowedFormats) == 0 {
		return fmt.Errorf("allowed_formats must not be empty")
	}
	if c.MaxWriteRetries < 1 {
		return fmt.Errorf("max_write_retries must be at least 1")
	}
	return nil
}

// FormatAllowed reports whether the extension is on the allow-list.
// The extension is matched without a leading dot, case-insensitively.
func (c Storage) FormatAllowed(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, allowed := range c.AllowedFormats {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (c *Storage) applyEnv() {
	if v, ok := lookup("BASE_DIR"); ok {
		c.BaseDir = v
	}
	if v, ok := lookup("ARCHIVE_DIR"); ok {
		c.ArchiveDir = v
	}
	if v, ok := lookup("TEMP_DIR"); ok {
		c.TempDir = v
	}
	if v, ok := lookupInt64("MIN_FILE_SIZE"); ok {
		c.MinFileSize = v
	}
	if v, ok := lookupInt64("MAX_FILE_SIZE"); ok {
		c.MaxFileSize = v
	}
	if v, ok := lookupInt64("QUOTA_MAX_BYTES"); ok {
		c.QuotaMaxBytes = v
	}
	if v, ok := lookup("ALLOWED_FORMATS"); ok {
		c.AllowedFormats = splitList(v)
	}
	if v, ok := lookupInt("ARCHIVE_AFTER_DAYS"); ok {
		c.ArchiveAfterDays = v
	}
	if v, ok := lookupInt("ORPHAN_MIN_AGE_DAYS"); ok {
		c.OrphanMinAgeDays = v
	}
	if v, ok := lookup("BUSY_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.BusyTimeout = d
		}
	}
	if v, ok := lookupInt("MAX_WRITE_RETRIES"); ok {
		c.MaxWriteRetries = v
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func lookupInt64(key string) (int64, bool) {
	v, ok := lookup(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupInt(key string) (int, bool) {
	n, ok := lookupInt64(key)
	return int(n), ok
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
