// Package config provides the YAML configuration surface for the Clipshot
// history store and daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxStorageBytes is the default storage ceiling (200 MiB).
	DefaultMaxStorageBytes = 200 << 20

	// DefaultMaxItemBytes is the default per-item hard ceiling (10 MiB).
	DefaultMaxItemBytes = 10 << 20

	// DefaultDedupeWindow is how many recent items a capture is checked against.
	DefaultDedupeWindow = 5

	// DefaultBackupGenerations is the number of rotating backup files kept.
	DefaultBackupGenerations = 5

	// MaxBackupGenerations bounds the backup chain length.
	MaxBackupGenerations = 5

	// DefaultDebounce is the quiet period before a coalesced save is written.
	DefaultDebounce = 2 * time.Second

	// DefaultPollInterval is how often the daemon samples the clipboard.
	DefaultPollInterval = 100 * time.Millisecond
)

// Duration wraps time.Duration so YAML values can be written as "2s" or "100ms".
type Duration time.Duration

// UnmarshalYAML parses a duration string or an integer nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all settings consumed by the history store and daemon.
type Config struct {
	// DataDir is where the history file, its backups, and the blob
	// directory for file-backed payloads live.
	DataDir string `yaml:"data_dir"`

	// MaxStorageBytes is the storage ceiling; 0 means unlimited.
	MaxStorageBytes int64 `yaml:"max_storage_bytes"`

	// MaxItemBytes is the hard per-item ceiling. Oversize captures are
	// rejected before dedup or storage.
	MaxItemBytes int64 `yaml:"max_item_bytes"`

	// DedupeWindow is how many of the most recent items a new capture is
	// compared against.
	DedupeWindow int `yaml:"dedupe_window"`

	// Debounce is the quiet period for coalesced saves.
	Debounce Duration `yaml:"debounce"`

	// BackupGenerations is the number of rotating backups (0-5).
	BackupGenerations int `yaml:"backup_generations"`

	// ProtectFavorites exempts favorited items from the eviction scan.
	ProtectFavorites bool `yaml:"protect_favorites"`

	// PollInterval is how often the daemon samples the clipboard.
	PollInterval Duration `yaml:"poll_interval"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DataDir:           defaultDataDir(),
		MaxStorageBytes:   DefaultMaxStorageBytes,
		MaxItemBytes:      DefaultMaxItemBytes,
		DedupeWindow:      DefaultDedupeWindow,
		Debounce:          Duration(DefaultDebounce),
		BackupGenerations: DefaultBackupGenerations,
		PollInterval:      Duration(DefaultPollInterval),
	}
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".clipshot"
	}
	return filepath.Join(homeDir, ".clipshot")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load reads the config file at path, applying defaults for absent fields.
// A missing file is not an error; it yields Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields that have non-zero defaults.
// A zero MaxStorageBytes is meaningful (unlimited) and is left alone.
func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.MaxItemBytes == 0 {
		cfg.MaxItemBytes = DefaultMaxItemBytes
	}
	if cfg.DedupeWindow == 0 {
		cfg.DedupeWindow = DefaultDedupeWindow
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = Duration(DefaultDebounce)
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(DefaultPollInterval)
	}
}

// Validate checks that all settings are in range.
func (c *Config) Validate() error {
	if c.MaxStorageBytes < 0 {
		return fmt.Errorf("max_storage_bytes must be >= 0 (0 = unlimited), got %d", c.MaxStorageBytes)
	}
	if c.MaxItemBytes <= 0 {
		return fmt.Errorf("max_item_bytes must be > 0, got %d", c.MaxItemBytes)
	}
	if c.MaxStorageBytes > 0 && c.MaxItemBytes > c.MaxStorageBytes {
		return fmt.Errorf("max_item_bytes (%d) exceeds max_storage_bytes (%d)", c.MaxItemBytes, c.MaxStorageBytes)
	}
	if c.DedupeWindow < 1 {
		return fmt.Errorf("dedupe_window must be >= 1, got %d", c.DedupeWindow)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be > 0, got %v", c.Debounce.Std())
	}
	if c.BackupGenerations < 0 || c.BackupGenerations > MaxBackupGenerations {
		return fmt.Errorf("backup_generations must be between 0 and %d, got %d", MaxBackupGenerations, c.BackupGenerations)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0, got %v", c.PollInterval.Std())
	}
	return nil
}

// HistoryPath returns the primary persisted file location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.json")
}

// BlobDir returns the directory holding file-backed item payloads.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, "blobs")
}
