package config

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
)

// Config holds all configuration for certichain
type Config struct {
	Storage      StorageConfig      `yaml:"storage"`
	Keys         KeysConfig         `yaml:"keys"`
	Verification VerificationConfig `yaml:"verification"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// StorageConfig selects the record storage backend
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// KeysConfig contains signing key parameters
type KeysConfig struct {
	Bits int `yaml:"bits"`
}

// VerificationConfig contains trust evaluation settings
type VerificationConfig struct {
	StrictKeyRegistry bool   `yaml:"strict_key_registry"`
	BaseURL           string `yaml:"base_url"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	BackendMemory = "memory"
	BackendBBolt  = "bbolt"

	// MinKeyBits is the smallest accepted RSA modulus.
	MinKeyBits = 3072

	// DefaultDBFile is the bbolt file name inside the data directory.
	DefaultDBFile = "certichain.db"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendBBolt,
			Path:    filepath.Join("data", DefaultDBFile),
		},
		Keys: KeysConfig{Bits: MinKeyBits},
		Verification: VerificationConfig{
			BaseURL: "http://localhost:8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Storage validation
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the bbolt backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'memory' or 'bbolt'")
	}

	// Key validation
	if c.Keys.Bits < MinKeyBits {
		return fmt.Errorf("keys.bits must be at least %d", MinKeyBits)
	}

	// Logging validation
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	return nil
}

// SetDataDir points the bbolt backend at dir.
func (c *Config) SetDataDir(dir string) {
	c.Storage.Path = filepath.Join(dir, DefaultDBFile)
}

// NewLogger builds the slog logger described by the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
}
