package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file. Keys missing from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads configuration from a file (or the defaults when path is
// empty) and applies environment variable overrides
func LoadWithEnv(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	// Apply environment variable overrides
	if backend := os.Getenv("CERTICHAIN_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}

	if dbPath := os.Getenv("CERTICHAIN_STORAGE_PATH"); dbPath != "" {
		cfg.Storage.Path = dbPath
	}

	if bits := os.Getenv("CERTICHAIN_KEY_BITS"); bits != "" {
		n, err := strconv.Atoi(bits)
		if err != nil {
			return nil, fmt.Errorf("CERTICHAIN_KEY_BITS is invalid: %w", err)
		}
		cfg.Keys.Bits = n
	}

	if strict := os.Getenv("CERTICHAIN_STRICT_KEY_REGISTRY"); strict != "" {
		b, err := strconv.ParseBool(strict)
		if err != nil {
			return nil, fmt.Errorf("CERTICHAIN_STRICT_KEY_REGISTRY is invalid: %w", err)
		}
		cfg.Verification.StrictKeyRegistry = b
	}

	if baseURL := os.Getenv("CERTICHAIN_BASE_URL"); baseURL != "" {
		cfg.Verification.BaseURL = baseURL
	}

	if level := os.Getenv("CERTICHAIN_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if format := os.Getenv("CERTICHAIN_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Validate again after env overrides
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}

	return cfg, nil
}
