package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "certichain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendBBolt, cfg.Storage.Backend)
	assert.Equal(t, MinKeyBits, cfg.Keys.Bits)
	assert.False(t, cfg.Verification.StrictKeyRegistry)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: memory
keys:
  bits: 4096
verification:
  strict_key_registry: true
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 4096, cfg.Keys.Bits)
	assert.True(t, cfg.Verification.StrictKeyRegistry)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	// Unset keys keep defaults.
	assert.Equal(t, "http://localhost:8080", cfg.Verification.BaseURL)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "storage: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config file")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"backend", "storage:\n  backend: postgres\n", "storage.backend"},
		{"bbolt path", "storage:\n  backend: bbolt\n  path: \"\"\n", "storage.path"},
		{"weak keys", "keys:\n  bits: 2048\n", "keys.bits"},
		{"level", "logging:\n  level: trace\n", "logging.level"},
		{"format", "logging:\n  format: xml\n", "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("CERTICHAIN_STORAGE_BACKEND", "memory")
	t.Setenv("CERTICHAIN_KEY_BITS", "4096")
	t.Setenv("CERTICHAIN_STRICT_KEY_REGISTRY", "true")
	t.Setenv("CERTICHAIN_BASE_URL", "https://certs.example.com")
	t.Setenv("CERTICHAIN_LOG_FORMAT", "json")

	cfg, err := LoadWithEnv("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 4096, cfg.Keys.Bits)
	assert.True(t, cfg.Verification.StrictKeyRegistry)
	assert.Equal(t, "https://certs.example.com", cfg.Verification.BaseURL)
	assert.Equal(t, "json", cfg.Logging.Format)

	t.Setenv("CERTICHAIN_KEY_BITS", "lots")
	_, err = LoadWithEnv("")
	assert.ErrorContains(t, err, "CERTICHAIN_KEY_BITS")

	t.Setenv("CERTICHAIN_KEY_BITS", "1024")
	_, err = LoadWithEnv("")
	assert.ErrorContains(t, err, "after env overrides")
}

func TestSetDataDir(t *testing.T) {
	cfg := Default()
	cfg.SetDataDir("/var/lib/certichain")
	assert.Equal(t, filepath.Join("/var/lib/certichain", DefaultDBFile), cfg.Storage.Path)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "cert_uuid", "u1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"cert_uuid":"u1"`)
}
