package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func validConfig() Config {
	return Config{
		Mode:         "release",
		Port:         8080,
		StaticPath:   "./web",
		LogLevel:     "info",
		Secret:       "secret",
		SendBuffer:   32,
		WriteTimeout: 5 * time.Second,
		PollWait:     25 * time.Second,
		PollExpiry:   time.Minute,
		JoinLimit:    10,
		JoinWindow:   time.Minute,
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Mode = "production"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.JoinLimit = -1
	assert.Error(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 32, cfg.SendBuffer)
	assert.Equal(t, 25*time.Second, cfg.PollWait)
	assert.Equal(t, "https://api.jdoodle.com/v1/execute", cfg.Execute.BaseURL)
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := []byte("mode: debug\nport: 9999\nlog_level: debug\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))

	chdir(t, dir)
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
}
