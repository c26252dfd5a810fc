package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_IsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, "__storage__:", config.Session.StoragePayloadPrefix)
	assert.Equal(t, "header_cookies", config.Session.HeaderCookieName)
	assert.False(t, config.IsProduction())
}

func TestLoadFromFiles_MergeOrder(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir) // keeps a stray .env out of the test

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9000

[backend]
base_url = "https://base.example.test"
`), 0644))

	override := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(override, []byte(`
backend:
  base_url: https://override.example.test
session:
  default_max_sessions: 5
`), 0644))

	config, err := LoadFromFiles(nil, base, override)
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "https://override.example.test", config.Backend.BaseURL)
	assert.Equal(t, 5, config.Session.DefaultMaxSessions)
	assert.Equal(t, "@every 30s", config.Session.ValidateSchedule, "untouched defaults survive")
}

func TestLoadFromFiles_EnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COOKIEPOOL_BROWSER_MODE=memory\n"), 0644))
	t.Setenv("COOKIEPOOL_SERVER_PORT", "9100")
	t.Setenv("COOKIEPOOL_LOG_OUTPUT", "stdout, file ,")
	t.Setenv("COOKIEPOOL_KEYRING_ENABLED", "true")

	config, err := LoadFromFiles(nil)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, "memory", config.Browser.Mode)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
	assert.True(t, config.Keyring.Enabled)

	ApplyFlagOverrides(config, 9200, "0.0.0.0")
	assert.Equal(t, 9200, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(nil, filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad backend url", func(c *Config) { c.Backend.BaseURL = "not a url" }},
		{"bad browser mode", func(c *Config) { c.Browser.Mode = "firefox" }},
		{"bad duration", func(c *Config) { c.Browser.ActionTimeout = "soon" }},
		{"schedule too frequent", func(c *Config) { c.Session.GateSchedule = "@every 1s" }},
		{"schedule unparsable", func(c *Config) { c.Session.ValidateSchedule = "every minute" }},
		{"no payload prefix", func(c *Config) { c.Session.StoragePayloadPrefix = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("@every 30s", MinimumScheduleInterval))
	assert.NoError(t, ValidateSchedule("*/5 * * * *", MinimumScheduleInterval))
	assert.Error(t, ValidateSchedule("", MinimumScheduleInterval))
	assert.Error(t, ValidateSchedule("* * * * *", 2*time.Minute))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseDuration("2s", time.Second))
	assert.Equal(t, time.Second, ParseDuration("", time.Second))
	assert.Equal(t, time.Second, ParseDuration("nope", time.Second))
	assert.Equal(t, time.Second, ParseDuration("-5s", time.Second))
}
