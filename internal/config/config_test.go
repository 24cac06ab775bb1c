package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBackendURL, cfg.BackendURL)
	assert.Equal(t, 16000, cfg.Voice.SampleRate)
	assert.True(t, cfg.Storage.Archive)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
backend_url = "https://api.example.com/"
request_timeout = "30s"
insecure_tls = true

[voice]
recorder = "ffmpeg"
player = "mpg123"

[storage]
path = "/tmp/copilot-test.sqlite"
archive = false
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BackendURL, "trailing slash trimmed")
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.InsecureTLS)
	assert.Equal(t, "ffmpeg", cfg.Voice.Recorder)
	assert.Equal(t, "mpg123", cfg.Voice.Player)
	assert.Equal(t, 16000, cfg.Voice.SampleRate, "unset field keeps default")
	assert.Equal(t, "/tmp/copilot-test.sqlite", cfg.Storage.Path)
	assert.False(t, cfg.Storage.Archive)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), "")
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.toml", `backend_url = "https://file.example.com"`)
	t.Setenv("COPILOT_BACKEND_URL", "http://127.0.0.1:5000")
	t.Setenv("COPILOT_REQUEST_TIMEOUT", "5s")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5000", cfg.BackendURL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestDotEnvFile(t *testing.T) {
	t.Setenv("COPILOT_PLAYER", "")
	os.Unsetenv("COPILOT_PLAYER")
	t.Cleanup(func() { os.Unsetenv("COPILOT_PLAYER") })

	cfgPath := writeFile(t, "config.toml", ``)
	envPath := writeFile(t, ".env", "COPILOT_PLAYER=afplay\n")

	cfg, err := Load(cfgPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, "afplay", cfg.Voice.Player)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.BackendURL = "ftp://example.com"
	cfg.Voice.Recorder = "sox"
	cfg.Voice.Player = "vlc"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend_url")
	assert.Contains(t, err.Error(), "voice.recorder")
	assert.Contains(t, err.Error(), "voice.player")
}

func TestValidateMissingHost(t *testing.T) {
	cfg := Default()
	cfg.BackendURL = "https://"
	assert.ErrorContains(t, cfg.Validate(), "missing host")
}
