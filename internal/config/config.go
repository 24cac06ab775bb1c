// Package config loads copilot settings from a TOML file, an optional .env
// file and COPILOT_* environment variables, in that order of increasing
// precedence.
//
// Default file location: ~/.copilot/config.toml
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultBackendURL is the backend origin used when nothing else is configured.
const DefaultBackendURL = "https://localhost:5000"

// Config is the complete copilot configuration.
type Config struct {
	// BackendURL is the origin every request and login navigation targets.
	BackendURL string `toml:"backend_url"`
	// RequestTimeout bounds each HTTP call. Zero disables the client timeout.
	RequestTimeout time.Duration `toml:"request_timeout"`
	// InsecureTLS skips certificate verification (self-signed localhost backends).
	InsecureTLS bool `toml:"insecure_tls"`

	Login   LoginConfig   `toml:"login"`
	Voice   VoiceConfig   `toml:"voice"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
}

// LoginConfig controls the browser used for provider login.
type LoginConfig struct {
	// BrowserBin is a Chrome/Chromium binary; empty means auto-detect.
	BrowserBin   string        `toml:"browser_bin"`
	Timeout      time.Duration `toml:"timeout"`
	PollInterval time.Duration `toml:"poll_interval"`
}

// VoiceConfig selects the capture and playback tools.
type VoiceConfig struct {
	// Recorder is "arecord", "ffmpeg" or "" for the first one found.
	Recorder   string `toml:"recorder"`
	SampleRate int    `toml:"sample_rate"`
	// Player is "ffplay", "mpg123", "afplay" or "" for the first one found.
	Player string `toml:"player"`
}

// StorageConfig locates the local sqlite database.
type StorageConfig struct {
	Path string `toml:"path"`
	// Archive records every transcript entry into the conversation archive.
	Archive bool `toml:"archive"`
}

// LogConfig locates the log file.
type LogConfig struct {
	Path string `toml:"path"`
}

// Dir returns the copilot state directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".copilot")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// Default returns a configuration with every field set.
func Default() *Config {
	return &Config{
		BackendURL:     DefaultBackendURL,
		RequestTimeout: 120 * time.Second,
		Login: LoginConfig{
			Timeout:      5 * time.Minute,
			PollInterval: time.Second,
		},
		Voice: VoiceConfig{
			SampleRate: 16000,
		},
		Storage: StorageConfig{
			Path:    filepath.Join(Dir(), "copilot.sqlite"),
			Archive: true,
		},
		Log: LogConfig{
			Path: filepath.Join(Dir(), "copilot.log"),
		},
	}
}

// Load reads the config file at path (DefaultPath when empty), after loading
// envFile into the process environment if it exists. A missing config file is
// not an error.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				log.Printf("[CONFIG]: Warning, could not load %s: %v", envFile, err)
			}
		}
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides copies COPILOT_* environment variables over the loaded values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("COPILOT_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("COPILOT_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := os.Getenv("COPILOT_INSECURE_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.InsecureTLS = b
		}
	}
	if v := os.Getenv("COPILOT_BROWSER_BIN"); v != "" {
		c.Login.BrowserBin = v
	}
	if v := os.Getenv("COPILOT_RECORDER"); v != "" {
		c.Voice.Recorder = v
	}
	if v := os.Getenv("COPILOT_PLAYER"); v != "" {
		c.Voice.Player = v
	}
	if v := os.Getenv("COPILOT_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("COPILOT_LOG_PATH"); v != "" {
		c.Log.Path = v
	}
}

// SetDefaults fills zero values left by a partial config file.
func (c *Config) SetDefaults() {
	d := Default()
	if c.BackendURL == "" {
		c.BackendURL = d.BackendURL
	}
	c.BackendURL = strings.TrimRight(c.BackendURL, "/")
	if c.Login.Timeout <= 0 {
		c.Login.Timeout = d.Login.Timeout
	}
	if c.Login.PollInterval <= 0 {
		c.Login.PollInterval = d.Login.PollInterval
	}
	if c.Voice.SampleRate <= 0 {
		c.Voice.SampleRate = d.Voice.SampleRate
	}
	if c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}
	if c.Log.Path == "" {
		c.Log.Path = d.Log.Path
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BackendURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("backend_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("backend_url: scheme must be http or https, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("backend_url: missing host"))
	}

	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout: must not be negative"))
	}

	switch c.Voice.Recorder {
	case "", "arecord", "ffmpeg":
	default:
		errs = append(errs, fmt.Errorf("voice.recorder: unsupported %q", c.Voice.Recorder))
	}

	switch c.Voice.Player {
	case "", "ffplay", "mpg123", "afplay":
	default:
		errs = append(errs, fmt.Errorf("voice.player: unsupported %q", c.Voice.Player))
	}

	return errors.Join(errs...)
}

// EnsureDirs creates the parent directories of the storage and log paths.
func (c *Config) EnsureDirs() error {
	for _, p := range []string{c.Storage.Path, c.Log.Path} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(p), err)
		}
	}
	return nil
}
