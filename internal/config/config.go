package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when the config file is absent or a field is unset.
const (
	DefaultListenAddr     = "127.0.0.1:8484"
	DefaultPageSize       = 50
	DefaultPresenceWindow = 5 * time.Minute
)

// Duration wraps time.Duration so it can be written as "5m" in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the chatd.toml server configuration.
type Config struct {
	ListenAddr     string   `toml:"listen_addr"`
	DataDir        string   `toml:"data_dir"`
	AuthSecret     string   `toml:"auth_secret"`
	WebhookSecret  string   `toml:"webhook_secret"`
	AllowedOrigins []string `toml:"allowed_origins"`
	PresenceWindow Duration `toml:"presence_window"`
	PageSize       int      `toml:"page_size"`
}

// Default returns a config populated with default values. The data dir
// defaults to ~/.chatd.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ListenAddr:     DefaultListenAddr,
		DataDir:        filepath.Join(home, ".chatd"),
		PresenceWindow: Duration(DefaultPresenceWindow),
		PageSize:       DefaultPageSize,
	}
}

// Load reads config from the given path, layering file values over defaults.
// A missing file is not an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PresenceWindow <= 0 {
		cfg.PresenceWindow = Duration(DefaultPresenceWindow)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks that fields required to run the daemon are present.
func (c *Config) Validate() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("auth_secret is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	return nil
}

// DBPath returns the SQLite database path under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "chatd.db")
}

// LogPath returns the daemon log file path under the data dir.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "chatd.log")
}
