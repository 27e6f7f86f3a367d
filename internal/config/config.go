package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.chatsyncd/config.toml, with environment
// overrides for fields that carry credentials or vary per deployment.
type Config struct {
	DefaultSession string `toml:"default_session" env:"-"`

	// ServerURL is the REST base URL used for reconciliation and the
	// reachability probe.
	ServerURL string `toml:"server_url" env:"CHATSYNC_SERVER_URL"`

	// ChannelURL is the websocket endpoint of the realtime channel.
	ChannelURL string `toml:"channel_url" env:"CHATSYNC_CHANNEL_URL"`

	// Token is the bearer credential attached to channel dials and REST
	// requests. Usually supplied via environment rather than the file.
	Token string `toml:"token" env:"CHATSYNC_TOKEN"`

	// UserID is the local user identifier; used to tell own messages from
	// inbound ones.
	UserID string `toml:"user_id" env:"CHATSYNC_USER_ID"`
}

// Load reads config from the given path, then applies environment
// overrides. A missing file is not an error; the environment alone may be
// enough.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required (or CHATSYNC_SERVER_URL)")
	}
	if c.ChannelURL == "" {
		return fmt.Errorf("channel_url is required (or CHATSYNC_CHANNEL_URL)")
	}
	return nil
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
