// Package config loads server configuration from a YAML file with
// sane defaults, so a bare `cloister-server` starts without any file
// present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cloisterworks/cloister-server-go/internal/game"
)

// Config is the root configuration for the server binary.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Store   StoreConfig   `mapstructure:"store"`
	Session SessionConfig `mapstructure:"session"`
	Game    GameConfig    `mapstructure:"game"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger and optional file rotation.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// SessionConfig configures player session leases.
type SessionConfig struct {
	Lease time.Duration `mapstructure:"lease"`
}

// GameConfig carries the default match parameters handed to the engine.
type GameConfig struct {
	MeepleBudget  int    `mapstructure:"meeple_budget"`
	MoveLimit     int    `mapstructure:"move_limit"`
	SelectionSize int    `mapstructure:"selection_size"`
	TilesetPath   string `mapstructure:"tileset_path"`
}

// Load reads configuration from the given path. A missing file is not an
// error; defaults (plus CLOISTER_* environment overrides) apply. A file
// that exists but fails to parse is an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "cloister.db")
	v.SetDefault("store.postgres_url", "")

	v.SetDefault("session.lease", 60*time.Second)

	v.SetDefault("game.meeple_budget", game.DefaultMeepleBudget)
	v.SetDefault("game.move_limit", 0)
	v.SetDefault("game.selection_size", game.DefaultSelectionSize)
	v.SetDefault("game.tileset_path", "")

	v.SetEnvPrefix("CLOISTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			// Only a present-but-broken file is fatal.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.clamp()
	return &cfg, nil
}

// clamp keeps file-supplied game parameters inside the ranges the engine
// accepts, instead of failing startup over a typo.
func (c *Config) clamp() {
	if c.Game.MeepleBudget < 1 {
		c.Game.MeepleBudget = game.DefaultMeepleBudget
	}
	if c.Game.MeepleBudget > game.MaxMeepleBudget {
		c.Game.MeepleBudget = game.MaxMeepleBudget
	}
	if c.Game.MoveLimit < 0 {
		c.Game.MoveLimit = 0
	}
	if c.Game.SelectionSize < 1 {
		c.Game.SelectionSize = game.DefaultSelectionSize
	}
	if c.Game.SelectionSize > game.MaxSelectionSize {
		c.Game.SelectionSize = game.MaxSelectionSize
	}
	if c.Session.Lease <= 0 {
		c.Session.Lease = 60 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}
