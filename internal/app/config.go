package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/raymoo/monoidal-effects/effects/catalog"
	"github.com/raymoo/monoidal-effects/logging"
)

// Config holds the daemon configuration, loaded from the environment.
type Config struct {
	Bind string `env:"EFFECTS_BIND" envDefault:"127.0.0.1"`
	Port int    `env:"EFFECTS_PORT" envDefault:"8080"`

	TickRate        int `env:"EFFECTS_TICK_RATE" envDefault:"10"`
	CommandCapacity int `env:"EFFECTS_COMMAND_CAPACITY" envDefault:"256"`
	PerActorLimit   int `env:"EFFECTS_PER_ACTOR_LIMIT" envDefault:"32"`
	HUDRefreshEvery int `env:"EFFECTS_HUD_REFRESH_TICKS" envDefault:"5"`
	HUDPushEvery    int `env:"EFFECTS_HUD_PUSH_TICKS" envDefault:"5"`

	DBPath         string        `env:"EFFECTS_DB_PATH"`
	SaveInterval   time.Duration `env:"EFFECTS_SAVE_INTERVAL" envDefault:"30s"`
	BackupEvery    int           `env:"EFFECTS_BACKUP_EVERY" envDefault:"10"`
	KeepSnapshots  int           `env:"EFFECTS_KEEP_SNAPSHOTS" envDefault:"20"`
	KeepBackups    int           `env:"EFFECTS_KEEP_BACKUPS" envDefault:"5"`
	SnapshotMaxAge time.Duration `env:"EFFECTS_SNAPSHOT_MAX_AGE" envDefault:"168h"`

	CatalogPaths []string `env:"EFFECTS_CATALOG_PATHS" envSeparator:","`
	DemoActors   []string `env:"EFFECTS_DEMO_ACTORS" envSeparator:","`

	LogSinks    []string `env:"EFFECTS_LOG_SINKS" envSeparator:","`
	LogJSONPath string   `env:"EFFECTS_LOG_JSON_PATH"`

	// Version is stamped by the CLI, not read from the environment.
	Version string `env:"-"`
}

// ParseEnv loads configuration from environment variables and fills in
// defaults.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("app: parse env: %w", err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	if c.TickRate <= 0 {
		c.TickRate = 10
	}
	if c.CommandCapacity <= 0 {
		c.CommandCapacity = 256
	}
	if c.PerActorLimit < 0 {
		c.PerActorLimit = 0
	}
	if c.HUDRefreshEvery < 0 {
		c.HUDRefreshEvery = 0
	}
	if c.HUDPushEvery < 0 {
		c.HUDPushEvery = 0
	}
	if c.SaveInterval < 0 {
		c.SaveInterval = 0
	}
	if len(c.CatalogPaths) == 0 {
		c.CatalogPaths = catalog.DefaultPaths()
	}
	if len(c.LogSinks) == 0 {
		c.LogSinks = []string{logging.SinkConsole}
	}
	return c
}

// ListenAddr returns the bind:port address string.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}
