// Package config loads server settings from a TOML file, an optional .env
// file and ARENA_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"hunt-arena/server/internal/telemetry"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Simulation SimulationConfig `toml:"simulation"`
	Logging    LoggingConfig    `toml:"logging"`
	Pathing    PathingConfig    `toml:"pathing"`
}

type ServerConfig struct {
	Addr         string        `toml:"addr"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	// SnapshotEvery is the number of ticks between observer broadcasts.
	SnapshotEvery int `toml:"snapshot_every"`
}

type SimulationConfig struct {
	Map             string `toml:"map"`
	TickRate        int    `toml:"tick_rate"`
	CatchupMaxTicks int    `toml:"catchup_max_ticks"`
	CommandCapacity int    `toml:"command_capacity"`
	PerActorLimit   int    `toml:"per_actor_limit"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`
	Sinks      []string `toml:"sinks"`
	File       string   `toml:"file"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
	MaxAgeDays int      `toml:"max_age_days"`
	Compress   bool     `toml:"compress"`
	Color      bool     `toml:"color"`
}

type PathingConfig struct {
	// FootprintCacheSize bounds the shared circle footprint cache; zero
	// disables it.
	FootprintCacheSize int64 `toml:"footprint_cache_size"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			WriteTimeout:  5 * time.Second,
			SnapshotEvery: 1,
		},
		Simulation: SimulationConfig{
			Map:             "maps/meadow.yaml",
			TickRate:        20,
			CatchupMaxTicks: 3,
			CommandCapacity: 1024,
			PerActorLimit:   8,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Sinks:      []string{"console"},
			MaxSizeMB:  64,
			MaxBackups: 4,
			MaxAgeDays: 14,
		},
		Pathing: PathingConfig{
			FootprintCacheSize: 4096,
		},
	}
}

// Load reads the TOML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads variables from a .env file into the process environment
// without overriding values already set. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies ARENA_* overrides. Invalid values are reported through
// logger and ignored.
func (c *Config) ApplyEnv(logger telemetry.Logger) {
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	if raw := os.Getenv("ARENA_ADDR"); raw != "" {
		c.Server.Addr = raw
	}
	if raw := os.Getenv("ARENA_TICK_RATE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			c.Simulation.TickRate = value
		} else {
			logger.Printf("invalid ARENA_TICK_RATE=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("ARENA_MAP"); raw != "" {
		c.Simulation.Map = raw
	}
	if raw := os.Getenv("ARENA_LOG_FILE"); raw != "" {
		c.Logging.File = raw
		if !c.hasSink("json") {
			c.Logging.Sinks = append(c.Logging.Sinks, "json")
		}
	}
	if raw := os.Getenv("ARENA_LOG_LEVEL"); raw != "" {
		c.Logging.Level = raw
	}
}

func (c *Config) hasSink(name string) bool {
	for _, s := range c.Logging.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Simulation.TickRate <= 0 {
		return fmt.Errorf("simulation.tick_rate must be positive, got %d", c.Simulation.TickRate)
	}
	if c.Simulation.Map == "" {
		return errors.New("simulation.map is required")
	}
	if c.hasSink("json") && c.Logging.File == "" {
		return errors.New("logging.file is required when the json sink is enabled")
	}
	return nil
}
