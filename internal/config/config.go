// Package config loads the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/waterworks/internal/basin"
	"github.com/talgya/waterworks/internal/terrain"
)

type Config struct {
	Terrain  TerrainConfig  `yaml:"terrain"`
	Water    WaterConfig    `yaml:"water"`
	Engine   EngineConfig   `yaml:"engine"`
	Pumps    []PumpConfig   `yaml:"pumps"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`
}

type TerrainConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	MaxDepth  int     `yaml:"max_depth"`
	Seed      int64   `yaml:"seed"`
	LandLevel float64 `yaml:"land_level"`
	Octaves   int     `yaml:"octaves"`
	Frequency float64 `yaml:"frequency"`
}

type WaterConfig struct {
	VolumeUnit float64 `yaml:"volume_unit"`
}

type EngineConfig struct {
	TickInterval string  `yaml:"tick_interval"`
	Speed        float64 `yaml:"speed"`
}

type PumpConfig struct {
	Name       string  `yaml:"name"`
	X          int     `yaml:"x"`
	Y          int     `yaml:"y"`
	Rate       float64 `yaml:"rate"`
	MaxPerTick float64 `yaml:"max_per_tick"`
	Reservoir  float64 `yaml:"reservoir"`
	Capacity   float64 `yaml:"capacity"`
	Disabled   bool    `yaml:"disabled"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	Port     int    `yaml:"port"`
	AdminKey string `yaml:"admin_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, text, json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	gen := terrain.DefaultGenConfig()
	return &Config{
		Terrain: TerrainConfig{
			Width:     gen.Width,
			Height:    gen.Height,
			MaxDepth:  gen.MaxDepth,
			Seed:      gen.Seed,
			LandLevel: gen.LandLevel,
			Octaves:   gen.Octaves,
			Frequency: gen.Frequency,
		},
		Water:    WaterConfig{VolumeUnit: 1},
		Engine:   EngineConfig{TickInterval: "1s", Speed: 1},
		Database: DatabaseConfig{Path: "data/waterworks.db"},
		API:      APIConfig{Port: 8080},
		Log:      LogConfig{Level: "info", Format: "auto"},
	}
}

// Load reads path on top of the defaults, applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WATERWORKS_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("WATERWORKS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.API.Port = port
		}
	}
	if v := os.Getenv("WATERWORKS_ADMIN_KEY"); v != "" {
		c.API.AdminKey = v
	}
}

func (c *Config) Validate() error {
	t := &c.Terrain
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("terrain dimensions must be positive")
	}
	if t.MaxDepth <= 0 {
		return fmt.Errorf("terrain.max_depth must be positive")
	}
	if t.LandLevel < 0 || t.LandLevel >= 1 {
		return fmt.Errorf("terrain.land_level must be in [0, 1)")
	}
	if t.Octaves <= 0 {
		t.Octaves = 4
	}
	if t.Frequency <= 0 {
		t.Frequency = terrain.DefaultGenConfig().Frequency
	}
	if c.Water.VolumeUnit <= 0 {
		return fmt.Errorf("water.volume_unit must be positive")
	}
	if c.Engine.TickInterval == "" {
		c.Engine.TickInterval = "1s"
	}
	d, err := time.ParseDuration(c.Engine.TickInterval)
	if err != nil {
		return fmt.Errorf("engine.tick_interval invalid: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("engine.tick_interval must be positive")
	}
	if c.Engine.Speed < 0 {
		return fmt.Errorf("engine.speed cannot be negative")
	}
	for i, p := range c.Pumps {
		if p.X < 0 || p.X >= t.Width || p.Y < 0 || p.Y >= t.Height {
			return fmt.Errorf("pumps[%d] at %d,%d is outside the terrain", i, p.X, p.Y)
		}
		if p.MaxPerTick < 0 || p.Reservoir < 0 || p.Capacity < 0 {
			return fmt.Errorf("pumps[%d] limits cannot be negative", i)
		}
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/waterworks.db"
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	switch c.Log.Level {
	case "":
		c.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown", c.Log.Level)
	}
	switch c.Log.Format {
	case "":
		c.Log.Format = "auto"
	case "auto", "text", "json":
	default:
		return fmt.Errorf("log.format %q unknown", c.Log.Format)
	}
	return nil
}

// GenConfig converts the terrain section for terrain.Generate.
func (c *Config) GenConfig() terrain.GenConfig {
	return terrain.GenConfig{
		Width:     c.Terrain.Width,
		Height:    c.Terrain.Height,
		MaxDepth:  c.Terrain.MaxDepth,
		Seed:      c.Terrain.Seed,
		LandLevel: c.Terrain.LandLevel,
		Octaves:   c.Terrain.Octaves,
		Frequency: c.Terrain.Frequency,
	}
}

// BasinOptions returns the water engine settings.
func (c *Config) BasinOptions() basin.Options {
	return basin.Options{VolumeUnit: c.Water.VolumeUnit}
}

// TickInterval returns the parsed engine tick interval.
func (c *Config) TickInterval() time.Duration {
	d, err := time.ParseDuration(c.Engine.TickInterval)
	if err != nil {
		return time.Second
	}
	return d
}
