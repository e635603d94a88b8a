package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaultConfig(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateDetectsInvalidConfigurations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "non positive width",
			mutate:  func(cfg *Config) { cfg.Terrain.Width = 0 },
			wantErr: "terrain dimensions must be positive",
		},
		{
			name:    "zero max depth",
			mutate:  func(cfg *Config) { cfg.Terrain.MaxDepth = 0 },
			wantErr: "terrain.max_depth must be positive",
		},
		{
			name:    "land level out of range",
			mutate:  func(cfg *Config) { cfg.Terrain.LandLevel = 1 },
			wantErr: "terrain.land_level",
		},
		{
			name:    "zero volume unit",
			mutate:  func(cfg *Config) { cfg.Water.VolumeUnit = 0 },
			wantErr: "water.volume_unit must be positive",
		},
		{
			name:    "bad tick interval",
			mutate:  func(cfg *Config) { cfg.Engine.TickInterval = "soon" },
			wantErr: "engine.tick_interval invalid",
		},
		{
			name:    "negative tick interval",
			mutate:  func(cfg *Config) { cfg.Engine.TickInterval = "-1s" },
			wantErr: "engine.tick_interval must be positive",
		},
		{
			name:    "negative speed",
			mutate:  func(cfg *Config) { cfg.Engine.Speed = -1 },
			wantErr: "engine.speed cannot be negative",
		},
		{
			name: "pump outside terrain",
			mutate: func(cfg *Config) {
				cfg.Pumps = []PumpConfig{{Name: "p", X: cfg.Terrain.Width}}
			},
			wantErr: "pumps[0]",
		},
		{
			name: "negative pump limits",
			mutate: func(cfg *Config) {
				cfg.Pumps = []PumpConfig{{Name: "p", Reservoir: -1}}
			},
			wantErr: "limits cannot be negative",
		},
		{
			name:    "port out of range",
			mutate:  func(cfg *Config) { cfg.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "unknown log level",
			mutate:  func(cfg *Config) { cfg.Log.Level = "loud" },
			wantErr: "log.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(cfg *Config) { cfg.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := Default()
	cfg.Engine.TickInterval = ""
	cfg.Database.Path = ""
	cfg.Log = LogConfig{}
	cfg.Terrain.Octaves = 0

	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Second, cfg.TickInterval())
	assert.Equal(t, "data/waterworks.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Terrain.Octaves)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waterworks.yaml")
	body := `
terrain:
  width: 20
  height: 10
  seed: 7
engine:
  tick_interval: 250ms
pumps:
  - name: spring
    x: 3
    y: 4
    rate: 1.5
    reservoir: 100
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("WATERWORKS_ADMIN_KEY", "secret")
	t.Setenv("WATERWORKS_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Terrain.Width)
	assert.Equal(t, int64(7), cfg.Terrain.Seed)
	assert.Equal(t, Default().Terrain.MaxDepth, cfg.Terrain.MaxDepth)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	require.Len(t, cfg.Pumps, 1)
	assert.Equal(t, "spring", cfg.Pumps[0].Name)
	assert.Equal(t, "secret", cfg.API.AdminKey)
	assert.Equal(t, 9090, cfg.API.Port)

	gen := cfg.GenConfig()
	assert.Equal(t, 20, gen.Width)
	assert.Equal(t, 10, gen.Height)
	assert.Equal(t, 1.0, cfg.BasinOptions().VolumeUnit)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("terrain: [1, 2"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Terrain, cfg.Terrain)
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer

	LogConfig{Level: "warn", Format: "auto"}.Handler(&buf).Handle(context.Background(),
		slog.NewRecord(time.Time{}, slog.LevelWarn, "hello", 0))
	assert.True(t, json.Valid(buf.Bytes()), "non-terminal writers get JSON: %s", buf.String())

	buf.Reset()
	h := LogConfig{Level: "warn", Format: "text"}.Handler(&buf)
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	h.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelError, "boom", 0))
	assert.Contains(t, buf.String(), "msg=boom")

	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{}.SlogLevel())
}
