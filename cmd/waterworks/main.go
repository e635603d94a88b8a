// Command waterworks runs the basin and water simulation daemon.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/talgya/waterworks/internal/api"
	"github.com/talgya/waterworks/internal/config"
	"github.com/talgya/waterworks/internal/engine"
	"github.com/talgya/waterworks/internal/persistence"
	"github.com/talgya/waterworks/internal/terrain"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults when empty)")
	fresh := flag.Bool("fresh", false, "ignore saved state and generate a new grid")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(cfg.Log.Handler(os.Stdout)))

	slog.Info("Waterworks basin simulation", "config", *configPath)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	// ── Load or Generate World State ─────────────────────────────────
	var sim *engine.Simulation
	restored := false

	if !*fresh && db.HasWorldState() {
		slog.Info("found saved world state, loading...")
		sim, err = db.LoadSimulation(cfg.BasinOptions())
		if err != nil {
			slog.Error("failed to load world state", "error", err)
			os.Exit(1)
		}
		restored = true
		slog.Info("world state restored",
			"tick", sim.CurrentTick(),
			"sim_time", engine.SimTime(sim.CurrentTick()),
			"generation", sim.Generation(),
		)
	} else {
		slog.Info("generating terrain...", "seed", cfg.Terrain.Seed,
			"width", cfg.Terrain.Width, "height", cfg.Terrain.Height)
		grid := terrain.Generate(cfg.GenConfig())
		for depth, n := range grid.DepthCounts() {
			slog.Debug("terrain", "depth", depth, "tiles", n)
		}

		sim, err = engine.NewSimulation(grid, cfg.BasinOptions())
		if err != nil {
			slog.Error("basin computation failed", "error", err)
			os.Exit(1)
		}
		for _, pc := range cfg.Pumps {
			p, err := sim.AddPump(engine.Pump{
				Name:       pc.Name,
				At:         terrain.Coord{X: pc.X, Y: pc.Y},
				Rate:       pc.Rate,
				MaxPerTick: pc.MaxPerTick,
				Reservoir:  pc.Reservoir,
				Capacity:   pc.Capacity,
				Enabled:    !pc.Disabled,
			})
			if err != nil {
				slog.Error("invalid pump", "name", pc.Name, "error", err)
				os.Exit(1)
			}
			slog.Info("pump installed", "id", p.ID, "name", p.Name, "at", p.At)
		}
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	stats := sim.CurrentStats()
	slog.Info("world ready",
		"tiles", humanize.Comma(int64(sim.Grid.Width*sim.Grid.Height)),
		"water_tiles", humanize.Comma(int64(stats.WaterTiles)),
		"basins", stats.Basins,
		"pumps", len(sim.PumpList()),
	)

	// ── Simulation ────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.Tick = sim.CurrentTick()
	eng.Interval = cfg.TickInterval()
	eng.SetSpeed(cfg.Engine.Speed)

	eng.OnTick = sim.TickMinute
	eng.OnHour = sim.TickHour
	eng.OnDay = func(tick uint64) {
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("daily save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.API.AdminKey == "" {
		slog.Warn("WATERWORKS_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		Port:     cfg.API.Port,
		AdminKey: cfg.API.AdminKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nWaterworks is running: %s basins holding %s units of water.\n",
		humanize.Comma(int64(stats.Basins)), humanize.FormatFloat("#,###.##", stats.TotalVolume))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	if restored {
		fmt.Printf("Resuming from tick %d (%s)\n", eng.Tick, engine.SimTime(eng.Tick))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	slog.Info("final save...")
	if err := db.SaveWorldState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. World state saved.")
}
