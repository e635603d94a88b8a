// Command keeper watches a running waterworks daemon and drains basins that
// are close to spilling over. It observes through the public API and acts
// through the admin fill endpoint.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/waterworks/internal/config"
	"github.com/talgya/waterworks/internal/keeper"
)

func main() {
	logCfg := config.LogConfig{
		Level:  envOrDefault("KEEPER_LOG_LEVEL", "info"),
		Format: envOrDefault("KEEPER_LOG_FORMAT", "auto"),
	}
	slog.SetDefault(slog.New(logCfg.Handler(os.Stdout)))

	// Configuration from environment.
	apiURL := envOrDefault("WATERWORKS_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("WATERWORKS_ADMIN_KEY")
	intervalSec := envIntOrDefault("KEEPER_INTERVAL", 60)
	memPath := envOrDefault("KEEPER_MEMORY", "data/keeper_memory.json")

	if adminKey == "" {
		slog.Error("WATERWORKS_ADMIN_KEY is required")
		os.Exit(1)
	}

	policy := keeper.DefaultPolicy()
	policy.Threshold = envIntOrDefault("KEEPER_THRESHOLD", policy.Threshold)
	policy.MaxDrains = envIntOrDefault("KEEPER_MAX_DRAINS", policy.MaxDrains)
	policy.Cooldown = envIntOrDefault("KEEPER_COOLDOWN", policy.Cooldown)

	interval := time.Duration(intervalSec) * time.Second

	slog.Info("Waterworks keeper starting",
		"api_url", apiURL,
		"interval", interval,
		"threshold", policy.Threshold,
	)

	k := keeper.New(apiURL, adminKey, policy, keeper.LoadMemory(memPath))

	slog.Info("waiting for waterworks API...")
	waitForAPI(apiURL)

	runCycle(k)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runCycle(k)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Keeper stopped.")
			return
		}
	}
}

func runCycle(k *keeper.Keeper) {
	rec, err := k.RunCycle()
	if err != nil {
		slog.Error("keeper cycle failed", "error", err)
		return
	}
	slog.Info("keeper cycle complete",
		"tick", rec.Tick,
		"action", rec.Action,
		"crisis", rec.CrisisLevel,
		"drained", len(rec.Drained),
	)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("waterworks API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("waterworks API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("waterworks not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}
