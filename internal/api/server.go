// Package api provides the HTTP API for querying and steering the basins.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane), except the
// highlight, which is shared view state.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/waterworks/internal/basin"
	"github.com/talgya/waterworks/internal/engine"
	"github.com/talgya/waterworks/internal/persistence"
	"github.com/talgya/waterworks/internal/terrain"
)

// Server serves the simulation over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// FillLimit bounds fill/drain gestures per client per minute. 0 = 60.
	FillLimit int
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	limit := s.FillLimit
	if limit <= 0 {
		limit = 60
	}
	fillLimiter := NewRateLimiter(limit, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/basins", s.handleBasins)
	mux.HandleFunc("/api/v1/basin/", s.handleBasinRoutes)
	mux.HandleFunc("/api/v1/tile/", s.handleTile)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/pumps", s.handlePumps)
	mux.HandleFunc("/api/v1/highlight", s.handleHighlight)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/fill", s.adminOnly(RateLimitMiddleware(fillLimiter, s.handleFill)))
	mux.HandleFunc("/api/v1/clear", s.adminOnly(s.handleClear))
	mux.HandleFunc("/api/v1/recompute", s.adminOnly(s.handleRecompute))
	mux.HandleFunc("/api/v1/level", s.adminOnly(s.handleLevel))
	mux.HandleFunc("/api/v1/carve", s.adminOnly(s.handleCarve))
	mux.HandleFunc("/api/v1/step", s.adminOnly(s.handleStep))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/pump", s.adminOnly(s.handlePump))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no WATERWORKS_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// decodeBody decodes an optional JSON body into v. An empty body is fine.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps simulation errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, basin.ErrSessionActive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, basin.ErrUnknownBasin):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tick := s.Sim.CurrentTick()
	stats := s.Sim.CurrentStats()
	g := s.Sim.Grid // dimensions never change

	status := map[string]any{
		"name":        "Waterworks",
		"tick":        tick,
		"sim_time":    engine.SimTime(tick),
		"speed":       s.Eng.Speed(),
		"running":     s.Eng.Running(),
		"generation":  s.Sim.Generation(),
		"highlighted": s.Sim.Highlighted(),
		"width":       g.Width,
		"height":      g.Height,
		"max_depth":   g.MaxDepth,
		"stats":       stats,
	}
	writeJSON(w, status)
}

// basinSummary is the list view of a basin, without its tiles.
type basinSummary struct {
	ID       string   `json:"id"`
	Depth    int      `json:"depth"`
	Tiles    int      `json:"tiles"`
	Volume   float64  `json:"volume"`
	Level    int      `json:"level"`
	Capacity float64  `json:"capacity"`
	Outlets  []string `json:"outlets"`
}

func (s *Server) summarize(b basin.Basin) basinSummary {
	unit := s.Sim.Basins.Options().VolumeUnit
	return basinSummary{
		ID:       b.ID,
		Depth:    b.Depth,
		Tiles:    b.TileCount(),
		Volume:   b.Volume,
		Level:    b.Level,
		Capacity: b.Capacity(unit, s.Sim.Grid.MaxDepth),
		Outlets:  b.Outlets,
	}
}

// handleBasins lists basins. ?depth=N filters by depth; ?min_level=N keeps
// basins at or above a water level.
func (s *Server) handleBasins(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	depth, minLevel := -1, -1
	if v := q.Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid depth", http.StatusBadRequest)
			return
		}
		depth = n
	}
	if v := q.Get("min_level"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid min_level", http.StatusBadRequest)
			return
		}
		minLevel = n
	}

	all := s.Sim.BasinList()
	out := make([]basinSummary, 0, len(all))
	for _, b := range all {
		if depth >= 0 && b.Depth != depth {
			continue
		}
		if minLevel >= 0 && b.Level < minLevel {
			continue
		}
		out = append(out, s.summarize(b))
	}
	writeJSON(w, out)
}

// handleBasinRoutes serves /api/v1/basin/{id} and /api/v1/basin/{id}/tiles.
// The '#' in ids must be sent as %23.
func (s *Server) handleBasinRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/basin/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "basin id required", http.StatusBadRequest)
		return
	}

	b, ok := s.Sim.Basin(parts[0])
	if !ok {
		http.Error(w, "basin not found", http.StatusNotFound)
		return
	}

	if len(parts) > 1 && parts[1] == "tiles" {
		writeJSON(w, b.Tiles)
		return
	}

	writeJSON(w, map[string]any{
		"basin":    b,
		"capacity": b.Capacity(s.Sim.Basins.Options().VolumeUnit, s.Sim.Grid.MaxDepth),
	})
}

// handleTile serves /api/v1/tile/{x}/{y}.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/tile/"), "/")
	if len(parts) != 2 {
		http.Error(w, "use /api/v1/tile/{x}/{y}", http.StatusBadRequest)
		return
	}
	x, errX := strconv.Atoi(parts[0])
	y, errY := strconv.Atoi(parts[1])
	if errX != nil || errY != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}

	c := terrain.Coord{X: x, Y: y}
	depth, ok := s.Sim.Depth(c)
	if !ok {
		http.Error(w, "tile out of bounds", http.StatusNotFound)
		return
	}

	resp := map[string]any{"x": x, "y": y, "depth": depth}
	if b, ok := s.Sim.BasinAt(x, y); ok {
		resp["basin"] = b.ID
		resp["level"] = b.Level
	}
	writeJSON(w, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	writeJSON(w, s.Sim.RecentEvents(limit))
}

func (s *Server) handlePumps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.PumpList())
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			ID string `json:"id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.Sim.SetHighlighted(req.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, map[string]string{"highlighted": s.Sim.Highlighted()})
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	req := struct {
		X    int   `json:"x"`
		Y    int   `json:"y"`
		Fill *bool `json:"fill,omitempty"` // default true
	}{}
	if !decodeBody(w, r, &req) {
		return
	}
	fill := req.Fill == nil || *req.Fill

	if !s.Sim.FloodFill(req.X, req.Y, fill) {
		http.Error(w, "no basin at tile", http.StatusNotFound)
		return
	}
	b, _ := s.Sim.BasinAt(req.X, req.Y)
	slog.Info("flood fill", "x", req.X, "y", req.Y, "fill", fill, "basin", b.ID)
	writeJSON(w, s.summarize(b))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.Sim.ClearWater()
	writeJSON(w, map[string]string{"message": "water cleared"})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.Sim.Recompute(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"generation": s.Sim.Generation(),
		"basins":     s.Sim.CurrentStats().Basins,
	})
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.Sim.Level()
	writeJSON(w, s.Sim.CurrentStats())
}

func (s *Server) handleCarve(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		X      int `json:"x"`
		Y      int `json:"y"`
		Radius int `json:"radius"`
		Depth  int `json:"depth"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Radius < 0 || req.Radius > 16 {
		http.Error(w, "radius must be 0-16", http.StatusBadRequest)
		return
	}

	changed, err := s.Sim.Carve(terrain.Coord{X: req.X, Y: req.Y}, req.Radius, req.Depth)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("terrain carved", "x", req.X, "y", req.Y, "radius", req.Radius, "depth", req.Depth, "changed", len(changed))
	writeJSON(w, map[string]any{
		"changed": len(changed),
		"basins":  s.Sim.CurrentStats().Basins,
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Granularity string `json:"granularity"`
		Abandon     bool   `json:"abandon"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Abandon {
		writeJSON(w, map[string]bool{"abandoned": s.Sim.AbandonStep()})
		return
	}

	g, err := basin.ParseGranularity(req.Granularity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := s.Sim.Step(g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveWorldState(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

// handlePump installs a pump (id omitted) or updates an existing pump's
// rate and enabled flag.
func (s *Server) handlePump(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		ID         uint64  `json:"id"`
		Name       string  `json:"name"`
		X          int     `json:"x"`
		Y          int     `json:"y"`
		Rate       float64 `json:"rate"`
		MaxPerTick float64 `json:"max_per_tick"`
		Reservoir  float64 `json:"reservoir"`
		Capacity   float64 `json:"capacity"`
		Enabled    bool    `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if req.ID != 0 {
		p, err := s.Sim.SetPumpRate(req.ID, req.Rate, req.Enabled)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, p)
		return
	}

	p, err := s.Sim.AddPump(engine.Pump{
		Name:       req.Name,
		At:         terrain.Coord{X: req.X, Y: req.Y},
		Rate:       req.Rate,
		MaxPerTick: req.MaxPerTick,
		Reservoir:  req.Reservoir,
		Capacity:   req.Capacity,
		Enabled:    req.Enabled,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("pump installed", "id", p.ID, "name", p.Name, "at", p.At.Key())
	writeJSON(w, p)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
