// Package keeper implements the flood-control client.
// It observes basin state via the API, decides which basins to drain with
// fixed rules, and acts via the admin fill endpoint.
package keeper

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/talgya/waterworks/internal/terrain"
)

// Observation holds all data collected during an observation cycle.
type Observation struct {
	Status Status      `json:"status"`
	Basins []BasinInfo `json:"basins"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	Name       string  `json:"name"`
	Tick       uint64  `json:"tick"`
	SimTime    string  `json:"sim_time"`
	Speed      float64 `json:"speed"`
	Running    bool    `json:"running"`
	Generation string  `json:"generation"`
	MaxDepth   int     `json:"max_depth"`
	Stats      struct {
		Basins      int     `json:"basins"`
		WaterTiles  int     `json:"water_tiles"`
		TotalVolume float64 `json:"total_volume"`
		Reservoirs  float64 `json:"reservoirs"`
		FullBasins  int     `json:"full_basins"`
	} `json:"stats"`
}

// BasinInfo mirrors items from GET /api/v1/basins.
type BasinInfo struct {
	ID       string   `json:"id"`
	Depth    int      `json:"depth"`
	Tiles    int      `json:"tiles"`
	Volume   float64  `json:"volume"`
	Level    int      `json:"level"`
	Capacity float64  `json:"capacity"`
	Outlets  []string `json:"outlets"`
}

// Fill returns the basin's volume as a fraction of its capacity.
func (b BasinInfo) Fill() float64 {
	if b.Capacity <= 0 {
		return 0
	}
	return b.Volume / b.Capacity
}

// Observer fetches basin state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches the status and the basin list.
func (o *Observer) Observe() (*Observation, error) {
	obs := &Observation{}

	if err := o.fetchJSON("/api/v1/status", &obs.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON("/api/v1/basins", &obs.Basins); err != nil {
		return nil, fmt.Errorf("fetch basins: %w", err)
	}

	return obs, nil
}

// Tiles fetches the tiles of one basin.
func (o *Observer) Tiles(id string) ([]terrain.Coord, error) {
	var tiles []terrain.Coord
	if err := o.fetchJSON("/api/v1/basin/"+url.PathEscape(id)+"/tiles", &tiles); err != nil {
		return nil, fmt.Errorf("fetch tiles of %s: %w", id, err)
	}
	return tiles, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
