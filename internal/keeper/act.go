package keeper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// fillRequest is the payload for POST /api/v1/fill.
type fillRequest struct {
	X    int  `json:"x"`
	Y    int  `json:"y"`
	Fill bool `json:"fill"`
}

// Actor executes drains via the admin API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Drain sends a drain gesture for tile (x, y) and returns the basin after it.
func (a *Actor) Drain(x, y int) (*BasinInfo, error) {
	body, err := json.Marshal(fillRequest{X: x, Y: y, Fill: false})
	if err != nil {
		return nil, fmt.Errorf("marshal drain: %w", err)
	}

	req, err := http.NewRequest("POST", a.BaseURL+"/api/v1/fill", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST fill: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drain failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var result BasinInfo
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}
