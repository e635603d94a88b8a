package keeper

import (
	"fmt"
	"log/slog"
)

// Policy bounds what the keeper may do in one cycle.
type Policy struct {
	Threshold int // drain basins whose level reaches this
	MaxDrains int // per cycle
	Cooldown  int // cycles to leave a drained basin alone, 0 = none
}

// DefaultPolicy drains at most two basins per cycle once they reach level 3.
func DefaultPolicy() Policy {
	return Policy{Threshold: 3, MaxDrains: 2}
}

// Decision is the keeper's plan for one cycle.
type Decision struct {
	Action    string   `json:"action"` // "none" or "drain"
	Rationale string   `json:"rationale"`
	Targets   []string `json:"targets,omitempty"`
}

// Decide picks the basins to drain from the triage result. skip reports
// basins that must be left alone this cycle; it may be nil.
func Decide(h *Health, p Policy, skip func(id string) bool) *Decision {
	var candidates []BasinInfo
	for _, b := range h.AtRisk {
		if skip == nil || !skip(b.ID) {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return &Decision{
			Action:    "none",
			Rationale: fmt.Sprintf("no drainable basin at level %d or above (fill %.0f%%)", p.Threshold, h.FillRatio*100),
		}
	}

	limit := p.MaxDrains
	if limit < 1 {
		limit = 1
	}
	d := &Decision{Action: "drain"}
	for _, b := range candidates {
		if len(d.Targets) == limit {
			slog.Warn("keeper drains capped", "at_risk", len(candidates), "capped", limit)
			break
		}
		d.Targets = append(d.Targets, b.ID)
	}
	d.Rationale = fmt.Sprintf("%s: %d basin(s) at level %d or above", h.CrisisLevel, len(h.AtRisk), p.Threshold)
	return d
}
