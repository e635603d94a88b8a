package keeper

import (
	"fmt"
	"log/slog"
)

// Keeper runs observe, triage, decide and act cycles against one API.
type Keeper struct {
	Observer *Observer
	Actor    *Actor
	Policy   Policy
	Memory   *CycleMemory
}

// New creates a keeper for the API at baseURL.
func New(baseURL, adminKey string, policy Policy, mem *CycleMemory) *Keeper {
	if mem == nil {
		mem = &CycleMemory{}
	}
	return &Keeper{
		Observer: NewObserver(baseURL),
		Actor:    NewActor(baseURL, adminKey),
		Policy:   policy,
		Memory:   mem,
	}
}

// RunCycle executes one cycle and records it. A failed drain is logged and
// the remaining targets are still attempted.
func (k *Keeper) RunCycle() (*CycleRecord, error) {
	obs, err := k.Observer.Observe()
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	gen := obs.Status.Generation

	health := Triage(obs, k.Policy.Threshold)
	slog.Info("observation complete",
		"tick", obs.Status.Tick,
		"basins", len(obs.Basins),
		"at_risk", len(health.AtRisk),
		"crisis", health.CrisisLevel,
		"fill", fmt.Sprintf("%.2f", health.FillRatio),
	)

	var skip func(string) bool
	if k.Policy.Cooldown > 0 {
		skip = func(id string) bool { return k.Memory.RecentlyDrained(id, gen, k.Policy.Cooldown) }
	}
	decision := Decide(health, k.Policy, skip)
	slog.Info("decision made", "action", decision.Action, "rationale", decision.Rationale)

	rec := CycleRecord{
		Tick:        obs.Status.Tick,
		Generation:  gen,
		Action:      decision.Action,
		CrisisLevel: health.CrisisLevel,
		FillRatio:   health.FillRatio,
	}

	for _, id := range decision.Targets {
		tiles, err := k.Observer.Tiles(id)
		if err != nil || len(tiles) == 0 {
			slog.Error("drain target lookup failed", "basin", id, "error", err)
			continue
		}
		after, err := k.Actor.Drain(tiles[0].X, tiles[0].Y)
		if err != nil {
			slog.Error("drain failed", "basin", id, "error", err)
			continue
		}
		slog.Info("drain sent", "basin", id, "level_after", after.Level)
		rec.Drained = append(rec.Drained, id)
	}

	k.Memory.Record(rec)
	k.Memory.Save()
	return &rec, nil
}
