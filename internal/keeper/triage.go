package keeper

import "sort"

// Health holds derived flood signals computed from an Observation.
type Health struct {
	AtRisk      []BasinInfo // level >= threshold, most urgent first
	Brimming    int         // basins at full capacity
	FillRatio   float64     // total volume / total capacity
	CrisisLevel string      // "CRITICAL", "WARNING", "HEALTHY"
}

// Triage computes Health. Basins whose level reaches threshold are at risk;
// any brimming basin with an outlet makes the state critical because it is
// already spilling downstream.
func Triage(obs *Observation, threshold int) *Health {
	h := &Health{CrisisLevel: "HEALTHY"}

	var volume, capacity float64
	spilling := false
	for _, b := range obs.Basins {
		volume += b.Volume
		capacity += b.Capacity
		if b.Capacity > 0 && b.Volume >= b.Capacity {
			h.Brimming++
			if len(b.Outlets) > 0 {
				spilling = true
			}
		}
		if b.Level >= threshold {
			h.AtRisk = append(h.AtRisk, b)
		}
	}
	if capacity > 0 {
		h.FillRatio = volume / capacity
	}

	// Fullest first, shallow basins before deep ones: shallow basins sit
	// downstream of everything nested in them.
	sort.SliceStable(h.AtRisk, func(i, j int) bool {
		a, b := h.AtRisk[i], h.AtRisk[j]
		if a.Fill() != b.Fill() {
			return a.Fill() > b.Fill()
		}
		return a.Depth < b.Depth
	})

	switch {
	case spilling:
		h.CrisisLevel = "CRITICAL"
	case len(h.AtRisk) > 0:
		h.CrisisLevel = "WARNING"
	}
	return h
}
