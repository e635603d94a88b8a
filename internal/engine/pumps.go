package engine

import (
	"math"

	"github.com/talgya/waterworks/internal/terrain"
)

// Pump moves water between a reservoir and the basin under its tile.
// A positive rate releases reservoir water into the basin; a negative rate
// pumps water out of the basin into the reservoir.
type Pump struct {
	ID         uint64        `json:"id"`
	Name       string        `json:"name"`
	At         terrain.Coord `json:"at"`
	Rate       float64       `json:"rate"`         // requested volume per tick
	MaxPerTick float64       `json:"max_per_tick"` // hard bound on |delta|
	Reservoir  float64       `json:"reservoir"`    // current stock
	Capacity   float64       `json:"capacity"`     // reservoir capacity, 0 = unbounded
	Enabled    bool          `json:"enabled"`
}

// Request returns the volume delta the pump asks to apply to a basin that
// currently holds basinVolume. The delta is bounded by MaxPerTick, by the
// reservoir stock when releasing, and by the basin's water and the
// reservoir's free room when pumping out.
func (p *Pump) Request(basinVolume float64) float64 {
	if !p.Enabled || p.Rate == 0 {
		return 0
	}
	delta := p.Rate
	if p.MaxPerTick > 0 {
		delta = math.Max(-p.MaxPerTick, math.Min(p.MaxPerTick, delta))
	}

	if delta > 0 {
		return math.Min(delta, math.Max(0, p.Reservoir))
	}

	delta = math.Max(delta, -math.Max(0, basinVolume))
	if p.Capacity > 0 {
		room := math.Max(0, p.Capacity-p.Reservoir)
		delta = math.Max(delta, -room)
	}
	return delta
}

// Settle books a delta that was applied to the basin against the reservoir.
func (p *Pump) Settle(applied float64) {
	p.Reservoir -= applied
	if p.Reservoir < 0 {
		p.Reservoir = 0
	}
}
