// Terrain generation using layered simplex noise.
// Produces a continuous depth field, then quantizes it into depth classes.
package terrain

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
	"golang.org/x/exp/constraints"
)

// GenConfig holds terrain generation parameters.
type GenConfig struct {
	Width     int     // Grid width in tiles
	Height    int     // Grid height in tiles
	MaxDepth  int     // Deepest depth class
	Seed      int64   // Random seed (0 = random)
	LandLevel float64 // Noise value below which a tile is land (0.0–1.0)
	Octaves   int     // Noise layers
	Frequency float64 // Base sampling frequency
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:     64,
		Height:    48,
		MaxDepth:  5,
		Seed:      0,
		LandLevel: 0.45,
		Octaves:   4,
		Frequency: 0.09,
	}
}

// SmallTestConfig returns a tiny terrain for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:     12,
		Height:    10,
		MaxDepth:  3,
		Seed:      42,
		LandLevel: 0.40,
		Octaves:   3,
		Frequency: 0.2,
	}
}

// Generate creates a depth grid from layered noise.
func Generate(cfg GenConfig) *Grid {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	depthNoise := opensimplex.NewNormalized(seed)
	g := NewGrid(cfg.Width, cfg.Height, cfg.MaxDepth)

	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			v := octaveNoise(depthNoise, float64(x), float64(y), cfg.Octaves, cfg.Frequency, 0.5)
			g.cells[y*g.Width+x] = quantize(v, cfg.LandLevel, cfg.MaxDepth)
		}
	}

	return g
}

// quantize maps a normalized noise value onto [0, maxDepth]. Values below
// landLevel become land; the rest are spread evenly across depth classes.
func quantize(v, landLevel float64, maxDepth int) int {
	if v < landLevel || maxDepth <= 0 {
		return 0
	}
	span := 1.0 - landLevel
	if span <= 0 {
		return maxDepth
	}
	d := 1 + int(math.Floor((v-landLevel)/span*float64(maxDepth)))
	return clamp(d, 1, maxDepth)
}

// Carve sets every tile within radius of center to depth, returning the
// tiles whose value actually changed.
func Carve(g *Grid, center Coord, radius, depth int) []Coord {
	var changed []Coord
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if abs(dx)+abs(dy) > radius {
				continue
			}
			c := Coord{X: center.X + dx, Y: center.Y + dy}
			if g.Set(c, depth) {
				changed = append(changed, c)
			}
		}
	}
	return changed
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	if maxVal == 0 {
		return 0
	}
	return total / maxVal
}

func abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
