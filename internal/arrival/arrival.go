// Package arrival produces packet arrival times for a single stream.
package arrival

import (
	"math"
	"math/rand/v2"
	"strings"

	"trafficgen/internal/config"
)

// Mode selects the temporal model of a stream.
type Mode uint8

const (
	// Steady draws intervals from N(1/pps, 1/(10·pps)).
	Steady Mode = iota
	// Burst alternates fast (5×pps) and slow (0.5×pps) intervals.
	Burst
)

const (
	burstProbability = 0.3
	burstSpeedup     = 5.0
	slowdown         = 0.5

	// MinInterval keeps consecutive timestamps distinct at capture
	// resolution.
	MinInterval = 1e-6
)

func (m Mode) String() string {
	switch m {
	case Burst:
		return "burst"
	default:
		return "steady"
	}
}

// ParseMode maps "burst" / "steady" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "burst":
		return Burst, nil
	case "steady", "normal":
		return Steady, nil
	default:
		return Steady, config.Errorf("arrival.mode", "unknown arrival mode %q", s)
	}
}

// Params configures a Generator.
type Params struct {
	Start float64
	PPS   float64
	Mode  Mode
}

// Generator hands out strictly increasing timestamps. It is not safe for
// concurrent use; each stream owns its own.
type Generator struct {
	current float64
	pps     float64
	mode    Mode
	r       *rand.Rand
}

// New validates p and returns a Generator positioned at p.Start.
func New(p Params, r *rand.Rand) (*Generator, error) {
	if !(p.PPS > 0) || math.IsInf(p.PPS, 0) {
		return nil, config.Errorf("pps", "must be a positive finite rate, got %v", p.PPS)
	}
	if math.IsNaN(p.Start) || math.IsInf(p.Start, 0) {
		return nil, config.Errorf("start_time", "must be finite, got %v", p.Start)
	}
	return &Generator{current: p.Start, pps: p.PPS, mode: p.Mode, r: r}, nil
}

// Next advances the cursor by one interval and returns it.
func (g *Generator) Next() float64 {
	g.current += g.interval()
	return g.current
}

// Current returns the last timestamp handed out (or the start time).
func (g *Generator) Current() float64 { return g.current }

func (g *Generator) interval() float64 {
	var iv float64
	switch g.mode {
	case Burst:
		if g.r.Float64() < burstProbability {
			iv = 1.0 / (g.pps * burstSpeedup)
		} else {
			iv = 1.0 / (g.pps * slowdown)
		}
	default:
		mean := 1.0 / g.pps
		iv = mean + g.r.NormFloat64()*(mean/10)
		iv = math.Max(0, iv)
	}
	return math.Max(iv, MinInterval)
}

// MeanInterval is the expected interval of the model, used for dry-run
// duration estimates.
func MeanInterval(mode Mode, pps float64) float64 {
	if pps <= 0 {
		return 0
	}
	if mode == Burst {
		return burstProbability/(pps*burstSpeedup) + (1-burstProbability)/(pps*slowdown)
	}
	return 1.0 / pps
}
