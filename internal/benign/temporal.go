package benign

import (
	"math"
	"math/rand/v2"

	"trafficgen/internal/rng"
)

const (
	troughHour = 4.0
	peakHour   = 14.0

	weekendChance = 0.2
	weekendFactor = 0.7
)

// DiurnalBase is the noise-free time-of-day curve. It rises from 0.2 at
// 04:00 to 1.0 at 14:00 along a half cosine and falls back over the
// remaining fourteen hours.
func DiurnalBase(hour float64) float64 {
	h := math.Mod(hour, 24)
	if h < 0 {
		h += 24
	}
	if h >= troughHour && h < peakHour {
		theta := (h - troughHour) / (peakHour - troughHour) * math.Pi
		return 0.6 - 0.4*math.Cos(theta)
	}
	since := math.Mod(h-peakHour+24, 24)
	theta := since / (24 - (peakHour - troughHour)) * math.Pi
	return 0.6 + 0.4*math.Cos(theta)
}

// DiurnalMultiplier perturbs DiurnalBase with weekend damping and ±15%
// noise drawn from r.
func DiurnalMultiplier(r *rand.Rand, hour float64) float64 {
	m := DiurnalBase(hour)
	if rng.Chance(r, weekendChance) {
		m *= weekendFactor
	}
	return m * rng.Uniform(r, 0.85, 1.15)
}

// Phase is a stretch of the capture with its own protocol mix and pacing.
type Phase struct {
	Name      string
	Share     float64 // fraction of sessions
	Weights   [numSessionKinds]float64
	Intensity float64 // gaps are divided by this
	Jitter    float64 // seconds, spread symmetrically around each gap
}

// Phases is the four-stage schedule applied when phases are enabled.
var Phases = []Phase{
	{Name: "HTTP Peak", Share: 0.33, Weights: weights(70, 15, 5, 5, 0, 5), Intensity: 1.3, Jitter: 0.020},
	{Name: "DNS Burst", Share: 0.20, Weights: weights(30, 50, 5, 10, 0, 5), Intensity: 0.8, Jitter: 0.050},
	{Name: "SSH Stable", Share: 0.27, Weights: weights(35, 10, 40, 5, 0, 10), Intensity: 0.6, Jitter: 0.010},
	{Name: "UDP Light", Share: 0.20, Weights: weights(25, 15, 10, 15, 0, 35), Intensity: 0.5, Jitter: 0.080},
}

func weights(http, dns, ssh, icmp, ntp, udp float64) [numSessionKinds]float64 {
	return [numSessionKinds]float64{
		SessionHTTP: http,
		SessionDNS:  dns,
		SessionSSH:  ssh,
		SessionICMP: icmp,
		SessionNTP:  ntp,
		SessionUDP:  udp,
	}
}

// phaseAt returns the phase covering the given fraction of the run.
func phaseAt(frac float64) *Phase {
	var acc float64
	for i := range Phases {
		acc += Phases[i].Share
		if frac < acc {
			return &Phases[i]
		}
	}
	return &Phases[len(Phases)-1]
}
