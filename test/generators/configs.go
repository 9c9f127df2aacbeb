package generators

import (
	"pgregory.net/rapid"

	"trafficgen/internal/config"
)

// AttackType draws one of the recognized attack tags.
func AttackType() *rapid.Generator[string] {
	return rapid.SampledFrom(config.AttackTypes)
}

// ArrivalMode draws an arrival model name.
func ArrivalMode() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{"burst", "steady"})
}

// Seed draws a run seed.
func Seed() *rapid.Generator[uint64] {
	return rapid.Uint64()
}

// SmallAttack draws an attack request small enough to synthesize inside a
// property check. The result still needs Normalize for type defaults.
func SmallAttack() *rapid.Generator[config.Attack] {
	return rapid.Custom(func(t *rapid.T) config.Attack {
		a := config.Attack{
			Type:       AttackType().Draw(t, "type"),
			NumPackets: rapid.IntRange(1, 150).Draw(t, "num_packets"),
			PPS:        rapid.Float64Range(10, 1e5).Draw(t, "pps"),
			Arrival:    ArrivalMode().Draw(t, "arrival"),
		}
		switch a.Type {
		case "quic_optimistic_ack":
			a.NumAttackers = rapid.IntRange(1, 20).Draw(t, "num_attackers")
			a.JumpFactor = rapid.IntRange(1, 500).Draw(t, "jump_factor")
			a.AcksPerPacket = rapid.IntRange(1, 5).Draw(t, "acks_per_packet")
			a.Mixed = rapid.Bool().Draw(t, "mixed")
		case "volumetric":
			a.MixRatios = MixRatios().Draw(t, "mix_ratios")
		}
		return a
	})
}

// MixRatios draws volumetric weights with a positive total.
func MixRatios() *rapid.Generator[map[string]float64] {
	return rapid.Custom(func(t *rapid.T) map[string]float64 {
		m := make(map[string]float64)
		for _, name := range config.VolumetricComponents {
			m[name] = rapid.Float64Range(0, 1).Draw(t, name)
		}
		m[rapid.SampledFrom(config.VolumetricComponents).Draw(t, "nonzero")] += 0.1
		return m
	})
}

// AttackRatio draws a valid mixing ratio in (0, 1].
func AttackRatio() *rapid.Generator[float64] {
	return rapid.Float64Range(0.01, 1)
}
