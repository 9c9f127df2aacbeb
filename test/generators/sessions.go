package generators

import (
	"pgregory.net/rapid"

	"trafficgen/internal/config"
)

// Profile draws a benign traffic profile name.
func Profile() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{"light", "normal", "heavy"})
}

// ShortBenign draws a benign configuration covering a few simulated seconds.
func ShortBenign() *rapid.Generator[config.Benign] {
	return rapid.Custom(func(t *rapid.T) config.Benign {
		b := config.Benign{
			Enabled:  true,
			Profile:  rapid.SampledFrom([]string{"light", "normal"}).Draw(t, "profile"),
			Duration: rapid.Float64Range(0.5, 3).Draw(t, "duration"),
			Diurnal:  rapid.Bool().Draw(t, "diurnal"),
			Phases:   rapid.Bool().Draw(t, "phases"),
		}
		if b.Diurnal {
			b.StartHour = rapid.Float64Range(0, 23.99).Draw(t, "start_hour")
		}
		return b
	})
}

// Hour draws an hour of day.
func Hour() *rapid.Generator[float64] {
	return rapid.Float64Range(0, 24)
}
