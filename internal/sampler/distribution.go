// Package sampler draws packet attributes (sizes, TTLs, ports, gaps) from
// fixed tables or from distributions fitted to reference traffic.
package sampler

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"

	"trafficgen/internal/config"
	"trafficgen/internal/rng"
)

// Mode selects how a Distribution is sampled.
type Mode uint8

const (
	// Empirical draws uniformly from the observed values.
	Empirical Mode = iota
	// Weighted draws a value with probability proportional to its weight.
	Weighted
	// KDE resamples a Gaussian kernel density fitted to the observations,
	// clipped to the observed range.
	KDE
)

func (m Mode) String() string {
	switch m {
	case Weighted:
		return "weighted"
	case KDE:
		return "kde"
	default:
		return "empirical"
	}
}

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "empirical", "values":
		return Empirical, nil
	case "kde":
		return KDE, nil
	case "weighted":
		return Weighted, nil
	default:
		return Empirical, config.Errorf("dataset_mode", "unknown sampling mode %q", s)
	}
}

// Distribution is immutable once built and safe to share between
// generators; every Sample call takes the caller's stream.
type Distribution struct {
	mode      Mode
	values    []float64
	weights   []float64
	min, max  float64
	bandwidth float64
}

// NewEmpirical keeps a private copy of values.
func NewEmpirical(values []float64) (*Distribution, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("empirical distribution needs at least one value")
	}
	return &Distribution{mode: Empirical, values: slices.Clone(values)}, nil
}

// NewWeighted pairs values with weights of the same length.
func NewWeighted(values, weights []float64) (*Distribution, error) {
	if len(values) == 0 || len(values) != len(weights) {
		return nil, fmt.Errorf("weighted distribution needs matching values and weights (%d vs %d)", len(values), len(weights))
	}
	var total float64
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("weighted distribution has invalid weight %v", w)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("weighted distribution has zero total weight")
	}
	return &Distribution{mode: Weighted, values: slices.Clone(values), weights: slices.Clone(weights)}, nil
}

// NewKDE fits a Gaussian kernel with Scott's bandwidth rule.
func NewKDE(values []float64) (*Distribution, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("kde needs at least one value")
	}
	d := &Distribution{
		mode:   KDE,
		values: slices.Clone(values),
		min:    slices.Min(values),
		max:    slices.Max(values),
	}
	if len(values) > 1 {
		sd := stat.StdDev(d.values, nil)
		if !math.IsNaN(sd) {
			d.bandwidth = sd * math.Pow(float64(len(values)), -1.0/5.0)
		}
	}
	return d, nil
}

// New builds a Distribution of the given mode from raw observations.
// Weighted mode derives weights from value frequencies.
func New(values []float64, mode Mode) (*Distribution, error) {
	switch mode {
	case KDE:
		return NewKDE(values)
	case Weighted:
		counts := make(map[float64]float64)
		for _, v := range values {
			counts[v]++
		}
		uniq := make([]float64, 0, len(counts))
		for v := range counts {
			uniq = append(uniq, v)
		}
		slices.Sort(uniq)
		weights := make([]float64, len(uniq))
		for i, v := range uniq {
			weights[i] = counts[v]
		}
		return NewWeighted(uniq, weights)
	default:
		return NewEmpirical(values)
	}
}

// Mode reports how d samples.
func (d *Distribution) Mode() Mode { return d.mode }

// Len is the number of observations (or weighted buckets).
func (d *Distribution) Len() int { return len(d.values) }

// Sample draws one value using r.
func (d *Distribution) Sample(r *rand.Rand) float64 {
	switch d.mode {
	case Weighted:
		return d.values[rng.WeightedIndex(r, d.weights)]
	case KDE:
		v := rng.Choice(r, d.values)
		if d.bandwidth > 0 {
			v += r.NormFloat64() * d.bandwidth
		}
		return math.Min(math.Max(v, d.min), d.max)
	default:
		return rng.Choice(r, d.values)
	}
}

// Summary describes the observations behind a distribution.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	P50    float64
	P95    float64
}

// Summarize computes descriptive statistics of d's observations.
func (d *Distribution) Summarize() Summary {
	s := Summary{Count: len(d.values)}
	if s.Count == 0 {
		return s
	}
	order := make([]int, len(d.values))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return cmp.Compare(d.values[a], d.values[b]) })
	x := make([]float64, len(order))
	var w []float64
	if d.weights != nil {
		w = make([]float64, len(order))
	}
	for i, j := range order {
		x[i] = d.values[j]
		if w != nil {
			w[i] = d.weights[j]
		}
	}
	s.Mean = stat.Mean(x, w)
	if len(x) > 1 {
		s.StdDev = stat.StdDev(x, w)
	}
	s.P50 = stat.Quantile(0.5, stat.Empirical, x, w)
	s.P95 = stat.Quantile(0.95, stat.Empirical, x, w)
	return s
}
