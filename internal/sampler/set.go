package sampler

import (
	"fmt"
	"log"
	"math/rand/v2"
	"slices"
)

// Well-known distribution names shared by dataset extraction and the
// synthesizers.
const (
	PacketSizes       = "packet_sizes"
	TTLs              = "ttls"
	SrcPorts          = "src_ports"
	DstPorts          = "dst_ports"
	InterArrivalTimes = "inter_arrival_times"
)

// Set is a named collection of distributions. Populate it with Add before
// handing it to generators; after that it is only read.
type Set struct {
	dists map[string]*Distribution
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{dists: make(map[string]*Distribution)}
}

// Add fits a distribution of the given mode to values and stores it under
// name, replacing any previous entry.
func (s *Set) Add(name string, values []float64, mode Mode) error {
	d, err := New(values, mode)
	if err != nil {
		return fmt.Errorf("distribution %q: %w", name, err)
	}
	s.dists[name] = d
	return nil
}

// AddDistribution stores a prebuilt distribution.
func (s *Set) AddDistribution(name string, d *Distribution) {
	s.dists[name] = d
}

// Has reports whether name is known.
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.dists[name]
	return ok
}

// Get returns the distribution stored under name.
func (s *Set) Get(name string) (*Distribution, bool) {
	if s == nil {
		return nil, false
	}
	d, ok := s.dists[name]
	return d, ok
}

// Sample draws from the named distribution, or returns def when the name is
// unknown. A nil Set always returns def.
func (s *Set) Sample(r *rand.Rand, name string, def float64) float64 {
	d, ok := s.Get(name)
	if !ok {
		return def
	}
	return d.Sample(r)
}

// Names lists the stored distributions in sorted order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.dists))
	for n := range s.dists {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// LogSummary prints one line per distribution.
func (s *Set) LogSummary() {
	for _, name := range s.Names() {
		d := s.dists[name]
		sum := d.Summarize()
		log.Printf("[sampler] %s: mode=%s n=%d mean=%.4g sd=%.4g p50=%.4g p95=%.4g",
			name, d.Mode(), sum.Count, sum.Mean, sum.StdDev, sum.P50, sum.P95)
	}
}
