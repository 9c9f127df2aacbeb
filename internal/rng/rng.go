// Package rng owns every source of randomness used during generation.
//
// A run is keyed by a single seed. Components never share a stream: each
// one derives its own from (seed, label, index) so the order in which
// unrelated components consume randomness cannot change their output.
package rng

import (
	"encoding/binary"
	"math/rand/v2"

	"golang.org/x/crypto/blake2b"
)

// New returns the root stream of a run.
func New(seed uint64) *rand.Rand {
	return Derive(seed, "root", 0)
}

// Derive returns the stream identified by label and index under seed.
// Identical arguments always yield identical streams.
func Derive(seed uint64, label string, index uint64) *rand.Rand {
	buf := make([]byte, 16, 16+len(label))
	binary.LittleEndian.PutUint64(buf[0:8], seed)
	binary.LittleEndian.PutUint64(buf[8:16], index)
	buf = append(buf, label...)
	sum := blake2b.Sum256(buf)
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
	))
}

// SubSeed derives a child seed, used when a component needs to hand a
// seed (not a stream) to something it constructs.
func SubSeed(seed uint64, label string, index uint64) uint64 {
	return Derive(seed, label, index).Uint64()
}

// IntRange returns a uniform integer in [lo, hi].
func IntRange(r *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}

// Uniform returns a uniform float in [lo, hi).
func Uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// Chance reports true with probability p.
func Chance(r *rand.Rand, p float64) bool {
	return r.Float64() < p
}

// Choice picks one element uniformly. items must not be empty.
func Choice[T any](r *rand.Rand, items []T) T {
	return items[r.IntN(len(items))]
}

// Shuffle permutes items in place.
func Shuffle[T any](r *rand.Rand, items []T) {
	r.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

// WeightedIndex picks an index with probability proportional to its weight.
// Non-positive weights are never picked unless every weight is non-positive,
// in which case the choice is uniform.
func WeightedIndex(r *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return r.IntN(len(weights))
	}
	x := r.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if x < w {
			return i
		}
		x -= w
	}
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return len(weights) - 1
}

// Bytes returns n pseudo-random bytes.
func Bytes(r *rand.Rand, n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	out := make([]byte, n)
	Fill(r, out)
	return out
}

// Fill overwrites b with pseudo-random bytes.
func Fill(r *rand.Rand, b []byte) {
	var word [8]byte
	for i := 0; i < len(b); i += 8 {
		binary.LittleEndian.PutUint64(word[:], r.Uint64())
		copy(b[i:], word[:])
	}
}
