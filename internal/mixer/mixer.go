// Package mixer interleaves packet streams into one timeline.
package mixer

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"slices"

	"trafficgen/internal/config"
	"trafficgen/internal/packet"
)

// Resolution is the smallest gap Merge inserts between packets that would
// otherwise share a timestamp. It matches nanosecond capture timestamps.
const Resolution = 1e-9

type cursor struct {
	stream int
	pos    int
}

// mergeHeap orders stream heads by timestamp, then stream index.
type mergeHeap struct {
	streams [][]packet.Packet
	heads   []cursor
}

func (h *mergeHeap) Len() int { return len(h.heads) }

func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.heads[i], h.heads[j]
	ta, tb := h.streams[a.stream][a.pos].Timestamp, h.streams[b.stream][b.pos].Timestamp
	if ta != tb {
		return ta < tb
	}
	return a.stream < b.stream
}

func (h *mergeHeap) Swap(i, j int) { h.heads[i], h.heads[j] = h.heads[j], h.heads[i] }

func (h *mergeHeap) Push(x any) { h.heads = append(h.heads, x.(cursor)) }

func (h *mergeHeap) Pop() any {
	old := h.heads
	c := old[len(old)-1]
	h.heads = old[:len(old)-1]
	return c
}

// Merge interleaves streams that are each sorted by timestamp. Equal
// timestamps keep stream order, and a packet that would not advance the
// clock is moved Resolution (or one ULP, if larger) past its predecessor,
// so the result is strictly increasing. Input slices are not modified.
func Merge(streams ...[]packet.Packet) []packet.Packet {
	h := &mergeHeap{streams: streams}
	total := 0
	for i, s := range streams {
		total += len(s)
		if len(s) > 0 {
			h.heads = append(h.heads, cursor{stream: i})
		}
	}
	heap.Init(h)

	out := make([]packet.Packet, 0, total)
	for h.Len() > 0 {
		c := h.heads[0]
		p := streams[c.stream][c.pos]
		if n := len(out); n > 0 && p.Timestamp <= out[n-1].Timestamp {
			p.Timestamp = after(out[n-1].Timestamp)
		}
		out = append(out, p)
		if c.pos+1 < len(streams[c.stream]) {
			h.heads[0].pos++
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return out
}

// after is the earliest timestamp Merge may place after t.
func after(t float64) float64 {
	return math.Max(t+Resolution, math.Nextafter(t, math.Inf(1)))
}

// MixWithBenign keeps int(len(attack)·ratio) attack packets and enough
// benign packets that attack traffic makes up ratio of the result, both
// sampled without replacement, then merges them by timestamp.
func MixWithBenign(attack, benign []packet.Packet, ratio float64, r *rand.Rand) ([]packet.Packet, error) {
	if !(ratio > 0 && ratio <= 1) {
		return nil, config.Errorf("mix.attack_ratio", "must be in (0, 1], got %v", ratio)
	}
	numAttack := int(float64(len(attack)) * ratio)
	numBenign := int(float64(numAttack) * (1 - ratio) / ratio)
	a := sample(r, attack, numAttack)
	b := sample(r, benign, numBenign)
	return Merge(a, b), nil
}

// sample picks n packets without replacement and returns them in their
// original order.
func sample(r *rand.Rand, pkts []packet.Packet, n int) []packet.Packet {
	n = min(n, len(pkts))
	idx := make([]int, len(pkts))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + r.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	chosen := idx[:n]
	slices.Sort(chosen)
	out := make([]packet.Packet, n)
	for i, k := range chosen {
		out[i] = pkts[k]
	}
	slices.SortStableFunc(out, func(x, y packet.Packet) int {
		switch {
		case x.Timestamp < y.Timestamp:
			return -1
		case x.Timestamp > y.Timestamp:
			return 1
		}
		return 0
	})
	return out
}
