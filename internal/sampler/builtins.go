package sampler

import (
	"math"
	"math/rand/v2"

	"trafficgen/internal/rng"
)

var (
	packetSizeValues  = []float64{40, 52, 64, 128, 256, 512, 1024, 1460, 1500}
	packetSizeWeights = []float64{0.15, 0.10, 0.12, 0.08, 0.08, 0.10, 0.12, 0.15, 0.10}

	initialTTLs = []int{64, 128, 255}

	builtinPacketSizes = mustWeighted(packetSizeValues, packetSizeWeights)
)

func mustWeighted(values, weights []float64) *Distribution {
	d, err := NewWeighted(values, weights)
	if err != nil {
		panic(err)
	}
	return d
}

// UDPFrameOverhead is the Ethernet, IPv4 and UDP header length of a frame.
const UDPFrameOverhead = 14 + 20 + 8

// UDPPayloadSize draws a UDP payload length. Dataset packet_sizes are whole
// frame lengths, so the header overhead is taken off them; the built-in
// buckets are payload lengths already. The result may be below zero for
// tiny dataset frames and callers floor it.
func UDPPayloadSize(r *rand.Rand, s *Set) int {
	if d, ok := s.Get(PacketSizes); ok {
		return d.SampleInt(r, 0, 65535) - UDPFrameOverhead
	}
	return int(builtinPacketSizes.Sample(r))
}

// TTL draws a TTL from s when it carries a ttls distribution. The built-in
// model picks a common initial TTL and subtracts 5 to 20 hops.
func TTL(r *rand.Rand, s *Set) uint8 {
	if d, ok := s.Get(TTLs); ok {
		return uint8(d.SampleInt(r, 1, 255))
	}
	ttl := rng.Choice(r, initialTTLs) - rng.IntRange(r, 5, 20)
	return uint8(max(ttl, 1))
}

// Port draws a port from the named distribution or picks one from fallback.
func Port(r *rand.Rand, s *Set, name string, fallback []uint16) uint16 {
	if d, ok := s.Get(name); ok {
		return uint16(d.SampleInt(r, 1, 65535))
	}
	return rng.Choice(r, fallback)
}

// BuiltinPacketSizes exposes the default size buckets.
func BuiltinPacketSizes() *Distribution { return builtinPacketSizes }

// SampleInt draws from d and clamps the value to [lo, hi] before converting
// it. NaN maps to lo.
func (d *Distribution) SampleInt(r *rand.Rand, lo, hi int) int {
	v := d.Sample(r)
	if math.IsNaN(v) {
		return lo
	}
	return int(math.Min(math.Max(v, float64(lo)), float64(hi)))
}
