package generators

import (
	"math"
	"slices"

	"pgregory.net/rapid"

	"trafficgen/internal/packet"
)

// Varint draws a value encodable as a QUIC variable-length integer, biased
// towards the class boundaries.
func Varint() *rapid.Generator[uint64] {
	return rapid.OneOf(
		rapid.Uint64Range(0, 63),
		rapid.Uint64Range(60, 70),
		rapid.Uint64Range(16380, 16390),
		rapid.Uint64Range(1<<30-4, 1<<30+4),
		rapid.Uint64Range(0, 1<<62-1),
	)
}

// OversizedVarint draws a value too large for a varint.
func OversizedVarint() *rapid.Generator[uint64] {
	return rapid.Uint64Range(1<<62, math.MaxUint64)
}

// Payload draws a frame payload up to a typical MTU.
func Payload() *rapid.Generator[[]byte] {
	return rapid.SliceOfN(rapid.Byte(), 0, 1400)
}

// Stream draws a timestamp-sorted packet stream tagged kind. Timestamps are
// on a coarse grid so streams often collide when merged.
func Stream(kind string) *rapid.Generator[[]packet.Packet] {
	return rapid.Custom(func(t *rapid.T) []packet.Packet {
		ticks := rapid.SliceOfN(rapid.IntRange(0, 500), 0, 60).Draw(t, "ticks")
		slices.Sort(ticks)
		out := make([]packet.Packet, len(ticks))
		for i, tick := range ticks {
			out[i] = packet.Packet{
				Timestamp: 1000 + float64(tick)*0.001,
				Data:      []byte{byte(i)},
				Kind:      kind,
			}
		}
		return out
	})
}
