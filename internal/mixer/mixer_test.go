package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"trafficgen/internal/config"
	"trafficgen/internal/packet"
	"trafficgen/internal/rng"
)

func stream(kind string, ts ...float64) []packet.Packet {
	out := make([]packet.Packet, len(ts))
	for i, t := range ts {
		out[i] = packet.Packet{Timestamp: t, Kind: kind, Data: []byte{byte(i)}}
	}
	return out
}

func TestMergeOrdersByTimestamp(t *testing.T) {
	a := stream("a", 1, 3, 5)
	b := stream("b", 2, 4, 6)
	out := Merge(a, b)
	require.Len(t, out, 6)
	for i, p := range out {
		assert.Equal(t, float64(i+1), p.Timestamp)
	}
	assert.Equal(t, "a", out[0].Kind)
	assert.Equal(t, "b", out[1].Kind)
}

func TestMergeSeparatesTies(t *testing.T) {
	a := stream("a", 1, 2)
	b := stream("b", 1, 2)
	out := Merge(a, b)
	require.Len(t, out, 4)
	assert.Equal(t, []string{"a", "b", "a", "b"}, []string{out[0].Kind, out[1].Kind, out[2].Kind, out[3].Kind})
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i].Timestamp, out[i-1].Timestamp)
	}
	assert.Equal(t, 1.0, a[0].Timestamp, "inputs are untouched")
	assert.Equal(t, 1.0, b[0].Timestamp)
}

func TestMergeEmpty(t *testing.T) {
	assert.Empty(t, Merge())
	assert.Len(t, Merge(nil, stream("a", 1)), 1)
}

func TestProperty_MergeIsStrictlyIncreasing(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(rt, "streams")
		var streams [][]packet.Packet
		total := 0
		for i := 0; i < n; i++ {
			ts := rapid.SliceOf(rapid.Float64Range(0, 100)).Draw(rt, "ts")
			s := make([]packet.Packet, len(ts))
			acc := 1000.0
			for j, d := range ts {
				acc += d
				s[j] = packet.Packet{Timestamp: acc}
			}
			streams = append(streams, s)
			total += len(s)
		}
		out := Merge(streams...)
		if len(out) != total {
			rt.Fatalf("merged %d packets, want %d", len(out), total)
		}
		for i := 1; i < len(out); i++ {
			if out[i].Timestamp <= out[i-1].Timestamp {
				rt.Fatalf("timestamp %d (%v) does not advance past %v", i, out[i].Timestamp, out[i-1].Timestamp)
			}
		}
	})
}

func TestMixWithBenign(t *testing.T) {
	var attackTs, benignTs []float64
	for i := 0; i < 1000; i++ {
		attackTs = append(attackTs, 1000+float64(i)*0.001)
		benignTs = append(benignTs, 1000.0005+float64(i)*0.001)
	}
	attack, benign := stream("attack", attackTs...), stream("benign", benignTs...)

	out, err := MixWithBenign(attack, benign, 0.3, rng.New(1))
	require.NoError(t, err)
	counts := map[string]int{}
	for i, p := range out {
		counts[p.Kind]++
		if i > 0 {
			require.Greater(t, p.Timestamp, out[i-1].Timestamp)
		}
	}
	assert.Equal(t, 300, counts["attack"])
	assert.Equal(t, 700, counts["benign"])

	again, err := MixWithBenign(attack, benign, 0.3, rng.New(1))
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestMixWithBenignShortBenign(t *testing.T) {
	attack := stream("attack", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	benign := stream("benign", 1.5, 2.5)
	out, err := MixWithBenign(attack, benign, 0.5, rng.New(2))
	require.NoError(t, err)
	assert.Len(t, out, 7)
}

func TestMixWithBenignRejectsRatio(t *testing.T) {
	for _, r := range []float64{0, -0.1, 1.5} {
		_, err := MixWithBenign(nil, nil, r, rng.New(1))
		assert.ErrorIs(t, err, config.ErrInvalid)
	}
}
