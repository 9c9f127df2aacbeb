package generators_test

import (
	"context"
	"testing"

	"github.com/quic-go/quic-go/quicvarint"
	"pgregory.net/rapid"

	"trafficgen/internal/attack"
	"trafficgen/internal/benign"
	"trafficgen/internal/config"
	"trafficgen/internal/mixer"
	"trafficgen/internal/packet"
	"trafficgen/internal/quicwire"
	"trafficgen/internal/rng"
	"trafficgen/test/generators"
)

func normalizedAttack(t *rapid.T, a config.Attack) config.Attack {
	cfg := config.Config{Attacks: []config.Attack{a}, Seed: new(uint64)}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize %+v: %v", a, err)
	}
	return cfg.Attacks[0]
}

// Every attack kind honours its packet budget with strictly increasing
// timestamps starting after the configured start time.
func TestProperty_AttackStreamsAreOrderedAndBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := normalizedAttack(t, generators.SmallAttack().Draw(t, "attack"))
		seed := generators.Seed().Draw(t, "seed")
		g, err := attack.New(a, attack.Env{Seed: seed, Target: packetTarget, StartTime: 1000})
		if err != nil {
			t.Fatalf("new %s: %v", a.Type, err)
		}
		var c packet.Collector
		st, err := g.Run(context.Background(), &c)
		if err != nil {
			t.Fatalf("run %s: %v", a.Type, err)
		}
		limit := a.NumPackets
		if a.Type == "fragmentation" {
			limit += 5
		}
		if st.Packets < a.NumPackets || st.Packets > limit {
			t.Fatalf("%s produced %d packets for a budget of %d", a.Type, st.Packets, a.NumPackets)
		}
		prev := 1000.0
		for i, p := range c.Packets {
			if p.Timestamp <= prev {
				t.Fatalf("%s packet %d at %v does not follow %v", a.Type, i, p.Timestamp, prev)
			}
			prev = p.Timestamp
		}
	})
}

// Varints agree byte for byte with quic-go's encoder.
func TestProperty_VarintMatchesQUICGo(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := generators.Varint().Draw(t, "v")
		got, err := quicwire.AppendVarint(nil, v)
		if err != nil {
			t.Fatalf("encode %d: %v", v, err)
		}
		want := quicvarint.Append(nil, v)
		if string(got) != string(want) {
			t.Fatalf("encode %d: got %x want %x", v, got, want)
		}
		back, n, err := quicwire.ReadVarint(got)
		if err != nil || back != v || n != len(got) {
			t.Fatalf("decode %x: %d, %d, %v", got, back, n, err)
		}
	})
}

func TestProperty_OversizedVarintRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := generators.OversizedVarint().Draw(t, "v")
		if _, err := quicwire.AppendVarint(nil, v); err == nil {
			t.Fatalf("%d encoded without error", v)
		}
	})
}

// Merging any number of sorted streams yields every packet once, strictly
// increasing.
func TestProperty_MergeKeepsEveryPacketInOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := generators.Stream("attack").Draw(t, "a")
		b := generators.Stream("benign").Draw(t, "b")
		out := mixer.Merge(a, b)
		if len(out) != len(a)+len(b) {
			t.Fatalf("merged %d packets from %d+%d", len(out), len(a), len(b))
		}
		for i := 1; i < len(out); i++ {
			if out[i].Timestamp <= out[i-1].Timestamp {
				t.Fatalf("packet %d at %v does not follow %v", i, out[i].Timestamp, out[i-1].Timestamp)
			}
		}
	})
}

func TestProperty_MixRespectsRatio(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := generators.Stream("attack").Draw(t, "a")
		b := generators.Stream("benign").Draw(t, "b")
		ratio := generators.AttackRatio().Draw(t, "ratio")
		out, err := mixer.MixWithBenign(a, b, ratio, rng.New(generators.Seed().Draw(t, "seed")))
		if err != nil {
			t.Fatal(err)
		}
		attacks := 0
		for _, p := range out {
			if p.Kind == "attack" {
				attacks++
			}
		}
		if want := int(float64(len(a)) * ratio); attacks != want {
			t.Fatalf("kept %d attack packets, want %d", attacks, want)
		}
	})
}

// Benign captures are ordered regardless of profile, phases or diurnal
// scaling.
func TestProperty_BenignStreamsAreOrdered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := generators.ShortBenign().Draw(t, "benign")
		c, err := benign.NewComposer(cfg, benign.Options{Seed: generators.Seed().Draw(t, "seed"), StartTime: 1000})
		if err != nil {
			t.Fatal(err)
		}
		var sink packet.Collector
		if _, err := c.Run(context.Background(), &sink); err != nil {
			t.Fatal(err)
		}
		for i := 1; i < len(sink.Packets); i++ {
			if sink.Packets[i].Timestamp <= sink.Packets[i-1].Timestamp {
				t.Fatalf("packet %d at %v does not follow %v", i, sink.Packets[i].Timestamp, sink.Packets[i-1].Timestamp)
			}
		}
	})
}

func TestProperty_DiurnalMultiplierBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hour := generators.Hour().Draw(t, "hour")
		m := benign.DiurnalMultiplier(rng.New(generators.Seed().Draw(t, "seed")), hour)
		if m < 0.2*0.7*0.85-1e-12 || m > 1.15+1e-12 {
			t.Fatalf("multiplier %v at hour %v out of range", m, hour)
		}
	})
}
