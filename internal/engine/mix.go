package engine

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"trafficgen/internal/capture"
	"trafficgen/internal/metadata"
	"trafficgen/internal/mixer"
	"trafficgen/internal/packet"
	"trafficgen/internal/rng"
)

// MixRequest describes one attack/benign merge.
type MixRequest struct {
	Attack  string
	Benign  string
	Output  string
	Ratio   float64
	Seed    uint64
	Index   int
	Capture capture.Options
}

// MixFiles samples r.Ratio of the attack capture, adds the matching share
// of benign packets and writes the merged, time-ordered result.
func MixFiles(ctx context.Context, r MixRequest) (metadata.Stats, error) {
	st := metadata.Stats{Kind: "mixed", Output: r.Output}
	attackPkts, err := capture.ReadAll(r.Attack, "attack")
	if err != nil {
		return st, err
	}
	benignPkts, err := capture.ReadAll(r.Benign, "benign")
	if err != nil {
		return st, err
	}
	return mixPackets(ctx, r, attackPkts, benignPkts)
}

func mixPackets(ctx context.Context, r MixRequest, attackPkts, benignPkts []packet.Packet) (metadata.Stats, error) {
	st := metadata.Stats{Kind: "mixed", Output: r.Output}
	mixed, err := mixer.MixWithBenign(attackPkts, benignPkts, r.Ratio, rng.Derive(r.Seed, "mix", uint64(r.Index)))
	if err != nil {
		return st, err
	}
	log.Printf("[mixer] %s: %d attack + %d benign available, %d selected", filepath.Base(r.Output), len(attackPkts), len(benignPkts), len(mixed))

	w, err := capture.Create(r.Output, r.Capture)
	if err != nil {
		return st, err
	}
	for _, p := range mixed {
		if err := ctx.Err(); err != nil {
			w.Close()
			return st, err
		}
		if err := w.WritePacket(p); err != nil {
			w.Close()
			return st, err
		}
		if p.Kind == "attack" {
			st.Components = addOne(st.Components, "attack")
		} else {
			st.Components = addOne(st.Components, "benign")
		}
		if st.Packets == 0 {
			st.FirstTime = p.Timestamp
		}
		st.LastTime = p.Timestamp
		st.Packets++
		st.Bytes += int64(len(p.Data))
	}
	if err := w.Close(); err != nil {
		return st, fmt.Errorf("close %s: %w", r.Output, err)
	}
	if st.Packets > 1 {
		st.Duration = st.LastTime - st.FirstTime
	}
	return st, nil
}

func addOne(m map[string]int, k string) map[string]int {
	if m == nil {
		m = make(map[string]int)
	}
	m[k]++
	return m
}

// mixAll merges every attack capture of the run with the benign capture at
// benignPath, writing "<name>_mixed.pcap".
func (e *Engine) mixAll(ctx context.Context, names []string, benignPath string, sidecar *metadata.Sidecar) ([]metadata.Stats, error) {
	benignPkts, err := capture.ReadAll(benignPath, "benign")
	if err != nil {
		return nil, err
	}
	var out []metadata.Stats
	for i, name := range names {
		attackPkts, err := capture.ReadAll(e.capturePath(name), "attack")
		if err != nil {
			return out, err
		}
		req := MixRequest{
			Output:  e.capturePath(name + "_mixed"),
			Ratio:   e.cfg.Mix.AttackRatio,
			Seed:    e.cfg.SeedValue(),
			Index:   i,
			Capture: e.captureOptions(),
		}
		st, err := mixPackets(ctx, req, attackPkts, benignPkts)
		out = append(out, st)
		if err != nil {
			return out, err
		}
		sidecar.Record(name+"_mixed", st)
	}
	return out, nil
}
