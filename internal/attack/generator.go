package attack

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"net"
	"net/netip"

	"trafficgen/internal/arrival"
	"trafficgen/internal/config"
	"trafficgen/internal/packet"
	"trafficgen/internal/rng"
	"trafficgen/internal/sampler"
)

// Env carries the run-wide inputs of an attack request.
type Env struct {
	Seed      uint64
	Index     int // position of the request in the run
	Target    netip.Addr
	StartTime float64
	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	Sampler   *sampler.Set
}

// Stats summarizes one run of a Generator.
type Stats struct {
	Kind       string         `json:"kind"`
	Packets    int            `json:"packets"`
	Bytes      int64          `json:"bytes"`
	FirstTime  float64        `json:"first_timestamp"`
	LastTime   float64        `json:"last_timestamp"`
	Components map[string]int `json:"components,omitempty"`
}

// Duration is the simulated time spanned by the packets.
func (s Stats) Duration() float64 {
	if s.Packets < 2 {
		return 0
	}
	return s.LastTime - s.FirstTime
}

// synth holds what every per-kind synthesize function reads. Nothing in it
// changes after construction except the builder's scratch buffer.
type synth struct {
	build   *packet.Builder
	sampler *sampler.Set
	target  netip.Addr

	botnet      *botnet
	httpVariant HTTPVariant
}

// Generator produces one attack request. It is single-use and not safe for
// concurrent use.
type Generator struct {
	kind    Kind
	cfg     config.Attack
	env     Env
	synth   *synth
	r       *rand.Rand
	arrival *arrival.Generator

	quic *quicState
	vol  *volumetricState
}

// New validates cfg and prepares the per-kind state. All randomness is
// derived from env.Seed and env.Index.
func New(cfg config.Attack, env Env) (*Generator, error) {
	kind, err := ParseKind(cfg.Type)
	if err != nil {
		return nil, err
	}
	if !env.Target.Is4() {
		return nil, config.Errorf("target_ip", "must be an IPv4 address, got %v", env.Target)
	}
	if cfg.NumPackets < 0 || cfg.MaxBytes < 0 {
		return nil, config.Errorf("budget", "num_packets and max_bytes must be >= 0")
	}
	if cfg.NumPackets == 0 && cfg.MaxBytes == 0 {
		return nil, config.Errorf("budget", "%s: no packet or byte budget", kind)
	}
	if cfg.MaxBytes > 0 && cfg.MaxBytes < kind.minFrame(cfg.Mixed) {
		return nil, config.Errorf("max_bytes", "%s cannot produce any packets within %d bytes (needs at least %d)",
			kind, cfg.MaxBytes, kind.minFrame(cfg.Mixed))
	}

	mode := kind.DefaultArrival()
	if cfg.Arrival != "" {
		if mode, err = arrival.ParseMode(cfg.Arrival); err != nil {
			return nil, err
		}
	}
	variant, err := ParseHTTPVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	if variant != HTTPDefault && kind != KindHTTPFlood {
		return nil, config.Errorf("variant", "only applies to http_flood, not %s", kind)
	}
	label := fmt.Sprintf("attack.%d.%s", env.Index, kind)
	pps := cfg.PPS * variant.RateMultiplier()
	ts, err := arrival.New(arrival.Params{Start: env.StartTime, PPS: pps, Mode: mode},
		rng.Derive(env.Seed, label+".arrival", 0))
	if err != nil {
		return nil, err
	}

	g := &Generator{
		kind: kind,
		cfg:  cfg,
		env:  env,
		synth: &synth{
			build:       packet.NewBuilder(env.SrcMAC, env.DstMAC),
			sampler:     env.Sampler,
			target:      env.Target,
			httpVariant: variant,
		},
		r:       rng.Derive(env.Seed, label, 0),
		arrival: ts,
	}

	if cfg.AttackRange != "" && kind.supportsBotnet() {
		if g.synth.botnet, err = newBotnet(cfg); err != nil {
			return nil, err
		}
	}

	switch kind {
	case KindQUICOptimisticACK:
		if g.quic, err = newQUICState(cfg, env.Seed, label); err != nil {
			return nil, err
		}
	case KindVolumetric:
		if g.vol, err = newVolumetricState(cfg, env.Seed, label); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Kind reports what g generates.
func (g *Generator) Kind() Kind { return g.kind }

// Run synthesizes packets into sink until the packet or byte budget is
// spent or ctx is done. Packets already written stay written on error.
func (g *Generator) Run(ctx context.Context, sink packet.Sink) (Stats, error) {
	st := Stats{Kind: g.kind.String()}
	if g.kind == KindVolumetric {
		st.Components = make(map[string]int)
	}
	progressEvery := max(g.cfg.NumPackets/10, 1)
	nextProgress := progressEvery

	for g.cfg.NumPackets == 0 || st.Packets < g.cfg.NumPackets {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		frames, component, err := g.synthesize()
		if err != nil {
			return st, fmt.Errorf("%s: synthesize packet %d: %w", g.kind, st.Packets, err)
		}
		if g.cfg.MaxBytes > 0 && st.Bytes+frameBytes(frames) > g.cfg.MaxBytes {
			break
		}
		for _, f := range frames {
			ts := g.arrival.Next()
			if err := sink.WritePacket(packet.Packet{Timestamp: ts, Data: f, Kind: st.Kind}); err != nil {
				return st, fmt.Errorf("%s: write packet: %w", g.kind, err)
			}
			if st.Packets == 0 {
				st.FirstTime = ts
			}
			st.LastTime = ts
			st.Packets++
			st.Bytes += int64(len(f))
		}
		if component != "" {
			st.Components[component]++
		}
		if g.cfg.NumPackets > 0 && st.Packets >= nextProgress {
			log.Printf("[attack] %s: %d/%d packets", g.kind, st.Packets, g.cfg.NumPackets)
			nextProgress += progressEvery
		}
	}
	return st, nil
}

// synthesize emits the next unit of traffic: one frame for most kinds, a
// whole fragment train for fragmentation. component names the volumetric
// sub-attack, if any.
func (g *Generator) synthesize() (frames [][]byte, component string, err error) {
	switch g.kind {
	case KindSYNFlood:
		return one(synthSYN(g.synth, g.r))
	case KindUDPFlood:
		return one(synthUDP(g.synth, g.r))
	case KindDNSAmp:
		return one(synthDNSAmp(g.synth, g.r))
	case KindNTPAmp:
		return one(synthNTPAmp(g.synth, g.r))
	case KindHTTPFlood:
		return one(synthHTTP(g.synth, g.r))
	case KindICMPFlood:
		return one(synthICMP(g.synth, g.r))
	case KindFragmentation:
		frames, err := synthFragments(g.synth, g.r)
		return frames, "", err
	case KindACKFlood:
		return one(synthACK(g.synth, g.r))
	case KindVolumetric:
		return g.vol.next(g.synth)
	case KindQUICOptimisticACK:
		return one(g.quic.next(g.synth, g.r))
	default:
		return nil, "", fmt.Errorf("unhandled kind %d", g.kind)
	}
}

func one(frame []byte, err error) ([][]byte, string, error) {
	if err != nil {
		return nil, "", err
	}
	return [][]byte{frame}, "", nil
}

func frameBytes(frames [][]byte) int64 {
	var n int64
	for _, f := range frames {
		n += int64(len(f))
	}
	return n
}

// estimatedFrameSize is the per-packet size assumed by dry runs.
const estimatedFrameSize = 1000

// Estimate describes what a request would produce without synthesizing it.
type Estimate struct {
	Kind     string  `json:"kind"`
	Packets  int     `json:"packets"`
	Bytes    int64   `json:"bytes"`
	Duration float64 `json:"duration_seconds"`
}

// EstimateRequest sizes cfg for a dry run.
func EstimateRequest(cfg config.Attack) (Estimate, error) {
	kind, err := ParseKind(cfg.Type)
	if err != nil {
		return Estimate{}, err
	}
	mode := kind.DefaultArrival()
	if cfg.Arrival != "" {
		if mode, err = arrival.ParseMode(cfg.Arrival); err != nil {
			return Estimate{}, err
		}
	}
	e := Estimate{Kind: kind.String(), Packets: cfg.NumPackets}
	if cfg.MaxBytes > 0 && (e.Packets == 0 || int64(e.Packets)*estimatedFrameSize > cfg.MaxBytes) {
		e.Packets = int(cfg.MaxBytes / estimatedFrameSize)
	}
	e.Bytes = int64(e.Packets) * estimatedFrameSize
	variant, err := ParseHTTPVariant(cfg.Variant)
	if err != nil {
		return Estimate{}, err
	}
	e.Duration = float64(e.Packets) * arrival.MeanInterval(mode, cfg.PPS*variant.RateMultiplier())
	return e, nil
}
