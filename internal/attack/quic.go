package attack

import (
	"fmt"
	"math/rand/v2"

	"trafficgen/internal/config"
	"trafficgen/internal/packet"
	"trafficgen/internal/quicwire"
	"trafficgen/internal/rng"
)

const (
	connIDLen = 8
	// minAttackPayload is the frame area every Attack-phase packet is
	// padded to.
	minAttackPayload = 50
	// initialPackets is how many Initial packets an attacker sends before
	// switching to short headers.
	initialPackets = 3

	attackerPortBase  = 50000
	attackerPortRange = 15000
)

// Phase is the state of an attacker connection.
type Phase uint8

const (
	PhaseInitial Phase = iota
	PhaseAttack
)

func (p Phase) String() string {
	if p == PhaseAttack {
		return "attack"
	}
	return "initial"
}

// Tier is the aggressiveness of an attacker in a mixed botnet.
type Tier struct {
	Name          string
	JumpFactor    int
	AcksPerPacket int
}

// Tiers lists the mixed-mode aggressiveness levels.
var Tiers = []Tier{
	{Name: "low", JumpFactor: 10, AcksPerPacket: 1},
	{Name: "medium", JumpFactor: 50, AcksPerPacket: 2},
	{Name: "high", JumpFactor: 100, AcksPerPacket: 3},
	{Name: "extreme", JumpFactor: 500, AcksPerPacket: 5},
}

type attacker struct {
	flow packet.Flow
	dcid []byte
	scid []byte
	tier Tier

	phase Phase
	pn    uint32
	// fake is the largest server packet number claimed so far. It never
	// corresponds to a packet the server sent.
	fake uint64
}

type quicState struct {
	attackers []*attacker
	mixed     bool
	// jumpSpan is the upper bound of a jump as a multiple of the tier
	// factor.
	jumpSpan int
	build    *quicwire.Builder
}

func newQUICState(cfg config.Attack, seed uint64, label string) (*quicState, error) {
	n := cfg.NumAttackers
	if n == 0 {
		n = 500
	}
	rangeStr := cfg.AttackRange
	if rangeStr == "" {
		rangeStr = "203.0.113.0/24"
	}
	prefix, err := packet.ParseIPv4Prefix(rangeStr)
	if err != nil {
		return nil, config.Errorf("attack_range", "%v", err)
	}
	port := cfg.ServerPort
	if port == 0 {
		port = 443
	}
	base := Tier{Name: "standard", JumpFactor: cfg.JumpFactor, AcksPerPacket: cfg.AcksPerPacket}
	if base.JumpFactor == 0 {
		base.JumpFactor = 100
	}
	if base.AcksPerPacket == 0 {
		base.AcksPerPacket = 3
	}

	st := &quicState{
		mixed:    cfg.Mixed,
		jumpSpan: 10,
		build:    quicwire.NewBuilder(quicwire.MinInitialSize),
	}
	if cfg.Mixed {
		st.jumpSpan = 5
	}
	for i := 0; i < n; i++ {
		ar := rng.Derive(seed, label+".attacker", uint64(i))
		a := &attacker{
			flow: packet.Flow{
				SrcIP:   packet.HostInPrefix(prefix, i),
				SrcPort: uint16(attackerPortBase + i%attackerPortRange),
				DstPort: uint16(port),
			},
			dcid: rng.Bytes(ar, connIDLen),
			scid: rng.Bytes(ar, connIDLen),
			tier: base,
		}
		if cfg.Mixed {
			a.tier = rng.Choice(ar, Tiers)
			a.phase = PhaseAttack
		}
		st.attackers = append(st.attackers, a)
	}
	return st, nil
}

// next picks an attacker and emits its next packet.
func (q *quicState) next(s *synth, r *rand.Rand) ([]byte, error) {
	a := rng.Choice(r, q.attackers)
	var (
		payload []byte
		err     error
	)
	if a.phase == PhaseInitial {
		payload, err = q.initial(a, r)
	} else {
		payload, err = q.optimistic(a, r)
	}
	if err != nil {
		return nil, fmt.Errorf("attacker %v: %w", a.flow.SrcIP, err)
	}
	ipf := packet.IPFields{Src: a.flow.SrcIP, Dst: s.target}
	return s.build.UDP(ipf, a.flow.SrcPort, a.flow.DstPort, payload)
}

// initial builds a padded Initial packet that already acknowledges 50 to
// 200 server packets.
func (q *quicState) initial(a *attacker, r *rand.Rand) ([]byte, error) {
	a.fake += uint64(rng.IntRange(r, 50, 200))
	q.build.Reset()
	q.build.LongHeader(&quicwire.LongHeader{
		Type:         quicwire.PacketInitial,
		Version:      quicwire.Version1,
		DCID:         a.dcid,
		SCID:         a.scid,
		PacketNumber: a.pn,
	})
	q.build.Frame(quicwire.AckFrame{LargestAcked: a.fake, Delay: 1, FirstRange: a.fake})
	q.build.PadTo(quicwire.MinInitialSize)
	a.pn++
	if a.pn >= initialPackets {
		a.phase = PhaseAttack
	}
	return q.build.Bytes()
}

// optimistic builds a short-header packet of ACK frames, each claiming a
// largest_acknowledged further ahead.
func (q *quicState) optimistic(a *attacker, r *rand.Rand) ([]byte, error) {
	maxDelay, lo, hi := 5, 100, 500
	if q.mixed {
		maxDelay, lo, hi = 10, 50, 300
	}
	q.build.Reset()
	hdr := &quicwire.ShortHeader{DCID: a.dcid, PacketNumber: a.pn}
	q.build.ShortHeader(hdr)
	for range a.tier.AcksPerPacket {
		a.fake += uint64(rng.IntRange(r, a.tier.JumpFactor, a.tier.JumpFactor*q.jumpSpan))
		q.build.Frame(quicwire.AckFrame{
			LargestAcked: a.fake,
			Delay:        uint64(rng.IntRange(r, 0, maxDelay)),
			FirstRange:   min(a.fake, uint64(rng.IntRange(r, lo, hi))),
		})
	}
	q.build.PadTo(hdr.Len() + minAttackPayload)
	a.pn++
	return q.build.Bytes()
}
