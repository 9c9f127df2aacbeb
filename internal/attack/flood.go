package attack

import (
	"math/rand/v2"
	"net/netip"

	"trafficgen/internal/packet"
	"trafficgen/internal/rng"
	"trafficgen/internal/sampler"
)

// minPayload is the smallest UDP flood payload.
const minPayload = 20

var (
	synPorts = []uint16{80, 443, 8080, 8443}
	udpPorts = []uint16{53, 123, 161, 1900}
	ackPorts = []uint16{80, 443, 22, 21}

	mssValues  = []uint16{1460, 1380, 536}
	synWindows = []uint16{5840, 8192, 16384, 65535}
	// Zero is three times as likely as any other window.
	ackWindows = []uint16{0, 0, 0, 512, 1024, 5840}

	icmpTypes = []uint8{8, 0, 3, 11}
)

// spoofed returns the IPv4 header of a packet from a random public source,
// or from the next bot when the request has a botnet.
func (s *synth) spoofed(r *rand.Rand) packet.IPFields {
	if s.botnet != nil {
		return s.from(r, s.botnet.next())
	}
	return s.from(r, packet.RandomPublicIP(r))
}

func (s *synth) from(r *rand.Rand, src netip.Addr) packet.IPFields {
	return packet.IPFields{
		Src: src,
		Dst: s.target,
		TTL: sampler.TTL(r, s.sampler),
		ID:  uint16(r.Uint32()),
	}
}

// ephemeralPort draws a source port from the dataset when it has one.
func (s *synth) ephemeralPort(r *rand.Rand, lo, hi int) uint16 {
	if d, ok := s.sampler.Get(sampler.SrcPorts); ok {
		return uint16(d.SampleInt(r, 1, 65535))
	}
	return uint16(rng.IntRange(r, lo, hi))
}

func synthSYN(s *synth, r *rand.Rand) ([]byte, error) {
	ipf := s.spoofed(r)
	t := packet.TCPFields{
		SrcPort: s.ephemeralPort(r, 1024, 65535),
		DstPort: rng.Choice(r, synPorts),
		Seq:     r.Uint32(),
		SYN:     true,
		Window:  rng.Choice(r, synWindows),
	}
	var mss uint16
	wscale := -1
	if rng.Chance(r, 0.8) {
		mss = rng.Choice(r, mssValues)
	}
	if rng.Chance(r, 0.6) {
		wscale = rng.IntRange(r, 0, 8)
	}
	t.Options = packet.TCPOptions(mss, wscale)
	return s.build.TCP(ipf, t, nil)
}

func synthUDP(s *synth, r *rand.Rand) ([]byte, error) {
	ipf := s.spoofed(r)
	sport := s.ephemeralPort(r, 1024, 65535)
	dport := rng.Choice(r, udpPorts)
	size := packet.LongTail(r, max(sampler.UDPPayloadSize(r, s.sampler), minPayload))
	return s.build.UDP(ipf, sport, dport, rng.Bytes(r, min(size, maxUDPPayload)))
}

// maxUDPPayload keeps a long-tail payload inside one IPv4 datagram.
const maxUDPPayload = 65535 - 20 - 8

func synthICMP(s *synth, r *rand.Rand) ([]byte, error) {
	ipf := s.spoofed(r)
	typ := rng.Choice(r, icmpTypes)
	id := uint16(r.Uint32())
	payload := rng.Bytes(r, rng.IntRange(r, 56, 1400))
	return s.build.ICMP(ipf, typ, 0, id, 0, payload)
}

func synthACK(s *synth, r *rand.Rand) ([]byte, error) {
	ipf := s.spoofed(r)
	t := packet.TCPFields{
		SrcPort: s.ephemeralPort(r, 1024, 65535),
		DstPort: rng.Choice(r, ackPorts),
		Seq:     r.Uint32(),
		Ack:     r.Uint32(),
		ACK:     true,
		Window:  rng.Choice(r, ackWindows),
	}
	return s.build.TCP(ipf, t, nil)
}
