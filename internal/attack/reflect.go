package attack

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"net/netip"

	"trafficgen/internal/packet"
	"trafficgen/internal/rng"
)

// minDNSQueryLen is the packed size of the shortest query in
// packet.QueryDomains.
const minDNSQueryLen = 28

var (
	resolvers = []netip.Addr{
		netip.MustParseAddr("8.8.8.8"),
		netip.MustParseAddr("8.8.4.4"),
		netip.MustParseAddr("1.1.1.1"),
		netip.MustParseAddr("1.0.0.1"),
		netip.MustParseAddr("208.67.222.222"),
		netip.MustParseAddr("208.67.220.220"),
	}
	ntpServers = ntpPool(1, 29)
)

// Resolvers returns the reflector pool used by DNS amplification.
func Resolvers() []netip.Addr { return resolvers }

// NTPServers returns the reflector pool used by NTP amplification.
func NTPServers() []netip.Addr { return ntpServers }

func ntpPool(first, last byte) []netip.Addr {
	out := make([]netip.Addr, 0, int(last-first)+1)
	for i := first; i <= last; i++ {
		out = append(out, netip.AddrFrom4([4]byte{129, 6, 15, i}))
	}
	return out
}

// synthDNSAmp forges a reflected response: a real query packed with
// miekg/dns and repeated 8 to 15 times.
func synthDNSAmp(s *synth, r *rand.Rand) ([]byte, error) {
	ipf := s.from(r, rng.Choice(r, resolvers))
	dport := uint16(rng.IntRange(r, 1024, 65535))
	q, err := packet.DNSQuery(uint16(r.Uint32()), rng.Choice(r, packet.QueryDomains))
	if err != nil {
		return nil, fmt.Errorf("pack dns query: %w", err)
	}
	return s.build.UDP(ipf, 53, dport, bytes.Repeat(q, rng.IntRange(r, 8, 15)))
}

// synthNTPAmp forges a monlist reply: the mode 7 header followed by 400 to
// 550 bytes of entries.
func synthNTPAmp(s *synth, r *rand.Rand) ([]byte, error) {
	ipf := s.from(r, rng.Choice(r, ntpServers))
	dport := uint16(rng.IntRange(r, 1024, 65535))
	payload := append(bytes.Clone(packet.NTPMonlistRequest), rng.Bytes(r, rng.IntRange(r, 400, 550))...)
	return s.build.UDP(ipf, 123, dport, payload)
}
