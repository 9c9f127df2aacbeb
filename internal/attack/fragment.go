package attack

import (
	"math/rand/v2"

	"github.com/gopacket/gopacket/layers"

	"trafficgen/internal/rng"
)

// synthFragments splits one UDP datagram into 3 to 6 IPv4 fragments that
// share an identification value. Every fragment but the last carries
// fragSize bytes and sets MF; offsets advance by fragSize/8.
func synthFragments(s *synth, r *rand.Rand) ([][]byte, error) {
	ipf := s.spoofed(r)
	ipf.Protocol = layers.IPProtocolUDP
	count := rng.IntRange(r, 3, 6)
	fragSize := 8 * rng.IntRange(r, 1, 8)
	lastLen := rng.IntRange(r, 1, fragSize)
	total := (count-1)*fragSize + lastLen

	sport := uint16(rng.IntRange(r, 1024, 65535))
	dport := uint16(rng.IntRange(r, 1, 65535))
	datagram, err := s.build.UDPDatagram(ipf, sport, dport, rng.Bytes(r, total-8))
	if err != nil {
		return nil, err
	}

	frames := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		f := ipf
		lo := i * fragSize
		hi := lo + fragSize
		if i == count-1 {
			hi = total
		} else {
			f.Flags = layers.IPv4MoreFragments
		}
		f.FragOffset = uint16(lo / 8)
		frame, err := s.build.RawIP(f, datagram[lo:hi])
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
