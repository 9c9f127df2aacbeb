package packet

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"net/netip"
)

var nonPublic = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("224.0.0.0/3"),
}

// IsPublic reports whether a is a globally routable unicast IPv4 address
// as far as generated traffic is concerned.
func IsPublic(a netip.Addr) bool {
	if !a.Is4() {
		return false
	}
	for _, p := range nonPublic {
		if p.Contains(a) {
			return false
		}
	}
	// Skip network and broadcast-looking host parts.
	last := a.As4()[3]
	return last != 0 && last != 255
}

// RandomPublicIP draws addresses until one is public.
func RandomPublicIP(r *rand.Rand) netip.Addr {
	for {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], r.Uint32())
		if a := netip.AddrFrom4(b); IsPublic(a) {
			return a
		}
	}
}

// HostInPrefix returns the i-th host of p, wrapping within the prefix. For
// a /24 and i < 256 this is base+i.
func HostInPrefix(p netip.Prefix, i int) netip.Addr {
	p = p.Masked()
	base := binary.BigEndian.Uint32(p.Addr().AsSlice())
	size := uint64(1) << (32 - p.Bits())
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], base+uint32(uint64(i)%size))
	return netip.AddrFrom4(b)
}

// RandomHost picks a usable host of p, excluding the network and broadcast
// addresses when the prefix is wide enough to have them.
func RandomHost(r *rand.Rand, p netip.Prefix) netip.Addr {
	p = p.Masked()
	bits := 32 - p.Bits()
	if bits < 2 {
		return HostInPrefix(p, r.IntN(1<<bits))
	}
	return HostInPrefix(p, 1+r.IntN(1<<bits-2))
}

// ParseIPv4Prefix parses an IPv4 CIDR, accepting a bare address as a /32.
func ParseIPv4Prefix(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		if !p.Addr().Is4() {
			return netip.Prefix{}, fmt.Errorf("%s is not an IPv4 prefix", s)
		}
		return p.Masked(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil || !a.Is4() {
		return netip.Prefix{}, fmt.Errorf("%q is not an IPv4 address or prefix", s)
	}
	return netip.PrefixFrom(a, 32), nil
}
