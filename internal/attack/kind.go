// Package attack synthesizes DDoS attack traffic. Every attack is a Kind;
// one Generator drives any kind through a single synthesize switch.
package attack

import (
	"strings"

	"trafficgen/internal/arrival"
	"trafficgen/internal/config"
)

// Kind tags an attack taxonomy.
type Kind uint8

const (
	KindSYNFlood Kind = iota
	KindUDPFlood
	KindDNSAmp
	KindNTPAmp
	KindHTTPFlood
	KindICMPFlood
	KindFragmentation
	KindACKFlood
	KindVolumetric
	KindQUICOptimisticACK

	numKinds
)

var kindTags = [numKinds]string{
	KindSYNFlood:          "syn_flood",
	KindUDPFlood:          "udp_flood",
	KindDNSAmp:            "dns_amp",
	KindNTPAmp:            "ntp_amp",
	KindHTTPFlood:         "http_flood",
	KindICMPFlood:         "icmp_flood",
	KindFragmentation:     "fragmentation",
	KindACKFlood:          "ack_flood",
	KindVolumetric:        "volumetric",
	KindQUICOptimisticACK: "quic_optimistic_ack",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindTags[k]
	}
	return "unknown"
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// ParseKind maps a request tag to its Kind.
func ParseKind(tag string) (Kind, error) {
	t := strings.ToLower(strings.TrimSpace(tag))
	for k, name := range kindTags {
		if name == t {
			return Kind(k), nil
		}
	}
	return 0, config.Errorf("type", "unknown attack type %q", tag)
}

// DefaultArrival is the temporal model a kind uses when none is configured.
func (k Kind) DefaultArrival() arrival.Mode {
	switch k {
	case KindDNSAmp, KindNTPAmp, KindHTTPFlood:
		return arrival.Steady
	default:
		return arrival.Burst
	}
}

const (
	ethIPv4Len = 14 + 20
	minTCPLen  = ethIPv4Len + 20
	minUDPLen  = ethIPv4Len + 8
)

// minFrame is a lower bound on the bytes a kind needs to emit anything. For
// fragmentation it covers one whole datagram, for standard QUIC the padded
// first Initial.
func (k Kind) minFrame(mixed bool) int64 {
	switch k {
	case KindSYNFlood, KindACKFlood, KindHTTPFlood, KindVolumetric:
		return minTCPLen
	case KindUDPFlood:
		return minUDPLen + minPayload
	case KindDNSAmp:
		return minUDPLen + 8*minDNSQueryLen
	case KindNTPAmp:
		return minUDPLen + 8 + 400
	case KindICMPFlood:
		return ethIPv4Len + 8 + 56
	case KindFragmentation:
		return 2*(ethIPv4Len+8) + ethIPv4Len + 1
	case KindQUICOptimisticACK:
		if mixed {
			return minUDPLen + 1 + connIDLen + 4 + minAttackPayload
		}
		return minUDPLen + 1200
	}
	return minTCPLen
}
