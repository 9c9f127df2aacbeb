package attack

import (
	"math/rand/v2"
	"strings"

	"trafficgen/internal/config"
	"trafficgen/internal/packet"
	"trafficgen/internal/rng"
)

// HTTPVariant selects the request pattern of an http_flood.
type HTTPVariant uint8

const (
	// HTTPDefault mixes keep-alive GETs and form POSTs across web ports.
	HTTPDefault HTTPVariant = iota
	// HTTPGetFlood repeats GET / with bot agents.
	HTTPGetFlood
	// HTTPPostFlood posts JSON credentials to login endpoints.
	HTTPPostFlood
	// HTTPRandomGet spreads GETs over scanner paths and random URLs.
	HTTPRandomGet
	// HTTPSlowloris sends header blocks that are never finished.
	HTTPSlowloris
	// HTTPMixed alternates GET and POST over a small set of paths.
	HTTPMixed
)

var httpVariantTags = map[HTTPVariant]string{
	HTTPDefault:   "default",
	HTTPGetFlood:  "get",
	HTTPPostFlood: "post",
	HTTPRandomGet: "random_get",
	HTTPSlowloris: "slowloris",
	HTTPMixed:     "mixed",
}

func (v HTTPVariant) String() string {
	if s, ok := httpVariantTags[v]; ok {
		return s
	}
	return "unknown"
}

// ParseHTTPVariant maps a variant tag to an HTTPVariant. The empty string is
// the default pattern; the *_flood spellings are accepted as aliases.
func ParseHTTPVariant(s string) (HTTPVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return HTTPDefault, nil
	case "get", "get_flood":
		return HTTPGetFlood, nil
	case "post", "post_flood":
		return HTTPPostFlood, nil
	case "random_get":
		return HTTPRandomGet, nil
	case "slowloris":
		return HTTPSlowloris, nil
	case "mixed":
		return HTTPMixed, nil
	}
	return HTTPDefault, config.Errorf("variant", "unknown http_flood variant %q", s)
}

// RateMultiplier scales the configured pps: slowloris trickles, random and
// mixed floods push harder.
func (v HTTPVariant) RateMultiplier() float64 {
	switch v {
	case HTTPPostFlood:
		return 0.8
	case HTTPRandomGet:
		return 1.2
	case HTTPSlowloris:
		return 0.3
	case HTTPMixed:
		return 1.5
	default:
		return 1
	}
}

var (
	httpPorts   = []uint16{80, 443, 8080, 8000}
	httpWindows = []uint16{5840, 8192, 16384}
	postPaths   = []string{"/login", "/api/auth", "/submit"}
	mixedPaths  = []string{"/", "/login", "/api", "/search"}
)

const (
	botSeqLo      = 1000
	botSeqHi      = 100000
	botTargetPort = 80
)

func synthHTTP(s *synth, r *rand.Rand) ([]byte, error) {
	ipf := s.spoofed(r)
	if s.httpVariant == HTTPDefault {
		host := s.target.String()
		var body []byte
		if rng.Chance(r, 0.7) {
			body = packet.HTTPGet(r, host)
		} else {
			body = packet.HTTPPost(r, host, rng.IntRange(r, 50, 500))
		}
		t := packet.TCPFields{
			SrcPort: s.ephemeralPort(r, 10000, 60000),
			DstPort: rng.Choice(r, httpPorts),
			Seq:     r.Uint32(),
			Ack:     r.Uint32(),
			PSH:     true,
			ACK:     true,
			Window:  rng.Choice(r, httpWindows),
		}
		return s.build.TCP(ipf, t, body)
	}

	t := packet.TCPFields{
		SrcPort: s.ephemeralPort(r, 1024, 65535),
		DstPort: botTargetPort,
		Seq:     uint32(rng.IntRange(r, botSeqLo, botSeqHi)),
		Ack:     uint32(rng.IntRange(r, botSeqLo, botSeqHi)),
		PSH:     true,
		ACK:     true,
		Window:  rng.Choice(r, httpWindows),
	}
	return s.build.TCP(ipf, t, botRequest(s.httpVariant, r, s.target.String()))
}

func botRequest(v HTTPVariant, r *rand.Rand, host string) []byte {
	switch v {
	case HTTPPostFlood:
		return packet.HTTPBotPost(r, host, rng.Choice(r, postPaths))
	case HTTPRandomGet:
		return packet.HTTPBotGet(r, host, packet.RandomAttackPath(r))
	case HTTPSlowloris:
		return packet.HTTPSlowloris(r, host)
	case HTTPMixed:
		path := rng.Choice(r, mixedPaths)
		if rng.Chance(r, 0.5) {
			return packet.HTTPBotPost(r, host, path)
		}
		return packet.HTTPBotGet(r, host, path)
	default:
		return packet.HTTPBotGet(r, host, "/")
	}
}
