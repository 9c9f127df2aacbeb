package packet

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/miekg/dns"

	"trafficgen/internal/rng"
)

var (
	httpPaths  = []string{"/", "/index.html", "/api/data", "/login", "/search"}
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/95.0",
		"curl/7.68.0",
	}
	// QueryDomains are the names looked up by generated DNS traffic.
	QueryDomains = []string{
		"google.com", "facebook.com", "amazon.com", "twitter.com",
		"github.com", "stackoverflow.com", "reddit.com",
	}
)

const formChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// HTTPGet renders a GET request with a randomly chosen path and agent.
func HTTPGet(r *rand.Rand, host string) []byte {
	return fmt.Appendf(nil,
		"GET %s HTTP/1.1\r\nHost: %s\r\nUser-Agent: %s\r\nAccept: */*\r\nConnection: keep-alive\r\n\r\n",
		rng.Choice(r, httpPaths), host, rng.Choice(r, userAgents))
}

// HTTPPost renders a form POST carrying bodyLen random characters.
func HTTPPost(r *rand.Rand, host string, bodyLen int) []byte {
	var body strings.Builder
	body.Grow(bodyLen)
	for i := 0; i < bodyLen; i++ {
		body.WriteByte(formChars[r.IntN(len(formChars))])
	}
	return fmt.Appendf(nil,
		"POST /api/submit HTTP/1.1\r\nHost: %s\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: %d\r\n\r\n%s",
		host, bodyLen, body.String())
}

// AttackPaths are endpoints commonly hammered by HTTP flood bots.
var AttackPaths = []string{
	"/", "/index.php", "/login", "/admin", "/wp-login.php",
	"/administrator", "/phpmyadmin", "/xmlrpc.php", "/wp-admin",
	"/.env", "/config.php", "/backup.sql", "/admin.php",
	"/user/login", "/api/v1/login", "/auth/login", "/signin",
}

var (
	// An empty agent means the bot sends no User-Agent header.
	botUserAgents = []string{
		"Mozilla/5.0",
		"python-requests/2.25.1",
		"curl/7.68.0",
		"Wget/1.20.3",
		"Go-http-client/1.1",
		"Apache-HttpClient/4.5.13",
		"",
	}
	randomPathPrefixes = []string{"/", "/api/", "/admin/", "/user/", "/data/"}
	randomPathSuffixes = []string{"", ".php", ".html", ".asp", ".jsp"}
)

// RandomAttackPath returns one of AttackPaths three times in ten, otherwise
// a random path such as /admin/k3j9x2.php.
func RandomAttackPath(r *rand.Rand) string {
	if rng.Chance(r, 0.3) {
		return rng.Choice(r, AttackPaths)
	}
	n := rng.IntRange(r, 5, 15)
	b := make([]byte, n)
	for i := range b {
		b[i] = formChars[r.IntN(len(formChars))]
	}
	return rng.Choice(r, randomPathPrefixes) + string(b) + rng.Choice(r, randomPathSuffixes)
}

func botHeaders(r *rand.Rand, method, path, host string) []byte {
	b := fmt.Appendf(nil, "%s %s HTTP/1.1\r\nHost: %s\r\n", method, path, host)
	if ua := rng.Choice(r, botUserAgents); ua != "" {
		b = fmt.Appendf(b, "User-Agent: %s\r\n", ua)
	}
	return b
}

// HTTPBotGet renders a complete GET as sent by a flood bot.
func HTTPBotGet(r *rand.Rand, host, path string) []byte {
	return append(botHeaders(r, "GET", path, host), "Connection: close\r\n\r\n"...)
}

// HTTPBotPost renders a POST with a JSON credential body.
func HTTPBotPost(r *rand.Rand, host, path string) []byte {
	body := fmt.Sprintf(`{"user":"bot%d","pass":"attack"}`, rng.IntRange(r, 1, 9999))
	return fmt.Appendf(botHeaders(r, "POST", path, host),
		"Content-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
}

// HTTPSlowloris renders a GET whose header block is never terminated.
func HTTPSlowloris(r *rand.Rand, host string) []byte {
	return append(botHeaders(r, "GET", "/", host), "X-Slowloris: "...)
}

// HTTPOKResponse is the fixed 200 response served to benign clients.
var HTTPOKResponse = []byte("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: 512\r\n\r\n" +
	"<html><body>OK</body></html>" + strings.Repeat("X", 470))

// DNSQuery packs a recursive A query for domain.
func DNSQuery(id uint16, domain string) ([]byte, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	m.Id = id
	m.RecursionDesired = true
	return m.Pack()
}

// DNSResponse packs an answer to the query (id, domain) resolving to addr.
func DNSResponse(id uint16, domain string, addr [4]byte) ([]byte, error) {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	q.Id = id
	q.RecursionDesired = true

	m := new(dns.Msg)
	m.SetReply(q)
	m.RecursionAvailable = true
	m.Answer = append(m.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: dns.Fqdn(domain), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
		A:   addr[:],
	})
	return m.Pack()
}

// NTPMonlistRequest is a mode 7 MON_GETLIST_1 request header.
var NTPMonlistRequest = []byte{0x17, 0x00, 0x03, 0x2a, 0x00, 0x00, 0x00, 0x00}

// NTP client and server packets (version 3, modes 3 and 4).
var (
	NTPClientRequest  = append([]byte{0x1b}, make([]byte, 47)...)
	NTPServerResponse = append([]byte{0x1c}, make([]byte, 47)...)
)

// LongTail returns size, or with probability 0.1 size scaled by U(2,10).
func LongTail(r *rand.Rand, size int) int {
	if rng.Chance(r, 0.1) {
		return int(float64(size) * rng.Uniform(r, 2, 10))
	}
	return size
}
