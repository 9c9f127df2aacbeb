package benign

import (
	"math/rand/v2"
	"net/netip"

	"trafficgen/internal/packet"
	"trafficgen/internal/rng"
	"trafficgen/internal/sampler"
)

// SessionKind names one kind of benign conversation.
type SessionKind uint8

const (
	SessionHTTP SessionKind = iota
	SessionDNS
	SessionSSH
	SessionICMP
	SessionNTP
	SessionUDP

	numSessionKinds
)

var sessionNames = [numSessionKinds]string{"http", "dns", "ssh", "icmp", "ntp", "udp"}

func (k SessionKind) String() string {
	if k < numSessionKinds {
		return sessionNames[k]
	}
	return "unknown"
}

// Well-known benign peers.
var (
	dnsServers = []netip.Addr{
		netip.MustParseAddr("8.8.8.8"),
		netip.MustParseAddr("8.8.4.4"),
		netip.MustParseAddr("1.1.1.1"),
		netip.MustParseAddr("1.0.0.1"),
	}
	webServers = hostGrid(172, 217, 1, 4, 1, 9)
	ntpServers = hostGrid(129, 6, 15, 15, 1, 9)
	clients    = hostGrid(192, 168, 1, 1, 2, 253)

	backgroundPorts = []uint16{123, 161, 1900, 5353, 8888, 9000, 10001, 12345}
)

func hostGrid(a, b, c0, c1, d0, d1 byte) []netip.Addr {
	var out []netip.Addr
	for c := int(c0); c <= int(c1); c++ {
		for d := int(d0); d <= int(d1); d++ {
			out = append(out, netip.AddrFrom4([4]byte{a, b, byte(c), byte(d)}))
		}
	}
	return out
}

// tape records the packets of one session. The first build error sticks
// and stops further packets.
type tape struct {
	build *packet.Builder
	kind  string
	now   float64
	out   []packet.Packet
	err   error
}

func (t *tape) record(frame []byte, err error) {
	if t.err != nil {
		return
	}
	if err != nil {
		t.err = err
		return
	}
	t.out = append(t.out, packet.Packet{Timestamp: t.now, Data: frame, Kind: t.kind})
}

func (t *tape) wait(r *rand.Rand, lo, hi float64) {
	t.now += rng.Uniform(r, lo, hi)
}

// tcpConn tracks both directions of a TCP conversation. client.Seq and
// server.Seq are the next sequence number each side will send.
type tcpConn struct {
	t      *tape
	client packet.Flow
	server packet.Flow
	ttl    uint8
	window uint16
}

func newTCPConn(t *tape, r *rand.Rand, client, server netip.Addr, sport, dport uint16, ttl uint8) *tcpConn {
	c := &tcpConn{
		t:      t,
		client: packet.Flow{SrcIP: client, DstIP: server, SrcPort: sport, DstPort: dport, Seq: r.Uint32()},
		ttl:    ttl,
		window: 65535,
	}
	c.server = c.client.Reverse()
	c.server.Seq = r.Uint32()
	return c
}

// send emits one segment from the client (or the server) and advances the
// sender's sequence number by the sequence space it consumes. The
// acknowledgment always names the peer's next sequence number.
func (c *tcpConn) send(fromClient bool, f packet.TCPFields, payload []byte) {
	from, to := &c.client, &c.server
	if !fromClient {
		from, to = to, from
	}
	f.SrcPort, f.DstPort = from.SrcPort, from.DstPort
	f.Seq = from.Seq
	if f.ACK {
		f.Ack = to.Seq
	}
	if f.Window == 0 {
		f.Window = c.window
	}
	ipf := packet.IPFields{Src: from.SrcIP, Dst: from.DstIP, TTL: c.ttl}
	c.t.record(c.t.build.TCP(ipf, f, payload))

	from.Seq += uint32(len(payload))
	if f.SYN || f.FIN {
		from.Seq++
	}
}

// handshake runs SYN, SYN-ACK, ACK.
func (c *tcpConn) handshake(r *rand.Rand, opts bool) {
	syn := packet.TCPFields{SYN: true}
	if opts {
		syn.Options = packet.TCPOptions(1460, 7)
	}
	c.send(true, syn, nil)
	c.t.wait(r, 0.001, 0.005)
	synAck := syn
	synAck.ACK = true
	c.send(false, synAck, nil)
	c.t.wait(r, 0.001, 0.005)
	c.send(true, packet.TCPFields{ACK: true}, nil)
}

// teardown runs FIN-ACK, FIN-ACK, ACK with the client closing first.
func (c *tcpConn) teardown(r *rand.Rand) {
	c.send(true, packet.TCPFields{FIN: true, ACK: true}, nil)
	c.t.wait(r, 0.001, 0.005)
	c.send(false, packet.TCPFields{FIN: true, ACK: true}, nil)
	c.t.wait(r, 0.001, 0.005)
	c.send(true, packet.TCPFields{ACK: true}, nil)
}

// peers is what the composer hands to a session.
type peers struct {
	client netip.Addr
	server netip.Addr
}

func ephemeral(r *rand.Rand) uint16 { return uint16(rng.IntRange(r, 49152, 65535)) }

// httpSession emits a full HTTP/1.1 exchange: handshake, GET, 200 OK, ACK
// and teardown.
func httpSession(t *tape, r *rand.Rand, s *sampler.Set, p peers) {
	c := newTCPConn(t, r, p.client, p.server, ephemeral(r), 80, sampler.TTL(r, s))
	c.handshake(r, true)
	t.wait(r, 0.01, 0.05)
	c.send(true, packet.TCPFields{PSH: true, ACK: true}, packet.HTTPGet(r, p.server.String()))
	t.wait(r, 0.05, 0.2)
	c.send(false, packet.TCPFields{PSH: true, ACK: true}, packet.HTTPOKResponse)
	t.wait(r, 0.001, 0.005)
	c.send(true, packet.TCPFields{ACK: true}, nil)
	t.wait(r, 0.001, 0.01)
	c.teardown(r)
}

// dnsSession emits a query and a response that reuses its transaction ID.
func dnsSession(t *tape, r *rand.Rand, s *sampler.Set, p peers) {
	ttl := sampler.TTL(r, s)
	sport := ephemeral(r)
	id := uint16(rng.IntRange(r, 1, 65535))
	domain := rng.Choice(r, packet.QueryDomains)

	q, err := packet.DNSQuery(id, domain)
	if err != nil {
		t.record(nil, err)
		return
	}
	t.record(t.build.UDP(packet.IPFields{Src: p.client, Dst: p.server, TTL: ttl}, sport, 53, q))
	t.wait(r, 0.01, 0.05)
	resp, err := packet.DNSResponse(id, domain, packet.RandomPublicIP(r).As4())
	if err != nil {
		t.record(nil, err)
		return
	}
	t.record(t.build.UDP(packet.IPFields{Src: p.server, Dst: p.client, TTL: ttl}, 53, sport, resp))
}

// icmpSession emits an echo request and its reply.
func icmpSession(t *tape, r *rand.Rand, s *sampler.Set, p peers) {
	ttl := sampler.TTL(r, s)
	id := uint16(rng.IntRange(r, 1, 65535))
	seq := uint16(rng.IntRange(r, 1, 100))
	t.record(t.build.ICMP(packet.IPFields{Src: p.client, Dst: p.server, TTL: ttl}, 8, 0, id, seq, pingPayload))
	t.wait(r, 0.001, 0.05)
	t.record(t.build.ICMP(packet.IPFields{Src: p.server, Dst: p.client, TTL: ttl}, 0, 0, id, seq, pingPayload))
}

var pingPayload = []byte("XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX")

// ntpSession emits a client request and the server's reply.
func ntpSession(t *tape, r *rand.Rand, s *sampler.Set, p peers) {
	ttl := sampler.TTL(r, s)
	sport := ephemeral(r)
	t.record(t.build.UDP(packet.IPFields{Src: p.client, Dst: p.server, TTL: ttl}, sport, 123, packet.NTPClientRequest))
	t.wait(r, 0.01, 0.1)
	t.record(t.build.UDP(packet.IPFields{Src: p.server, Dst: p.client, TTL: ttl}, 123, sport, packet.NTPServerResponse))
}

// udpSession emits a few one-way datagrams to service ports. Busy is set
// during UDP-heavy phases.
func udpSession(t *tape, r *rand.Rand, p peers, busy bool) {
	n := rng.IntRange(r, 2, 4)
	if busy {
		n = rng.IntRange(r, 3, 7)
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			t.wait(r, 0.001, 0.01)
		}
		size := min(max(150+rng.IntRange(r, -75, 75), 50), 400)
		ipf := packet.IPFields{Src: p.client, Dst: p.server}
		t.record(t.build.UDP(ipf, ephemeral(r), rng.Choice(r, backgroundPorts), rng.Bytes(r, size)))
	}
}
