package benign

import (
	"context"
	"fmt"
	"math/rand/v2"

	"trafficgen/internal/arrival"
	"trafficgen/internal/config"
	"trafficgen/internal/packet"
	"trafficgen/internal/quicwire"
	"trafficgen/internal/rng"
)

// QUICKind tags packets of the QUIC baseline.
const QUICKind = "benign_quic"

const (
	quicConnIDLen  = 8
	quicPortBase   = 50000
	quicPortRange  = 15000
	clientShare    = 0.6
	handshakeAfter = 3 // client packets sent before the handshake phase
	dataAfter      = 6 // client packets sent before the data phase
)

var http3Request = []byte("GET /index.html HTTP/3\r\nHost: server\r\n\r\n")

// FlowPhase is the stage of a baseline QUIC connection.
type FlowPhase uint8

const (
	FlowInitial FlowPhase = iota
	FlowHandshake
	FlowData
)

// quicFlow is one well-behaved connection. clientPN and serverPN are the
// next packet numbers; ACKs only ever cover numbers below them.
type quicFlow struct {
	flow  packet.Flow
	dcid  []byte
	scid  []byte
	phase FlowPhase

	clientPN, serverPN         uint32
	clientCrypto, serverCrypto uint64
	clientStream, serverStream uint64
}

// QUICBaseline produces coherent QUIC traffic between a client range and
// one server.
type QUICBaseline struct {
	cfg   config.QUICBaseline
	opts  Options
	flows []*quicFlow
	build *packet.Builder
	qb    *quicwire.Builder
}

// NewQUICBaseline validates cfg and sets up its flows.
func NewQUICBaseline(cfg config.QUICBaseline, opts Options) (*QUICBaseline, error) {
	prefix, err := packet.ParseIPv4Prefix(cfg.ClientRange)
	if err != nil {
		return nil, config.Errorf("benign.quic.client_range", "%v", err)
	}
	server, err := parseIPv4("benign.quic.server_ip", cfg.ServerIP)
	if err != nil {
		return nil, err
	}
	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return nil, config.Errorf("benign.quic.server_port", "must be a valid port")
	}
	if cfg.Flows < 1 || cfg.NumPackets < 1 {
		return nil, config.Errorf("benign.quic", "needs at least one flow and one packet")
	}
	q := &QUICBaseline{
		cfg:   cfg,
		opts:  opts,
		build: packet.NewBuilder(opts.SrcMAC, opts.DstMAC),
		qb:    quicwire.NewBuilder(quicwire.MinInitialSize),
	}
	for i := 0; i < cfg.Flows; i++ {
		fr := rng.Derive(opts.Seed, "benign.quic.flow", uint64(i))
		q.flows = append(q.flows, &quicFlow{
			flow: packet.Flow{
				SrcIP:   packet.HostInPrefix(prefix, i),
				DstIP:   server,
				SrcPort: uint16(quicPortBase + i%quicPortRange),
				DstPort: uint16(cfg.ServerPort),
			},
			dcid: rng.Bytes(fr, quicConnIDLen),
			scid: rng.Bytes(fr, quicConnIDLen),
		})
	}
	return q, nil
}

// Run writes cfg.NumPackets packets to sink.
func (q *QUICBaseline) Run(ctx context.Context, sink packet.Sink) (Stats, error) {
	st := Stats{Sessions: map[string]int{}}
	r := rng.Derive(q.opts.Seed, "benign.quic", 0)
	ts, err := arrival.New(arrival.Params{Start: q.opts.StartTime, PPS: q.cfg.PPS, Mode: arrival.Steady},
		rng.Derive(q.opts.Seed, "benign.quic.arrival", 0))
	if err != nil {
		return st, err
	}
	for i := 0; i < q.cfg.NumPackets; i++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		f := rng.Choice(r, q.flows)
		fromClient := rng.Chance(r, clientShare) || f.clientPN == 0
		payload, err := q.next(f, r, fromClient)
		if err != nil {
			return st, fmt.Errorf("benign quic packet %d: %w", i, err)
		}
		ipf := packet.IPFields{Src: f.flow.SrcIP, Dst: f.flow.DstIP}
		sport, dport := f.flow.SrcPort, f.flow.DstPort
		if !fromClient {
			ipf.Src, ipf.Dst = ipf.Dst, ipf.Src
			sport, dport = dport, sport
		}
		frame, err := q.build.UDP(ipf, sport, dport, payload)
		if err != nil {
			return st, err
		}
		p := packet.Packet{Timestamp: ts.Next(), Data: frame, Kind: QUICKind}
		if err := sink.WritePacket(p); err != nil {
			return st, fmt.Errorf("benign quic: write packet: %w", err)
		}
		st.add(p)
	}
	for _, f := range q.flows {
		st.Sessions[f.phase.String()]++
	}
	return st, nil
}

func (p FlowPhase) String() string {
	switch p {
	case FlowHandshake:
		return "handshake"
	case FlowData:
		return "data"
	default:
		return "initial"
	}
}

// ack acknowledges the peer's packets below next, or returns nil when the
// peer has sent nothing.
func ack(next uint32, delay uint64, firstRange uint64) quicwire.Frame {
	if next == 0 {
		return nil
	}
	largest := uint64(next - 1)
	return quicwire.AckFrame{LargestAcked: largest, Delay: delay, FirstRange: min(firstRange, largest)}
}

func (q *QUICBaseline) frame(f quicwire.Frame) {
	if f != nil {
		q.qb.Frame(f)
	}
}

// next builds the QUIC payload of f's next packet in the given direction.
func (q *QUICBaseline) next(f *quicFlow, r *rand.Rand, fromClient bool) ([]byte, error) {
	q.qb.Reset()
	dcid, scid := f.dcid, f.scid
	pn := &f.clientPN
	if !fromClient {
		dcid, scid = scid, dcid
		pn = &f.serverPN
	}

	switch f.phase {
	case FlowInitial:
		q.qb.LongHeader(&quicwire.LongHeader{Type: quicwire.PacketInitial, Version: quicwire.Version1, DCID: dcid, SCID: scid, PacketNumber: *pn})
		if fromClient {
			hello := rng.Bytes(r, 200)
			q.qb.Frame(quicwire.CryptoFrame{Offset: f.clientCrypto, Data: hello})
			f.clientCrypto += uint64(len(hello))
		} else {
			q.frame(ack(f.clientPN, 10, 0))
			hello := rng.Bytes(r, 150)
			q.qb.Frame(quicwire.CryptoFrame{Offset: f.serverCrypto, Data: hello})
			f.serverCrypto += uint64(len(hello))
		}
		q.qb.PadTo(quicwire.MinInitialSize)

	case FlowHandshake:
		q.qb.LongHeader(&quicwire.LongHeader{Type: quicwire.PacketHandshake, Version: quicwire.Version1, DCID: dcid, SCID: scid, PacketNumber: *pn})
		if fromClient {
			q.frame(ack(f.serverPN, 5, 0))
			data := rng.Bytes(r, 100)
			q.qb.Frame(quicwire.CryptoFrame{Offset: f.clientCrypto, Data: data})
			f.clientCrypto += uint64(len(data))
		} else {
			q.frame(ack(f.clientPN, 8, 0))
			data := rng.Bytes(r, 80)
			q.qb.Frame(quicwire.CryptoFrame{Offset: f.serverCrypto, Data: data})
			f.serverCrypto += uint64(len(data))
		}

	default:
		q.qb.ShortHeader(&quicwire.ShortHeader{DCID: dcid, PacketNumber: *pn})
		if fromClient {
			if a := ack(f.serverPN, uint64(rng.IntRange(r, 1, 50)), 5); a != nil && rng.Chance(r, 0.4) {
				q.qb.Frame(a)
			} else {
				q.qb.Frame(quicwire.StreamFrame{Offset: f.clientStream, Data: http3Request})
				f.clientStream += uint64(len(http3Request))
			}
		} else {
			if a := ack(f.clientPN, uint64(rng.IntRange(r, 1, 30)), 3); a != nil && rng.Chance(r, 0.3) {
				q.qb.Frame(a)
			} else {
				data := rng.Bytes(r, rng.IntRange(r, 40, 80))
				q.qb.Frame(quicwire.StreamFrame{Offset: f.serverStream, Data: data})
				f.serverStream += uint64(len(data))
			}
		}
	}

	*pn++
	switch {
	case f.phase == FlowInitial && f.clientPN >= handshakeAfter:
		f.phase = FlowHandshake
	case f.phase == FlowHandshake && f.clientPN >= dataAfter:
		f.phase = FlowData
	}
	return q.qb.Bytes()
}
