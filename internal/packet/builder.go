package packet

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Default link-layer addresses written into every frame.
var (
	DefaultSrcMAC = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
	DefaultDstMAC = net.HardwareAddr{0x0c, 0x42, 0xa1, 0xdd, 0x5b, 0x28}
)

const defaultTTL = 64

// IPFields describes the IPv4 header of a frame. Zero TTL means 64.
type IPFields struct {
	Src        netip.Addr
	Dst        netip.Addr
	TTL        uint8
	ID         uint16
	Flags      layers.IPv4Flag
	FragOffset uint16
	Protocol   layers.IPProtocol
}

// TCPFields describes a TCP header.
type TCPFields struct {
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	Ack     uint32
	SYN     bool
	ACK     bool
	PSH     bool
	FIN     bool
	RST     bool
	Window  uint16
	Options []layers.TCPOption
}

// Builder serializes frames. It reuses one buffer and is not safe for
// concurrent use; every returned slice is a private copy.
type Builder struct {
	srcMAC net.HardwareAddr
	dstMAC net.HardwareAddr
	buf    gopacket.SerializeBuffer
	opts   gopacket.SerializeOptions
}

// NewBuilder returns a Builder writing the given MACs. Nil MACs fall back to
// the defaults.
func NewBuilder(srcMAC, dstMAC net.HardwareAddr) *Builder {
	if srcMAC == nil {
		srcMAC = DefaultSrcMAC
	}
	if dstMAC == nil {
		dstMAC = DefaultDstMAC
	}
	return &Builder{
		srcMAC: srcMAC,
		dstMAC: dstMAC,
		buf:    gopacket.NewSerializeBuffer(),
		opts:   gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
	}
}

func (b *Builder) ethernet() *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       b.srcMAC,
		DstMAC:       b.dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
}

func ipv4Layer(f IPFields, proto layers.IPProtocol) (*layers.IPv4, error) {
	if !f.Src.Is4() || !f.Dst.Is4() {
		return nil, fmt.Errorf("packet: ipv4 addresses required (src %v, dst %v)", f.Src, f.Dst)
	}
	ttl := f.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	src, dst := f.Src.As4(), f.Dst.As4()
	return &layers.IPv4{
		Version:    4,
		IHL:        5,
		TTL:        ttl,
		Id:         f.ID,
		Flags:      f.Flags,
		FragOffset: f.FragOffset,
		Protocol:   proto,
		SrcIP:      net.IP(src[:]),
		DstIP:      net.IP(dst[:]),
	}, nil
}

func (b *Builder) serialize(ls ...gopacket.SerializableLayer) ([]byte, error) {
	if err := gopacket.SerializeLayers(b.buf, b.opts, ls...); err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	out := make([]byte, len(b.buf.Bytes()))
	copy(out, b.buf.Bytes())
	return out, nil
}

// TCP builds an Ethernet/IPv4/TCP frame.
func (b *Builder) TCP(ipf IPFields, t TCPFields, payload []byte) ([]byte, error) {
	ip, err := ipv4Layer(ipf, layers.IPProtocolTCP)
	if err != nil {
		return nil, err
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(t.SrcPort),
		DstPort: layers.TCPPort(t.DstPort),
		Seq:     t.Seq,
		Ack:     t.Ack,
		SYN:     t.SYN,
		ACK:     t.ACK,
		PSH:     t.PSH,
		FIN:     t.FIN,
		RST:     t.RST,
		Window:  t.Window,
		Options: t.Options,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return b.serialize(b.ethernet(), ip, tcp, gopacket.Payload(payload))
}

// UDP builds an Ethernet/IPv4/UDP frame.
func (b *Builder) UDP(ipf IPFields, srcPort, dstPort uint16, payload []byte) ([]byte, error) {
	ip, err := ipv4Layer(ipf, layers.IPProtocolUDP)
	if err != nil {
		return nil, err
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return b.serialize(b.ethernet(), ip, udp, gopacket.Payload(payload))
}

// UDPDatagram serializes a bare UDP header and payload, checksummed against
// the pseudo-header of ipf. It is the unit split by IP fragmentation.
func (b *Builder) UDPDatagram(ipf IPFields, srcPort, dstPort uint16, payload []byte) ([]byte, error) {
	ip, err := ipv4Layer(ipf, layers.IPProtocolUDP)
	if err != nil {
		return nil, err
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return b.serialize(udp, gopacket.Payload(payload))
}

// ICMP builds an Ethernet/IPv4/ICMPv4 frame.
func (b *Builder) ICMP(ipf IPFields, typ, code uint8, id, seq uint16, payload []byte) ([]byte, error) {
	ip, err := ipv4Layer(ipf, layers.IPProtocolICMPv4)
	if err != nil {
		return nil, err
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(typ, code),
		Id:       id,
		Seq:      seq,
	}
	return b.serialize(b.ethernet(), ip, icmp, gopacket.Payload(payload))
}

// RawIP builds an Ethernet/IPv4 frame around an opaque payload, used for
// fragments. ipf.Protocol names the transport carried by the payload.
func (b *Builder) RawIP(ipf IPFields, payload []byte) ([]byte, error) {
	ip, err := ipv4Layer(ipf, ipf.Protocol)
	if err != nil {
		return nil, err
	}
	return b.serialize(b.ethernet(), ip, gopacket.Payload(payload))
}

// TCPOptions assembles SYN options. A zero mss or negative wscale omits the
// option.
func TCPOptions(mss uint16, wscale int) []layers.TCPOption {
	var opts []layers.TCPOption
	if mss != 0 {
		opts = append(opts, layers.TCPOption{
			OptionType:   layers.TCPOptionKindMSS,
			OptionLength: 4,
			OptionData:   []byte{byte(mss >> 8), byte(mss)},
		})
	}
	if wscale >= 0 {
		opts = append(opts,
			layers.TCPOption{OptionType: layers.TCPOptionKindNop, OptionLength: 1},
			layers.TCPOption{OptionType: layers.TCPOptionKindWindowScale, OptionLength: 3, OptionData: []byte{byte(wscale)}},
		)
	}
	return opts
}
