// Package packet builds Ethernet/IPv4 frames and carries them, with their
// capture timestamps, between generators and sinks.
package packet

import (
	"net/netip"

	"github.com/gopacket/gopacket/layers"
)

// Packet is one captured frame. Timestamp is seconds since the Unix epoch.
type Packet struct {
	Timestamp float64
	Data      []byte
	Kind      string
}

// Sink consumes packets in timestamp order.
type Sink interface {
	WritePacket(Packet) error
}

// Collector is a Sink that keeps every packet in memory.
type Collector struct {
	Packets []Packet
	Bytes   int
}

func (c *Collector) WritePacket(p Packet) error {
	c.Packets = append(c.Packets, p)
	c.Bytes += len(p.Data)
	return nil
}

// Flow identifies one conversation and carries its TCP state.
type Flow struct {
	SrcIP    netip.Addr
	DstIP    netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol layers.IPProtocol

	Seq uint32
	Ack uint32
}

// Reverse returns the flow seen from the other endpoint, with Seq and Ack
// swapped.
func (f Flow) Reverse() Flow {
	return Flow{
		SrcIP:    f.DstIP,
		DstIP:    f.SrcIP,
		SrcPort:  f.DstPort,
		DstPort:  f.SrcPort,
		Protocol: f.Protocol,
		Seq:      f.Ack,
		Ack:      f.Seq,
	}
}
