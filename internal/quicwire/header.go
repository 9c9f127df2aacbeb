package quicwire

import (
	"encoding/binary"
	"fmt"
)

// Version1 is QUIC version 1.
const Version1 uint32 = 0x00000001

// MinInitialSize is the smallest datagram payload an Initial packet may
// occupy.
const MinInitialSize = 1200

// MaxConnectionIDLen bounds connection IDs in QUIC v1.
const MaxConnectionIDLen = 20

// PacketNumberLen is the fixed packet-number width written by this package.
const PacketNumberLen = 4

const (
	headerFormLong = 0x80
	headerFixedBit = 0x40
	pnLenBits      = PacketNumberLen - 1
)

// PacketType is the long-header packet type.
type PacketType uint8

const (
	PacketInitial   PacketType = 0x0
	Packet0RTT      PacketType = 0x1
	PacketHandshake PacketType = 0x2
	PacketRetry     PacketType = 0x3
)

func (t PacketType) String() string {
	switch t {
	case PacketInitial:
		return "Initial"
	case Packet0RTT:
		return "0-RTT"
	case PacketHandshake:
		return "Handshake"
	case PacketRetry:
		return "Retry"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// LongHeader is the header of Initial, 0-RTT, Handshake and Retry packets.
// Initial packets carry an empty token.
type LongHeader struct {
	Type         PacketType
	Version      uint32
	DCID         []byte
	SCID         []byte
	PacketNumber uint32
}

// Len is the encoded size of h.
func (h *LongHeader) Len() int {
	n := 1 + 4 + 1 + len(h.DCID) + 1 + len(h.SCID) + PacketNumberLen
	if h.Type == PacketInitial {
		n++
	}
	return n
}

// Append writes h to b.
func (h *LongHeader) Append(b []byte) ([]byte, error) {
	if h.Type > PacketRetry {
		return b, fmt.Errorf("quicwire: invalid long header type %d", h.Type)
	}
	if len(h.DCID) > MaxConnectionIDLen || len(h.SCID) > MaxConnectionIDLen {
		return b, fmt.Errorf("quicwire: connection id longer than %d bytes", MaxConnectionIDLen)
	}
	b = append(b, headerFormLong|headerFixedBit|byte(h.Type)<<4|pnLenBits)
	b = binary.BigEndian.AppendUint32(b, h.Version)
	b = append(b, byte(len(h.DCID)))
	b = append(b, h.DCID...)
	b = append(b, byte(len(h.SCID)))
	b = append(b, h.SCID...)
	if h.Type == PacketInitial {
		b = append(b, 0)
	}
	return binary.BigEndian.AppendUint32(b, h.PacketNumber), nil
}

// ShortHeader is the 1-RTT header. The spin and key-phase bits are zero.
type ShortHeader struct {
	DCID         []byte
	PacketNumber uint32
}

// Len is the encoded size of h.
func (h *ShortHeader) Len() int { return 1 + len(h.DCID) + PacketNumberLen }

// Append writes h to b.
func (h *ShortHeader) Append(b []byte) ([]byte, error) {
	if len(h.DCID) > MaxConnectionIDLen {
		return b, fmt.Errorf("quicwire: connection id longer than %d bytes", MaxConnectionIDLen)
	}
	b = append(b, headerFixedBit|pnLenBits)
	b = append(b, h.DCID...)
	return binary.BigEndian.AppendUint32(b, h.PacketNumber), nil
}

// IsLongHeader reports whether b starts with a long header.
func IsLongHeader(b []byte) bool {
	return len(b) > 0 && b[0]&headerFormLong != 0
}
