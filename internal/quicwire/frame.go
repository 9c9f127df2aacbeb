package quicwire

import (
	"errors"
	"fmt"
)

// Frame type codes.
const (
	FramePadding = 0x00
	FramePing    = 0x01
	FrameAck     = 0x02
	FrameAckECN  = 0x03
	FrameCrypto  = 0x06
	FrameStream  = 0x08

	StreamFin = 0x01
	StreamLen = 0x02
	StreamOff = 0x04
)

// ErrAckRange is returned for an ACK frame whose first range reaches below
// packet number zero.
var ErrAckRange = errors.New("quicwire: ack range exceeds largest acknowledged")

// Frame is one encodable QUIC frame.
type Frame interface {
	Append(b []byte) ([]byte, error)
	Len() int
}

// PaddingFrame is a run of N zero bytes.
type PaddingFrame struct {
	N int
}

func (f PaddingFrame) Len() int { return f.N }

func (f PaddingFrame) Append(b []byte) ([]byte, error) {
	for i := 0; i < f.N; i++ {
		b = append(b, FramePadding)
	}
	return b, nil
}

// PingFrame elicits an acknowledgement.
type PingFrame struct{}

func (PingFrame) Len() int { return 1 }

func (PingFrame) Append(b []byte) ([]byte, error) { return append(b, FramePing), nil }

// AckRange is an additional (gap, length) pair after the first range.
type AckRange struct {
	Gap    uint64
	Length uint64
}

// AckFrame acknowledges LargestAcked down to LargestAcked-FirstRange, plus
// any additional ranges.
type AckFrame struct {
	LargestAcked uint64
	Delay        uint64
	FirstRange   uint64
	Ranges       []AckRange
}

// Smallest is the lowest packet number covered by the first range.
func (f AckFrame) Smallest() uint64 { return f.LargestAcked - f.FirstRange }

func (f AckFrame) Len() int {
	n := 1 + VarintLen(f.LargestAcked) + VarintLen(f.Delay) +
		VarintLen(uint64(len(f.Ranges))) + VarintLen(f.FirstRange)
	for _, r := range f.Ranges {
		n += VarintLen(r.Gap) + VarintLen(r.Length)
	}
	return n
}

func (f AckFrame) Append(b []byte) ([]byte, error) {
	if f.FirstRange > f.LargestAcked {
		return b, fmt.Errorf("%w: first range %d, largest %d", ErrAckRange, f.FirstRange, f.LargestAcked)
	}
	out := append(b, FrameAck)
	var err error
	for _, v := range []uint64{f.LargestAcked, f.Delay, uint64(len(f.Ranges)), f.FirstRange} {
		if out, err = AppendVarint(out, v); err != nil {
			return b, err
		}
	}
	for _, r := range f.Ranges {
		if out, err = AppendVarint(out, r.Gap); err != nil {
			return b, err
		}
		if out, err = AppendVarint(out, r.Length); err != nil {
			return b, err
		}
	}
	return out, nil
}

// CryptoFrame carries handshake bytes at Offset.
type CryptoFrame struct {
	Offset uint64
	Data   []byte
}

func (f CryptoFrame) Len() int {
	return 1 + VarintLen(f.Offset) + VarintLen(uint64(len(f.Data))) + len(f.Data)
}

func (f CryptoFrame) Append(b []byte) ([]byte, error) {
	out := append(b, FrameCrypto)
	var err error
	if out, err = AppendVarint(out, f.Offset); err != nil {
		return b, err
	}
	if out, err = AppendVarint(out, uint64(len(f.Data))); err != nil {
		return b, err
	}
	return append(out, f.Data...), nil
}

// StreamFrame carries application bytes. It is always written with explicit
// offset and length fields.
type StreamFrame struct {
	StreamID uint64
	Offset   uint64
	Data     []byte
	Fin      bool
}

func (f StreamFrame) typeByte() byte {
	t := byte(FrameStream | StreamOff | StreamLen)
	if f.Fin {
		t |= StreamFin
	}
	return t
}

func (f StreamFrame) Len() int {
	return 1 + VarintLen(f.StreamID) + VarintLen(f.Offset) + VarintLen(uint64(len(f.Data))) + len(f.Data)
}

func (f StreamFrame) Append(b []byte) ([]byte, error) {
	out := append(b, f.typeByte())
	var err error
	for _, v := range []uint64{f.StreamID, f.Offset, uint64(len(f.Data))} {
		if out, err = AppendVarint(out, v); err != nil {
			return b, err
		}
	}
	return append(out, f.Data...), nil
}
