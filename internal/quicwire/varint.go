// Package quicwire encodes and decodes the subset of the QUIC v1 wire format
// used by generated traffic: variable-length integers, long and short
// headers, and PADDING, PING, ACK, CRYPTO and STREAM frames. Packets are
// written in the clear; no header or payload protection is applied.
package quicwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxVarint is the largest value a variable-length integer can carry.
const MaxVarint = 1<<62 - 1

var (
	// ErrVarintRange is returned for values that need more than 62 bits.
	ErrVarintRange = errors.New("quicwire: varint out of range")
	// ErrTruncated is returned when a decoder runs out of input.
	ErrTruncated = errors.New("quicwire: truncated input")
)

// VarintLen returns the encoded size of v, or 0 when v is out of range.
func VarintLen(v uint64) int {
	switch {
	case v < 1<<6:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<30:
		return 4
	case v <= MaxVarint:
		return 8
	default:
		return 0
	}
}

// AppendVarint appends the shortest encoding of v to b.
func AppendVarint(b []byte, v uint64) ([]byte, error) {
	switch VarintLen(v) {
	case 1:
		return append(b, byte(v)), nil
	case 2:
		return binary.BigEndian.AppendUint16(b, uint16(v)|0x4000), nil
	case 4:
		return binary.BigEndian.AppendUint32(b, uint32(v)|0x80000000), nil
	case 8:
		return binary.BigEndian.AppendUint64(b, v|0xc000000000000000), nil
	default:
		return b, fmt.Errorf("%w: %d", ErrVarintRange, v)
	}
}

// ReadVarint decodes one varint from the front of b and reports how many
// bytes it consumed.
func ReadVarint(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncated
	}
	n := 1 << (b[0] >> 6)
	if len(b) < n {
		return 0, 0, ErrTruncated
	}
	v := uint64(b[0] & 0x3f)
	for i := 1; i < n; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, n, nil
}
