package quicwire

import (
	"encoding/binary"
	"fmt"
)

// ParseLongHeader decodes a long header from the front of b and returns the
// number of bytes consumed.
func ParseLongHeader(b []byte) (LongHeader, int, error) {
	var h LongHeader
	if len(b) < 6 {
		return h, 0, ErrTruncated
	}
	if !IsLongHeader(b) {
		return h, 0, fmt.Errorf("quicwire: not a long header (first byte %#02x)", b[0])
	}
	if b[0]&0x03 != pnLenBits {
		return h, 0, fmt.Errorf("quicwire: unsupported packet number length %d", b[0]&0x03+1)
	}
	h.Type = PacketType(b[0] >> 4 & 0x03)
	h.Version = binary.BigEndian.Uint32(b[1:5])
	off := 5

	var err error
	if h.DCID, off, err = readConnectionID(b, off); err != nil {
		return h, 0, err
	}
	if h.SCID, off, err = readConnectionID(b, off); err != nil {
		return h, 0, err
	}
	if h.Type == PacketInitial {
		tokenLen, n, err := ReadVarint(b[off:])
		if err != nil {
			return h, 0, err
		}
		off += n
		if uint64(len(b)-off) < tokenLen {
			return h, 0, ErrTruncated
		}
		off += int(tokenLen)
	}
	if len(b)-off < PacketNumberLen {
		return h, 0, ErrTruncated
	}
	h.PacketNumber = binary.BigEndian.Uint32(b[off:])
	return h, off + PacketNumberLen, nil
}

func readConnectionID(b []byte, off int) ([]byte, int, error) {
	if off >= len(b) {
		return nil, 0, ErrTruncated
	}
	n := int(b[off])
	off++
	if n > MaxConnectionIDLen {
		return nil, 0, fmt.Errorf("quicwire: connection id length %d", n)
	}
	if len(b)-off < n {
		return nil, 0, ErrTruncated
	}
	return append([]byte(nil), b[off:off+n]...), off + n, nil
}

// ParseShortHeader decodes a short header. The DCID length is not on the
// wire, so the caller supplies it.
func ParseShortHeader(b []byte, dcidLen int) (ShortHeader, int, error) {
	var h ShortHeader
	if len(b) < 1+dcidLen+PacketNumberLen {
		return h, 0, ErrTruncated
	}
	if IsLongHeader(b) || b[0]&headerFixedBit == 0 {
		return h, 0, fmt.Errorf("quicwire: not a short header (first byte %#02x)", b[0])
	}
	if b[0]&0x03 != pnLenBits {
		return h, 0, fmt.Errorf("quicwire: unsupported packet number length %d", b[0]&0x03+1)
	}
	h.DCID = append([]byte(nil), b[1:1+dcidLen]...)
	h.PacketNumber = binary.BigEndian.Uint32(b[1+dcidLen:])
	return h, 1 + dcidLen + PacketNumberLen, nil
}

// ParseFrames decodes a packet payload. Consecutive padding bytes are
// reported as a single PaddingFrame.
func ParseFrames(b []byte) ([]Frame, error) {
	var frames []Frame
	for len(b) > 0 {
		t, n, err := ReadVarint(b)
		if err != nil {
			return frames, err
		}
		switch {
		case t == FramePadding:
			i := 0
			for i < len(b) && b[i] == FramePadding {
				i++
			}
			frames = append(frames, PaddingFrame{N: i})
			b = b[i:]
			continue
		case t == FramePing:
			frames = append(frames, PingFrame{})
			b = b[n:]
			continue
		case t == FrameAck || t == FrameAckECN:
			f, used, err := parseAck(b[n:], t == FrameAckECN)
			if err != nil {
				return frames, err
			}
			frames = append(frames, f)
			b = b[n+used:]
		case t == FrameCrypto:
			vals, used, err := readVarints(b[n:], 2)
			if err != nil {
				return frames, err
			}
			data, err := take(b[n+used:], vals[1])
			if err != nil {
				return frames, err
			}
			frames = append(frames, CryptoFrame{Offset: vals[0], Data: data})
			b = b[n+used+len(data):]
		case t >= FrameStream && t <= FrameStream|0x07:
			f, used, err := parseStream(b[n:], byte(t))
			if err != nil {
				return frames, err
			}
			frames = append(frames, f)
			b = b[n+used:]
		default:
			return frames, fmt.Errorf("quicwire: unsupported frame type %#x", t)
		}
	}
	return frames, nil
}

func parseAck(b []byte, ecn bool) (AckFrame, int, error) {
	var f AckFrame
	vals, off, err := readVarints(b, 4)
	if err != nil {
		return f, 0, err
	}
	f.LargestAcked, f.Delay, f.FirstRange = vals[0], vals[1], vals[3]
	if f.FirstRange > f.LargestAcked {
		return f, 0, ErrAckRange
	}
	count := vals[2]
	if count > uint64(len(b)) {
		return f, 0, ErrTruncated
	}
	for i := uint64(0); i < count; i++ {
		pair, n, err := readVarints(b[off:], 2)
		if err != nil {
			return f, 0, err
		}
		f.Ranges = append(f.Ranges, AckRange{Gap: pair[0], Length: pair[1]})
		off += n
	}
	if ecn {
		_, n, err := readVarints(b[off:], 3)
		if err != nil {
			return f, 0, err
		}
		off += n
	}
	return f, off, nil
}

func parseStream(b []byte, t byte) (StreamFrame, int, error) {
	f := StreamFrame{Fin: t&StreamFin != 0}
	id, off, err := ReadVarint(b)
	if err != nil {
		return f, 0, err
	}
	f.StreamID = id
	if t&StreamOff != 0 {
		v, n, err := ReadVarint(b[off:])
		if err != nil {
			return f, 0, err
		}
		f.Offset = v
		off += n
	}
	length := uint64(len(b) - off)
	if t&StreamLen != 0 {
		v, n, err := ReadVarint(b[off:])
		if err != nil {
			return f, 0, err
		}
		length = v
		off += n
	}
	data, err := take(b[off:], length)
	if err != nil {
		return f, 0, err
	}
	f.Data = data
	return f, off + len(data), nil
}

func readVarints(b []byte, count int) ([]uint64, int, error) {
	vals := make([]uint64, count)
	off := 0
	for i := range vals {
		v, n, err := ReadVarint(b[off:])
		if err != nil {
			return nil, 0, err
		}
		vals[i] = v
		off += n
	}
	return vals, off, nil
}

func take(b []byte, n uint64) ([]byte, error) {
	if uint64(len(b)) < n {
		return nil, ErrTruncated
	}
	return append([]byte(nil), b[:n]...), nil
}
