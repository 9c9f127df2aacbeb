package quicwire

import (
	"bytes"
	"testing"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestVarintLengthClasses(t *testing.T) {
	cases := []struct {
		v      uint64
		n      int
		prefix byte
	}{
		{0, 1, 0x00},
		{63, 1, 0x00},
		{64, 2, 0x40},
		{16383, 2, 0x40},
		{16384, 4, 0x80},
		{1<<30 - 1, 4, 0x80},
		{1 << 30, 8, 0xc0},
		{MaxVarint, 8, 0xc0},
	}
	for _, tc := range cases {
		b, err := AppendVarint(nil, tc.v)
		require.NoError(t, err)
		assert.Len(t, b, tc.n, "v=%d", tc.v)
		assert.Equal(t, tc.prefix, b[0]&0xc0, "v=%d", tc.v)
		assert.Equal(t, tc.n, VarintLen(tc.v))
	}
}

func TestVarintRejectsOutOfRange(t *testing.T) {
	for _, v := range []uint64{1 << 62, 1<<64 - 1} {
		b, err := AppendVarint([]byte{0xaa}, v)
		assert.ErrorIs(t, err, ErrVarintRange)
		assert.Equal(t, []byte{0xaa}, b)
		assert.Zero(t, VarintLen(v))
	}
}

func TestReadVarintTruncated(t *testing.T) {
	_, _, err := ReadVarint(nil)
	assert.ErrorIs(t, err, ErrTruncated)
	_, _, err = ReadVarint([]byte{0x80, 0x01})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestProperty_VarintRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := rapid.Uint64Range(0, MaxVarint).Draw(rt, "v")
		b, err := AppendVarint(nil, v)
		if err != nil {
			rt.Fatal(err)
		}
		got, n, err := ReadVarint(b)
		if err != nil || got != v || n != len(b) {
			rt.Fatalf("round trip %d -> %x -> %d (n=%d, err=%v)", v, b, got, n, err)
		}
	})
}

func TestProperty_VarintMatchesQuicGo(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := rapid.Uint64Range(0, MaxVarint).Draw(rt, "v")
		ours, err := AppendVarint(nil, v)
		if err != nil {
			rt.Fatal(err)
		}
		if theirs := quicvarint.Append(nil, v); !bytes.Equal(ours, theirs) {
			rt.Fatalf("encoding of %d differs: %x vs %x", v, ours, theirs)
		}
		if quicvarint.Len(v) != len(ours) {
			rt.Fatalf("length of %d differs", v)
		}
		back, err := quicvarint.Read(bytes.NewReader(ours))
		if err != nil || back != v {
			rt.Fatalf("quicvarint decoded %d as %d (%v)", v, back, err)
		}
	})
}

func TestLongHeaderLayout(t *testing.T) {
	h := LongHeader{
		Type:         PacketInitial,
		Version:      Version1,
		DCID:         []byte{1, 2, 3, 4, 5, 6, 7, 8},
		SCID:         []byte{9, 10, 11, 12, 13, 14, 15, 16},
		PacketNumber: 0x01020304,
	}
	b, err := h.Append(nil)
	require.NoError(t, err)
	want := []byte{0xc3, 0, 0, 0, 1, 8, 1, 2, 3, 4, 5, 6, 7, 8, 8, 9, 10, 11, 12, 13, 14, 15, 16, 0, 1, 2, 3, 4}
	assert.Equal(t, want, b)
	assert.Equal(t, len(want), h.Len())

	got, n, err := ParseLongHeader(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	assert.Equal(t, h, got)

	h.Type = PacketHandshake
	b, err = h.Append(nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0xe3), b[0])
	assert.Len(t, b, len(want)-1)
}

func TestShortHeaderLayout(t *testing.T) {
	h := ShortHeader{DCID: []byte{0xaa, 0xbb}, PacketNumber: 7}
	b, err := h.Append(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x43, 0xaa, 0xbb, 0, 0, 0, 7}, b)

	got, n, err := ParseShortHeader(b, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, h, got)
}

func TestHeaderRejectsLongConnectionID(t *testing.T) {
	h := LongHeader{DCID: make([]byte, 21)}
	_, err := h.Append(nil)
	assert.Error(t, err)
}

func TestAckFrameLayout(t *testing.T) {
	f := AckFrame{LargestAcked: 300, Delay: 1, FirstRange: 100}
	b, err := f.Append(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x41, 0x2c, 0x01, 0x00, 0x40, 0x64}, b)
	assert.Equal(t, len(b), f.Len())
	assert.Equal(t, uint64(200), f.Smallest())
}

func TestAckFrameRejectsRangeBelowZero(t *testing.T) {
	_, err := AckFrame{LargestAcked: 5, FirstRange: 6}.Append(nil)
	assert.ErrorIs(t, err, ErrAckRange)
}

func TestStreamFrameFlags(t *testing.T) {
	f := StreamFrame{StreamID: 0, Offset: 10, Data: []byte("hi"), Fin: true}
	b, err := f.Append(nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0f), b[0])
	assert.Equal(t, f.Len(), len(b))
}

func TestBuilderPadsInitial(t *testing.T) {
	b := NewBuilder(MinInitialSize)
	b.LongHeader(&LongHeader{Type: PacketInitial, Version: Version1, DCID: []byte{1}, SCID: []byte{2}})
	b.Frame(CryptoFrame{Data: bytes.Repeat([]byte{0x16}, 200)})
	b.PadTo(MinInitialSize)
	pkt, err := b.Bytes()
	require.NoError(t, err)
	assert.Len(t, pkt, MinInitialSize)

	_, n, err := ParseLongHeader(pkt)
	require.NoError(t, err)
	frames, err := ParseFrames(pkt[n:])
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Len(t, frames[0].(CryptoFrame).Data, 200)
	assert.Equal(t, MinInitialSize-n-frames[0].Len(), frames[1].(PaddingFrame).N)
}

func TestBuilderErrorSticks(t *testing.T) {
	b := NewBuilder(64)
	b.ShortHeader(&ShortHeader{DCID: []byte{1}})
	b.Frame(AckFrame{LargestAcked: 1 << 62})
	before := b.Len()
	b.Frame(PingFrame{})
	b.PadTo(100)
	assert.Equal(t, before, b.Len())
	_, err := b.Bytes()
	assert.ErrorIs(t, err, ErrVarintRange)

	b.Reset()
	b.Frame(PingFrame{})
	pkt, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{FramePing}, pkt)
}

func TestParseFramesMixedPayload(t *testing.T) {
	b := NewBuilder(128)
	b.Frame(AckFrame{LargestAcked: 1000, Delay: 3, FirstRange: 10, Ranges: []AckRange{{Gap: 2, Length: 5}}})
	b.Frame(AckFrame{LargestAcked: 70000, Delay: 0, FirstRange: 400})
	b.Frame(StreamFrame{StreamID: 4, Offset: 80, Data: []byte("GET /")})
	b.Frame(PingFrame{})
	b.PadTo(80)
	payload, err := b.Bytes()
	require.NoError(t, err)

	frames, err := ParseFrames(payload)
	require.NoError(t, err)
	require.Len(t, frames, 5)
	assert.Equal(t, AckFrame{LargestAcked: 1000, Delay: 3, FirstRange: 10, Ranges: []AckRange{{Gap: 2, Length: 5}}}, frames[0])
	assert.Equal(t, uint64(70000), frames[1].(AckFrame).LargestAcked)
	assert.Equal(t, StreamFrame{StreamID: 4, Offset: 80, Data: []byte("GET /")}, frames[2])
	assert.Equal(t, PingFrame{}, frames[3])
	assert.IsType(t, PaddingFrame{}, frames[4])
}

func TestParseFramesTruncated(t *testing.T) {
	_, err := ParseFrames([]byte{FrameCrypto, 0x00, 0x05, 'a'})
	assert.ErrorIs(t, err, ErrTruncated)
	_, err = ParseFrames([]byte{0x1f})
	assert.Error(t, err)
}
