package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficgen/internal/quicwire"
)

func TestTrimCaptureExt(t *testing.T) {
	cases := map[string]string{
		"pcaps/udp_flood.pcap":     "pcaps/udp_flood",
		"pcaps/udp_flood.pcap.gz":  "pcaps/udp_flood",
		"pcaps/udp_flood.pcap.zst": "pcaps/udp_flood",
		"ref.cap":                  "ref",
		"noext":                    "noext",
	}
	for in, want := range cases {
		assert.Equal(t, want, trimCaptureExt(in), in)
	}
}

func TestDescribeQUIC(t *testing.T) {
	b := quicwire.NewBuilder(1200)
	b.LongHeader(&quicwire.LongHeader{
		Type:         quicwire.PacketInitial,
		Version:      1,
		DCID:         []byte{1, 2, 3, 4, 5, 6, 7, 8},
		SCID:         []byte{8, 7, 6, 5, 4, 3, 2, 1},
		PacketNumber: 7,
	})
	b.Frame(quicwire.AckFrame{LargestAcked: 150, FirstRange: 1})
	b.PadTo(quicwire.MinInitialSize)
	pkt, err := b.Bytes()
	require.NoError(t, err)

	got := describeQUIC(pkt)
	assert.Contains(t, got, "Initial pn=7 dcid=0102030405060708")
	assert.Contains(t, got, "ACK[largest=150 range=1]")
	assert.Contains(t, got, "PADDING[")

	short := quicwire.NewBuilder(64)
	short.ShortHeader(&quicwire.ShortHeader{DCID: []byte{9, 9, 9, 9, 9, 9, 9, 9}, PacketNumber: 42})
	short.Frame(quicwire.PingFrame{})
	pkt, err = short.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "1-RTT pn=42 dcid=0909090909090909 PING", describeQUIC(pkt))

	assert.Contains(t, describeQUIC([]byte{0xC3, 0, 0}), "unparsable")
}
