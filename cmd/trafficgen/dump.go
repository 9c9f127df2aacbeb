package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"trafficgen/internal/capture"
	"trafficgen/internal/quicwire"
	"trafficgen/internal/sampler"
)

// quicDCIDLen is the connection ID length every generator uses, needed to
// parse short headers.
const quicDCIDLen = 8

func cmdDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	limit := fs.Int("n", 100, "Stop after this many packets (0 for all)")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: trafficgen dump [-n count] <pcap>")
	}

	r, err := capture.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer r.Close()

	packetSource := gopacket.NewPacketSource(r, r.LinkType())
	packetSource.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	count := 0
	var first float64

	for pkt := range packetSource.Packets() {
		count++
		ts := capture.Seconds(pkt.Metadata().Timestamp)
		if count == 1 {
			first = ts
		}
		fmt.Printf("\n[+%.6fs] Packet #%d (%d bytes)\n", ts-first, count, len(pkt.Data()))

		for _, layer := range pkt.Layers() {
			fmt.Printf("  Layer: %s (%d bytes)\n", layer.LayerType(), len(layer.LayerContents()))
		}
		if netLayer := pkt.NetworkLayer(); netLayer != nil {
			fmt.Printf("  Network: %s -> %s\n", netLayer.NetworkFlow().Src(), netLayer.NetworkFlow().Dst())
		}
		if transportLayer := pkt.TransportLayer(); transportLayer != nil {
			fmt.Printf("  Transport: %s -> %s\n", transportLayer.TransportFlow().Src(), transportLayer.TransportFlow().Dst())
		}
		if ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok && (ip.Flags&layers.IPv4MoreFragments != 0 || ip.FragOffset > 0) {
			fmt.Printf("  Fragment: id=%d offset=%d mf=%t\n", ip.Id, int(ip.FragOffset)*8, ip.Flags&layers.IPv4MoreFragments != 0)
		}
		if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok && (udp.SrcPort == 443 || udp.DstPort == 443) {
			fmt.Printf("  QUIC: %s\n", describeQUIC(udp.Payload))
		}

		if *limit > 0 && count >= *limit {
			fmt.Printf("\n(Printed %d packets, stopping...)\n", count)
			break
		}
	}
	return nil
}

// describeQUIC summarizes the header and frames of a QUIC datagram.
func describeQUIC(b []byte) string {
	var (
		head string
		off  int
		err  error
	)
	if quicwire.IsLongHeader(b) {
		var h quicwire.LongHeader
		h, off, err = quicwire.ParseLongHeader(b)
		head = fmt.Sprintf("%s pn=%d dcid=%x", h.Type, h.PacketNumber, h.DCID)
	} else {
		var h quicwire.ShortHeader
		h, off, err = quicwire.ParseShortHeader(b, quicDCIDLen)
		head = fmt.Sprintf("1-RTT pn=%d dcid=%x", h.PacketNumber, h.DCID)
	}
	if err != nil {
		return fmt.Sprintf("unparsable (%v)", err)
	}
	frames, err := quicwire.ParseFrames(b[off:])
	if err != nil {
		return fmt.Sprintf("%s frames unparsable (%v)", head, err)
	}
	parts := []string{head}
	for _, f := range frames {
		switch f := f.(type) {
		case quicwire.AckFrame:
			parts = append(parts, fmt.Sprintf("ACK[largest=%d range=%d]", f.LargestAcked, f.FirstRange))
		case quicwire.CryptoFrame:
			parts = append(parts, fmt.Sprintf("CRYPTO[%d]", len(f.Data)))
		case quicwire.StreamFrame:
			parts = append(parts, fmt.Sprintf("STREAM[id=%d len=%d]", f.StreamID, len(f.Data)))
		case quicwire.PaddingFrame:
			parts = append(parts, fmt.Sprintf("PADDING[%d]", f.N))
		case quicwire.PingFrame:
			parts = append(parts, "PING")
		}
	}
	return strings.Join(parts, " ")
}

func trimCaptureExt(path string) string {
	for _, ext := range []string{".gz", ".zst", ".lz4", ".pcap"} {
		path = strings.TrimSuffix(path, ext)
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func sortedDatasetNames(ds sampler.Dataset) []string {
	names := make([]string, 0, len(ds))
	for name := range ds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
