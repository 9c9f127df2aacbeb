package sampler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"slices"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Dataset holds observed attribute values keyed by distribution name.
type Dataset map[string][]float64

// LoadJSON reads a dataset file (an object of name to number array) and fits
// one distribution per non-empty entry.
func LoadJSON(path string, mode Mode) (*Set, error) {
	ds, err := ReadDataset(path)
	if err != nil {
		return nil, err
	}
	return ds.Build(mode)
}

// ReadDataset decodes a dataset file without fitting it.
func ReadDataset(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	var ds Dataset
	if err := json.NewDecoder(f).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return ds, nil
}

// Build fits every non-empty entry of ds.
func (ds Dataset) Build(mode Mode) (*Set, error) {
	set := NewSet()
	names := make([]string, 0, len(ds))
	for name := range ds {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if len(ds[name]) == 0 {
			continue
		}
		for _, v := range ds[name] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("distribution %q: non-finite value %v", name, v)
			}
		}
		if err := set.Add(name, ds[name], mode); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Save writes ds as indented JSON.
func (ds Dataset) Save(path string) error {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}

// ErrNoIPTraffic is returned by Extract when records were read but none of
// them decoded past the link layer.
var ErrNoIPTraffic = errors.New("no IPv4 packets in reference capture")

// Extract walks a reference capture and records, per packet, the frame
// length, IPv4 TTL, TCP/UDP ports and the gap to the previous packet.
func Extract(src gopacket.PacketDataSource, linkType layers.LinkType) (Dataset, error) {
	ds := Dataset{
		PacketSizes:       {},
		TTLs:              {},
		SrcPorts:          {},
		DstPorts:          {},
		InterArrivalTimes: {},
	}
	var (
		ip4     layers.IPv4
		tcp     layers.TCP
		udp     layers.UDP
		eth     layers.Ethernet
		payload gopacket.Payload
		decoded []gopacket.LayerType
		prev    float64
		first   = true
		records int
		ipv4    int
		failed  int
	)
	var parser *gopacket.DecodingLayerParser
	switch linkType {
	case layers.LinkTypeEthernet:
		parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &ip4, &tcp, &udp, &payload)
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		parser = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, &ip4, &tcp, &udp, &payload)
	default:
		return nil, fmt.Errorf("unsupported link type %s", linkType)
	}
	parser.IgnoreUnsupported = true

	for {
		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read reference capture: %w", err)
		}
		records++
		ts := float64(ci.Timestamp.UnixNano()) / 1e9
		if !first {
			ds[InterArrivalTimes] = append(ds[InterArrivalTimes], ts-prev)
		}
		prev, first = ts, false
		ds[PacketSizes] = append(ds[PacketSizes], float64(ci.Length))

		// Truncated or non-IP records still contribute their timing.
		if err := parser.DecodeLayers(data, &decoded); err != nil {
			failed++
		}
		for _, lt := range decoded {
			switch lt {
			case layers.LayerTypeIPv4:
				ipv4++
				ds[TTLs] = append(ds[TTLs], float64(ip4.TTL))
			case layers.LayerTypeTCP:
				ds[SrcPorts] = append(ds[SrcPorts], float64(tcp.SrcPort))
				ds[DstPorts] = append(ds[DstPorts], float64(tcp.DstPort))
			case layers.LayerTypeUDP:
				ds[SrcPorts] = append(ds[SrcPorts], float64(udp.SrcPort))
				ds[DstPorts] = append(ds[DstPorts], float64(udp.DstPort))
			}
		}
	}
	if failed > 0 {
		log.Printf("[sampler] %d of %d reference records did not fully decode", failed, records)
	}
	if records > 0 && ipv4 == 0 {
		return nil, ErrNoIPTraffic
	}
	return ds, nil
}
