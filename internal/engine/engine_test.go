package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficgen/internal/capture"
	"trafficgen/internal/config"
	"trafficgen/internal/metadata"
	"trafficgen/internal/sampler"
)

var fixedClock = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func loadConfig(t *testing.T, dir, body string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(fmt.Sprintf("output_dir: %q\nseed: 42\n%s", dir, body)))
	require.NoError(t, err)
	return cfg
}

const attacksYAML = `
attacks:
  - type: syn_flood
    num_packets: 200
    pps: 1000
  - type: dns_amp
    num_packets: 50
    pps: 500
  - type: volumetric
    num_packets: 100
`

func TestRunWritesCapturesAndMetadata(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, attacksYAML+"workers: 2\n")
	e, err := New(cfg, WithClock(fixedClock))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Attacks, 3)
	assert.Equal(t, 200, res.Attacks[0].Packets)
	assert.Equal(t, "dns_amp", res.Attacks[1].Kind)
	assert.Equal(t, 100, sum(res.Attacks[2].Components))

	for _, name := range []string{"syn_flood.pcap", "dns_amp.pcap", "volumetric.pcap"} {
		pkts, err := capture.ReadAll(filepath.Join(dir, name), "")
		require.NoError(t, err, name)
		assert.NotEmpty(t, pkts, name)
		for i := 1; i < len(pkts); i++ {
			require.Greater(t, pkts[i].Timestamp, pkts[i-1].Timestamp, "%s packet %d", name, i)
		}
	}

	side, err := metadata.Read(res.Metadata)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), side.Seed)
	assert.Equal(t, "2026-01-02 03:04:05", side.GenerationTime)
	assert.Len(t, side.Checksums, 3)
	assert.Equal(t, 50, side.Stats["dns_amp"].Packets)
	bad, err := side.Verify(dir)
	require.NoError(t, err)
	assert.Empty(t, bad)
}

func TestRunIsReproducibleAcrossWorkerCounts(t *testing.T) {
	read := func(workers int) map[string][]byte {
		dir := t.TempDir()
		cfg := loadConfig(t, dir, attacksYAML+fmt.Sprintf("workers: %d\n", workers))
		e, err := New(cfg, WithClock(fixedClock))
		require.NoError(t, err)
		_, err = e.Run(context.Background())
		require.NoError(t, err)
		out := make(map[string][]byte)
		for _, name := range []string{"syn_flood.pcap", "dns_amp.pcap", "volumetric.pcap"} {
			data, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			out[name] = data
		}
		return out
	}
	a, b := read(1), read(3)
	for name := range a {
		assert.True(t, bytes.Equal(a[name], b[name]), "%s differs between runs", name)
	}
}

func TestRunBenignQUICAndMix(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, `
capture:
  compression: zstd
attacks:
  - type: udp_flood
    num_packets: 300
benign:
  enabled: true
  profile: light
  duration: 5
  quic:
    enabled: true
    num_packets: 120
    flows: 4
mix:
  enabled: true
  attack_ratio: 0.5
`)
	e, err := New(cfg, WithClock(fixedClock))
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.Benign)
	assert.Positive(t, res.Benign.Packets)
	require.NotNil(t, res.QUIC)
	assert.Equal(t, 120, res.QUIC.Packets)
	require.Len(t, res.Mixed, 1)
	assert.Equal(t, 150, res.Mixed[0].Components["attack"])

	for _, name := range []string{"udp_flood.pcap.zst", "benign.pcap.zst", "baseline_quic.pcap.zst", "udp_flood_mixed.pcap.zst"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	mixed, err := capture.ReadAll(filepath.Join(dir, "udp_flood_mixed.pcap.zst"), "")
	require.NoError(t, err)
	assert.Equal(t, res.Mixed[0].Packets, len(mixed))
}

func TestDryRunWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	cfg := loadConfig(t, dir, attacksYAML+"dry_run: true\n")
	e, err := New(cfg)
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Attacks, 3)
	assert.True(t, res.Attacks[0].DryRun)
	assert.Equal(t, int64(200*1000), res.Attacks[0].Bytes)
	assert.InDelta(t, 0.2*1.46, res.Attacks[0].Duration, 1e-9)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCancelledRunLeavesReadableCaptures(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "attacks:\n  - type: syn_flood\n    num_packets: 100000\n")
	e, err := New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	pkts, err := capture.ReadAll(filepath.Join(dir, "syn_flood.pcap"), "")
	require.NoError(t, err)
	assert.Empty(t, pkts)
}

func TestOutputNames(t *testing.T) {
	names := outputNames([]config.Attack{
		{Type: "syn_flood"},
		{Type: "udp_flood", Output: "custom.pcap"},
		{Type: "syn_flood"},
	})
	assert.Equal(t, []string{"syn_flood_0", "custom", "syn_flood_2"}, names)
}

func TestMetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	prom := filepath.Join(dir, "trafficgen.prom")
	cfg := loadConfig(t, dir, fmt.Sprintf("attacks:\n  - type: icmp_flood\n    num_packets: 25\nmetrics:\n  textfile: %q\n", prom))
	finished := time.Unix(1_700_000_000, 0)
	e, err := New(cfg, WithClock(func() time.Time { return finished }))
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)
	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `trafficgen_packets_generated_total{kind="icmp_flood"} 25`)
	assert.Contains(t, string(data), `trafficgen_runs_total{result="ok"} 1`)
	assert.Contains(t, string(data), "trafficgen_last_run_timestamp_seconds 1.7e+09")
}

func TestDatasetFromReferenceCapture(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "attacks:\n  - type: udp_flood\n    num_packets: 40\n")
	e, err := New(cfg)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)

	ds, err := ExtractDataset(filepath.Join(dir, "udp_flood.pcap"))
	require.NoError(t, err)
	assert.Len(t, ds[sampler.PacketSizes], 40)
	assert.Len(t, ds[sampler.InterArrivalTimes], 39)
	assert.Len(t, ds[sampler.TTLs], 40)
	assert.Len(t, ds[sampler.DstPorts], 40)

	jsonPath := filepath.Join(dir, "dist.json")
	require.NoError(t, ds.Save(jsonPath))
	set, err := LoadSampler(config.Dataset{Path: jsonPath, Mode: "kde"})
	require.NoError(t, err)
	assert.True(t, set.Has(sampler.PacketSizes))

	set, err = LoadSampler(config.Dataset{Path: filepath.Join(dir, "udp_flood.pcap"), Mode: "weighted"})
	require.NoError(t, err)
	assert.True(t, set.Has(sampler.TTLs))
}

func TestMissingDatasetIsIOError(t *testing.T) {
	_, err := LoadSampler(config.Dataset{Path: filepath.Join(t.TempDir(), "missing.json")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
