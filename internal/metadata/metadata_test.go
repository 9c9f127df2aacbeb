package metadata

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficgen/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("seed: 42\nattacks:\n  - type: syn_flood\n    num_packets: 100\n"))
	require.NoError(t, err)
	return cfg
}

func TestRunIDIsStablePerSeed(t *testing.T) {
	a, b := RunID(42), RunID(42)
	assert.Equal(t, a, b)
	assert.Equal(t, uuid.Version(5), a.Version())
	assert.NotEqual(t, a, RunID(43))
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	capturePath := filepath.Join(dir, "syn_flood.pcap")
	require.NoError(t, os.WriteFile(capturePath, []byte("not really a pcap"), 0o644))

	when := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	s := New(testConfig(t), when)
	s.Record("syn_flood", Stats{Kind: "syn_flood", Output: capturePath, Packets: 100, Bytes: 6000, PPS: 1000})
	require.NoError(t, s.AddArtifact(capturePath))

	path := filepath.Join(dir, "metadata.json")
	require.NoError(t, s.Write(path))
	got, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-01 12:30:00", got.GenerationTime)
	assert.Equal(t, uint64(42), got.Seed)
	assert.Equal(t, RunID(42).String(), got.RunID)
	assert.Equal(t, 100, got.Stats["syn_flood"].Packets)
	require.NotNil(t, got.Config)
	assert.Equal(t, "syn_flood", got.Config.Attacks[0].Type)
	// sha256("not really a pcap")
	assert.Len(t, got.Checksums["syn_flood.pcap"], 64)

	bad, err := got.Verify(dir)
	require.NoError(t, err)
	assert.Empty(t, bad)

	require.NoError(t, os.WriteFile(capturePath, []byte("tampered"), 0o644))
	bad, err = got.Verify(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"syn_flood.pcap"}, bad)
}

func TestChecksumKnownValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	sum, err := Checksum(path)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sum)
}

func TestAddArtifactMissingFile(t *testing.T) {
	s := New(testConfig(t), time.Unix(0, 0))
	err := s.AddArtifact(filepath.Join(t.TempDir(), "absent.pcap"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConcurrentRecord(t *testing.T) {
	s := New(testConfig(t), time.Unix(0, 0))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Record(string(rune('a'+i)), Stats{Packets: i})
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Stats, 16)
}
