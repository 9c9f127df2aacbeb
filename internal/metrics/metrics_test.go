package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficgen/internal/packet"
)

func TestSinkCountsPacketsAndBytes(t *testing.T) {
	rec := New()
	var c packet.Collector
	sink := rec.Sink("syn_flood", &c)
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.WritePacket(packet.Packet{Timestamp: float64(i), Data: make([]byte, 60)}))
	}
	assert.Len(t, c.Packets, 5)
	assert.Equal(t, 5.0, testutil.ToFloat64(rec.packets.WithLabelValues("syn_flood")))
	assert.Equal(t, 300.0, testutil.ToFloat64(rec.bytes.WithLabelValues("syn_flood")))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.packets.WithLabelValues("benign")))
}

type failingSink struct{}

func (failingSink) WritePacket(packet.Packet) error { return errors.New("disk full") }

func TestSinkSkipsFailedWrites(t *testing.T) {
	rec := New()
	sink := rec.Sink("udp_flood", failingSink{})
	assert.Error(t, sink.WritePacket(packet.Packet{Data: make([]byte, 60)}))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.packets.WithLabelValues("udp_flood")))
}

func TestRecordersAreIsolated(t *testing.T) {
	a, b := New(), New()
	require.NoError(t, a.Sink("x", &packet.Collector{}).WritePacket(packet.Packet{Data: []byte{1}}))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.packets.WithLabelValues("x")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.packets.WithLabelValues("x")))
}

func TestRunFinished(t *testing.T) {
	rec := New()
	rec.RunFinished(time.Unix(1700000000, 0), nil)
	rec.RunFinished(time.Unix(1700000100, 0), errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("error")))
	assert.Equal(t, 1700000100.0, testutil.ToFloat64(rec.lastRun))
}

func TestWriteTextfile(t *testing.T) {
	rec := New()
	require.NoError(t, rec.Sink("dns_amp", &packet.Collector{}).WritePacket(packet.Packet{Data: make([]byte, 100)}))
	rec.ObserveGeneration("dns_amp", 250*time.Millisecond)

	path := filepath.Join(t.TempDir(), "trafficgen.prom")
	require.NoError(t, rec.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `trafficgen_packets_generated_total{kind="dns_amp"} 1`)
	assert.Contains(t, text, `trafficgen_bytes_generated_total{kind="dns_amp"} 100`)
	assert.Contains(t, text, `trafficgen_generation_seconds_count{kind="dns_amp"} 1`)
}

func TestWebServerRoutes(t *testing.T) {
	rec := New()
	require.NoError(t, rec.Sink("icmp_flood", &packet.Collector{}).WritePacket(packet.Packet{Data: make([]byte, 98)}))
	ws := NewWebServer("127.0.0.1:0", rec)
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	get := func(path string) string {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	assert.Equal(t, "ok", get("/healthz"))
	assert.Contains(t, get("/metrics"), `trafficgen_packets_generated_total{kind="icmp_flood"} 1`)
	assert.Contains(t, get("/status"), "No run finished yet")

	ws.SetStatus(RunStatus{RunID: "abc", Finished: time.Unix(0, 0).UTC(), Captures: 2, Packets: 10, Bytes: 2048})
	status := get("/status")
	assert.Contains(t, status, "Run ID:       abc")
	assert.True(t, strings.Contains(status, "2.0 KiB"), status)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "3.0 MiB", formatBytes(3<<20))
}
