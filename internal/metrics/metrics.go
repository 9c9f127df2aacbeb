// Package metrics counts what a generation run produced. Each Recorder owns
// its registry so concurrent runs and tests never share counters.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"trafficgen/internal/packet"
)

// Recorder holds the generation counters of a process.
type Recorder struct {
	registry *prometheus.Registry

	packets  *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	lastRun  prometheus.Gauge
}

// New returns a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		packets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficgen_packets_generated_total",
			Help: "Packets written, by traffic kind.",
		}, []string{"kind"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficgen_bytes_generated_total",
			Help: "Frame bytes written, by traffic kind.",
		}, []string{"kind"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trafficgen_generation_seconds",
			Help:    "Wall time spent producing one capture.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"kind"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficgen_runs_total",
			Help: "Generation runs by outcome.",
		}, []string{"result"}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "trafficgen_last_run_timestamp_seconds",
			Help: "Unix time the last generation run finished.",
		}),
	}
}

// WithProcessCollectors adds the Go runtime and process collectors, for
// long-lived processes that expose the registry over HTTP.
func (r *Recorder) WithProcessCollectors() *Recorder {
	r.registry.MustRegister(collectors.NewGoCollector())
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Sink wraps next so every packet written through it is counted under kind.
func (r *Recorder) Sink(kind string, next packet.Sink) packet.Sink {
	return &countingSink{
		next:    next,
		packets: r.packets.WithLabelValues(kind),
		bytes:   r.bytes.WithLabelValues(kind),
	}
}

// ObserveGeneration records the wall time of one capture.
func (r *Recorder) ObserveGeneration(kind string, d time.Duration) {
	r.duration.WithLabelValues(kind).Observe(d.Seconds())
}

// RunFinished counts a completed run.
func (r *Recorder) RunFinished(at time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.runs.WithLabelValues(result).Inc()
	r.lastRun.Set(float64(at.UnixNano()) / 1e9)
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

type countingSink struct {
	next    packet.Sink
	packets prometheus.Counter
	bytes   prometheus.Counter
}

func (s *countingSink) WritePacket(p packet.Packet) error {
	if err := s.next.WritePacket(p); err != nil {
		return err
	}
	s.packets.Inc()
	s.bytes.Add(float64(len(p.Data)))
	return nil
}
