// Package engine runs a whole generation request: every configured attack,
// the benign baseline, optional mixing, the metadata sidecar and the
// metrics textfile.
package engine

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"trafficgen/internal/attack"
	"trafficgen/internal/benign"
	"trafficgen/internal/capture"
	"trafficgen/internal/config"
	"trafficgen/internal/metadata"
	"trafficgen/internal/metrics"
	"trafficgen/internal/packet"
	"trafficgen/internal/sampler"
)

// Engine executes one configuration. It may be run more than once; every
// run with the same configuration produces the same capture bytes.
type Engine struct {
	cfg      *config.Config
	recorder *metrics.Recorder
	now      func() time.Time

	target netip.Addr
	srcMAC net.HardwareAddr
	dstMAC net.HardwareAddr
	codec  capture.Codec
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRecorder shares a metrics recorder across runs.
func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock overrides the wall clock used for the sidecar timestamp and
// wall-time metrics.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New checks the run-wide settings of cfg. cfg must already be normalized.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	target, err := netip.ParseAddr(cfg.TargetIP)
	if err != nil || !target.Is4() {
		return nil, config.Errorf("target_ip", "must be an IPv4 address, got %q", cfg.TargetIP)
	}
	srcMAC, dstMAC, err := cfg.MACs()
	if err != nil {
		return nil, err
	}
	codec, err := capture.ParseCodec(cfg.Capture.Compression)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:    cfg,
		now:    time.Now,
		target: target,
		srcMAC: srcMAC,
		dstMAC: dstMAC,
		codec:  codec,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.recorder == nil {
		e.recorder = metrics.New()
	}
	return e, nil
}

// Result lists what a run produced.
type Result struct {
	RunID     string
	Seed      uint64
	Attacks   []metadata.Stats
	Benign    *metadata.Stats
	QUIC      *metadata.Stats
	Mixed     []metadata.Stats
	Artifacts []string
	Metadata  string
}

// Packets totals the packets of every capture written directly by the run.
func (r *Result) Packets() (n int, bytes int64) {
	add := func(s metadata.Stats) {
		n += s.Packets
		bytes += s.Bytes
	}
	for _, s := range r.Attacks {
		add(s)
	}
	if r.Benign != nil {
		add(*r.Benign)
	}
	if r.QUIC != nil {
		add(*r.QUIC)
	}
	return n, bytes
}

// Run generates everything cfg asks for. On cancellation the captures
// written so far are closed and remain readable.
func (e *Engine) Run(ctx context.Context) (res *Result, err error) {
	cfg := e.cfg
	seed := cfg.SeedValue()
	res = &Result{RunID: metadata.RunID(seed).String(), Seed: seed}
	recorded := false
	defer func() {
		if !recorded {
			e.recorder.RunFinished(e.now(), err)
		}
	}()

	log.Printf("[engine] run %s: target=%s seed=%d output=%s", res.RunID, cfg.TargetIP, seed, cfg.OutputDir)
	if cfg.SeedGenerated {
		log.Printf("[engine] no seed configured, using %d", seed)
	}

	if cfg.DryRun {
		return res, e.dryRun(res)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	set, err := LoadSampler(cfg.Dataset)
	if err != nil {
		return res, err
	}

	sidecar := metadata.New(cfg, e.now())
	names := outputNames(cfg.Attacks)
	res.Attacks = make([]metadata.Stats, len(cfg.Attacks))

	var mu sync.Mutex
	addArtifact := func(path string) {
		mu.Lock()
		res.Artifacts = append(res.Artifacts, path)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, a := range cfg.Attacks {
		path := e.capturePath(names[i])
		g.Go(func() error {
			st, err := e.generateAttack(gctx, i, a, set, path)
			res.Attacks[i] = st
			sidecar.Record(names[i], st)
			addArtifact(path)
			return err
		})
	}
	if cfg.Benign.Enabled {
		path := e.capturePath(cfg.Benign.Output)
		g.Go(func() error {
			st, err := e.generateBenign(gctx, set, path)
			res.Benign = &st
			sidecar.Record(cfg.Benign.Output, st)
			addArtifact(path)
			return err
		})
	}
	if cfg.Benign.QUIC.Enabled {
		path := e.capturePath(cfg.Benign.QUIC.Output)
		g.Go(func() error {
			st, err := e.generateQUICBaseline(gctx, set, path)
			res.QUIC = &st
			sidecar.Record(cfg.Benign.QUIC.Output, st)
			addArtifact(path)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if cfg.Mix.Enabled {
		benignPath := cfg.Mix.BenignPcap
		if benignPath == "" {
			benignPath = e.capturePath(cfg.Benign.Output)
		}
		mixed, err := e.mixAll(ctx, names, benignPath, sidecar)
		res.Mixed = mixed
		for _, s := range mixed {
			res.Artifacts = append(res.Artifacts, s.Output)
		}
		if err != nil {
			return res, err
		}
	}

	slices.Sort(res.Artifacts)
	if !cfg.Metadata.Disabled {
		for _, path := range res.Artifacts {
			if err := sidecar.AddArtifact(path); err != nil {
				return res, err
			}
		}
		res.Metadata = filepath.Join(cfg.OutputDir, cfg.Metadata.File)
		if err := sidecar.Write(res.Metadata); err != nil {
			return res, err
		}
		log.Printf("[engine] metadata written to %s", res.Metadata)
	}
	// The textfile carries this run's outcome.
	e.recorder.RunFinished(e.now(), nil)
	recorded = true
	if cfg.Metrics.Textfile != "" {
		if err := e.recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return res, err
		}
	}
	n, b := res.Packets()
	log.Printf("[engine] run %s complete: %d captures, %d packets, %d bytes", res.RunID, len(res.Artifacts), n, b)
	return res, nil
}

func (e *Engine) dryRun(res *Result) error {
	log.Printf("[engine] dry run: nothing will be written")
	for _, a := range e.cfg.Attacks {
		est, err := attack.EstimateRequest(a)
		if err != nil {
			return err
		}
		log.Printf("[engine] %s: ~%d packets, ~%.2f MiB, ~%.2fs simulated",
			est.Kind, est.Packets, float64(est.Bytes)/(1<<20), est.Duration)
		res.Attacks = append(res.Attacks, metadata.Stats{
			Kind:     est.Kind,
			Packets:  est.Packets,
			Bytes:    est.Bytes,
			PPS:      a.PPS,
			Duration: est.Duration,
			DryRun:   true,
		})
	}
	return nil
}

func (e *Engine) capturePath(name string) string {
	return filepath.Join(e.cfg.OutputDir, name+".pcap"+e.codec.Ext())
}

func (e *Engine) captureOptions() capture.Options {
	return capture.Options{
		Codec:      e.codec,
		FlushEvery: e.cfg.Capture.FlushEvery,
		SnapLen:    uint32(e.cfg.Capture.SnapLen),
	}
}

// writeCapture runs produce against a new capture file at path. The file is
// closed on every path so an interrupted run leaves a readable prefix.
func (e *Engine) writeCapture(path, kind string, produce func(packet.Sink) error) (time.Duration, error) {
	w, err := capture.Create(path, e.captureOptions())
	if err != nil {
		return 0, err
	}
	start := e.now()
	runErr := produce(e.recorder.Sink(kind, w))
	elapsed := e.now().Sub(start)
	closeErr := w.Close()
	e.recorder.ObserveGeneration(kind, elapsed)
	if runErr != nil {
		return elapsed, runErr
	}
	if closeErr != nil {
		return elapsed, fmt.Errorf("close %s: %w", path, closeErr)
	}
	return elapsed, nil
}

func (e *Engine) generateAttack(ctx context.Context, i int, a config.Attack, set *sampler.Set, path string) (metadata.Stats, error) {
	gen, err := attack.New(a, attack.Env{
		Seed:      e.cfg.SeedValue(),
		Index:     i,
		Target:    e.target,
		StartTime: e.cfg.StartTime,
		SrcMAC:    e.srcMAC,
		DstMAC:    e.dstMAC,
		Sampler:   set,
	})
	if err != nil {
		return metadata.Stats{Kind: a.Type}, fmt.Errorf("attacks[%d]: %w", i, err)
	}
	log.Printf("[engine] generating %s: packets=%d pps=%g arrival=%s output=%s", gen.Kind(), a.NumPackets, a.PPS, a.Arrival, path)

	var st attack.Stats
	wall, err := e.writeCapture(path, gen.Kind().String(), func(sink packet.Sink) error {
		var runErr error
		st, runErr = gen.Run(ctx, sink)
		return runErr
	})
	out := metadata.Stats{
		Kind:        st.Kind,
		Output:      path,
		Packets:     st.Packets,
		Bytes:       st.Bytes,
		PPS:         a.PPS,
		FirstTime:   st.FirstTime,
		LastTime:    st.LastTime,
		Duration:    st.Duration(),
		WallSeconds: wall.Seconds(),
		Components:  st.Components,
	}
	if err != nil {
		return out, err
	}
	log.Printf("[engine] %s done: %d packets in %.2fs", st.Kind, st.Packets, wall.Seconds())
	return out, nil
}

func (e *Engine) benignOptions(set *sampler.Set) benign.Options {
	return benign.Options{
		Seed:      e.cfg.SeedValue(),
		StartTime: e.cfg.StartTime,
		SrcMAC:    e.srcMAC,
		DstMAC:    e.dstMAC,
		Sampler:   set,
	}
}

func (e *Engine) generateBenign(ctx context.Context, set *sampler.Set, path string) (metadata.Stats, error) {
	c, err := benign.NewComposer(e.cfg.Benign, e.benignOptions(set))
	if err != nil {
		return metadata.Stats{Kind: benign.Kind}, err
	}
	log.Printf("[engine] generating benign: profile=%s duration=%gs output=%s", e.cfg.Benign.Profile, e.cfg.Benign.Duration, path)
	var st benign.Stats
	wall, err := e.writeCapture(path, benign.Kind, func(sink packet.Sink) error {
		var runErr error
		st, runErr = c.Run(ctx, sink)
		return runErr
	})
	return benignStats(benign.Kind, path, st, wall), err
}

func (e *Engine) generateQUICBaseline(ctx context.Context, set *sampler.Set, path string) (metadata.Stats, error) {
	q, err := benign.NewQUICBaseline(e.cfg.Benign.QUIC, e.benignOptions(set))
	if err != nil {
		return metadata.Stats{Kind: benign.QUICKind}, err
	}
	log.Printf("[engine] generating QUIC baseline: flows=%d packets=%d output=%s", e.cfg.Benign.QUIC.Flows, e.cfg.Benign.QUIC.NumPackets, path)
	var st benign.Stats
	wall, err := e.writeCapture(path, benign.QUICKind, func(sink packet.Sink) error {
		var runErr error
		st, runErr = q.Run(ctx, sink)
		return runErr
	})
	out := benignStats(benign.QUICKind, path, st, wall)
	out.PPS = e.cfg.Benign.QUIC.PPS
	return out, err
}

func benignStats(kind, path string, st benign.Stats, wall time.Duration) metadata.Stats {
	out := metadata.Stats{
		Kind:        kind,
		Output:      path,
		Packets:     st.Packets,
		Bytes:       st.Bytes,
		FirstTime:   st.FirstTime,
		LastTime:    st.LastTime,
		WallSeconds: wall.Seconds(),
		Components:  st.Sessions,
	}
	if st.Packets > 1 {
		out.Duration = st.LastTime - st.FirstTime
	}
	return out
}

// outputNames picks a file stem per attack request: the configured output,
// else the attack type, with "_<index>" appended when stems collide.
func outputNames(attacks []config.Attack) []string {
	names := make([]string, len(attacks))
	seen := make(map[string]int)
	for i, a := range attacks {
		name := a.Output
		if name == "" {
			name = a.Type
		}
		name = strings.TrimSuffix(name, ".pcap")
		names[i] = name
		seen[name]++
	}
	for i, name := range names {
		if seen[name] > 1 {
			names[i] = fmt.Sprintf("%s_%d", name, i)
		}
	}
	return names
}

// LoadSampler fits the configured dataset. A .json path is read as a
// dataset file; anything else is treated as a reference capture.
func LoadSampler(ds config.Dataset) (*sampler.Set, error) {
	if ds.Path == "" {
		return nil, nil
	}
	mode, err := sampler.ParseMode(ds.Mode)
	if err != nil {
		return nil, err
	}
	log.Printf("[engine] loading dataset %s (%s)", ds.Path, mode)
	var set *sampler.Set
	if strings.EqualFold(filepath.Ext(ds.Path), ".json") {
		set, err = sampler.LoadJSON(ds.Path, mode)
	} else {
		var data sampler.Dataset
		data, err = ExtractDataset(ds.Path)
		if err == nil {
			set, err = data.Build(mode)
		}
	}
	if err != nil {
		return nil, err
	}
	set.LogSummary()
	return set, nil
}

// ExtractDataset reads the reference capture at path into a Dataset.
func ExtractDataset(path string) (sampler.Dataset, error) {
	r, err := capture.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	ds, err := sampler.Extract(r, r.LinkType())
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return ds, nil
}
