// Package benign composes background traffic: coherent TCP, DNS, SSH, ICMP,
// NTP and UDP sessions paced by a time-of-day model, and baseline QUIC
// flows.
package benign

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"net"
	"net/netip"

	"trafficgen/internal/arrival"
	"trafficgen/internal/config"
	"trafficgen/internal/packet"
	"trafficgen/internal/rng"
	"trafficgen/internal/sampler"
)

// Kind tags every packet written by the composer.
const Kind = "benign"

// Profile sets the session mix and rate of a capture.
type Profile struct {
	Name            string
	EventsPerSecond float64
	Weights         [numSessionKinds]float64
}

var profiles = map[string]Profile{
	"light":  {Name: "light", EventsPerSecond: 10, Weights: weights(0.40, 0.30, 0.10, 0.15, 0.05, 0)},
	"normal": {Name: "normal", EventsPerSecond: 50, Weights: weights(0.50, 0.25, 0.10, 0.10, 0.05, 0)},
	"heavy":  {Name: "heavy", EventsPerSecond: 200, Weights: weights(0.60, 0.20, 0.10, 0.05, 0.05, 0)},
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, config.Errorf("benign.profile", "unknown profile %q", name)
	}
	return p, nil
}

// Idle time after each kind of session, in seconds.
var gaps = [numSessionKinds][2]float64{
	SessionHTTP: {0.1, 2.0},
	SessionDNS:  {0.1, 1.0},
	SessionSSH:  {1.0, 5.0},
	SessionICMP: {0.5, 3.0},
	SessionNTP:  {1.0, 10.0},
	SessionUDP:  {0.1, 1.0},
}

// Options carries the run-wide inputs of a composer.
type Options struct {
	Seed      uint64
	StartTime float64
	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	Sampler   *sampler.Set
}

// Stats summarizes a benign capture.
type Stats struct {
	Packets   int            `json:"packets"`
	Bytes     int64          `json:"bytes"`
	FirstTime float64        `json:"first_timestamp"`
	LastTime  float64        `json:"last_timestamp"`
	Sessions  map[string]int `json:"sessions"`
}

func (s *Stats) add(p packet.Packet) {
	if s.Packets == 0 {
		s.FirstTime = p.Timestamp
	}
	s.LastTime = p.Timestamp
	s.Packets++
	s.Bytes += int64(len(p.Data))
}

// Composer schedules benign sessions back to back.
type Composer struct {
	cfg     config.Benign
	profile Profile
	opts    Options
	build   *packet.Builder
}

// NewComposer validates cfg.
func NewComposer(cfg config.Benign, opts Options) (*Composer, error) {
	p, err := LookupProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}
	if !(cfg.Duration > 0) {
		return nil, config.Errorf("benign.duration", "must be > 0")
	}
	return &Composer{
		cfg:     cfg,
		profile: p,
		opts:    opts,
		build:   packet.NewBuilder(opts.SrcMAC, opts.DstMAC),
	}, nil
}

// Schedule lists the session kinds in the order they will run. Without
// phases the list holds int(total·weight) of each kind, shuffled.
func (c *Composer) Schedule() []SessionKind {
	r := rng.Derive(c.opts.Seed, "benign.schedule", 0)
	total := int(c.cfg.Duration * c.profile.EventsPerSecond)
	if c.cfg.Phases {
		out := make([]SessionKind, total)
		for i := range out {
			ph := phaseAt(float64(i) / float64(total))
			out[i] = SessionKind(rng.WeightedIndex(r, ph.Weights[:]))
		}
		return out
	}
	var out []SessionKind
	for k := SessionKind(0); k < numSessionKinds; k++ {
		n := int(float64(total) * c.profile.Weights[k])
		for range n {
			out = append(out, k)
		}
	}
	rng.Shuffle(r, out)
	return out
}

// Run writes every scheduled session to sink in timestamp order.
func (c *Composer) Run(ctx context.Context, sink packet.Sink) (Stats, error) {
	st := Stats{Sessions: make(map[string]int)}
	events := c.Schedule()
	pace := rng.Derive(c.opts.Seed, "benign.pace", 0)
	now := c.opts.StartTime

	log.Printf("[benign] %d sessions, profile=%s phases=%t diurnal=%t", len(events), c.profile.Name, c.cfg.Phases, c.cfg.Diurnal)
	for i, kind := range events {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		var ph *Phase
		if c.cfg.Phases {
			ph = phaseAt(float64(i) / float64(len(events)))
		}

		r := rng.Derive(c.opts.Seed, "benign.session", uint64(i))
		t := &tape{build: c.build, kind: Kind, now: now}
		c.session(t, r, pace, kind, ph)
		if t.err != nil {
			return st, fmt.Errorf("benign %s session %d: %w", kind, i, t.err)
		}
		for _, p := range t.out {
			if err := sink.WritePacket(p); err != nil {
				return st, fmt.Errorf("benign: write packet: %w", err)
			}
			st.add(p)
		}
		st.Sessions[kind.String()]++
		now = t.now + c.gap(pace, kind, ph, t.now)
	}
	return st, nil
}

// session picks peers from the pacing stream and runs one conversation on
// its own stream r.
func (c *Composer) session(t *tape, r, pace *rand.Rand, kind SessionKind, ph *Phase) {
	p := peers{client: rng.Choice(pace, clients)}
	switch kind {
	case SessionHTTP, SessionSSH, SessionUDP:
		p.server = rng.Choice(pace, webServers)
	case SessionDNS:
		p.server = rng.Choice(pace, dnsServers)
	case SessionICMP:
		p.server = packet.RandomPublicIP(pace)
	case SessionNTP:
		p.server = rng.Choice(pace, ntpServers)
	}
	s := c.opts.Sampler
	switch kind {
	case SessionHTTP:
		httpSession(t, r, s, p)
	case SessionDNS:
		dnsSession(t, r, s, p)
	case SessionSSH:
		sshSession(t, r, s, p)
	case SessionICMP:
		icmpSession(t, r, s, p)
	case SessionNTP:
		ntpSession(t, r, s, p)
	case SessionUDP:
		udpSession(t, r, p, ph != nil && ph.Name == "UDP Light")
	}
}

// gap is the idle time after a session ending at end.
func (c *Composer) gap(pace *rand.Rand, kind SessionKind, ph *Phase, end float64) float64 {
	g := rng.Uniform(pace, gaps[kind][0], gaps[kind][1])
	if c.cfg.Diurnal {
		hour := c.cfg.StartHour + (end-c.opts.StartTime)/3600
		g /= DiurnalMultiplier(pace, hour)
	}
	if ph != nil {
		g = g/ph.Intensity + (pace.Float64()-0.5)*ph.Jitter
	}
	return math.Max(g, arrival.MinInterval)
}

// parseIPv4 reports a non-IPv4 address as a configuration error on field.
func parseIPv4(field, s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil || !a.Is4() {
		return netip.Addr{}, config.Errorf(field, "must be an IPv4 address, got %q", s)
	}
	return a, nil
}
