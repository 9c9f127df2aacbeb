package config

import (
	"fmt"
	"math"
	"net"
	"net/netip"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// AttackTypes lists every recognized attack tag.
var AttackTypes = []string{
	"syn_flood",
	"udp_flood",
	"dns_amp",
	"ntp_amp",
	"http_flood",
	"icmp_flood",
	"fragmentation",
	"ack_flood",
	"volumetric",
	"quic_optimistic_ack",
}

// BotnetTypes are the floods that accept attack_range as a bot pool.
var BotnetTypes = []string{"syn_flood", "udp_flood", "http_flood", "icmp_flood", "ack_flood", "volumetric"}

// HTTPVariants lists the accepted http_flood variants.
var HTTPVariants = []string{"", "default", "get", "get_flood", "post", "post_flood", "random_get", "slowloris", "mixed"}

// VolumetricComponents are the keys accepted in mix_ratios.
var VolumetricComponents = []string{"ack", "http", "icmp", "syn", "udp"}

// DefaultMixRatios is the volumetric mix used when none is configured.
func DefaultMixRatios() map[string]float64 {
	return map[string]float64{"syn": 0.30, "udp": 0.35, "icmp": 0.15, "ack": 0.20}
}

const (
	DefaultTargetIP    = "10.10.1.2"
	DefaultOutputDir   = "./pcaps"
	DefaultStartTime   = 1000.0
	DefaultSrcMAC      = "00:00:00:00:00:02"
	DefaultDstMAC      = "0c:42:a1:dd:5b:28"
	DefaultNumPackets  = 10000
	DefaultPPS         = 1000.0
	DefaultFlushEvery  = 1000
	DefaultSnapLen     = 65535
	DefaultAttackRatio = 0.3
	DefaultMetadata    = "metadata.json"
)

// Config is one generation run. It is immutable once Load or Normalize
// returns.
type Config struct {
	TargetIP  string   `yaml:"target_ip" json:"target_ip"`
	OutputDir string   `yaml:"output_dir" json:"output_dir"`
	Seed      *uint64  `yaml:"seed" json:"seed"`
	StartTime float64  `yaml:"start_time" json:"start_time"`
	SrcMAC    string   `yaml:"src_mac" json:"src_mac"`
	DstMAC    string   `yaml:"dst_mac" json:"dst_mac"`
	Workers   int      `yaml:"workers" json:"workers"`
	DryRun    bool     `yaml:"dry_run" json:"dry_run"`
	Dataset   Dataset  `yaml:"dataset" json:"dataset"`
	Capture   Capture  `yaml:"capture" json:"capture"`
	Attacks   []Attack `yaml:"attacks" json:"attacks"`
	Benign    Benign   `yaml:"benign" json:"benign"`
	Mix       Mix      `yaml:"mix" json:"mix"`
	Metadata  Metadata `yaml:"metadata" json:"metadata"`
	Logging   Logging  `yaml:"logging" json:"logging"`
	Metrics   Metrics  `yaml:"metrics" json:"metrics"`

	// SeedGenerated is set when no seed was configured and one was derived
	// from the clock.
	SeedGenerated bool `yaml:"-" json:"seed_generated,omitempty"`
}

// Dataset points at reference distributions: a JSON file of observed
// values or a capture to extract them from.
type Dataset struct {
	Path string `yaml:"path" json:"path,omitempty"`
	Mode string `yaml:"mode" json:"mode,omitempty"` // empirical | weighted | kde
}

// Capture controls how packet captures are written.
type Capture struct {
	Compression string `yaml:"compression" json:"compression"` // none | gzip | zstd | lz4
	FlushEvery  int    `yaml:"flush_every" json:"flush_every"`
	SnapLen     int    `yaml:"snaplen" json:"snaplen"`
}

// Attack is one attack generation request.
type Attack struct {
	Type       string  `yaml:"type" json:"type"`
	NumPackets int     `yaml:"num_packets" json:"num_packets"`
	PPS        float64 `yaml:"pps" json:"pps"`
	Duration   float64 `yaml:"duration" json:"duration,omitempty"` // seconds; num_packets = duration * pps
	MaxBytes   int64   `yaml:"max_bytes" json:"max_bytes,omitempty"`
	Arrival    string  `yaml:"arrival" json:"arrival"` // burst | steady
	Output     string  `yaml:"output" json:"output,omitempty"`

	// Botnet sources: QUIC attackers, and for the floods in BotnetTypes an
	// optional fixed pool instead of random public sources.
	NumAttackers int    `yaml:"num_attackers" json:"num_attackers,omitempty"`
	AttackRange  string `yaml:"attack_range" json:"attack_range,omitempty"`

	// http_flood: get | post | random_get | slowloris | mixed
	Variant string `yaml:"variant" json:"variant,omitempty"`

	// quic_optimistic_ack
	JumpFactor    int  `yaml:"jump_factor" json:"jump_factor,omitempty"`
	AcksPerPacket int  `yaml:"acks_per_packet" json:"acks_per_packet,omitempty"`
	ServerPort    int  `yaml:"server_port" json:"server_port,omitempty"`
	Mixed         bool `yaml:"mixed" json:"mixed,omitempty"`

	// volumetric
	MixRatios map[string]float64 `yaml:"mix_ratios" json:"mix_ratios,omitempty"`
}

// Benign configures the baseline capture.
type Benign struct {
	Enabled   bool         `yaml:"enabled" json:"enabled"`
	Profile   string       `yaml:"profile" json:"profile"` // light | normal | heavy
	Duration  float64      `yaml:"duration" json:"duration"`
	Output    string       `yaml:"output" json:"output"`
	Diurnal   bool         `yaml:"diurnal" json:"diurnal"`
	StartHour float64      `yaml:"start_hour" json:"start_hour"`
	Phases    bool         `yaml:"phases" json:"phases"`
	QUIC      QUICBaseline `yaml:"quic" json:"quic"`
}

// QUICBaseline configures coherent QUIC background flows.
type QUICBaseline struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	NumPackets  int     `yaml:"num_packets" json:"num_packets"`
	PPS         float64 `yaml:"pps" json:"pps"`
	Flows       int     `yaml:"flows" json:"flows"`
	ClientRange string  `yaml:"client_range" json:"client_range"`
	ServerIP    string  `yaml:"server_ip" json:"server_ip"`
	ServerPort  int     `yaml:"server_port" json:"server_port"`
	Output      string  `yaml:"output" json:"output"`
}

// Mix merges each attack capture with benign traffic.
type Mix struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	BenignPcap  string  `yaml:"benign_pcap" json:"benign_pcap,omitempty"`
	AttackRatio float64 `yaml:"attack_ratio" json:"attack_ratio"`
}

// Metadata controls the sidecar file.
type Metadata struct {
	Disabled bool   `yaml:"disabled" json:"disabled,omitempty"`
	File     string `yaml:"file" json:"file"`
}

type Logging struct {
	Quiet bool `yaml:"quiet" json:"quiet"`
}

type Metrics struct {
	Textfile string `yaml:"textfile" json:"textfile,omitempty"`
}

// now is swapped by tests.
var now = time.Now

// Load reads a YAML (or JSON) configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and normalizes a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return nil, &Error{Reason: yaml.FormatError(err, false, true)}
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize resolves defaults and validates c in place.
func (c *Config) Normalize() error {
	c.applyDefaults()
	return c.validate()
}

// SeedValue returns the resolved seed.
func (c *Config) SeedValue() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

func (c *Config) applyDefaults() {
	if c.TargetIP == "" {
		c.TargetIP = DefaultTargetIP
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.Seed == nil {
		seed := uint64(now().UnixNano())
		c.Seed = &seed
		c.SeedGenerated = true
	}
	if c.StartTime == 0 {
		c.StartTime = DefaultStartTime
	}
	if c.SrcMAC == "" {
		c.SrcMAC = DefaultSrcMAC
	}
	if c.DstMAC == "" {
		c.DstMAC = DefaultDstMAC
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Dataset.Mode == "" {
		c.Dataset.Mode = "empirical"
	}
	if c.Capture.Compression == "" {
		c.Capture.Compression = "none"
	}
	if c.Capture.FlushEvery == 0 {
		c.Capture.FlushEvery = DefaultFlushEvery
	}
	if c.Capture.SnapLen == 0 {
		c.Capture.SnapLen = DefaultSnapLen
	}
	for i := range c.Attacks {
		c.Attacks[i].applyDefaults()
	}
	c.Benign.applyDefaults()
	if c.Mix.AttackRatio == 0 {
		c.Mix.AttackRatio = DefaultAttackRatio
	}
	if c.Metadata.File == "" {
		c.Metadata.File = DefaultMetadata
	}
}

func (a *Attack) applyDefaults() {
	a.Type = strings.ToLower(strings.TrimSpace(a.Type))
	if a.PPS == 0 {
		a.PPS = DefaultPPS
	}
	if a.NumPackets == 0 {
		if a.Duration > 0 && a.PPS > 0 {
			a.NumPackets = int(math.Round(a.Duration * a.PPS))
		} else if a.MaxBytes == 0 {
			a.NumPackets = DefaultNumPackets
		}
	}
	if a.Arrival == "" {
		a.Arrival = defaultArrival(a.Type)
	}
	switch a.Type {
	case "quic_optimistic_ack":
		if a.JumpFactor == 0 {
			a.JumpFactor = 100
		}
		if a.AcksPerPacket == 0 {
			a.AcksPerPacket = 3
		}
		if a.NumAttackers == 0 {
			a.NumAttackers = 500
		}
		if a.AttackRange == "" {
			a.AttackRange = "203.0.113.0/24"
		}
		if a.ServerPort == 0 {
			a.ServerPort = 443
		}
	case "volumetric":
		if len(a.MixRatios) == 0 {
			a.MixRatios = DefaultMixRatios()
		}
	}
	a.Variant = strings.ToLower(strings.TrimSpace(a.Variant))
	if a.AttackRange != "" && a.NumAttackers == 0 && slices.Contains(BotnetTypes, a.Type) {
		a.NumAttackers = 200
	}
}

// defaultArrival follows the flooding behaviour of each kind: reflected and
// application-layer floods arrive steadily, raw floods in bursts.
func defaultArrival(kind string) string {
	switch kind {
	case "dns_amp", "ntp_amp", "http_flood":
		return "steady"
	default:
		return "burst"
	}
}

func (b *Benign) applyDefaults() {
	if b.Profile == "" {
		b.Profile = "normal"
	}
	if b.Duration == 0 {
		b.Duration = 60
	}
	if b.Output == "" {
		b.Output = "benign"
	}
	if b.Diurnal && b.StartHour == 0 {
		b.StartHour = 8
	}
	q := &b.QUIC
	if q.NumPackets == 0 {
		q.NumPackets = 10000
	}
	if q.PPS == 0 {
		q.PPS = DefaultPPS
	}
	if q.Flows == 0 {
		q.Flows = 1000
	}
	if q.ClientRange == "" {
		q.ClientRange = "192.168.1.0/24"
	}
	if q.ServerIP == "" {
		q.ServerIP = "10.0.0.1"
	}
	if q.ServerPort == 0 {
		q.ServerPort = 443
	}
	if q.Output == "" {
		q.Output = "baseline_quic"
	}
}

func (c *Config) validate() error {
	var errs []error
	if a, err := netip.ParseAddr(c.TargetIP); err != nil || !a.Is4() {
		errs = append(errs, Errorf("target_ip", "must be an IPv4 address, got %q", c.TargetIP))
	}
	if math.IsNaN(c.StartTime) || math.IsInf(c.StartTime, 0) || c.StartTime < 0 {
		errs = append(errs, Errorf("start_time", "must be a non-negative finite number of seconds"))
	}
	for _, m := range []struct{ field, v string }{{"src_mac", c.SrcMAC}, {"dst_mac", c.DstMAC}} {
		if hw, err := net.ParseMAC(m.v); err != nil || len(hw) != 6 {
			errs = append(errs, Errorf(m.field, "must be a 6-byte MAC address, got %q", m.v))
		}
	}
	if c.Workers < 1 {
		errs = append(errs, Errorf("workers", "must be >= 1"))
	}
	switch strings.ToLower(c.Dataset.Mode) {
	case "empirical", "values", "weighted", "kde":
	default:
		errs = append(errs, Errorf("dataset.mode", "must be empirical, weighted or kde, got %q", c.Dataset.Mode))
	}
	switch strings.ToLower(c.Capture.Compression) {
	case "none", "gzip", "zstd", "lz4":
	default:
		errs = append(errs, Errorf("capture.compression", "must be none, gzip, zstd or lz4, got %q", c.Capture.Compression))
	}
	if c.Capture.FlushEvery < 1 {
		errs = append(errs, Errorf("capture.flush_every", "must be >= 1"))
	}
	if c.Capture.SnapLen < 64 || c.Capture.SnapLen > 262144 {
		errs = append(errs, Errorf("capture.snaplen", "must be between 64 and 262144"))
	}
	for i := range c.Attacks {
		errs = append(errs, c.Attacks[i].validate(fmt.Sprintf("attacks[%d]", i))...)
	}
	if c.Benign.Enabled || c.Benign.QUIC.Enabled {
		errs = append(errs, c.Benign.validate()...)
	}
	if c.Mix.Enabled {
		if !(c.Mix.AttackRatio > 0 && c.Mix.AttackRatio <= 1) {
			errs = append(errs, Errorf("mix.attack_ratio", "must be in (0, 1], got %v", c.Mix.AttackRatio))
		}
		if c.Mix.BenignPcap == "" && !c.Benign.Enabled {
			errs = append(errs, Errorf("mix.benign_pcap", "is required unless benign.enabled is set"))
		}
	}
	if len(c.Attacks) == 0 && !c.Benign.Enabled && !c.Benign.QUIC.Enabled {
		errs = append(errs, Errorf("attacks", "nothing to generate: configure attacks or enable benign traffic"))
	}
	return writeErr(errs)
}

func (a *Attack) validate(field string) []error {
	var errs []error
	if !slices.Contains(AttackTypes, a.Type) {
		errs = append(errs, Errorf(field+".type", "unknown attack type %q", a.Type))
	}
	if !(a.PPS > 0) || math.IsInf(a.PPS, 0) {
		errs = append(errs, Errorf(field+".pps", "must be a positive finite rate, got %v", a.PPS))
	}
	if a.NumPackets < 0 {
		errs = append(errs, Errorf(field+".num_packets", "must be >= 0"))
	}
	if a.Duration < 0 || math.IsNaN(a.Duration) {
		errs = append(errs, Errorf(field+".duration", "must be >= 0"))
	}
	if a.MaxBytes < 0 {
		errs = append(errs, Errorf(field+".max_bytes", "must be >= 0"))
	}
	if a.NumPackets == 0 && a.MaxBytes == 0 {
		errs = append(errs, Errorf(field, "needs num_packets, duration or max_bytes"))
	}
	switch a.Arrival {
	case "burst", "steady", "normal":
	default:
		errs = append(errs, Errorf(field+".arrival", "must be burst or steady, got %q", a.Arrival))
	}
	if strings.ContainsAny(a.Output, `/\`) {
		errs = append(errs, Errorf(field+".output", "must be a file name, not a path"))
	}
	if a.Variant != "" && a.Type != "http_flood" {
		errs = append(errs, Errorf(field+".variant", "only applies to http_flood"))
	} else if !slices.Contains(HTTPVariants, a.Variant) {
		errs = append(errs, Errorf(field+".variant", "must be get, post, random_get, slowloris or mixed, got %q", a.Variant))
	}
	if a.AttackRange != "" && slices.Contains(BotnetTypes, a.Type) {
		if p, err := netip.ParsePrefix(a.AttackRange); err != nil || !p.Addr().Is4() {
			errs = append(errs, Errorf(field+".attack_range", "must be an IPv4 CIDR, got %q", a.AttackRange))
		}
		if a.NumAttackers < 1 {
			errs = append(errs, Errorf(field+".num_attackers", "must be >= 1"))
		}
	} else if a.AttackRange != "" && a.Type != "quic_optimistic_ack" {
		errs = append(errs, Errorf(field+".attack_range", "does not apply to %s", a.Type))
	}
	switch a.Type {
	case "quic_optimistic_ack":
		if a.JumpFactor < 1 {
			errs = append(errs, Errorf(field+".jump_factor", "must be >= 1"))
		}
		if a.AcksPerPacket < 1 || a.AcksPerPacket > 64 {
			errs = append(errs, Errorf(field+".acks_per_packet", "must be between 1 and 64"))
		}
		if a.NumAttackers < 1 {
			errs = append(errs, Errorf(field+".num_attackers", "must be >= 1"))
		}
		if p, err := netip.ParsePrefix(a.AttackRange); err != nil || !p.Addr().Is4() {
			errs = append(errs, Errorf(field+".attack_range", "must be an IPv4 CIDR, got %q", a.AttackRange))
		}
		if a.ServerPort < 1 || a.ServerPort > 65535 {
			errs = append(errs, Errorf(field+".server_port", "must be a valid port"))
		}
	case "volumetric":
		var total float64
		for _, k := range sortedKeys(a.MixRatios) {
			v := a.MixRatios[k]
			if !slices.Contains(VolumetricComponents, k) {
				errs = append(errs, Errorf(field+".mix_ratios", "unknown component %q (want syn, udp, icmp, ack or http)", k))
			}
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, Errorf(field+".mix_ratios."+k, "must be a non-negative number"))
				continue
			}
			total += v
		}
		if total <= 0 {
			errs = append(errs, Errorf(field+".mix_ratios", "must have a positive total"))
		}
	}
	return errs
}

func (b *Benign) validate() []error {
	var errs []error
	switch b.Profile {
	case "light", "normal", "heavy":
	default:
		errs = append(errs, Errorf("benign.profile", "must be light, normal or heavy, got %q", b.Profile))
	}
	if !(b.Duration > 0) || math.IsInf(b.Duration, 0) {
		errs = append(errs, Errorf("benign.duration", "must be > 0"))
	}
	if b.StartHour < 0 || b.StartHour >= 24 {
		errs = append(errs, Errorf("benign.start_hour", "must be in [0, 24)"))
	}
	if b.QUIC.Enabled {
		q := b.QUIC
		if q.NumPackets < 1 {
			errs = append(errs, Errorf("benign.quic.num_packets", "must be >= 1"))
		}
		if !(q.PPS > 0) || math.IsInf(q.PPS, 0) {
			errs = append(errs, Errorf("benign.quic.pps", "must be a positive finite rate"))
		}
		if q.Flows < 1 {
			errs = append(errs, Errorf("benign.quic.flows", "must be >= 1"))
		}
		if p, err := netip.ParsePrefix(q.ClientRange); err != nil || !p.Addr().Is4() {
			errs = append(errs, Errorf("benign.quic.client_range", "must be an IPv4 CIDR, got %q", q.ClientRange))
		}
		if a, err := netip.ParseAddr(q.ServerIP); err != nil || !a.Is4() {
			errs = append(errs, Errorf("benign.quic.server_ip", "must be an IPv4 address, got %q", q.ServerIP))
		}
		if q.ServerPort < 1 || q.ServerPort > 65535 {
			errs = append(errs, Errorf("benign.quic.server_port", "must be a valid port"))
		}
	}
	return errs
}

// SortedMixRatios returns the volumetric components in a fixed order.
func (a *Attack) SortedMixRatios() []string {
	return sortedKeys(a.MixRatios)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// MACs returns the parsed link-layer addresses.
func (c *Config) MACs() (src, dst net.HardwareAddr, err error) {
	if src, err = net.ParseMAC(c.SrcMAC); err != nil {
		return nil, nil, Errorf("src_mac", "%v", err)
	}
	if dst, err = net.ParseMAC(c.DstMAC); err != nil {
		return nil, nil, Errorf("dst_mac", "%v", err)
	}
	return src, dst, nil
}
