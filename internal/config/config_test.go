package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
seed: 42
attacks:
  - type: syn_flood
  - type: quic_optimistic_ack
    num_packets: 50
  - type: volumetric
    duration: 2
    pps: 500
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultTargetIP, cfg.TargetIP)
	assert.Equal(t, DefaultStartTime, cfg.StartTime)
	assert.Equal(t, uint64(42), cfg.SeedValue())
	assert.False(t, cfg.SeedGenerated)
	assert.Equal(t, "none", cfg.Capture.Compression)
	assert.Equal(t, DefaultFlushEvery, cfg.Capture.FlushEvery)

	syn := cfg.Attacks[0]
	assert.Equal(t, DefaultNumPackets, syn.NumPackets)
	assert.Equal(t, DefaultPPS, syn.PPS)
	assert.Equal(t, "burst", syn.Arrival)

	quic := cfg.Attacks[1]
	assert.Equal(t, 100, quic.JumpFactor)
	assert.Equal(t, 3, quic.AcksPerPacket)
	assert.Equal(t, 500, quic.NumAttackers)
	assert.Equal(t, "203.0.113.0/24", quic.AttackRange)

	vol := cfg.Attacks[2]
	assert.Equal(t, 1000, vol.NumPackets)
	assert.Equal(t, DefaultMixRatios(), vol.MixRatios)
	assert.Equal(t, []string{"ack", "icmp", "syn", "udp"}, vol.SortedMixRatios())
}

func TestSteadyArrivalDefaults(t *testing.T) {
	cfg, err := Parse([]byte("seed: 1\nattacks: [{type: dns_amp}, {type: http_flood}, {type: ntp_amp}]"))
	require.NoError(t, err)
	for _, a := range cfg.Attacks {
		assert.Equal(t, "steady", a.Arrival, a.Type)
	}
}

func TestSeedFromClockWhenUnset(t *testing.T) {
	prev := now
	now = func() time.Time { return time.Unix(0, 777) }
	defer func() { now = prev }()

	cfg, err := Parse([]byte("attacks: [{type: udp_flood}]"))
	require.NoError(t, err)
	assert.Equal(t, uint64(777), cfg.SeedValue())
	assert.True(t, cfg.SeedGenerated)
}

func TestUnknownAttackTypeIsConfigError(t *testing.T) {
	_, err := Parse([]byte("seed: 1\nattacks: [{type: smurf}]"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "attacks[0].type", cerr.Field)
}

func TestValidationAggregatesErrors(t *testing.T) {
	_, err := Parse([]byte(`
seed: 1
target_ip: not-an-ip
capture: {compression: brotli}
attacks:
  - type: syn_flood
    pps: -5
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "validation failed:\n  - "))
	assert.Contains(t, msg, "target_ip")
	assert.Contains(t, msg, "capture.compression")
	assert.Contains(t, msg, "attacks[0].pps")
}

func TestMixRatiosValidation(t *testing.T) {
	_, err := Parse([]byte("seed: 1\nattacks: [{type: volumetric, mix_ratios: {syn: 1, dns: 1}}]"))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Parse([]byte("seed: 1\nattacks: [{type: volumetric, mix_ratios: {syn: 0, udp: 0}}]"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestHTTPVariantValidation(t *testing.T) {
	cfg, err := Parse([]byte("seed: 1\nattacks: [{type: http_flood, variant: Slowloris}]"))
	require.NoError(t, err)
	assert.Equal(t, "slowloris", cfg.Attacks[0].Variant)

	_, err = Parse([]byte("seed: 1\nattacks: [{type: http_flood, variant: flood}]"))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Parse([]byte("seed: 1\nattacks: [{type: udp_flood, variant: get}]"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestBotnetRange(t *testing.T) {
	cfg, err := Parse([]byte("seed: 1\nattacks: [{type: syn_flood, attack_range: 198.51.100.0/24}]"))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Attacks[0].NumAttackers)

	_, err = Parse([]byte("seed: 1\nattacks: [{type: syn_flood, attack_range: not-a-cidr}]"))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Parse([]byte("seed: 1\nattacks: [{type: dns_amp, attack_range: 198.51.100.0/24}]"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestStrictRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("seed: 1\nattacks: [{type: syn_flood, jumpfactor: 3}]"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNothingToGenerate(t *testing.T) {
	_, err := Parse([]byte("seed: 1"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMixNeedsBenignSource(t *testing.T) {
	_, err := Parse([]byte("seed: 1\nattacks: [{type: syn_flood}]\nmix: {enabled: true}"))
	assert.ErrorIs(t, err, ErrInvalid)
	cfg, err := Parse([]byte("seed: 1\nattacks: [{type: syn_flood}]\nbenign: {enabled: true}\nmix: {enabled: true}"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAttackRatio, cfg.Mix.AttackRatio)
	assert.Equal(t, "normal", cfg.Benign.Profile)
}

func TestJSONAccepted(t *testing.T) {
	cfg, err := Parse([]byte(`{"seed": 9, "attacks": [{"type": "icmp_flood", "num_packets": 5}]}`))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Attacks[0].NumPackets)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestReloadSwapsValidRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trafficgen.yaml")
	writeConfig(t, path, "seed: 1\nattacks: [{type: syn_flood, num_packets: 10}]\n")
	r, err := NewReloadable(path)
	require.NoError(t, err)
	// Drive reloads by hand only.
	require.NoError(t, r.Close())

	var got *Config
	r.Watch(func(_, n *Config) { got = n })

	writeConfig(t, path, "seed: 1\nattacks: [{type: syn_flood, num_packets: 20}]\n")
	require.NoError(t, r.Reload())
	require.NotNil(t, got)
	assert.Equal(t, 20, r.Get().Attacks[0].NumPackets)

	writeConfig(t, path, "seed: 1\nattacks: [{type: bogus}]\n")
	assert.Error(t, r.Reload())
	assert.Equal(t, 20, r.Get().Attacks[0].NumPackets)

	writeConfig(t, path, "seed: 1\noutput_dir: /elsewhere\nattacks: [{type: syn_flood}]\n")
	assert.Error(t, r.Reload())
}

func TestWatcherPicksUpWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trafficgen.yaml")
	writeConfig(t, path, "seed: 1\nattacks: [{type: syn_flood, num_packets: 10}]\n")
	r, err := NewReloadable(path)
	require.NoError(t, err)
	defer r.Close()

	writeConfig(t, path, "seed: 1\nattacks: [{type: syn_flood, num_packets: 30}]\n")
	require.Eventually(t, func() bool {
		return r.Get().Attacks[0].NumPackets == 30
	}, 5*time.Second, 20*time.Millisecond)
}
