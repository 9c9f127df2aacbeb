// Package metadata writes the JSON sidecar that accompanies a generation
// run: the resolved configuration, the seed, per-request statistics and a
// checksum of every capture produced.
package metadata

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"trafficgen/internal/config"
)

// TimeLayout matches the generation_time format of earlier sidecars.
const TimeLayout = "2006-01-02 15:04:05"

// runNamespace scopes run ids so the same seed always maps to the same id.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("trafficgen.run"))

// RunID derives a stable version 5 UUID from the seed.
func RunID(seed uint64) uuid.UUID {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seed)
	return uuid.NewSHA1(runNamespace, b[:])
}

// Stats is the record kept for one generated (or estimated) capture.
type Stats struct {
	Kind        string         `json:"kind"`
	Output      string         `json:"output_file,omitempty"`
	Packets     int            `json:"num_packets"`
	Bytes       int64          `json:"bytes"`
	PPS         float64        `json:"pps,omitempty"`
	FirstTime   float64        `json:"first_timestamp,omitempty"`
	LastTime    float64        `json:"last_timestamp,omitempty"`
	Duration    float64        `json:"duration_sec"`
	WallSeconds float64        `json:"wall_sec,omitempty"`
	Components  map[string]int `json:"components,omitempty"`
	DryRun      bool           `json:"dry_run"`
}

// Sidecar is the document written next to the captures. Record and
// AddArtifact may be called from concurrent generators.
type Sidecar struct {
	RunID          string            `json:"run_id"`
	GenerationTime string            `json:"generation_time"`
	Seed           uint64            `json:"seed"`
	Config         *config.Config    `json:"config"`
	Stats          map[string]Stats  `json:"stats"`
	Checksums      map[string]string `json:"checksums"`

	mu sync.Mutex
}

// New starts a sidecar for cfg. now is the wall-clock generation time; it is
// recorded here only and never reaches capture bytes.
func New(cfg *config.Config, now time.Time) *Sidecar {
	seed := cfg.SeedValue()
	return &Sidecar{
		RunID:          RunID(seed).String(),
		GenerationTime: now.Format(TimeLayout),
		Seed:           seed,
		Config:         cfg,
		Stats:          make(map[string]Stats),
		Checksums:      make(map[string]string),
	}
}

// Record stores the statistics of the request named name.
func (s *Sidecar) Record(name string, st Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stats[name] = st
}

// AddArtifact hashes the file at path and files it under its base name.
func (s *Sidecar) AddArtifact(path string) error {
	sum, err := Checksum(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Checksums[filepath.Base(path)] = sum
	return nil
}

// Checksum returns the hex SHA-256 of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Write stores the sidecar as indented JSON, replacing path atomically.
func (s *Sidecar) Write(path string) error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Read loads a sidecar written by Write.
func Read(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var s Sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", path, err)
	}
	return &s, nil
}

// Verify recomputes every recorded checksum against the files in dir and
// returns the names that no longer match.
func (s *Sidecar) Verify(dir string) ([]string, error) {
	var bad []string
	for name, want := range s.Checksums {
		got, err := Checksum(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if got != want {
			bad = append(bad, name)
		}
	}
	slices.Sort(bad)
	return bad, nil
}
