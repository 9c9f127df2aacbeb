package capture

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"trafficgen/internal/config"
)

// Codec is the compression applied to a capture file.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecGzip
	CodecZstd
	CodecLZ4
)

var codecNames = [...]string{
	CodecNone: "none",
	CodecGzip: "gzip",
	CodecZstd: "zstd",
	CodecLZ4:  "lz4",
}

var codecExts = [...]string{
	CodecNone: "",
	CodecGzip: ".gz",
	CodecZstd: ".zst",
	CodecLZ4:  ".lz4",
}

func (c Codec) String() string {
	if int(c) < len(codecNames) {
		return codecNames[c]
	}
	return fmt.Sprintf("Codec(%d)", uint8(c))
}

// Ext is the suffix appended after ".pcap".
func (c Codec) Ext() string {
	if int(c) < len(codecExts) {
		return codecExts[c]
	}
	return ""
}

// ParseCodec maps a config name to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CodecNone, nil
	case "gzip", "gz":
		return CodecGzip, nil
	case "zstd", "zst":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return CodecNone, config.Errorf("capture.compression", "unknown codec %q (want none, gzip, zstd or lz4)", s)
	}
}

// CodecForPath infers the codec from a file extension.
func CodecForPath(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return CodecGzip
	case ".zst", ".zstd":
		return CodecZstd
	case ".lz4":
		return CodecLZ4
	default:
		return CodecNone
	}
}

// flushWriter is a compressor that can emit a decodable prefix on demand.
type flushWriter interface {
	io.WriteCloser
	Flush() error
}

type nopFlusher struct{ io.Writer }

func (nopFlusher) Flush() error { return nil }
func (nopFlusher) Close() error { return nil }

func newEncoder(c Codec, w io.Writer) (flushWriter, error) {
	switch c {
	case CodecNone:
		return nopFlusher{w}, nil
	case CodecGzip:
		return gzip.NewWriterLevel(w, gzip.BestSpeed)
	case CodecZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	case CodecLZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
			return nil, err
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("capture: unsupported codec %v", c)
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

func newDecoder(c Codec, r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecNone:
		return io.NopCloser(r), nil
	case CodecGzip:
		return gzip.NewReader(r)
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return readCloser{Reader: zr, close: func() error { zr.Close(); return nil }}, nil
	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("capture: unsupported codec %v", c)
	}
}
