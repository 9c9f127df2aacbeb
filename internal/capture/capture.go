// Package capture writes and reads pcap files, optionally compressed.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"

	"trafficgen/internal/packet"
)

// Default capture parameters.
const (
	DefaultSnapLen    = 65535
	DefaultFlushEvery = 1000
)

// Options configures a Writer.
type Options struct {
	Codec      Codec
	FlushEvery int // packets between flushes; 0 means DefaultFlushEvery
	SnapLen    uint32
}

func (o *Options) setDefaults() {
	if o.FlushEvery <= 0 {
		o.FlushEvery = DefaultFlushEvery
	}
	if o.SnapLen == 0 {
		o.SnapLen = DefaultSnapLen
	}
}

// Writer is a packet.Sink producing a nanosecond-resolution Ethernet pcap.
// It flushes every FlushEvery packets so an interrupted run leaves a
// readable, truncated capture.
type Writer struct {
	opts  Options
	file  io.Closer
	enc   flushWriter
	buf   *bufio.Writer
	pcap  *pcapgo.Writer
	count int
	bytes int64
	last  float64
}

// Create opens path for writing.
func Create(path string, opts Options) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	w, err := newWriter(f, f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter writes a capture to w. Close does not close w.
func NewWriter(w io.Writer, opts Options) (*Writer, error) {
	return newWriter(w, nil, opts)
}

func newWriter(w io.Writer, closer io.Closer, opts Options) (*Writer, error) {
	opts.setDefaults()
	enc, err := newEncoder(opts.Codec, w)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriterSize(enc, 64*1024)
	pw := pcapgo.NewWriterNanos(buf)
	if err := pw.WriteFileHeader(opts.SnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{opts: opts, file: closer, enc: enc, buf: buf, pcap: pw, last: math.Inf(-1)}, nil
}

// WritePacket appends p. Timestamps must not go backwards.
func (w *Writer) WritePacket(p packet.Packet) error {
	if p.Timestamp < w.last {
		return fmt.Errorf("capture: timestamp %.9f before %.9f", p.Timestamp, w.last)
	}
	data := p.Data
	if uint32(len(data)) > w.opts.SnapLen {
		data = data[:w.opts.SnapLen]
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     Time(p.Timestamp),
		CaptureLength: len(data),
		Length:        len(p.Data),
	}
	if err := w.pcap.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	w.last = p.Timestamp
	w.count++
	w.bytes += int64(len(p.Data))
	if w.count%w.opts.FlushEvery == 0 {
		return w.Flush()
	}
	return nil
}

// Flush pushes buffered records through the codec.
func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush capture: %w", err)
	}
	if err := w.enc.Flush(); err != nil {
		return fmt.Errorf("flush %s stream: %w", w.opts.Codec, err)
	}
	return nil
}

// Count is the number of packets written.
func (w *Writer) Count() int { return w.count }

// Bytes is the total original length of the packets written.
func (w *Writer) Bytes() int64 { return w.bytes }

// Close flushes, finishes the codec stream and closes the file.
func (w *Writer) Close() error {
	err := w.buf.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Time converts a float timestamp in seconds to a time.Time with
// nanosecond precision.
func Time(ts float64) time.Time {
	sec := math.Floor(ts)
	nsec := math.Round((ts - sec) * 1e9)
	if nsec >= 1e9 {
		sec++
		nsec -= 1e9
	}
	return time.Unix(int64(sec), int64(nsec)).UTC()
}

// Seconds converts a capture timestamp back to float seconds.
func Seconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// Reader reads packets from a capture file, decompressing as needed. It
// implements gopacket.PacketDataSource.
type Reader struct {
	file io.Closer
	dec  io.ReadCloser
	pcap *pcapgo.Reader
}

// Open opens path, choosing the codec from its extension.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	r, err := newReader(f, CodecForPath(path))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	r.file = f
	return r, nil
}

// NewReader reads a capture compressed with codec from src.
func NewReader(src io.Reader, codec Codec) (*Reader, error) {
	return newReader(src, codec)
}

func newReader(src io.Reader, codec Codec) (*Reader, error) {
	dec, err := newDecoder(codec, src)
	if err != nil {
		return nil, err
	}
	pr, err := pcapgo.NewReader(bufio.NewReader(dec))
	if err != nil {
		dec.Close()
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	return &Reader{dec: dec, pcap: pr}, nil
}

// ReadPacketData returns the next record.
func (r *Reader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return r.pcap.ReadPacketData()
}

// LinkType is the link type from the file header.
func (r *Reader) LinkType() layers.LinkType { return r.pcap.LinkType() }

// Next returns the next packet, or io.EOF. A capture cut off mid-record
// also ends with io.EOF.
func (r *Reader) Next() (packet.Packet, error) {
	data, ci, err := r.pcap.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return packet.Packet{}, err
	}
	return packet.Packet{Timestamp: Seconds(ci.Timestamp), Data: data}, nil
}

// Close releases the decoder and the file.
func (r *Reader) Close() error {
	err := r.dec.Close()
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadAll loads every packet of the capture at path, tagging each with kind.
func ReadAll(path, kind string) ([]packet.Packet, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out []packet.Packet
	for {
		p, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("read %s: %w", path, err)
		}
		p.Kind = kind
		out = append(out, p)
	}
}
