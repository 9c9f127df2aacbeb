package quicwire

// Builder assembles one QUIC packet. The first encoding error sticks: later
// calls are no-ops and Bytes reports it.
type Builder struct {
	buf []byte
	err error
}

// NewBuilder returns a Builder with room for sizeHint bytes.
func NewBuilder(sizeHint int) *Builder {
	return &Builder{buf: make([]byte, 0, sizeHint)}
}

// Reset empties the builder and clears any stored error.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.err = nil
}

// LongHeader writes h.
func (b *Builder) LongHeader(h *LongHeader) {
	if b.err != nil {
		return
	}
	b.buf, b.err = h.Append(b.buf)
}

// ShortHeader writes h.
func (b *Builder) ShortHeader(h *ShortHeader) {
	if b.err != nil {
		return
	}
	b.buf, b.err = h.Append(b.buf)
}

// Frame writes f.
func (b *Builder) Frame(f Frame) {
	if b.err != nil {
		return
	}
	b.buf, b.err = f.Append(b.buf)
}

// PadTo appends PADDING until the packet is at least size bytes.
func (b *Builder) PadTo(size int) {
	if b.err != nil || len(b.buf) >= size {
		return
	}
	b.buf, b.err = PaddingFrame{N: size - len(b.buf)}.Append(b.buf)
}

// Len is the number of bytes written so far.
func (b *Builder) Len() int { return len(b.buf) }

// Err returns the first encoding error.
func (b *Builder) Err() error { return b.err }

// Bytes returns a copy of the packet.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out, nil
}
