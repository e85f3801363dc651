package wire

// Buffer accumulates inbound transport bytes until they can be parsed.
//
// It is split into two regions backed by one slice: bytes written by the
// transport land in the write region; PrepareRead moves them into the read
// region as a parser asks for them; Consume drops parsed bytes from the
// front. The read region therefore only ever holds bytes belonging to
// frames (or handshake headers) that are not yet fully parsed.
type Buffer struct {
	ri int // end of the read region, ri <= wi
	wi int // end of the write region, wi == len(data)

	data []byte
}

func NewBuffer() *Buffer {
	return &Buffer{data: make([]byte, 0, 4096)}
}

// Write appends p to the write region, growing the buffer as needed.
func (b *Buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	b.wi += len(p)
	b.data = b.data[:b.wi]
	return len(p), nil
}

// Reserve grows the underlying slice so at least n more bytes fit in the
// write region without reallocation.
func (b *Buffer) Reserve(n int) {
	existing := cap(b.data) - b.wi
	if need := n - existing; need > 0 {
		b.data = b.data[:cap(b.data)]
		b.data = append(b.data, make([]byte, need)...)
	}
	b.data = b.data[:b.wi]
}

// Commit moves n bytes from the write region into the read region.
func (b *Buffer) Commit(n int) {
	if n < 0 {
		n = 0
	}
	b.ri += n
	if b.ri > b.wi {
		b.ri = b.wi
	}
}

// PrepareRead ensures n bytes are readable, committing from the write
// region if needed. It returns ErrNeedMore when fewer than n bytes exist
// in total, leaving the regions untouched.
func (b *Buffer) PrepareRead(n int) error {
	if need := n - b.ReadLen(); need > 0 {
		if b.WriteLen() < need {
			return ErrNeedMore
		}
		b.Commit(need)
	}
	return nil
}

// Data returns the read region. The slice is invalidated by Consume.
func (b *Buffer) Data() []byte {
	return b.data[:b.ri]
}

// ReadLen is the number of readable bytes.
func (b *Buffer) ReadLen() int {
	return b.ri
}

// WriteLen is the number of written but not yet readable bytes.
func (b *Buffer) WriteLen() int {
	return b.wi - b.ri
}

// Consume removes n bytes from the front of the read region.
func (b *Buffer) Consume(n int) {
	if n > b.ri {
		n = b.ri
	}
	if n != 0 {
		copy(b.data, b.data[n:b.wi])
	}
	b.wi -= n
	b.ri -= n
	b.data = b.data[:b.wi]
}

// Reset drops both regions.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.ri = 0
	b.wi = 0
}
