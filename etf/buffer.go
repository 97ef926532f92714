package etf

// Buffer accumulates encoded terms. The zero value is a resizable buffer.
// A fixed-capacity buffer refuses writes that would exceed its capacity;
// a refused write leaves the contents untouched, so a failed encode step
// is never partially observable.
type Buffer struct {
	data  []byte
	fixed bool
}

// NewBuffer returns an empty resizable buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewFixedBuffer returns a buffer that holds at most capacity bytes.
func NewFixedBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity), fixed: true}
}

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the written bytes. The slice is owned by the buffer and
// is only valid until the next write or Reset.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Reset discards the contents without releasing capacity.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// reserve appends n zero bytes and returns the slice covering them. In
// fixed mode the capacity is checked before the buffer is extended.
func (b *Buffer) reserve(n int) ([]byte, error) {
	if b.fixed && len(b.data)+n > cap(b.data) {
		return nil, ErrBufferResize
	}
	off := len(b.data)
	for cap(b.data) < off+n {
		b.data = append(b.data[:cap(b.data)], 0)
	}
	b.data = b.data[:off+n]
	return b.data[off : off+n], nil
}

// writeByte appends a single byte.
func (b *Buffer) writeByte(c byte) error {
	s, err := b.reserve(1)
	if err != nil {
		return err
	}
	s[0] = c
	return nil
}

// write appends p.
func (b *Buffer) write(p []byte) error {
	s, err := b.reserve(len(p))
	if err != nil {
		return err
	}
	copy(s, p)
	return nil
}
