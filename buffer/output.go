package buffer

// DefaultOutputChunkSize is the size of the chunks handed to the transport.
const DefaultOutputChunkSize = 4096

// Output collects encoder output into fixed-size chunks that the transport
// drains as they fill.  It implements io.Writer.
type Output struct {
	chunkSize int
	cur       []byte
	ready     [][]byte
	written   int64
}

// NewOutput returns an Output producing chunks of chunkSize bytes.
func NewOutput(chunkSize int) *Output {
	if chunkSize <= 0 {
		chunkSize = DefaultOutputChunkSize
	}
	return &Output{chunkSize: chunkSize}
}

// Write splits p into chunks.  It never fails.
func (o *Output) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		if o.cur == nil {
			o.cur = make([]byte, 0, o.chunkSize)
		}
		k := min(o.chunkSize-len(o.cur), len(p))
		o.cur = append(o.cur, p[:k]...)
		p = p[k:]
		if len(o.cur) == o.chunkSize {
			o.ready = append(o.ready, o.cur)
			o.cur = nil
		}
	}
	o.written += int64(n)
	return n, nil
}

// Flush makes a partially filled chunk available.
func (o *Output) Flush() {
	if len(o.cur) > 0 {
		o.ready = append(o.ready, o.cur)
		o.cur = nil
	}
}

// Empty reports whether no chunk is ready.
func (o *Output) Empty() bool { return len(o.ready) == 0 }

// Pop removes and returns the oldest ready chunk, or nil.
func (o *Output) Pop() []byte {
	if len(o.ready) == 0 {
		return nil
	}
	b := o.ready[0]
	o.ready[0] = nil
	o.ready = o.ready[1:]
	return b
}

// Drain removes and returns every ready chunk.
func (o *Output) Drain() [][]byte {
	r := o.ready
	o.ready = nil
	return r
}

// Written returns the total number of bytes written.
func (o *Output) Written() int64 { return o.written }
