package buffer

import (
	"fmt"

	"github.com/Skryldev/image-transcoder/core"
)

// Cursor reads forward through a Sequence.  Reads never block: they return
// pending while more input may still arrive and eof once it cannot.  Every
// read since the last Commit can be rolled back with UnreadN.
type Cursor struct {
	seq    *Sequence
	idx    int   // current chunk
	off    int   // offset inside the current chunk
	pos    int64 // absolute offset
	commit int64 // absolute offset of the commit point
}

// NewCursor returns a cursor positioned at the start of seq.
func NewCursor(seq *Sequence) *Cursor {
	return &Cursor{seq: seq, pos: seq.base, commit: seq.base}
}

// Sequence returns the underlying sequence.
func (c *Cursor) Sequence() *Sequence { return c.seq }

// Offset returns the absolute number of bytes read.
func (c *Cursor) Offset() int64 { return c.pos }

// Buffered returns the number of bytes available without waiting.
func (c *Cursor) Buffered() int {
	if c.pos < c.seq.base {
		return 0
	}
	return int(c.seq.size - c.pos)
}

// Rewindable returns how far UnreadN can currently go back.
func (c *Cursor) Rewindable() int64 { return c.pos - c.commit }

// EofReached reports whether every byte has been read and no more will come.
func (c *Cursor) EofReached() bool { return c.seq.eof && c.Buffered() == 0 }

// ReadSome returns the largest contiguous span available without copying.
func (c *Cursor) ReadSome() ([]byte, core.Outcome) {
	if c.Buffered() == 0 {
		return nil, c.starved()
	}
	b := c.span()
	c.advance(len(b))
	return b, core.OK(len(b))
}

// ReadAtMostN returns up to n contiguous bytes without copying.
func (c *Cursor) ReadAtMostN(n int) ([]byte, core.Outcome) {
	if n <= 0 {
		return nil, core.OK(0)
	}
	if c.Buffered() == 0 {
		return nil, c.starved()
	}
	b := c.span()
	if len(b) > n {
		b = b[:n:n]
	}
	c.advance(len(b))
	return b, core.OK(len(b))
}

// ReadAtLeastN returns exactly n contiguous bytes.  Chunks are merged when
// the span crosses a chunk boundary.
func (c *Cursor) ReadAtLeastN(n int) ([]byte, core.Outcome) {
	if n <= 0 {
		return nil, core.OK(0)
	}
	if c.Buffered() < n {
		return nil, c.starved()
	}
	b := c.span()
	if len(b) < n {
		c.mergeFor(n)
		b = c.span()
	}
	b = b[:n:n]
	c.advance(n)
	return b, core.OK(n)
}

// ReadAtLeastNInto copies exactly n bytes into buf.
func (c *Cursor) ReadAtLeastNInto(buf []byte, n int) core.Outcome {
	if len(buf) < n {
		panic(fmt.Sprintf("buffer: destination holds %d bytes, %d requested", len(buf), n))
	}
	if n <= 0 {
		return core.OK(0)
	}
	if c.Buffered() < n {
		return c.starved()
	}
	for copied := 0; copied < n; {
		b := c.span()
		k := copy(buf[copied:n], b)
		c.advance(k)
		copied += k
	}
	return core.OK(n)
}

// PeekAtLeastNInto copies exactly n bytes into buf without advancing.
func (c *Cursor) PeekAtLeastNInto(buf []byte, n int) core.Outcome {
	res := c.ReadAtLeastNInto(buf, n)
	if res.IsOK() {
		c.UnreadN(n)
	}
	return res
}

// SkipN advances past exactly n bytes.
func (c *Cursor) SkipN(n int) core.Outcome {
	if n <= 0 {
		return core.OK(0)
	}
	if c.Buffered() < n {
		return c.starved()
	}
	c.advance(n)
	return core.OK(n)
}

// UnreadN moves back n bytes, never past the commit point, and returns how
// far it actually moved.
func (c *Cursor) UnreadN(n int) int {
	if n <= 0 {
		return 0
	}
	if limit := c.Rewindable(); int64(n) > limit {
		n = int(limit)
	}
	c.seek(c.pos - int64(n))
	return n
}

// Commit makes the current position the new commit point and releases the
// chunks that lie entirely before it.
func (c *Cursor) Commit() {
	c.commit = c.pos
	c.seq.dropFront(c.idx)
	c.idx = 0
}

func (c *Cursor) starved() core.Outcome {
	if c.seq.eof {
		return core.EOF()
	}
	return core.Pending()
}

// span returns the unread part of the current chunk.
func (c *Cursor) span() []byte {
	if c.idx >= len(c.seq.chunks) {
		return nil
	}
	return c.seq.chunks[c.idx].data[c.off:]
}

func (c *Cursor) advance(n int) {
	for n > 0 {
		left := c.seq.chunks[c.idx].Len() - c.off
		if n < left {
			c.off += n
			c.pos += int64(n)
			return
		}
		n -= left
		c.pos += int64(left)
		c.idx++
		c.off = 0
	}
}

func (c *Cursor) seek(abs int64) {
	c.idx, c.off = 0, 0
	p := c.seq.base
	for c.idx < len(c.seq.chunks) && p+int64(c.seq.chunks[c.idx].Len()) <= abs {
		p += int64(c.seq.chunks[c.idx].Len())
		c.idx++
	}
	c.off = int(abs - p)
	c.pos = abs
}

// mergeFor joins chunks from the current one until n bytes are contiguous.
func (c *Cursor) mergeFor(n int) {
	end := c.idx
	have := -c.off
	for have < n {
		have += c.seq.chunks[end].Len()
		end++
	}
	c.seq.merge(c.idx, end)
}
