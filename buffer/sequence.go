package buffer

import (
	"slices"

	apperrors "github.com/Skryldev/image-transcoder/errors"
)

// Sequence is the ordered list of chunks received so far plus the
// end-of-input flag.  Chunks are appended at the tail and dropped from the
// head once a Cursor has committed past them.
type Sequence struct {
	chunks []Chunk
	base   int64 // absolute offset of chunks[0]
	size   int64 // absolute offset just past the last chunk
	eof    bool
}

// NewSequence returns an empty sequence.
func NewSequence() *Sequence { return &Sequence{} }

// AddChunk appends c.  Empty chunks are ignored.  Appending after SendEof
// fails with ErrInputClosed.
func (s *Sequence) AddChunk(c Chunk) error {
	if s.eof {
		return apperrors.New(apperrors.CategoryInput, "buffer.add_chunk", apperrors.ErrInputClosed)
	}
	if c.Len() == 0 {
		return nil
	}
	s.chunks = append(s.chunks, c)
	s.size += int64(c.Len())
	return nil
}

// SendEof marks the end of input.
func (s *Sequence) SendEof() { s.eof = true }

// EofReceived reports whether SendEof has been called.
func (s *Sequence) EofReceived() bool { return s.eof }

// Size returns the total number of bytes ever appended.
func (s *Sequence) Size() int64 { return s.size }

// Retained returns the number of bytes still held.
func (s *Sequence) Retained() int64 { return s.size - s.base }

// Chunks returns the number of chunks still held.
func (s *Sequence) Chunks() int { return len(s.chunks) }

// Release drops every chunk.  Cursors over s see an empty, exhausted input.
func (s *Sequence) Release() {
	clear(s.chunks)
	s.chunks = nil
	s.base = s.size
}

// dropFront releases the first n chunks.
func (s *Sequence) dropFront(n int) {
	if n <= 0 {
		return
	}
	for _, c := range s.chunks[:n] {
		s.base += int64(c.Len())
	}
	clear(s.chunks[:n])
	s.chunks = s.chunks[n:]
}

// merge replaces chunks[from:to] with a single owned chunk.
func (s *Sequence) merge(from, to int) {
	var n int
	for _, c := range s.chunks[from:to] {
		n += c.Len()
	}
	merged := make([]byte, 0, n)
	for _, c := range s.chunks[from:to] {
		merged = append(merged, c.data...)
	}
	s.chunks[from] = Adopt(merged)
	s.chunks = slices.Delete(s.chunks, from+1, to)
}
