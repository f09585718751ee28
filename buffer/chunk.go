// Package buffer holds incoming image bytes as a sequence of chunks and lets
// decoders read across them without blocking.
package buffer

import "github.com/Skryldev/image-transcoder/utils"

// Ownership records who owns a chunk's memory.
type Ownership int

const (
	// Borrowed chunks view caller memory that must stay valid until the chunk
	// is released.
	Borrowed Ownership = iota
	// Owned chunks hold a private copy.
	Owned
)

// Chunk is an immutable byte range.
type Chunk struct {
	data []byte
	own  Ownership
}

// Borrow wraps b without copying.
func Borrow(b []byte) Chunk { return Chunk{data: b, own: Borrowed} }

// Copy returns an owned copy of b.
func Copy(b []byte) Chunk { return Chunk{data: utils.CloneBytes(b), own: Owned} }

// Adopt takes ownership of b; the caller must not modify it afterwards.
func Adopt(b []byte) Chunk { return Chunk{data: b, own: Owned} }

func (c Chunk) Bytes() []byte        { return c.data }
func (c Chunk) Len() int             { return len(c.data) }
func (c Chunk) Ownership() Ownership { return c.own }
