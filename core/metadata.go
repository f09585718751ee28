package core

import (
	"bytes"

	apperrors "github.com/Skryldev/image-transcoder/errors"
)

// MetadataKind names a class of auxiliary metadata.
type MetadataKind int

const (
	MetadataICC MetadataKind = iota
	MetadataEXIF
	MetadataXMP

	metadataKinds
)

func (k MetadataKind) String() string {
	switch k {
	case MetadataICC:
		return "icc"
	case MetadataEXIF:
		return "exif"
	case MetadataXMP:
		return "xmp"
	}
	return "unknown"
}

type metadataEntry struct {
	chunks  [][]byte
	touched bool
	frozen  bool
}

// Metadata accumulates ICC, EXIF and XMP payloads as a decoder finds them.
// Each kind may arrive in several pieces; freezing a kind closes it.
type Metadata struct {
	entries [metadataKinds]metadataEntry
	sealed  bool
}

// NewMetadata returns an empty holder.
func NewMetadata() *Metadata { return &Metadata{} }

// Append adds a piece of kind k.  The holder keeps b; callers hand over
// ownership.
func (m *Metadata) Append(k MetadataKind, b []byte) error {
	e := &m.entries[k]
	if e.frozen {
		return apperrors.New(apperrors.CategoryDecode, "metadata.append."+k.String(), apperrors.ErrMetadataFrozen)
	}
	e.touched = true
	if len(b) > 0 {
		e.chunks = append(e.chunks, b)
	}
	return nil
}

// Freeze closes kind k.  Freezing twice is harmless.
func (m *Metadata) Freeze(k MetadataKind) { m.entries[k].frozen = true }

// FreezeAll closes every kind and marks the holder sealed: the decoder has
// passed the point where metadata can appear.
func (m *Metadata) FreezeAll() {
	for i := range m.entries {
		m.entries[i].frozen = true
	}
	m.sealed = true
}

// IsFrozen reports whether kind k is closed.
func (m *Metadata) IsFrozen(k MetadataKind) bool { return m.entries[k].frozen }

// IsAllCompleted reports whether every kind that ever received data is frozen.
func (m *Metadata) IsAllCompleted() bool {
	for _, e := range m.entries {
		if e.touched && !e.frozen {
			return false
		}
	}
	return true
}

// Sealed reports whether FreezeAll has been called.
func (m *Metadata) Sealed() bool { return m.sealed }

// Has reports whether kind k holds any bytes.
func (m *Metadata) Has(k MetadataKind) bool { return len(m.entries[k].chunks) > 0 }

// Chunks returns the pieces of kind k in arrival order.
func (m *Metadata) Chunks(k MetadataKind) [][]byte { return m.entries[k].chunks }

// Bytes returns kind k as one contiguous slice.
func (m *Metadata) Bytes(k MetadataKind) []byte {
	chunks := m.entries[k].chunks
	if len(chunks) == 1 {
		return chunks[0]
	}
	return bytes.Join(chunks, nil)
}
