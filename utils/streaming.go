package utils

import (
	"bytes"
	"io"
	"sync"

	apperrors "github.com/Skryldev/image-transcoder/errors"
)

// bufPool reuses byte buffers to reduce GC pressure.
var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// AcquireBuffer returns a reset buffer from the pool.
func AcquireBuffer() *bytes.Buffer {
	b := bufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// ReleaseBuffer returns b to the pool.  Callers must not use b after this call.
func ReleaseBuffer(b *bytes.Buffer) {
	// Cap large buffers to avoid pinning excessive memory.
	if b.Cap() > 8*1024*1024 {
		return
	}
	bufPool.Put(b)
}

// LimitedReader wraps r and fails with ErrTooLarge once more than Max bytes
// have been read.  Max <= 0 disables the limit.
type LimitedReader struct {
	R   io.Reader
	Max int64
	n   int64
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.Max <= 0 {
		n, err := l.R.Read(p)
		l.n += int64(n)
		return n, err
	}
	if l.n >= l.Max {
		// One more byte tells an exact-size input apart from an oversized one.
		var extra [1]byte
		n, err := l.R.Read(extra[:])
		if n > 0 {
			return 0, apperrors.New(apperrors.CategoryInput, "read", apperrors.ErrTooLarge)
		}
		return 0, err
	}
	if remain := l.Max - l.n; int64(len(p)) > remain {
		p = p[:remain]
	}
	n, err := l.R.Read(p)
	l.n += int64(n)
	return n, err
}

// Count returns the number of bytes read so far.
func (l *LimitedReader) Count() int64 { return l.n }
