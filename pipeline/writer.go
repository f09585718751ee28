package pipeline

import (
	"errors"
	"io"

	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
)

var errSecondFrame = errors.New("single-frame writer got a second frame")

// ── Single frame ──────────────────────────────────────────────────────────────

// SingleFrameWriter encodes exactly one frame.
type SingleFrameWriter struct {
	enc     core.Encoder
	written bool
}

func NewSingleFrameWriter(enc core.Encoder) *SingleFrameWriter {
	return &SingleFrameWriter{enc: enc}
}

func (w *SingleFrameWriter) Initialize(info *core.ImageInfo) error { return w.enc.Initialize(info) }
func (w *SingleFrameWriter) SetMetadata(md *core.Metadata)         { w.enc.SetMetadata(md) }

func (w *SingleFrameWriter) WriteFrame(f *core.Frame) error {
	if w.written {
		return apperrors.New(apperrors.CategoryEncode, "single_writer.write_frame", errSecondFrame)
	}
	w.written = true
	return w.enc.EncodeFrame(f, true)
}

func (w *SingleFrameWriter) Finish(stats *core.Stats) error {
	if !w.written {
		return apperrors.New(apperrors.CategoryEncode, "single_writer.finish", apperrors.ErrEmptyInput)
	}
	if stats != nil {
		stats.Frames = 1
	}
	return w.enc.Finish(stats)
}

// ── Multi frame ───────────────────────────────────────────────────────────────

// MultiFrameWriter holds back one frame so the encoder learns which frame
// is the last.
type MultiFrameWriter struct {
	enc     core.Encoder
	held    *core.Frame
	written int
}

func NewMultiFrameWriter(enc core.Encoder) *MultiFrameWriter {
	return &MultiFrameWriter{enc: enc}
}

func (w *MultiFrameWriter) Initialize(info *core.ImageInfo) error { return w.enc.Initialize(info) }
func (w *MultiFrameWriter) SetMetadata(md *core.Metadata)         { w.enc.SetMetadata(md) }

func (w *MultiFrameWriter) WriteFrame(f *core.Frame) error {
	if w.held != nil {
		if err := w.enc.EncodeFrame(w.held, false); err != nil {
			return err
		}
		w.written++
	}
	w.held = f
	return nil
}

func (w *MultiFrameWriter) Finish(stats *core.Stats) error {
	if w.held == nil {
		return apperrors.New(apperrors.CategoryEncode, "multi_writer.finish", apperrors.ErrEmptyInput)
	}
	if err := w.enc.EncodeFrame(w.held, true); err != nil {
		return err
	}
	w.held = nil
	w.written++
	if stats != nil {
		stats.Frames = w.written
	}
	return w.enc.Finish(stats)
}

// ── Lazy WebP ─────────────────────────────────────────────────────────────────

// LazyWebPWriter builds its WebP encoder when the first frame arrives, so
// encoder parameters are read from the factory's Configurator as late as
// possible.
type LazyWebPWriter struct {
	dst     io.Writer
	factory *codec.Factory
	info    *core.ImageInfo
	md      *core.Metadata
	inner   core.ImageWriter
	enc     core.Encoder
}

func NewLazyWebPWriter(dst io.Writer, factory *codec.Factory) *LazyWebPWriter {
	return &LazyWebPWriter{dst: dst, factory: factory}
}

func (w *LazyWebPWriter) Initialize(info *core.ImageInfo) error {
	if info == nil {
		return apperrors.New(apperrors.CategoryEncode, "lazy_writer.initialize", apperrors.ErrNotConfigured)
	}
	w.info = info
	return nil
}

func (w *LazyWebPWriter) SetMetadata(md *core.Metadata) { w.md = md }

// Encoder returns the encoder, or nil before the first frame.
func (w *LazyWebPWriter) Encoder() core.Encoder { return w.enc }

func (w *LazyWebPWriter) WriteFrame(f *core.Frame) error {
	if w.inner == nil {
		if w.info == nil {
			return apperrors.New(apperrors.CategoryEncode, "lazy_writer.write_frame", apperrors.ErrNotConfigured)
		}
		w.enc = w.factory.CreateEncoder(core.FormatWebP, w.dst)
		if w.info.Multiframe {
			w.inner = NewMultiFrameWriter(w.enc)
		} else {
			w.inner = NewSingleFrameWriter(w.enc)
		}
		if err := w.inner.Initialize(w.info); err != nil {
			return err
		}
		if w.md != nil {
			w.inner.SetMetadata(w.md)
		}
	}
	return w.inner.WriteFrame(f)
}

func (w *LazyWebPWriter) Finish(stats *core.Stats) error {
	if w.inner == nil {
		return apperrors.New(apperrors.CategoryEncode, "lazy_writer.finish", apperrors.ErrEmptyInput)
	}
	return w.inner.Finish(stats)
}

var (
	_ core.ImageWriter = (*SingleFrameWriter)(nil)
	_ core.ImageWriter = (*MultiFrameWriter)(nil)
	_ core.ImageWriter = (*LazyWebPWriter)(nil)
)
