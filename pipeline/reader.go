// Package pipeline connects codecs to the transcoder: a frame reader that
// pulls decoded frames out of a Decoder and writers that push frames into
// an Encoder.
package pipeline

import (
	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
)

// DecodingReader delivers frames from a Decoder in decode order.
// Every method returns promptly; a pending Outcome means the decoder needs
// more input and the call may be repeated once it has arrived.
type DecodingReader struct {
	dec        core.Decoder
	framesRead int
}

// NewDecodingReader returns a reader over dec.
func NewDecodingReader(dec core.Decoder) *DecodingReader {
	return &DecodingReader{dec: dec}
}

// Decoder returns the underlying decoder.
func (r *DecodingReader) Decoder() core.Decoder { return r.dec }

func (r *DecodingReader) ImageInfo() (*core.ImageInfo, core.Outcome) {
	if !r.dec.IsImageInfoComplete() {
		if res := r.dec.DecodeImageInfo(); !res.IsOK() {
			return nil, res
		}
	}
	info := r.dec.ImageInfo()
	return &info, core.OK(0)
}

// NextFrame decodes until one more frame is available.  It returns eof once
// every frame has been delivered.
func (r *DecodingReader) NextFrame() (*core.Frame, core.Outcome) {
	for !r.dec.IsFrameCompleteAtIndex(r.framesRead) {
		if r.dec.IsAllFramesComplete() {
			return nil, core.EOF()
		}
		res := r.dec.Decode()
		if !res.IsOK() {
			return nil, res
		}
		if res.N() == 0 && !r.dec.IsAllFramesComplete() && !r.dec.IsFrameCompleteAtIndex(r.framesRead) {
			return nil, core.Fail(apperrors.New(apperrors.CategoryDecode, "reader.next_frame", apperrors.ErrStalled))
		}
	}
	f := r.dec.FrameAtIndex(r.framesRead)
	r.framesRead++
	return f, core.OK(1)
}

// FrameAtIndex returns frame i when the decoder already holds it.
func (r *DecodingReader) FrameAtIndex(i int) (*core.Frame, core.Outcome) {
	switch {
	case r.dec.IsFrameCompleteAtIndex(i):
		return r.dec.FrameAtIndex(i), core.OK(1)
	case r.dec.IsAllFramesComplete():
		return nil, core.EOF()
	}
	return nil, core.Pending()
}

func (r *DecodingReader) HasMoreFrames() bool {
	return !r.dec.IsAllFramesComplete() || r.framesRead < r.dec.FrameCount()
}

func (r *DecodingReader) FramesRead() int { return r.framesRead }

func (r *DecodingReader) ReadMetadata() core.Outcome { return r.dec.DecodeMetadata() }

func (r *DecodingReader) Metadata() *core.Metadata { return r.dec.Metadata() }

// ReadTillTheEnd decodes every remaining frame and all metadata without
// delivering anything.
func (r *DecodingReader) ReadTillTheEnd() core.Outcome {
	for !r.dec.IsAllFramesComplete() {
		res := r.dec.Decode()
		if !res.IsOK() {
			return res
		}
		if res.N() == 0 && !r.dec.IsAllFramesComplete() {
			return core.Fail(apperrors.New(apperrors.CategoryDecode, "reader.read_till_the_end", apperrors.ErrStalled))
		}
	}
	if res := r.dec.DecodeMetadata(); !res.IsOK() {
		return res
	}
	return core.OK(r.dec.FrameCount())
}

func (r *DecodingReader) Close() error { return r.dec.Close() }

var _ core.ImageReader = (*DecodingReader)(nil)
