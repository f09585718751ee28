package decoder

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
)

// errStarved is returned by cursorReader when the cursor has no bytes yet.
// Standard library decoders pass it through, sometimes wrapped in text, so
// cursorReader also remembers that it happened.
var errStarved = errors.New("decoder: input starved")

// cursorReader adapts a Cursor to io.Reader for the blocking standard
// library decoders.
type cursorReader struct {
	cur     *buffer.Cursor
	issued  int
	starved bool
}

func (r *cursorReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b, res := r.cur.ReadAtMostN(len(p))
	switch {
	case res.IsOK():
		n := copy(p, b)
		r.issued += n
		return n, nil
	case res.IsPending():
		r.starved = true
		return 0, errStarved
	case res.IsEOF():
		return 0, io.EOF
	}
	return 0, res.Err()
}

// attempt runs parse over the bytes after the cursor.  If parse fails
// because input ran dry the cursor is rolled back and pending is returned.
// On success the cursor stays where parse left it when keep is set and is
// rolled back otherwise.
func attempt(cur *buffer.Cursor, keep bool, parse func(io.Reader) error) core.Outcome {
	r := &cursorReader{cur: cur}
	err := parse(r)
	switch {
	case err == nil:
		if !keep {
			cur.UnreadN(r.issued)
		}
		return core.OK(r.issued)
	case r.starved:
		cur.UnreadN(r.issued)
		return core.Pending()
	}
	cur.UnreadN(r.issued)
	return core.Fail(err)
}

// stallGuard remembers how much input existed when a header attempt last
// came back pending, so the attempt is not repeated until more arrives.
type stallGuard struct {
	armed bool
	size  int64
	eof   bool
}

func (g *stallGuard) blocked(cur *buffer.Cursor) bool {
	seq := cur.Sequence()
	return g.armed && g.size == seq.Size() && g.eof == seq.EofReceived()
}

func (g *stallGuard) arm(cur *buffer.Cursor) {
	seq := cur.Sequence()
	g.armed, g.size, g.eof = true, seq.Size(), seq.EofReceived()
}

// ── Streaming decode ──────────────────────────────────────────────────────────

var errFeedClosed = errors.New("decoder: feed closed")

type feedResult struct {
	img image.Image
	err error
}

// feed runs a blocking standard library decoder on its own goroutine and
// hands it input in lockstep with the cursor.  The goroutine only runs while
// push waits on it, so push returns pending exactly when the decoder is
// parked on a read.  Every span is read once and committed as soon as the
// decoder asks for the next one, which keeps the retained input bounded.
type feed struct {
	need   chan struct{}
	data   chan []byte
	done   chan feedResult
	buf    []byte
	eof    bool  // set by the decoder goroutine once data is closed
	cause  error // reported to the decoder after data is closed
	hungry bool
	closed bool
	res    *feedResult
}

func startFeed(decode func(io.Reader) (image.Image, error)) *feed {
	f := &feed{
		need: make(chan struct{}),
		data: make(chan []byte),
		done: make(chan feedResult, 1),
	}
	go func() {
		img, err := decode(f)
		f.done <- feedResult{img: img, err: err}
	}()
	return f
}

// Read is called on the decoder goroutine only.
func (f *feed) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(f.buf) == 0 {
		if f.eof {
			return 0, f.cause
		}
		f.need <- struct{}{}
		b, ok := <-f.data
		if !ok {
			f.eof = true
			return 0, f.cause
		}
		f.buf = b
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

// push hands the decoder whatever input is available.  It reports OK once
// the decoder has returned, pending while it waits for bytes, and the
// decoder's result otherwise.
func (f *feed) push(cur *buffer.Cursor) (image.Image, core.Outcome) {
	for f.res == nil {
		if !f.hungry {
			select {
			case <-f.need:
				f.hungry = true
				cur.Commit()
			case r := <-f.done:
				f.res = &r
				cur.Commit()
				continue
			}
		}
		b, res := cur.ReadSome()
		switch {
		case res.IsOK():
			f.hungry = false
			f.data <- b
		case res.IsPending():
			return nil, res
		case res.IsEOF():
			f.shut(io.EOF)
		default:
			f.shut(res.Err())
		}
	}
	if f.res.err != nil {
		return nil, core.Fail(f.res.err)
	}
	return f.res.img, core.OK(1)
}

// shut ends the decoder's input with cause and lets it run to completion.
func (f *feed) shut(cause error) {
	if f.closed {
		return
	}
	f.closed = true
	f.hungry = false
	f.cause = cause
	close(f.data)
}

// stop abandons the decode and waits for the goroutine to exit.
func (f *feed) stop() {
	if f.res != nil {
		return
	}
	if !f.hungry {
		// The decoder is running or about to ask; wait until it parks.
		select {
		case <-f.need:
		case r := <-f.done:
			f.res = &r
			return
		}
	}
	f.shut(errFeedClosed)
	r := <-f.done
	f.res = &r
}

// ── Shared decoder state ──────────────────────────────────────────────────────

// base carries the bookkeeping every decoder shares.
type base struct {
	cur      *buffer.Cursor
	format   core.Format
	params   core.DecodeParams
	info     core.ImageInfo
	infoDone bool
	frames   []*core.Frame
	done     bool
	md       *core.Metadata
	err      error
	guard    stallGuard
	stream   *feed
}

func newBase(cur *buffer.Cursor, format core.Format, params core.DecodeParams) base {
	return base{cur: cur, format: format, params: params, md: core.NewMetadata()}
}

func (b *base) IsImageInfoComplete() bool        { return b.infoDone }
func (b *base) ImageInfo() core.ImageInfo         { return b.info }
func (b *base) IsFrameCompleteAtIndex(i int) bool { return i >= 0 && i < len(b.frames) }
func (b *base) FrameCount() int                   { return len(b.frames) }
func (b *base) Metadata() *core.Metadata          { return b.md }
func (b *base) IsAllMetadataComplete() bool       { return b.md.Sealed() }
func (b *base) IsAllFramesComplete() bool         { return b.done }
func (b *base) IsImageComplete() bool             { return b.done && b.md.Sealed() }
func (b *base) HasError() bool                    { return b.err != nil }
func (b *base) Progress() int64                   { return b.cur.Offset() }

func (b *base) FrameAtIndex(i int) *core.Frame {
	if !b.IsFrameCompleteAtIndex(i) {
		panic(fmt.Sprintf("decoder: %s frame %d requested but only %d decoded", b.format, i, len(b.frames)))
	}
	return b.frames[i]
}

func (b *base) Close() error {
	if b.stream != nil {
		b.stream.stop()
	}
	b.frames = nil
	return nil
}

// decodeStream drives a standard library decoder over the input that follows
// the cursor and stores the frame it returns.  Repeated calls only hand over
// bytes that arrived since the previous one.
func (b *base) decodeStream(decode func(io.Reader) (image.Image, error)) core.Outcome {
	if b.stream == nil {
		b.stream = startFeed(decode)
	}
	img, res := b.stream.push(b.cur)
	if res.IsPending() {
		return res
	}
	if !res.IsOK() {
		return b.settle("decode", res)
	}
	b.addFrame(&core.Frame{Image: img})
	b.done = true
	return core.OK(1)
}

// fail records err and turns it into a terminal outcome.
func (b *base) fail(op string, err error) core.Outcome {
	b.err = apperrors.Wrap(apperrors.CategoryDecode, string(b.format)+"."+op, err)
	return core.Fail(b.err)
}

// settle maps a non-OK outcome of a read onto the decoder's state: pending
// passes through, eof means the input was truncated.
func (b *base) settle(op string, res core.Outcome) core.Outcome {
	switch {
	case res.IsPending():
		return res
	case res.IsEOF():
		return b.fail(op, io.ErrUnexpectedEOF)
	case res.IsError():
		if errors.Is(res.Err(), io.EOF) {
			return b.fail(op, io.ErrUnexpectedEOF)
		}
		return b.fail(op, res.Err())
	}
	return res
}

// setInfo publishes the header once.
func (b *base) setInfo(info core.ImageInfo) {
	info.Format = b.format
	info.Size = int64(info.Width) * int64(info.Height) * int64(info.ColorScheme.BytesPerPixel())
	b.info = info
	b.infoDone = true
}

// addFrame normalises img to an allowed colour scheme and stores it.
func (b *base) addFrame(f *core.Frame) {
	scheme := schemeOf(f.Image)
	if !b.params.Allows(scheme) {
		f.Image = imaging.Clone(f.Image)
		scheme = core.ColorSchemeRGBA
	}
	f.ColorScheme = scheme
	f.Index = len(b.frames)
	b.frames = append(b.frames, f)
}

// schemeOf reports the colour scheme a decoded image is laid out in.
func schemeOf(img image.Image) core.ColorScheme {
	opaque := false
	if o, ok := img.(interface{ Opaque() bool }); ok {
		opaque = o.Opaque()
	}
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSchemeGray
	case *image.YCbCr, *image.CMYK:
		return core.ColorSchemeRGB
	}
	if opaque {
		return core.ColorSchemeRGB
	}
	return core.ColorSchemeRGBA
}
