package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"time"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/core"
)

const (
	gifExtension  = 0x21
	gifDescriptor = 0x2C
	gifTrailer    = 0x3B
	gifGCELabel   = 0xF9

	// Browsers show frames with a tiny delay for 100ms.
	gifMinDelay     = 20 * time.Millisecond
	gifDefaultDelay = 100 * time.Millisecond
)

// GIF parses the stream block by block so frames come out as soon as their
// data has arrived.  Each frame is decoded on its own and composited onto a
// canvas, which is what later frames are drawn over.
type GIF struct {
	base
	header []byte // signature, screen descriptor and global colour table
	gce    []byte // graphic control extension for the next frame
	canvas *image.NRGBA
	saved  *image.NRGBA // canvas before a frame disposed to previous

	prevRect     image.Rectangle
	prevDisposal core.Disposal
	loops        int
}

// NewGIF returns a GIF decoder reading from cur.
func NewGIF(cur *buffer.Cursor, params core.GIFDecoderParams) *GIF {
	return &GIF{base: newBase(cur, core.FormatGIF, params.DecodeParams)}
}

// LoopCount returns the NETSCAPE2.0 loop count seen so far (0 = forever).
func (d *GIF) LoopCount() int { return d.loops }

func (d *GIF) DecodeImageInfo() core.Outcome {
	if d.infoDone {
		return core.OK(0)
	}
	if d.err != nil {
		return core.Fail(d.err)
	}
	mark := d.cur.Offset()
	res := d.readHeader()
	if !res.IsOK() {
		d.cur.UnreadN(int(d.cur.Offset() - mark))
		return d.settle("header", res)
	}
	d.cur.Commit()
	return res
}

func (d *GIF) readHeader() core.Outcome {
	lsd, res := d.cur.ReadAtLeastN(13)
	if !res.IsOK() {
		return res
	}
	if sig := string(lsd[:6]); sig != "GIF87a" && sig != "GIF89a" {
		return core.Fail(fmt.Errorf("bad signature %q", sig))
	}
	header := bytes.Clone(lsd)
	if flags := lsd[10]; flags&0x80 != 0 {
		gct, res := d.cur.ReadAtLeastN(3 << ((flags & 7) + 1))
		if !res.IsOK() {
			return res
		}
		header = append(header, gct...)
	}
	d.header = header
	w := int(binary.LittleEndian.Uint16(header[6:8]))
	h := int(binary.LittleEndian.Uint16(header[8:10]))
	d.canvas = image.NewNRGBA(image.Rect(0, 0, w, h))
	d.setInfo(core.ImageInfo{
		Width:       w,
		Height:      h,
		ColorScheme: core.ColorSchemeRGBA,
		Multiframe:  true,
		Quality:     -1,
	})
	// GIF carries no ICC, EXIF or XMP we keep.
	d.md.FreezeAll()
	return core.OK(len(header))
}

func (d *GIF) DecodeMetadata() core.Outcome { return d.DecodeImageInfo() }

// Decode consumes blocks until one more frame is complete or the trailer
// is reached.
func (d *GIF) Decode() core.Outcome {
	if res := d.DecodeImageInfo(); !res.IsOK() {
		return res
	}
	frames := len(d.frames)
	for !d.done && len(d.frames) == frames {
		if d.err != nil {
			return core.Fail(d.err)
		}
		mark := d.cur.Offset()
		res := d.block()
		if !res.IsOK() {
			d.cur.UnreadN(int(d.cur.Offset() - mark))
			return d.settle("block", res)
		}
		d.cur.Commit()
	}
	return core.OK(len(d.frames) - frames)
}

func (d *GIF) block() core.Outcome {
	intro, res := d.cur.ReadAtLeastN(1)
	if !res.IsOK() {
		return res
	}
	switch intro[0] {
	case gifExtension:
		return d.extension()
	case gifDescriptor:
		return d.frame()
	case gifTrailer:
		d.done = true
		return core.OK(0)
	}
	return core.Fail(fmt.Errorf("unknown block 0x%02x", intro[0]))
}

func (d *GIF) extension() core.Outcome {
	label, res := d.cur.ReadAtLeastN(1)
	if !res.IsOK() {
		return res
	}
	l := label[0]
	data, res := d.subBlocks()
	if !res.IsOK() {
		return res
	}
	switch l {
	case gifGCELabel:
		d.gce = append([]byte{gifExtension, gifGCELabel}, data...)
	case 0xFF:
		// NETSCAPE2.0: 11-byte application id, then sub-block 1 with the loop count
		if len(data) >= 16 && string(data[1:12]) == "NETSCAPE2.0" && data[13] == 1 {
			d.loops = int(binary.LittleEndian.Uint16(data[14:16]))
		}
	}
	return core.OK(0)
}

// subBlocks returns a run of data sub-blocks verbatim, terminator included.
func (d *GIF) subBlocks() ([]byte, core.Outcome) {
	var raw []byte
	for {
		size, res := d.cur.ReadAtLeastN(1)
		if !res.IsOK() {
			return nil, res
		}
		raw = append(raw, size[0])
		if size[0] == 0 {
			return raw, core.OK(len(raw))
		}
		b, res := d.cur.ReadAtLeastN(int(size[0]))
		if !res.IsOK() {
			return nil, res
		}
		raw = append(raw, b...)
	}
}

func (d *GIF) frame() core.Outcome {
	desc, res := d.cur.ReadAtLeastN(9)
	if !res.IsOK() {
		return res
	}
	single := bytes.NewBuffer(make([]byte, 0, len(d.header)+64))
	single.Write(d.header)
	single.Write(d.gce)
	single.WriteByte(gifDescriptor)
	single.Write(desc)
	if flags := desc[8]; flags&0x80 != 0 {
		lct, res := d.cur.ReadAtLeastN(3 << ((flags & 7) + 1))
		if !res.IsOK() {
			return res
		}
		single.Write(lct)
	}
	lzw, res := d.cur.ReadAtLeastN(1)
	if !res.IsOK() {
		return res
	}
	single.Write(lzw)
	data, res := d.subBlocks()
	if !res.IsOK() {
		return res
	}
	single.Write(data)
	single.WriteByte(gifTrailer)

	pic, err := gif.Decode(single)
	if err != nil {
		return core.Fail(err)
	}
	pal, ok := pic.(*image.Paletted)
	if !ok {
		return core.Fail(errors.New("frame is not paletted"))
	}
	delay, disposal := d.control()
	d.gce = nil
	d.compose(pal, disposal)
	d.addFrame(&core.Frame{
		Image:    imaging.Clone(d.canvas),
		Duration: delay,
		Disposal: disposal,
	})
	return core.OK(1)
}

// control reads delay and disposal from the pending graphic control
// extension.
func (d *GIF) control() (time.Duration, core.Disposal) {
	// 0x21 0xF9 size flags delay(2) transparent terminator
	if len(d.gce) < 6 {
		return gifDefaultDelay, core.DisposalNone
	}
	delay := time.Duration(binary.LittleEndian.Uint16(d.gce[4:6])) * 10 * time.Millisecond
	if delay < gifMinDelay {
		delay = gifDefaultDelay
	}
	var disposal core.Disposal
	switch (d.gce[3] >> 2) & 7 {
	case 2:
		disposal = core.DisposalBackground
	case 3:
		disposal = core.DisposalPrevious
	}
	return delay, disposal
}

func (d *GIF) compose(pal *image.Paletted, disposal core.Disposal) {
	switch d.prevDisposal {
	case core.DisposalBackground:
		draw.Draw(d.canvas, d.prevRect, image.Transparent, image.Point{}, draw.Src)
	case core.DisposalPrevious:
		if d.saved != nil {
			draw.Draw(d.canvas, d.canvas.Bounds(), d.saved, image.Point{}, draw.Src)
		}
	}
	if disposal == core.DisposalPrevious {
		d.saved = imaging.Clone(d.canvas)
	}
	draw.Draw(d.canvas, pal.Rect, pal, pal.Rect.Min, draw.Over)
	d.prevRect, d.prevDisposal = pal.Rect, disposal
}

func (d *GIF) Close() error {
	d.canvas, d.saved = nil, nil
	return d.base.Close()
}
