package decoder

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/webp"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/core"
)

const (
	riffHeaderLen = 12
	vp8xHeaderEnd = 30
	vp8xAnimation = 0x02
)

// WebP decodes still WebP images with golang.org/x/image/webp.  Animated
// files are recognised from the VP8X header but cannot be decoded.
type WebP struct {
	base
	scanned int64
	end     int64 // RIFF payload end, known once the header is in
}

// NewWebP returns a WebP decoder reading from cur.
func NewWebP(cur *buffer.Cursor, params core.WebPDecoderParams) *WebP {
	return &WebP{base: newBase(cur, core.FormatWebP, params.DecodeParams), scanned: riffHeaderLen}
}

func (d *WebP) DecodeImageInfo() core.Outcome {
	if d.infoDone {
		return core.OK(0)
	}
	if d.err != nil {
		return core.Fail(d.err)
	}
	if d.guard.blocked(d.cur) {
		return core.Pending()
	}
	var cfg image.Config
	res := attempt(d.cur, false, func(r io.Reader) (err error) {
		cfg, err = webp.DecodeConfig(r)
		return err
	})
	if res.IsPending() {
		d.guard.arm(d.cur)
	}
	if !res.IsOK() {
		return d.settle("decode_config", res)
	}

	var hdr [vp8xHeaderEnd]byte
	n := min(d.cur.Buffered(), len(hdr))
	if res := d.cur.PeekAtLeastNInto(hdr[:], n); !res.IsOK() {
		return d.settle("header", res)
	}
	d.end = int64(binary.LittleEndian.Uint32(hdr[4:8])) + 8
	animated := n > 20 && string(hdr[12:16]) == "VP8X" && hdr[20]&vp8xAnimation != 0

	scheme := core.ColorSchemeRGBA
	if cfg.ColorModel == color.YCbCrModel {
		scheme = core.ColorSchemeRGB
	}
	d.setInfo(core.ImageInfo{
		Width:       cfg.Width,
		Height:      cfg.Height,
		ColorScheme: scheme,
		Multiframe:  animated,
		Quality:     -1,
	})
	return core.OK(0)
}

func (d *WebP) DecodeMetadata() core.Outcome {
	if d.md.Sealed() {
		return core.OK(0)
	}
	if res := d.DecodeImageInfo(); !res.IsOK() {
		return res
	}
	mark := d.cur.Offset()
	res := d.scanChunks()
	d.cur.UnreadN(int(d.cur.Offset() - mark))
	if !res.IsOK() {
		return d.settle("metadata", res)
	}
	return res
}

func (d *WebP) scanChunks() core.Outcome {
	if res := d.cur.SkipN(int(d.scanned)); !res.IsOK() {
		return res
	}
	for d.scanned+8 <= d.end {
		hdr, res := d.cur.ReadAtLeastN(8)
		if !res.IsOK() {
			return res
		}
		id := string(hdr[:4])
		n := int(binary.LittleEndian.Uint32(hdr[4:8]))
		padded := n + n&1
		var kind core.MetadataKind = -1
		switch id {
		case "ICCP":
			kind = core.MetadataICC
		case "EXIF":
			kind = core.MetadataEXIF
		case "XMP ":
			kind = core.MetadataXMP
		}
		if kind >= 0 {
			body, res := d.cur.ReadAtLeastN(padded)
			if !res.IsOK() {
				return res
			}
			if err := d.md.Append(kind, bytes.Clone(body[:n])); err != nil {
				return core.Fail(err)
			}
			d.md.Freeze(kind)
		} else if res := d.cur.SkipN(padded); !res.IsOK() {
			return res
		}
		d.scanned += int64(padded) + 8
	}
	d.md.FreezeAll()
	return core.OK(0)
}

func (d *WebP) Decode() core.Outcome {
	if d.done {
		return core.OK(0)
	}
	if d.err != nil {
		return core.Fail(d.err)
	}
	if res := d.DecodeMetadata(); !res.IsOK() {
		return res
	}
	return d.decodeStream(webp.Decode)
}
