// Package decoder provides incremental image decoders that read from a
// buffer.Cursor and never block.
package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image/jpeg"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/core"
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerDQT  = 0xDB
	markerAPP1 = 0xE1
	markerAPP2 = 0xE2
)

var (
	exifPrefix = []byte("Exif\x00\x00")
	xmpPrefix  = []byte("http://ns.adobe.com/xap/1.0/\x00")
	iccPrefix  = []byte("ICC_PROFILE\x00")

	errNoMarker = errors.New("missing segment marker")
)

// JPEG walks segments incrementally for the header, quality estimate and
// metadata, then decodes the picture with the standard library.
type JPEG struct {
	base
	scanned int64 // bytes of the stream already walked
	quality int
}

// NewJPEG returns a JPEG decoder reading from cur.
func NewJPEG(cur *buffer.Cursor, params core.JPEGDecoderParams) *JPEG {
	return &JPEG{base: newBase(cur, core.FormatJPEG, params.DecodeParams), scanned: 2, quality: -1}
}

func (d *JPEG) DecodeImageInfo() core.Outcome {
	if d.infoDone {
		return core.OK(0)
	}
	return d.walk(false)
}

func (d *JPEG) DecodeMetadata() core.Outcome {
	if d.md.Sealed() {
		return core.OK(0)
	}
	return d.walk(true)
}

// walk continues the segment scan until the frame header has been seen, or
// until scan data starts when untilScan is set.  The cursor is always
// rolled back; progress is kept in d.scanned.
func (d *JPEG) walk(untilScan bool) core.Outcome {
	if d.err != nil {
		return core.Fail(d.err)
	}
	mark := d.cur.Offset()
	res := d.segments(untilScan)
	d.cur.UnreadN(int(d.cur.Offset() - mark))
	if !res.IsOK() {
		return d.settle("segments", res)
	}
	return res
}

func (d *JPEG) segments(untilScan bool) core.Outcome {
	if d.scanned == 2 {
		soi, res := d.cur.ReadAtLeastN(2)
		if !res.IsOK() {
			return res
		}
		if soi[0] != 0xFF || soi[1] != markerSOI {
			return core.Fail(errNoMarker)
		}
	} else if res := d.cur.SkipN(int(d.scanned)); !res.IsOK() {
		return res
	}

	for {
		if !untilScan && d.infoDone {
			return core.OK(0)
		}
		m, res := d.cur.ReadAtLeastN(2)
		if !res.IsOK() {
			return res
		}
		if m[0] != 0xFF {
			return core.Fail(errNoMarker)
		}
		marker := m[1]
		switch {
		case marker == 0xFF:
			// fill byte
			d.cur.UnreadN(1)
			d.scanned++
			continue
		case marker == markerSOI || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			d.scanned += 2
			continue
		case marker == markerSOS || marker == markerEOI:
			if !d.infoDone {
				return core.Fail(errors.New("scan data before frame header"))
			}
			d.md.FreezeAll()
			return core.OK(0)
		}

		l, res := d.cur.ReadAtLeastN(2)
		if !res.IsOK() {
			return res
		}
		n := int(binary.BigEndian.Uint16(l)) - 2
		if n < 0 {
			return core.Fail(errors.New("bad segment length"))
		}
		payload, res := d.cur.ReadAtLeastN(n)
		if !res.IsOK() {
			return res
		}
		if err := d.segment(marker, payload); err != nil {
			return core.Fail(err)
		}
		d.scanned += int64(n) + 4
	}
}

func (d *JPEG) segment(marker byte, p []byte) error {
	switch {
	case isSOF(marker):
		if len(p) < 6 {
			return errors.New("short frame header")
		}
		scheme := core.ColorSchemeRGB
		if p[5] == 1 {
			scheme = core.ColorSchemeGray
		}
		d.setInfo(core.ImageInfo{
			Height:      int(binary.BigEndian.Uint16(p[1:3])),
			Width:       int(binary.BigEndian.Uint16(p[3:5])),
			ColorScheme: scheme,
			Progressive: marker == 0xC2 || marker == 0xC6 || marker == 0xCA || marker == 0xCE,
			Quality:     d.quality,
		})
	case marker == markerDQT:
		if q, ok := estimateQuality(p); ok {
			d.quality = q
		}
	case marker == markerAPP1 && bytes.HasPrefix(p, exifPrefix):
		if err := d.md.Append(core.MetadataEXIF, bytes.Clone(p[len(exifPrefix):])); err != nil {
			return err
		}
		d.md.Freeze(core.MetadataEXIF)
	case marker == markerAPP1 && bytes.HasPrefix(p, xmpPrefix):
		if err := d.md.Append(core.MetadataXMP, bytes.Clone(p[len(xmpPrefix):])); err != nil {
			return err
		}
		d.md.Freeze(core.MetadataXMP)
	case marker == markerAPP2 && bytes.HasPrefix(p, iccPrefix) && len(p) >= len(iccPrefix)+2:
		seq, total := p[len(iccPrefix)], p[len(iccPrefix)+1]
		if err := d.md.Append(core.MetadataICC, bytes.Clone(p[len(iccPrefix)+2:])); err != nil {
			return err
		}
		if seq >= total {
			d.md.Freeze(core.MetadataICC)
		}
	}
	return nil
}

func (d *JPEG) Decode() core.Outcome {
	if d.done {
		return core.OK(0)
	}
	if res := d.DecodeMetadata(); !res.IsOK() {
		return res
	}
	return d.decodeStream(jpeg.Decode)
}

func isSOF(m byte) bool {
	return m >= 0xC0 && m <= 0xCF && m != 0xC4 && m != 0xC8 && m != 0xCC
}

// stdLuminance is the Annex K luminance table libjpeg scales by quality.
var stdLuminance = [64]int{
	16, 11, 10, 16, 24, 40, 51, 61,
	12, 12, 14, 19, 26, 58, 60, 55,
	14, 13, 16, 24, 40, 57, 69, 56,
	14, 17, 22, 29, 51, 87, 80, 62,
	18, 22, 37, 56, 68, 109, 103, 77,
	24, 35, 55, 64, 81, 104, 113, 92,
	49, 64, 78, 87, 103, 121, 120, 101,
	72, 92, 95, 98, 112, 100, 103, 99,
}

// estimateQuality inverts libjpeg's quality scaling using the luminance
// table of a DQT segment.  Element order does not matter for the average.
func estimateQuality(p []byte) (int, bool) {
	for len(p) > 0 {
		pq, tq := p[0]>>4, p[0]&0x0F
		size := 64
		if pq == 1 {
			size = 128
		}
		if len(p) < 1+size {
			return 0, false
		}
		if tq != 0 {
			p = p[1+size:]
			continue
		}
		var sum, std int
		for i := 0; i < 64; i++ {
			v := int(p[1+i])
			if pq == 1 {
				v = int(binary.BigEndian.Uint16(p[1+2*i:]))
			}
			sum += v
			std += stdLuminance[i]
		}
		scale := float64(sum) * 100 / float64(std)
		var q float64
		if scale <= 100 {
			q = (200 - scale) / 2
		} else {
			q = 5000 / scale
		}
		return min(max(int(q+0.5), 1), 100), true
	}
	return 0, false
}
