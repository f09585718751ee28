package decoder

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/png"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/core"
)

const (
	pngSignatureLen = 8
	pngIHDREnd      = 33 // signature + IHDR chunk
	xmpKeyword      = "XML:com.adobe.xmp"
)

// PNG decodes PNG images with the standard library once the whole image
// has arrived, and reads the header and metadata chunks incrementally.
type PNG struct {
	base
	scanned int64 // bytes of the stream already walked by the metadata scan
}

// NewPNG returns a PNG decoder reading from cur.
func NewPNG(cur *buffer.Cursor, params core.PNGDecoderParams) *PNG {
	return &PNG{base: newBase(cur, core.FormatPNG, params.DecodeParams), scanned: pngSignatureLen}
}

func (d *PNG) DecodeImageInfo() core.Outcome {
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
		cfg, err = png.DecodeConfig(r)
		return err
	})
	if res.IsPending() {
		d.guard.arm(d.cur)
	}
	if !res.IsOK() {
		return d.settle("decode_config", res)
	}

	var ihdr [pngIHDREnd]byte
	if res := d.cur.PeekAtLeastNInto(ihdr[:], len(ihdr)); !res.IsOK() {
		return d.settle("ihdr", res)
	}
	d.setInfo(core.ImageInfo{
		Width:       cfg.Width,
		Height:      cfg.Height,
		ColorScheme: pngColorScheme(ihdr[25]),
		Progressive: ihdr[28] == 1,
		Quality:     -1,
	})
	return core.OK(0)
}

func (d *PNG) DecodeMetadata() core.Outcome {
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

// scanChunks walks chunk headers from where the last pass stopped and
// collects metadata until image data begins.
func (d *PNG) scanChunks() core.Outcome {
	if res := d.cur.SkipN(int(d.scanned)); !res.IsOK() {
		return res
	}
	for {
		hdr, res := d.cur.ReadAtLeastN(8)
		if !res.IsOK() {
			return res
		}
		n := int(binary.BigEndian.Uint32(hdr[:4]))
		typ := string(hdr[4:8])
		switch typ {
		case "IDAT", "IEND":
			d.md.FreezeAll()
			return core.OK(0)
		case "iCCP", "eXIf", "iTXt":
			body, res := d.cur.ReadAtLeastN(n + 4)
			if !res.IsOK() {
				return res
			}
			if err := d.collect(typ, body[:n]); err != nil {
				return core.Fail(err)
			}
		default:
			if res := d.cur.SkipN(n + 4); !res.IsOK() {
				return res
			}
		}
		d.scanned += int64(n) + 12
	}
}

func (d *PNG) collect(typ string, body []byte) error {
	switch typ {
	case "iCCP":
		// name, NUL, compression method, zlib stream
		i := bytes.IndexByte(body, 0)
		if i < 0 || i+2 > len(body) {
			return nil
		}
		profile, err := inflate(body[i+2:])
		if err != nil {
			return err
		}
		if err := d.md.Append(core.MetadataICC, profile); err != nil {
			return err
		}
		d.md.Freeze(core.MetadataICC)
	case "eXIf":
		if err := d.md.Append(core.MetadataEXIF, bytes.Clone(body)); err != nil {
			return err
		}
		d.md.Freeze(core.MetadataEXIF)
	case "iTXt":
		text, ok, err := xmpFromITXt(body)
		if err != nil || !ok {
			return err
		}
		if err := d.md.Append(core.MetadataXMP, text); err != nil {
			return err
		}
		d.md.Freeze(core.MetadataXMP)
	}
	return nil
}

func (d *PNG) Decode() core.Outcome {
	if d.done {
		return core.OK(0)
	}
	if d.err != nil {
		return core.Fail(d.err)
	}
	if res := d.DecodeMetadata(); !res.IsOK() {
		return res
	}
	return d.decodeStream(png.Decode)
}

func pngColorScheme(colorType byte) core.ColorScheme {
	switch colorType {
	case 0:
		return core.ColorSchemeGray
	case 2:
		return core.ColorSchemeRGB
	case 4:
		return core.ColorSchemeGrayAlpha
	case 3, 6:
		// Palettes may carry transparency in a tRNS chunk after the header.
		return core.ColorSchemeRGBA
	}
	return core.ColorSchemeUnknown
}

// xmpFromITXt extracts the XMP packet from an iTXt chunk body.
func xmpFromITXt(body []byte) ([]byte, bool, error) {
	// keyword NUL flag method language NUL translated NUL text
	i := bytes.IndexByte(body, 0)
	if i < 0 || string(body[:i]) != xmpKeyword || i+3 > len(body) {
		return nil, false, nil
	}
	compressed := body[i+1] == 1
	rest := body[i+3:]
	for skip := 0; skip < 2; skip++ {
		j := bytes.IndexByte(rest, 0)
		if j < 0 {
			return nil, false, nil
		}
		rest = rest[j+1:]
	}
	if !compressed {
		return bytes.Clone(rest), true, nil
	}
	text, err := inflate(rest)
	return text, err == nil, err
}

func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
