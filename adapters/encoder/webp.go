// Package encoder provides the WebP encoder used for every transcode.
package encoder

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/chai2010/webp"

	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
	"github.com/Skryldev/image-transcoder/utils"
)

// StillEncoder turns one image into a simple WebP file: a VP8 or VP8L
// bitstream, optionally behind a VP8X header with an ALPH chunk.
type StillEncoder interface {
	EncodeStill(img image.Image, lossless bool, p core.WebPEncoderParams) ([]byte, error)
}

// Native encodes stills with libwebp through github.com/chai2010/webp.  The
// simple libwebp API it wraps has no effort setting, so Method is not used.
type Native struct{}

func (Native) EncodeStill(img image.Image, lossless bool, p core.WebPEncoderParams) ([]byte, error) {
	return encodeWith(img, &webp.Options{Lossless: lossless, Quality: p.Quality})
}

// WebP writes WebP files from frames, using a StillEncoder for the
// bitstreams and assembling the container itself.
//
// Still images are written as soon as their frame is encoded.  Animations
// are assembled from per-frame stills and written by Finish, because the
// container header must precede all frames.
type WebP struct {
	dst    io.Writer
	params core.WebPEncoderParams
	stills StillEncoder
	info   *core.ImageInfo
	md     *core.Metadata

	frames  []animFrame
	alpha   bool
	written int64
	digest  *xxhash.Digest
	psnr    float64
}

type animFrame struct {
	still    []byte
	chunks   []chunk
	duration int
}

// NewWebP returns an encoder writing to dst with the native still encoder.
func NewWebP(dst io.Writer, params core.WebPEncoderParams) *WebP {
	return NewWebPWith(dst, params, Native{})
}

// NewWebPWith returns an encoder writing to dst whose bitstreams come from
// stills.
func NewWebPWith(dst io.Writer, params core.WebPEncoderParams, stills StillEncoder) *WebP {
	return &WebP{dst: dst, params: params, stills: stills, digest: xxhash.New()}
}

func (e *WebP) Initialize(info *core.ImageInfo) error {
	if info == nil || info.Width <= 0 || info.Height <= 0 {
		return apperrors.New(apperrors.CategoryEncode, "webp.initialize", fmt.Errorf("invalid image info %+v", info))
	}
	e.info = info
	return nil
}

func (e *WebP) SetMetadata(md *core.Metadata) { e.md = md }

func (e *WebP) Progress() int64 { return e.written }

func (e *WebP) EncodeFrame(f *core.Frame, last bool) error {
	if e.info == nil {
		return apperrors.New(apperrors.CategoryEncode, "webp.encode_frame", apperrors.ErrNotConfigured)
	}
	img := f.Image
	if f.ColorScheme == core.ColorSchemeRGB {
		img = dropAlpha(img)
	}
	still, err := e.encodeStill(img)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "webp.encode_frame", err)
	}
	if e.info.Multiframe {
		chunks, err := splitStill(still)
		if err != nil {
			return apperrors.Wrap(apperrors.CategoryEncode, "webp.split", err)
		}
		e.alpha = e.alpha || hasAlpha(chunks)
		e.frames = append(e.frames, animFrame{still: still, chunks: chunks, duration: int(f.Duration.Milliseconds())})
		return nil
	}
	if e.params.WriteStats {
		e.psnr = psnr(f.Image, still)
	}
	return e.writeStill(still)
}

// Finish writes a pending animation and fills stats.
func (e *WebP) Finish(stats *core.Stats) error {
	switch {
	case len(e.frames) == 1:
		if err := e.writeStill(e.frames[0].still); err != nil {
			return err
		}
	case len(e.frames) > 1:
		if err := e.writeAnimation(); err != nil {
			return err
		}
	}
	e.frames = nil
	if stats != nil {
		stats.CodedSize = e.written
		stats.Digest = fmt.Sprintf("%016x", e.digest.Sum64())
		if e.params.WriteStats {
			stats.PSNR = e.psnr
		}
	}
	return nil
}

func (e *WebP) writeStill(still []byte) error {
	if flags := e.metadataFlags(); flags != 0 {
		chunks, err := splitStill(still)
		if err != nil {
			return apperrors.Wrap(apperrors.CategoryEncode, "webp.split", err)
		}
		if hasAlpha(chunks) {
			flags |= flagAlpha
		}
		var body bytes.Buffer
		writeChunk(&body, "VP8X", vp8x(flags, e.info.Width, e.info.Height))
		e.writeMetadata(&body, flags, flagICC)
		for _, c := range chunks {
			writeChunk(&body, c.id, c.data)
		}
		e.writeMetadata(&body, flags, flagEXIF|flagXMP)
		still = riffFile(body.Bytes())
	}
	return e.emit(still)
}

func (e *WebP) writeAnimation() error {
	flags := flagAnimation | e.metadataFlags()
	if e.alpha {
		flags |= flagAlpha
	}
	var body bytes.Buffer
	writeChunk(&body, "VP8X", vp8x(flags, e.info.Width, e.info.Height))
	e.writeMetadata(&body, flags, flagICC)
	// transparent background, loop forever
	writeChunk(&body, "ANIM", []byte{0, 0, 0, 0, 0, 0})
	for _, f := range e.frames {
		writeChunk(&body, "ANMF", anmf(e.info.Width, e.info.Height, f.duration, f.chunks))
	}
	e.writeMetadata(&body, flags, flagEXIF|flagXMP)
	return e.emit(riffFile(body.Bytes()))
}

// metadataFlags returns the VP8X flags for metadata that is both present and
// requested.
func (e *WebP) metadataFlags() byte {
	if e.md == nil {
		return 0
	}
	var flags byte
	if e.params.WriteICC && e.md.Has(core.MetadataICC) {
		flags |= flagICC
	}
	if e.params.WriteEXIF && e.md.Has(core.MetadataEXIF) {
		flags |= flagEXIF
	}
	if e.params.WriteXMP && e.md.Has(core.MetadataXMP) {
		flags |= flagXMP
	}
	return flags
}

// writeMetadata writes the chunks selected by mask that flags enables.
func (e *WebP) writeMetadata(w *bytes.Buffer, flags, mask byte) {
	flags &= mask
	if flags&flagICC != 0 {
		writeChunk(w, "ICCP", e.md.Bytes(core.MetadataICC))
	}
	if flags&flagEXIF != 0 {
		writeChunk(w, "EXIF", e.md.Bytes(core.MetadataEXIF))
	}
	if flags&flagXMP != 0 {
		writeChunk(w, "XMP ", e.md.Bytes(core.MetadataXMP))
	}
}

func (e *WebP) emit(b []byte) error {
	n, err := e.dst.Write(b)
	e.written += int64(n)
	e.digest.Write(b[:n])
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "webp.write", err)
	}
	return nil
}

// encodeStill encodes img as a simple WebP file.  Mixed compression keeps
// whichever of the lossy and lossless encodings is smaller.
func (e *WebP) encodeStill(img image.Image) ([]byte, error) {
	switch e.params.Compression {
	case core.CompressionLossless:
		return e.stills.EncodeStill(img, true, e.params)
	case core.CompressionMixed:
		lossy, err := e.stills.EncodeStill(img, false, e.params)
		if err != nil {
			return nil, err
		}
		lossless, err := e.stills.EncodeStill(img, true, e.params)
		if err != nil {
			return nil, err
		}
		if len(lossless) < len(lossy) {
			return lossless, nil
		}
		return lossy, nil
	}
	return e.stills.EncodeStill(img, false, e.params)
}

// dropAlpha copies img into a three channel image so no alpha plane can
// reach the bitstream.
func dropAlpha(img image.Image) image.Image {
	var (
		pix    []byte
		stride int
		off    int
	)
	b := img.Bounds()
	switch m := img.(type) {
	case *webp.RGBImage, *image.YCbCr, *image.Gray:
		return img
	case *image.NRGBA:
		pix, stride, off = m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y)
	case *image.RGBA:
		pix, stride, off = m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y)
	default:
		return webp.NewRGBImageFrom(img)
	}
	rgb := webp.NewRGBImage(b)
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		src := pix[off+y*stride : off+y*stride+4*w]
		dst := rgb.XPix[y*rgb.XStride : y*rgb.XStride+3*w]
		for i, j := 0, 0; i < len(src); i, j = i+4, j+3 {
			dst[j], dst[j+1], dst[j+2] = src[i], src[i+1], src[i+2]
		}
	}
	return rgb
}

func encodeWith(img image.Image, opts *webp.Options) ([]byte, error) {
	buf := utils.AcquireBuffer()
	defer utils.ReleaseBuffer(buf)
	if err := webp.Encode(buf, img, opts); err != nil {
		return nil, err
	}
	return utils.CloneBytes(buf.Bytes()), nil
}
