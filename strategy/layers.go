package strategy

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/image-transcoder/core"
	"github.com/Skryldev/image-transcoder/utils"
)

// ── Request ───────────────────────────────────────────────────────────────────

// RequestLayer applies caller options to the encoder parameters.
type RequestLayer struct {
	NopLayer
	Request Request
}

func (l *RequestLayer) ShouldWaitForMetadata() bool { return l.Request.KeepMetadata }

func (l *RequestLayer) AdjustWebPEncoderParams(p *core.WebPEncoderParams) {
	r := l.Request
	if r.Quality > 0 {
		p.Quality = r.Quality
	}
	if r.Method > 0 {
		p.Method = r.Method
	}
	if c, ok := r.Compression.toCompression(); ok {
		p.Compression = c
	}
	p.WriteStats = r.RecordStats
	if r.KeepMetadata {
		p.WriteICC, p.WriteEXIF, p.WriteXMP = true, true, true
	}
}

// ── Strip alpha ───────────────────────────────────────────────────────────────

// StripAlphaLayer drops the alpha channel of PNG frames that turn out to be
// fully opaque.  JPEG has no alpha and GIF keeps it for transparency.  The
// frame is relabelled RGB, which makes the encoder write it from three
// channels.
type StripAlphaLayer struct{ NopLayer }

func (StripAlphaLayer) AdjustWriter(w core.ImageWriter, info *core.ImageInfo) (core.ImageWriter, error) {
	if info == nil || info.Format != core.FormatPNG || !info.ColorScheme.HasAlpha() {
		return w, nil
	}
	return &alphaStripWriter{ImageWriter: w}, nil
}

type alphaStripWriter struct {
	core.ImageWriter
}

func (w *alphaStripWriter) WriteFrame(f *core.Frame) error {
	if f.ColorScheme.HasAlpha() && opaque(f.Image) {
		stripped := *f
		stripped.ColorScheme = core.ColorSchemeRGB
		f = &stripped
	}
	return w.ImageWriter.WriteFrame(f)
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

// ── Photo check ───────────────────────────────────────────────────────────────

// photoSampleSize bounds the side of the frame the photo metric is computed on.
const photoSampleSize = 128

// PhotoLayer switches PNGs that do not look like photographs to lossless
// compression, since lossy WebP smears sharp edges.  The check runs on the
// first frame, before the encoder is built.
type PhotoLayer struct {
	NopLayer
	Threshold float64

	checked bool
	metric  float64
}

func NewPhotoLayer(threshold float64) *PhotoLayer {
	return &PhotoLayer{Threshold: threshold}
}

// Metric returns the computed metric and whether a frame has been checked.
func (l *PhotoLayer) Metric() (float64, bool) { return l.metric, l.checked }

func (l *PhotoLayer) AdjustReaderAfterInfoReady(r core.ImageReader, info *core.ImageInfo) (core.ImageReader, error) {
	if info == nil || info.Format != core.FormatPNG {
		return r, nil
	}
	return &photoReader{ImageReader: r, layer: l}, nil
}

func (l *PhotoLayer) AdjustWebPEncoderParams(p *core.WebPEncoderParams) {
	if l.checked && l.metric < l.Threshold {
		p.Compression = core.CompressionLossless
	}
}

type photoReader struct {
	core.ImageReader
	layer *PhotoLayer
}

func (r *photoReader) NextFrame() (*core.Frame, core.Outcome) {
	f, res := r.ImageReader.NextFrame()
	if res.IsOK() && !r.layer.checked {
		r.layer.metric = PhotoMetric(f.Image)
		r.layer.checked = true
	}
	return f, res
}

// PhotoMetric returns the share of distinct colours, in percent, among the
// pixels of img scaled down to fit photoSampleSize.  Photographs score high,
// flat artwork scores low.
func PhotoMetric(img image.Image) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}
	w, h := utils.FitDimensions(b.Dx(), b.Dy(), photoSampleSize)
	sample := imaging.Resize(img, w, h, imaging.Box)

	colors := make(map[uint32]struct{}, w*h)
	pix := sample.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		colors[uint32(pix[i])<<16|uint32(pix[i+1])<<8|uint32(pix[i+2])] = struct{}{}
	}
	return float64(len(colors)) * 100 / float64(w*h)
}
