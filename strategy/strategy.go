// Package strategy decides how one request is transcoded.  A Policy pairs
// a base Strategy with an ordered list of Layers; the transcoder consults
// only the Policy.
package strategy

import (
	"io"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/core"
)

// Strategy is the base of a Policy: it builds readers and writers for a
// format and supplies the default codec parameters.
type Strategy interface {
	core.Configurator

	// ShouldEvenBother reports whether the image is worth transcoding.
	ShouldEvenBother(info *core.ImageInfo) bool
	CreateImageReader(format core.Format, cur *buffer.Cursor) (core.ImageReader, error)
	AdjustImageReaderAfterInfoReady(r core.ImageReader, info *core.ImageInfo) (core.ImageReader, error)
	CreateImageWriter(dst io.Writer, r core.ImageReader, info *core.ImageInfo) (core.ImageWriter, error)
	ShouldWaitForMetadata() bool
	// SetCodecFactory hands the strategy the factory it must build codecs
	// with.  The factory's Configurator is the owning Policy.
	SetCodecFactory(f *codec.Factory)
}

// Layer adjusts a Policy.  Every method is optional in practice: embed
// NopLayer and override what the layer cares about.
type Layer interface {
	ShouldEvenBother(info *core.ImageInfo) bool
	AdjustReader(r core.ImageReader) (core.ImageReader, error)
	AdjustReaderAfterInfoReady(r core.ImageReader, info *core.ImageInfo) (core.ImageReader, error)
	AdjustWriter(w core.ImageWriter, info *core.ImageInfo) (core.ImageWriter, error)
	ShouldWaitForMetadata() bool

	AdjustGIFDecoderParams(p *core.GIFDecoderParams)
	AdjustJPEGDecoderParams(p *core.JPEGDecoderParams)
	AdjustPNGDecoderParams(p *core.PNGDecoderParams)
	AdjustWebPDecoderParams(p *core.WebPDecoderParams)
	AdjustWebPEncoderParams(p *core.WebPEncoderParams)
}

// NopLayer adjusts nothing.
type NopLayer struct{}

func (NopLayer) ShouldEvenBother(*core.ImageInfo) bool { return true }
func (NopLayer) ShouldWaitForMetadata() bool           { return false }

func (NopLayer) AdjustReader(r core.ImageReader) (core.ImageReader, error) { return r, nil }

func (NopLayer) AdjustReaderAfterInfoReady(r core.ImageReader, _ *core.ImageInfo) (core.ImageReader, error) {
	return r, nil
}

func (NopLayer) AdjustWriter(w core.ImageWriter, _ *core.ImageInfo) (core.ImageWriter, error) {
	return w, nil
}

func (NopLayer) AdjustGIFDecoderParams(*core.GIFDecoderParams)   {}
func (NopLayer) AdjustJPEGDecoderParams(*core.JPEGDecoderParams) {}
func (NopLayer) AdjustPNGDecoderParams(*core.PNGDecoderParams)   {}
func (NopLayer) AdjustWebPDecoderParams(*core.WebPDecoderParams) {}
func (NopLayer) AdjustWebPEncoderParams(*core.WebPEncoderParams) {}

var _ Layer = NopLayer{}
