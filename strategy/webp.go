package strategy

import (
	"io"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
	"github.com/Skryldev/image-transcoder/pipeline"
)

// ConvertToWebP converts every supported format except WebP itself to WebP.
// GIF sources default to mixed compression; decoders deliver RGB or RGBA.
type ConvertToWebP struct {
	defaults core.WebPEncoderParams
	factory  *codec.Factory
	source   core.Format
}

// NewConvertToWebP returns the strategy with the given encoder defaults.
func NewConvertToWebP(defaults core.WebPEncoderParams) *ConvertToWebP {
	return &ConvertToWebP{defaults: defaults, source: core.FormatUnknown}
}

func (s *ConvertToWebP) SetCodecFactory(f *codec.Factory) { s.factory = f }

func (s *ConvertToWebP) ShouldEvenBother(info *core.ImageInfo) bool {
	return info != nil && info.Format != core.FormatWebP
}

func (s *ConvertToWebP) ShouldWaitForMetadata() bool { return false }

func (s *ConvertToWebP) CreateImageReader(format core.Format, cur *buffer.Cursor) (core.ImageReader, error) {
	if s.factory == nil {
		return nil, apperrors.New(apperrors.CategoryPolicy, "webp.create_reader", apperrors.ErrNotConfigured)
	}
	if format == core.FormatUnknown {
		return nil, apperrors.New(apperrors.CategoryInput, "webp.create_reader", apperrors.ErrUnsupportedFormat)
	}
	s.source = format
	return pipeline.NewDecodingReader(s.factory.CreateDecoder(format, cur)), nil
}

func (s *ConvertToWebP) AdjustImageReaderAfterInfoReady(r core.ImageReader, _ *core.ImageInfo) (core.ImageReader, error) {
	return r, nil
}

func (s *ConvertToWebP) CreateImageWriter(dst io.Writer, _ core.ImageReader, _ *core.ImageInfo) (core.ImageWriter, error) {
	if s.factory == nil {
		return nil, apperrors.New(apperrors.CategoryPolicy, "webp.create_writer", apperrors.ErrNotConfigured)
	}
	return pipeline.NewLazyWebPWriter(dst, s.factory), nil
}

func (s *ConvertToWebP) decodeParams() core.DecodeParams {
	return core.DecodeParams{}.Allow(core.ColorSchemeRGB, core.ColorSchemeRGBA)
}

func (s *ConvertToWebP) GIFDecoderParams() core.GIFDecoderParams {
	return core.GIFDecoderParams{DecodeParams: s.decodeParams()}
}

func (s *ConvertToWebP) JPEGDecoderParams() core.JPEGDecoderParams {
	return core.JPEGDecoderParams{DecodeParams: s.decodeParams()}
}

func (s *ConvertToWebP) PNGDecoderParams() core.PNGDecoderParams {
	return core.PNGDecoderParams{DecodeParams: s.decodeParams()}
}

func (s *ConvertToWebP) WebPDecoderParams() core.WebPDecoderParams {
	return core.WebPDecoderParams{DecodeParams: s.decodeParams()}
}

func (s *ConvertToWebP) WebPEncoderParams() core.WebPEncoderParams {
	p := s.defaults
	if s.source == core.FormatGIF {
		p.Compression = core.CompressionMixed
	}
	return p
}

var _ Strategy = (*ConvertToWebP)(nil)
