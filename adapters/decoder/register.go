package decoder

import (
	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/core"
)

var (
	_ core.Decoder = (*GIF)(nil)
	_ core.Decoder = (*JPEG)(nil)
	_ core.Decoder = (*PNG)(nil)
	_ core.Decoder = (*WebP)(nil)
)

// Register adds the built-in decoders to reg.
func Register(reg *codec.Registry) {
	reg.RegisterDecoder(core.FormatGIF, func(src *buffer.Cursor, cfg core.Configurator) core.Decoder {
		return NewGIF(src, cfg.GIFDecoderParams())
	})
	reg.RegisterDecoder(core.FormatJPEG, func(src *buffer.Cursor, cfg core.Configurator) core.Decoder {
		return NewJPEG(src, cfg.JPEGDecoderParams())
	})
	reg.RegisterDecoder(core.FormatPNG, func(src *buffer.Cursor, cfg core.Configurator) core.Decoder {
		return NewPNG(src, cfg.PNGDecoderParams())
	})
	reg.RegisterDecoder(core.FormatWebP, func(src *buffer.Cursor, cfg core.Configurator) core.Decoder {
		return NewWebP(src, cfg.WebPDecoderParams())
	})
}
