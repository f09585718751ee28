package encoder

import (
	"io"

	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/core"
)

var _ core.Encoder = (*WebP)(nil)

// Register adds the WebP encoder to reg.
func Register(reg *codec.Registry) {
	reg.RegisterEncoder(core.FormatWebP, func(dst io.Writer, cfg core.Configurator) core.Encoder {
		return NewWebP(dst, cfg.WebPEncoderParams())
	})
}
