// Package vips provides a libvips-backed WebP still encoder.
package vips

import (
	"image"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/image-transcoder/adapters/encoder"
	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
}

// Backend owns the libvips runtime.  Safe for concurrent use across
// goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// NewEncoder returns a WebP encoder writing to dst whose bitstreams come
// from vips_webpsave.  Container assembly, metadata, mixed compression and
// animation are shared with the native encoder.
func (b *Backend) NewEncoder(dst io.Writer, params core.WebPEncoderParams) core.Encoder {
	return encoder.NewWebPWith(dst, params, b)
}

// Register makes b the WebP encoder of reg.
func Register(reg *codec.Registry, b *Backend) {
	reg.RegisterEncoder(core.FormatWebP, func(dst io.Writer, cfg core.Configurator) core.Encoder {
		return b.NewEncoder(dst, cfg.WebPEncoderParams())
	})
}

// EncodeStill encodes img with vips_webpsave.  Method maps onto the
// reduction effort, 0 fastest to 6 smallest.
func (b *Backend) EncodeStill(img image.Image, lossless bool, p core.WebPEncoderParams) ([]byte, error) {
	raw, err := encoder.Intermediate(img)
	if err != nil {
		return nil, err
	}
	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.load", err)
	}
	defer ref.Close()

	ep := govips.NewWebpExportParams()
	ep.Quality = int(p.Quality)
	ep.ReductionEffort = p.Method
	ep.Lossless = lossless
	ep.StripMetadata = true
	out, _, err := ref.ExportWebp(ep)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.export", err)
	}
	return out, nil
}

var _ encoder.StillEncoder = (*Backend)(nil)
