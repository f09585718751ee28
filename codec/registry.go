package codec

import (
	"fmt"
	"io"
	"sync"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/core"
)

// DecoderFunc builds a decoder reading from src.
type DecoderFunc func(src *buffer.Cursor, cfg core.Configurator) core.Decoder

// EncoderFunc builds an encoder writing to dst.
type EncoderFunc func(dst io.Writer, cfg core.Configurator) core.Encoder

// ── Registry ──────────────────────────────────────────────────────────────────

// Registry is a thread-safe registration table of codec constructors.
type Registry struct {
	mu       sync.RWMutex
	decoders map[core.Format]DecoderFunc
	encoders map[core.Format]EncoderFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[core.Format]DecoderFunc),
		encoders: make(map[core.Format]EncoderFunc),
	}
}

func (r *Registry) RegisterDecoder(f core.Format, fn DecoderFunc) {
	r.mu.Lock()
	r.decoders[f] = fn
	r.mu.Unlock()
}

func (r *Registry) RegisterEncoder(f core.Format, fn EncoderFunc) {
	r.mu.Lock()
	r.encoders[f] = fn
	r.mu.Unlock()
}

func (r *Registry) DecoderFor(f core.Format) (DecoderFunc, bool) {
	r.mu.RLock()
	fn, ok := r.decoders[f]
	r.mu.RUnlock()
	return fn, ok
}

func (r *Registry) EncoderFor(f core.Format) (EncoderFunc, bool) {
	r.mu.RLock()
	fn, ok := r.encoders[f]
	r.mu.RUnlock()
	return fn, ok
}

// Factory binds the registry to a Configurator.
func (r *Registry) Factory(cfg core.Configurator) *Factory {
	return &Factory{reg: r, cfg: cfg}
}

// ── Factory ───────────────────────────────────────────────────────────────────

// Factory builds codecs whose parameters come from its Configurator.
type Factory struct {
	reg *Registry
	cfg core.Configurator
}

// CreateDecoder panics when no decoder is registered for f.
func (f *Factory) CreateDecoder(format core.Format, src *buffer.Cursor) core.Decoder {
	fn, ok := f.reg.DecoderFor(format)
	if !ok {
		panic(fmt.Sprintf("codec: no decoder registered for %q", format))
	}
	return fn(src, f.cfg)
}

// CreateEncoder panics when no encoder is registered for f.
func (f *Factory) CreateEncoder(format core.Format, dst io.Writer) core.Encoder {
	fn, ok := f.reg.EncoderFor(format)
	if !ok {
		panic(fmt.Sprintf("codec: no encoder registered for %q", format))
	}
	return fn(dst, f.cfg)
}

// Configurator returns the parameter source codecs are built with.
func (f *Factory) Configurator() core.Configurator { return f.cfg }
