package strategy

import (
	"io"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/core"
)

// Policy is a base Strategy plus its layers, applied in registration
// order.  It is built once per request and not modified afterwards.
type Policy struct {
	base    Strategy
	layers  []Layer
	factory *codec.Factory
}

// Factory returns the codec factory bound to this Policy.
func (p *Policy) Factory() *codec.Factory { return p.factory }

// Layers returns the number of layers.
func (p *Policy) Layers() int { return len(p.layers) }

// ShouldEvenBother asks every layer and then the base, stopping at the
// first that declines.
func (p *Policy) ShouldEvenBother(info *core.ImageInfo) bool {
	for _, l := range p.layers {
		if !l.ShouldEvenBother(info) {
			return false
		}
	}
	return p.base.ShouldEvenBother(info)
}

// ShouldWaitForMetadata is true when the base or any layer wants complete
// metadata before encoding starts.
func (p *Policy) ShouldWaitForMetadata() bool {
	if p.base.ShouldWaitForMetadata() {
		return true
	}
	for _, l := range p.layers {
		if l.ShouldWaitForMetadata() {
			return true
		}
	}
	return false
}

func (p *Policy) CreateImageReader(format core.Format, cur *buffer.Cursor) (core.ImageReader, error) {
	r, err := p.base.CreateImageReader(format, cur)
	if err != nil {
		return nil, err
	}
	for _, l := range p.layers {
		if r, err = l.AdjustReader(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (p *Policy) AdjustImageReaderAfterInfoReady(r core.ImageReader, info *core.ImageInfo) (core.ImageReader, error) {
	r, err := p.base.AdjustImageReaderAfterInfoReady(r, info)
	if err != nil {
		return nil, err
	}
	for _, l := range p.layers {
		if r, err = l.AdjustReaderAfterInfoReady(r, info); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (p *Policy) CreateImageWriter(dst io.Writer, r core.ImageReader, info *core.ImageInfo) (core.ImageWriter, error) {
	w, err := p.base.CreateImageWriter(dst, r, info)
	if err != nil {
		return nil, err
	}
	for _, l := range p.layers {
		if w, err = l.AdjustWriter(w, info); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// ── core.Configurator ─────────────────────────────────────────────────────────

func (p *Policy) GIFDecoderParams() core.GIFDecoderParams {
	params := p.base.GIFDecoderParams()
	for _, l := range p.layers {
		l.AdjustGIFDecoderParams(&params)
	}
	return params
}

func (p *Policy) JPEGDecoderParams() core.JPEGDecoderParams {
	params := p.base.JPEGDecoderParams()
	for _, l := range p.layers {
		l.AdjustJPEGDecoderParams(&params)
	}
	return params
}

func (p *Policy) PNGDecoderParams() core.PNGDecoderParams {
	params := p.base.PNGDecoderParams()
	for _, l := range p.layers {
		l.AdjustPNGDecoderParams(&params)
	}
	return params
}

func (p *Policy) WebPDecoderParams() core.WebPDecoderParams {
	params := p.base.WebPDecoderParams()
	for _, l := range p.layers {
		l.AdjustWebPDecoderParams(&params)
	}
	return params
}

func (p *Policy) WebPEncoderParams() core.WebPEncoderParams {
	params := p.base.WebPEncoderParams()
	for _, l := range p.layers {
		l.AdjustWebPEncoderParams(&params)
	}
	return params
}

// ── Builder ───────────────────────────────────────────────────────────────────

// Builder assembles a Policy.
type Builder struct {
	base   Strategy
	layers []Layer
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) SetBaseStrategy(s Strategy) *Builder {
	b.base = s
	return b
}

// AddLayer appends l after the layers already added.
func (b *Builder) AddLayer(l Layer) *Builder {
	b.layers = append(b.layers, l)
	return b
}

// Build binds the Policy to reg.  It panics when no base strategy was set.
func (b *Builder) Build(reg *codec.Registry) *Policy {
	if b.base == nil {
		panic("strategy: Build called without a base strategy")
	}
	p := &Policy{base: b.base, layers: append([]Layer(nil), b.layers...)}
	p.factory = reg.Factory(p)
	p.base.SetCodecFactory(p.factory)
	return p
}

var _ core.Configurator = (*Policy)(nil)
