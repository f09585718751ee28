package core

// ── Decoder parameters ────────────────────────────────────────────────────────

// DecodeParams is shared by every decoder.
type DecodeParams struct {
	// AllowedColorSchemes restricts what frames may be delivered as.  Frames in
	// any other scheme are converted to RGBA.  Empty allows everything.
	AllowedColorSchemes map[ColorScheme]bool
}

// Allows reports whether frames in scheme s may be delivered unchanged.
func (p DecodeParams) Allows(s ColorScheme) bool {
	return len(p.AllowedColorSchemes) == 0 || p.AllowedColorSchemes[s]
}

// Allow returns p with s added to the allowed schemes.
func (p DecodeParams) Allow(schemes ...ColorScheme) DecodeParams {
	allowed := make(map[ColorScheme]bool, len(p.AllowedColorSchemes)+len(schemes))
	for s := range p.AllowedColorSchemes {
		allowed[s] = true
	}
	for _, s := range schemes {
		allowed[s] = true
	}
	p.AllowedColorSchemes = allowed
	return p
}

type GIFDecoderParams struct{ DecodeParams }
type JPEGDecoderParams struct{ DecodeParams }
type PNGDecoderParams struct{ DecodeParams }
type WebPDecoderParams struct{ DecodeParams }

// ── Encoder parameters ────────────────────────────────────────────────────────

// Compression selects the WebP coding mode.
type Compression int

const (
	CompressionLossy Compression = iota
	CompressionLossless
	// CompressionMixed picks lossy or lossless per frame, whichever is smaller.
	CompressionMixed
)

func (c Compression) String() string {
	switch c {
	case CompressionLossless:
		return "lossless"
	case CompressionMixed:
		return "mixed"
	}
	return "lossy"
}

// WebPEncoderParams controls the WebP encoder.
type WebPEncoderParams struct {
	Quality     float32 // 0-100
	Method      int     // 0 (fast) - 6 (slow, smaller)
	Compression Compression
	WriteStats  bool
	WriteICC    bool
	WriteEXIF   bool
	WriteXMP    bool
}

// WritesMetadata reports whether any metadata kind should be embedded.
func (p WebPEncoderParams) WritesMetadata() bool {
	return p.WriteICC || p.WriteEXIF || p.WriteXMP
}

// DefaultWebPEncoderParams returns the encoder defaults.
func DefaultWebPEncoderParams() WebPEncoderParams {
	return WebPEncoderParams{
		Quality:     50,
		Method:      3,
		Compression: CompressionLossy,
	}
}

// ── Configurator ──────────────────────────────────────────────────────────────

// Configurator supplies codec parameters when a codec is built.
type Configurator interface {
	GIFDecoderParams() GIFDecoderParams
	JPEGDecoderParams() JPEGDecoderParams
	PNGDecoderParams() PNGDecoderParams
	WebPDecoderParams() WebPDecoderParams
	WebPEncoderParams() WebPEncoderParams
}

// DefaultConfigurator returns default parameters for every codec.
type DefaultConfigurator struct{}

func (DefaultConfigurator) GIFDecoderParams() GIFDecoderParams   { return GIFDecoderParams{} }
func (DefaultConfigurator) JPEGDecoderParams() JPEGDecoderParams { return JPEGDecoderParams{} }
func (DefaultConfigurator) PNGDecoderParams() PNGDecoderParams   { return PNGDecoderParams{} }
func (DefaultConfigurator) WebPDecoderParams() WebPDecoderParams { return WebPDecoderParams{} }
func (DefaultConfigurator) WebPEncoderParams() WebPEncoderParams {
	return DefaultWebPEncoderParams()
}
