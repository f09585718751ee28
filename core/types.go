package core

import (
	"image"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// ColorScheme represents the pixel layout a decoder produces.
type ColorScheme string

const (
	ColorSchemeGray      ColorScheme = "gray"
	ColorSchemeGrayAlpha ColorScheme = "gray_alpha"
	ColorSchemeRGB       ColorScheme = "rgb"
	ColorSchemeRGBA      ColorScheme = "rgba"
	ColorSchemeUnknown   ColorScheme = "unknown"
)

// BytesPerPixel returns the number of bytes one pixel occupies in s.
func (s ColorScheme) BytesPerPixel() int {
	switch s {
	case ColorSchemeGray:
		return 1
	case ColorSchemeGrayAlpha:
		return 2
	case ColorSchemeRGB:
		return 3
	default:
		return 4
	}
}

// HasAlpha reports whether s carries an alpha channel.
func (s ColorScheme) HasAlpha() bool {
	return s == ColorSchemeGrayAlpha || s == ColorSchemeRGBA
}

// ImageInfo describes an image as soon as its header has been parsed.  It is
// produced once per decode and never changes afterwards.
type ImageInfo struct {
	Width       int
	Height      int
	ColorScheme ColorScheme
	Size        int64 // decoded pixel bytes: Width * Height * bytes per pixel
	Format      Format
	Multiframe  bool
	Progressive bool
	Quality     int // estimated source quality; -1 when not applicable
}

// Disposal tells the consumer what happens to a frame's area before the next
// frame is drawn.
type Disposal int

const (
	DisposalNone Disposal = iota
	DisposalBackground
	DisposalPrevious
)

// Frame is one fully decoded picture.  Animated sources deliver frames already
// composited onto the full canvas.
type Frame struct {
	Index       int
	Image       image.Image
	ColorScheme ColorScheme
	Duration    time.Duration
	Disposal    Disposal
}

// Stats summarises one finished transcode.
type Stats struct {
	CodedSize    int64   // bytes emitted by the encoder
	PSNR         float64 // only populated when statistics were requested
	Digest       string  // xxhash64 of the emitted bytes, hex encoded
	Frames       int
	BytesIn      int64
	PeakBuffered int64 // largest amount of input held at once
}
