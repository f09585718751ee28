// Package codec maps formats to decoder and encoder constructors.
package codec

import (
	"bytes"

	"github.com/Skryldev/image-transcoder/core"
)

// LongestSignature is the number of bytes Sniff needs to tell every supported
// format apart.
const LongestSignature = 14

type signature struct {
	format core.Format
	offset int
	magic  []byte
}

// signatures is matched top to bottom; WebP needs two matches.
var signatures = []signature{
	{core.FormatJPEG, 0, []byte{0xFF, 0xD8, 0xFF}},
	{core.FormatPNG, 0, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}},
	{core.FormatGIF, 0, []byte("GIF87a")},
	{core.FormatGIF, 0, []byte("GIF89a")},
}

var (
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBPVP")
)

// Sniff classifies the leading bytes of an image.  A prefix shorter than a
// signature never matches it.
func Sniff(prefix []byte) core.Format {
	for _, s := range signatures {
		if hasAt(prefix, s.offset, s.magic) {
			return s.format
		}
	}
	if hasAt(prefix, 0, riffMagic) && hasAt(prefix, 8, webpMagic) {
		return core.FormatWebP
	}
	return core.FormatUnknown
}

func hasAt(b []byte, off int, magic []byte) bool {
	return len(b) >= off+len(magic) && bytes.Equal(b[off:off+len(magic)], magic)
}

// FormatFromContentType maps MIME types to Format values.
func FormatFromContentType(ct string) core.Format {
	switch ct {
	case "image/jpeg", "image/jpg":
		return core.FormatJPEG
	case "image/png":
		return core.FormatPNG
	case "image/gif":
		return core.FormatGIF
	case "image/webp":
		return core.FormatWebP
	}
	return core.FormatUnknown
}

// ContentType returns the MIME type of f.
func ContentType(f core.Format) string {
	switch f {
	case core.FormatJPEG:
		return "image/jpeg"
	case core.FormatPNG:
		return "image/png"
	case core.FormatGIF:
		return "image/gif"
	case core.FormatWebP:
		return "image/webp"
	}
	return "application/octet-stream"
}
