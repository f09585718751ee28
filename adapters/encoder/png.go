package encoder

import (
	"bytes"
	"image"
	"image/png"

	apperrors "github.com/Skryldev/image-transcoder/errors"
	"github.com/Skryldev/image-transcoder/utils"
)

// Intermediate encodes img as a fast, lossless PNG for backends that take
// encoded files rather than pixel buffers.
func Intermediate(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "png.intermediate", apperrors.ErrEmptyInput)
	}
	buf := utils.AcquireBuffer()
	defer utils.ReleaseBuffer(buf)

	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(buf, img); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.intermediate", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}
