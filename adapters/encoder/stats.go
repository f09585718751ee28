package encoder

import (
	"bytes"
	"image"
	"math"

	"golang.org/x/image/webp"
)

// maxPSNR is reported for identical images.
const maxPSNR = 99.0

// psnr decodes the encoded still and compares it with the source over the
// colour channels.  It returns 0 when the output cannot be decoded.
func psnr(src image.Image, encoded []byte) float64 {
	out, err := webp.Decode(bytes.NewReader(encoded))
	if err != nil || out.Bounds().Size() != src.Bounds().Size() {
		return 0
	}
	sb, ob := src.Bounds(), out.Bounds()
	var sum float64
	for y := 0; y < sb.Dy(); y++ {
		for x := 0; x < sb.Dx(); x++ {
			r1, g1, b1, _ := src.At(sb.Min.X+x, sb.Min.Y+y).RGBA()
			r2, g2, b2, _ := out.At(ob.Min.X+x, ob.Min.Y+y).RGBA()
			for _, d := range [3]float64{
				float64(r1>>8) - float64(r2>>8),
				float64(g1>>8) - float64(g2>>8),
				float64(b1>>8) - float64(b2>>8),
			} {
				sum += d * d
			}
		}
	}
	mse := sum / float64(3*sb.Dx()*sb.Dy())
	if mse == 0 {
		return maxPSNR
	}
	return math.Min(10*math.Log10(255*255/mse), maxPSNR)
}
