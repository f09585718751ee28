package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/image/riff"
)

// VP8X feature flags.
const (
	flagAnimation = 0x02
	flagXMP       = 0x04
	flagEXIF      = 0x08
	flagAlpha     = 0x10
	flagICC       = 0x20
)

// chunk is one RIFF chunk of a WebP file.
type chunk struct {
	id   string
	data []byte
}

// splitStill returns the image chunks (ALPH, VP8, VP8L) of an encoded still.
func splitStill(still []byte) ([]chunk, error) {
	form, r, err := riff.NewReader(bytes.NewReader(still))
	if err != nil {
		return nil, err
	}
	if string(form[:]) != "WEBP" {
		return nil, fmt.Errorf("unexpected RIFF form %q", form[:])
	}
	var chunks []chunk
	for {
		id, _, data, err := r.Next()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return nil, err
		}
		switch string(id[:]) {
		case "ALPH", "VP8 ", "VP8L":
			b, err := io.ReadAll(data)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, chunk{id: string(id[:]), data: b})
		}
	}
}

// hasAlpha reports whether the image chunks carry transparency.
func hasAlpha(chunks []chunk) bool {
	for _, c := range chunks {
		switch c.id {
		case "ALPH":
			return true
		case "VP8L":
			// signature, then 14+14 bits of size and the alpha_is_used bit
			if len(c.data) >= 5 && binary.LittleEndian.Uint32(c.data[1:5])>>28&1 == 1 {
				return true
			}
		}
	}
	return false
}

func writeChunk(w *bytes.Buffer, id string, data []byte) {
	w.WriteString(id)
	binary.Write(w, binary.LittleEndian, uint32(len(data)))
	w.Write(data)
	if len(data)%2 == 1 {
		w.WriteByte(0)
	}
}

func put24(b []byte, v int) {
	b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
}

func vp8x(flags byte, width, height int) []byte {
	b := make([]byte, 10)
	b[0] = flags
	put24(b[4:], width-1)
	put24(b[7:], height-1)
	return b
}

// anmf builds the payload of one animation frame covering the whole canvas.
func anmf(width, height int, durationMs int, chunks []chunk) []byte {
	var body bytes.Buffer
	hdr := make([]byte, 16)
	put24(hdr[6:], width-1)
	put24(hdr[9:], height-1)
	put24(hdr[12:], min(durationMs, 1<<24-1))
	// frames are already composited: do not blend, do not dispose
	hdr[15] = 0x02
	body.Write(hdr)
	for _, c := range chunks {
		writeChunk(&body, c.id, c.data)
	}
	return body.Bytes()
}

// riffFile wraps body in a RIFF/WEBP header.
func riffFile(body []byte) []byte {
	out := bytes.NewBuffer(make([]byte, 0, len(body)+12))
	out.WriteString("RIFF")
	binary.Write(out, binary.LittleEndian, uint32(len(body)+4))
	out.WriteString("WEBP")
	out.Write(body)
	return out.Bytes()
}
