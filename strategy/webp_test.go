package strategy

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/Skryldev/image-transcoder/adapters/decoder"
	"github.com/Skryldev/image-transcoder/adapters/encoder"
	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/core"
)

func registry() *codec.Registry {
	reg := codec.NewRegistry()
	decoder.Register(reg)
	encoder.Register(reg)
	return reg
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func flat(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// noisy fills every pixel with a different colour.
func noisy(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, n := 0, 0; i < len(img.Pix); i, n = i+4, n+7919 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(n), uint8(n>>8), uint8(n>>16), 255
	}
	return img
}

// ── ConvertToWebP ─────────────────────────────────────────────────────────────

func TestConvertToWebPDeclinesWebP(t *testing.T) {
	s := NewConvertToWebP(core.DefaultWebPEncoderParams())
	if s.ShouldEvenBother(&core.ImageInfo{Format: core.FormatWebP}) {
		t.Error("WebP source should be declined")
	}
	for _, f := range []core.Format{core.FormatPNG, core.FormatJPEG, core.FormatGIF} {
		if !s.ShouldEvenBother(&core.ImageInfo{Format: f}) {
			t.Errorf("%s source should be accepted", f)
		}
	}
}

func TestConvertToWebPMixedForGIF(t *testing.T) {
	p := NewBuilder().SetBaseStrategy(NewConvertToWebP(core.DefaultWebPEncoderParams())).Build(registry())
	if _, err := p.CreateImageReader(core.FormatGIF, buffer.NewCursor(buffer.NewSequence())); err != nil {
		t.Fatal(err)
	}
	if got := p.WebPEncoderParams().Compression; got != core.CompressionMixed {
		t.Errorf("compression: got %s, want mixed", got)
	}
}

func TestConvertToWebPRestrictsSchemes(t *testing.T) {
	p := NewBuilder().SetBaseStrategy(NewConvertToWebP(core.DefaultWebPEncoderParams())).Build(registry())
	params := p.PNGDecoderParams()
	if params.Allows(core.ColorSchemeGray) {
		t.Error("gray should not be allowed")
	}
	if !params.Allows(core.ColorSchemeRGB) || !params.Allows(core.ColorSchemeRGBA) {
		t.Error("rgb and rgba should be allowed")
	}
}

func TestConvertToWebPWithoutFactory(t *testing.T) {
	s := NewConvertToWebP(core.DefaultWebPEncoderParams())
	if _, err := s.CreateImageReader(core.FormatPNG, buffer.NewCursor(buffer.NewSequence())); err == nil {
		t.Error("reader without factory should fail")
	}
}

// ── Layers ────────────────────────────────────────────────────────────────────

func TestRequestLayerParams(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want core.WebPEncoderParams
	}{
		{"defaults kept", DefaultRequest(), core.DefaultWebPEncoderParams()},
		{"quality and method", Request{Quality: 80, Method: 5, Compression: CompressionAuto},
			core.WebPEncoderParams{Quality: 80, Method: 5}},
		{"lossless", Request{Compression: CompressionLossless},
			core.WebPEncoderParams{Quality: 50, Method: 3, Compression: core.CompressionLossless}},
		{"stats and metadata", Request{RecordStats: true, KeepMetadata: true},
			core.WebPEncoderParams{Quality: 50, Method: 3, WriteStats: true, WriteICC: true, WriteEXIF: true, WriteXMP: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := core.DefaultWebPEncoderParams()
			(&RequestLayer{Request: tt.req}).AdjustWebPEncoderParams(&p)
			if p != tt.want {
				t.Errorf("got %+v, want %+v", p, tt.want)
			}
		})
	}
}

func TestRequestLayerAutoKeepsGIFMixed(t *testing.T) {
	base := NewConvertToWebP(core.DefaultWebPEncoderParams())
	p := NewBuilder().SetBaseStrategy(base).AddLayer(&RequestLayer{Request: DefaultRequest()}).Build(registry())
	if _, err := p.CreateImageReader(core.FormatGIF, buffer.NewCursor(buffer.NewSequence())); err != nil {
		t.Fatal(err)
	}
	if got := p.WebPEncoderParams().Compression; got != core.CompressionMixed {
		t.Errorf("compression: got %s, want mixed", got)
	}
}

func TestKeepMetadataWaits(t *testing.T) {
	if !(&RequestLayer{Request: Request{KeepMetadata: true}}).ShouldWaitForMetadata() {
		t.Error("keep_metadata should wait for metadata")
	}
}

// writeThrough encodes one frame with the policy's writer and returns the
// file.
func writeThrough(t *testing.T, p *Policy, info *core.ImageInfo, f *core.Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := p.CreateImageWriter(&buf, nil, info)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Initialize(info); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := w.WriteFrame(f); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := w.Finish(nil); err != nil {
		t.Fatalf("finish: %v", err)
	}
	return buf.Bytes()
}

// webpAlpha reports the VP8X alpha flag, an ALPH chunk or the VP8L
// alpha_is_used bit, whichever the file carries.
func webpAlpha(t *testing.T, file []byte) bool {
	t.Helper()
	if len(file) < 30 || string(file[8:12]) != "WEBP" {
		t.Fatalf("not a WebP file: % x", file[:min(len(file), 16)])
	}
	switch string(file[12:16]) {
	case "VP8X":
		return file[20]&0x10 != 0 || bytes.Contains(file, []byte("ALPH"))
	case "VP8L":
		return binary.LittleEndian.Uint32(file[21:25])>>28&1 == 1
	}
	return false
}

func TestStripAlphaLayer(t *testing.T) {
	info := &core.ImageInfo{Format: core.FormatPNG, ColorScheme: core.ColorSchemeRGBA, Width: 16, Height: 16}
	for _, compression := range []CompressionMode{CompressionLossy, CompressionLossless} {
		req := DefaultRequest()
		req.Compression = compression
		p := NewBuilder().
			SetBaseStrategy(NewConvertToWebP(core.DefaultWebPEncoderParams())).
			AddLayer(&RequestLayer{Request: req}).
			AddLayer(StripAlphaLayer{}).
			Build(registry())

		opaqueFrame := &core.Frame{Image: noisy(16, 16), ColorScheme: core.ColorSchemeRGBA}
		if webpAlpha(t, writeThrough(t, p, info, opaqueFrame)) {
			t.Errorf("%s: opaque frame written with alpha", compression)
		}
		if opaqueFrame.ColorScheme != core.ColorSchemeRGBA {
			t.Errorf("%s: caller's frame was modified", compression)
		}
		clearFrame := &core.Frame{Image: flat(16, 16, color.NRGBA{R: 10, A: 100}), ColorScheme: core.ColorSchemeRGBA}
		if !webpAlpha(t, writeThrough(t, p, info, clearFrame)) {
			t.Errorf("%s: translucent frame lost its alpha", compression)
		}
	}

	rec := &recordingWriter{}
	jpegInfo := &core.ImageInfo{Format: core.FormatJPEG, ColorScheme: core.ColorSchemeRGB}
	if got, _ := (StripAlphaLayer{}).AdjustWriter(rec, jpegInfo); got != core.ImageWriter(rec) {
		t.Error("non-PNG writer should be left alone")
	}
}

func TestPhotoMetric(t *testing.T) {
	if m := PhotoMetric(flat(300, 200, color.NRGBA{G: 200, A: 255})); m > 1 {
		t.Errorf("flat image metric: got %v, want <= 1", m)
	}
	if m := PhotoMetric(noisy(64, 64)); m < 50 {
		t.Errorf("noisy image metric: got %v, want >= 50", m)
	}
}

func TestPhotoLayerSwitchesToLossless(t *testing.T) {
	data := pngBytes(t, flat(32, 32, color.NRGBA{B: 200, A: 255}))
	layer := NewPhotoLayer(10)
	p := NewBuilder().
		SetBaseStrategy(NewConvertToWebP(core.DefaultWebPEncoderParams())).
		AddLayer(layer).
		Build(registry())

	seq := buffer.NewSequence()
	seq.AddChunk(buffer.Borrow(data))
	seq.SendEof()
	r, err := p.CreateImageReader(core.FormatPNG, buffer.NewCursor(seq))
	if err != nil {
		t.Fatal(err)
	}
	info, res := r.ImageInfo()
	if !res.IsOK() {
		t.Fatalf("image info: %s", res)
	}
	if r, err = p.AdjustImageReaderAfterInfoReady(r, info); err != nil {
		t.Fatal(err)
	}
	if got := p.WebPEncoderParams().Compression; got != core.CompressionLossy {
		t.Fatalf("before first frame: got %s, want lossy", got)
	}
	if _, res := r.NextFrame(); !res.IsOK() {
		t.Fatalf("next frame: %s", res)
	}
	if _, checked := layer.Metric(); !checked {
		t.Fatal("metric not computed")
	}
	if got := p.WebPEncoderParams().Compression; got != core.CompressionLossless {
		t.Errorf("after first frame: got %s, want lossless", got)
	}
}

type recordingWriter struct {
	frames []*core.Frame
}

func (w *recordingWriter) Initialize(*core.ImageInfo) error { return nil }
func (w *recordingWriter) SetMetadata(*core.Metadata)       {}
func (w *recordingWriter) Finish(*core.Stats) error         { return nil }

func (w *recordingWriter) WriteFrame(f *core.Frame) error {
	w.frames = append(w.frames, f)
	return nil
}
