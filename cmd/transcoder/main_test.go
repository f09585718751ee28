package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	xwebp "golang.org/x/image/webp"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		in   string
		args []string
		want string
	}{
		{"photo.jpg", []string{"photo.jpg"}, "photo.webp"},
		{"dir/anim.gif", []string{"dir/anim.gif"}, "dir/anim.webp"},
		{"noext", []string{"noext"}, "noext.webp"},
		{"-", []string{"-"}, "-"},
		{"a.png", []string{"a.png", "b.webp"}, "b.webp"},
	}
	for _, tc := range tests {
		if got := outputPath(tc.in, tc.args); got != tc.want {
			t.Errorf("outputPath(%q, %v) = %q, want %q", tc.in, tc.args, got, tc.want)
		}
	}
}

func TestConvertAndInfoCommands(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "square.png")

	img := image.NewNRGBA(image.Rect(0, 0, 24, 24))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	img.Set(0, 0, color.NRGBA{A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	if err := os.WriteFile(in, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	rootCmd.SetArgs([]string{"convert", in, "--quality", "70", "--log-level", "error"})
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("convert: %v", err)
	}
	out, err := os.ReadFile(filepath.Join(dir, "square.webp"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	cfg, err := xwebp.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width != 24 || cfg.Height != 24 {
		t.Errorf("size: got %dx%d, want 24x24", cfg.Width, cfg.Height)
	}

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"info", in, "--log-level", "error"})
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(stdout.String(), "dimensions:  24x24") {
		t.Errorf("info output: %q", stdout.String())
	}
}
