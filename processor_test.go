package imagetranscoder_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	xwebp "golang.org/x/image/webp"

	imagetranscoder "github.com/Skryldev/image-transcoder"
	apperrors "github.com/Skryldev/image-transcoder/errors"
	"github.com/Skryldev/image-transcoder/hooks"
	"github.com/Skryldev/image-transcoder/strategy"
	"github.com/Skryldev/image-transcoder/transcode"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func newRedJPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func newGradientPNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 3), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func newBlinkGIF(t testing.TB, frames int) []byte {
	t.Helper()
	pal := color.Palette{color.RGBA{R: 255, A: 255}, color.RGBA{G: 255, A: 255}}
	anim := &gif.GIF{}
	for i := 0; i < frames; i++ {
		p := image.NewPaletted(image.Rect(0, 0, 12, 10), pal)
		for j := range p.Pix {
			p.Pix[j] = uint8((i + j) % 2)
		}
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, 10)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		t.Fatalf("encode test gif: %v", err)
	}
	return buf.Bytes()
}

func newProc(t *testing.T) *imagetranscoder.Processor {
	t.Helper()
	cfg := imagetranscoder.DefaultConfig()
	cfg.WorkerCount = 2
	cfg.QueueSize = 16
	p, err := imagetranscoder.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

func webpSize(t *testing.T, b []byte) (int, int) {
	t.Helper()
	cfg, err := xwebp.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("output is not webp: %v", err)
	}
	return cfg.Width, cfg.Height
}

// ── Transcode ─────────────────────────────────────────────────────────────────

func TestTranscode_JPEG(t *testing.T) {
	proc := newProc(t)
	raw := newRedJPEG(t, 80, 60)

	var out bytes.Buffer
	res, err := proc.Transcode(context.Background(), bytes.NewReader(raw), &out, strategy.DefaultRequest())
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if res.Status != transcode.StatusOK {
		t.Fatalf("status: got %s, want ok", res.Status)
	}
	if res.Format != imagetranscoder.JPEG {
		t.Errorf("format: got %s, want jpeg", res.Format)
	}
	if w, h := webpSize(t, out.Bytes()); w != 80 || h != 60 {
		t.Errorf("size: got %dx%d, want 80x60", w, h)
	}
	if res.Stats.CodedSize != int64(out.Len()) {
		t.Errorf("coded size: got %d, want %d", res.Stats.CodedSize, out.Len())
	}
	if res.Stats.BytesIn != int64(len(raw)) {
		t.Errorf("bytes in: got %d, want %d", res.Stats.BytesIn, len(raw))
	}
	if processed, _, _ := proc.Stats(); processed != 1 {
		t.Errorf("processed: got %d, want 1", processed)
	}
}

func TestTranscode_PNG_SmallChunks(t *testing.T) {
	cfg := imagetranscoder.DefaultConfig()
	cfg.ChunkSize = 7
	cfg.OutputChunkSize = 64
	proc, err := imagetranscoder.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer proc.Stop()

	var out bytes.Buffer
	res, err := proc.Transcode(context.Background(), bytes.NewReader(newGradientPNG(t, 40, 30)), &out, strategy.DefaultRequest())
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if res.Status != transcode.StatusOK {
		t.Fatalf("status: got %s, want ok", res.Status)
	}
	if w, h := webpSize(t, out.Bytes()); w != 40 || h != 30 {
		t.Errorf("size: got %dx%d, want 40x30", w, h)
	}
}

func TestTranscode_AnimatedGIF(t *testing.T) {
	proc := newProc(t)

	var out bytes.Buffer
	res, err := proc.Transcode(context.Background(), bytes.NewReader(newBlinkGIF(t, 3)), &out, strategy.DefaultRequest())
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if res.Stats.Frames != 3 {
		t.Errorf("frames: got %d, want 3", res.Stats.Frames)
	}
	if !bytes.Contains(out.Bytes(), []byte("ANIM")) {
		t.Error("animated output is missing its ANIM chunk")
	}
}

func TestTranscode_WebPDeclined(t *testing.T) {
	proc := newProc(t)

	var webp bytes.Buffer
	if _, err := proc.Transcode(context.Background(), bytes.NewReader(newGradientPNG(t, 16, 16)), &webp, strategy.DefaultRequest()); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	var out bytes.Buffer
	res, err := proc.Transcode(context.Background(), bytes.NewReader(webp.Bytes()), &out, strategy.DefaultRequest())
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if res.Status != transcode.StatusDeclined {
		t.Errorf("status: got %s, want declined", res.Status)
	}
	if out.Len() != 0 {
		t.Errorf("declined output: got %d bytes, want 0", out.Len())
	}
	if _, declined, _ := proc.Stats(); declined != 1 {
		t.Errorf("declined: got %d, want 1", declined)
	}
}

func TestTranscode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		maxSize int64
		want    error
		cat     apperrors.Category
	}{
		{"unsupported", []byte("definitely not an image"), 0, apperrors.ErrUnsupportedFormat, apperrors.CategoryInput},
		{"empty", nil, 0, apperrors.ErrEmptyInput, apperrors.CategoryInput},
		{"too large", newGradientPNG(t, 64, 64), 100, apperrors.ErrTooLarge, apperrors.CategoryInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := imagetranscoder.DefaultConfig()
			cfg.MaxImageBytes = tc.maxSize
			proc, err := imagetranscoder.New(cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer proc.Stop()

			_, err = proc.Transcode(context.Background(), bytes.NewReader(tc.input), io.Discard, strategy.DefaultRequest())
			if !errors.Is(err, tc.want) {
				t.Fatalf("error: got %v, want %v", err, tc.want)
			}
			if !apperrors.IsCategory(err, tc.cat) {
				t.Errorf("category: got %s, want %s", apperrors.CategoryOf(err), tc.cat)
			}
			if _, _, failed := proc.Stats(); failed != 1 {
				t.Errorf("errors: got %d, want 1", failed)
			}
		})
	}
}

func TestTranscode_ContextCancel(t *testing.T) {
	proc := newProc(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := proc.Transcode(ctx, bytes.NewReader(newRedJPEG(t, 32, 32)), io.Discard, strategy.DefaultRequest())
	if !errors.Is(err, apperrors.ErrCanceled) {
		t.Errorf("expected cancellation error, got %v", err)
	}
}

func TestNewSession_InvalidRequest(t *testing.T) {
	proc := newProc(t)
	req := strategy.DefaultRequest()
	req.Quality = 250

	if _, err := proc.NewSession(req); !apperrors.IsCategory(err, apperrors.CategoryProtocol) {
		t.Errorf("expected protocol error, got %v", err)
	}
}

// ── Sessions ──────────────────────────────────────────────────────────────────

func TestSession_ByteAtATime(t *testing.T) {
	proc := newProc(t)
	raw := newGradientPNG(t, 20, 20)

	s, err := proc.NewSession(strategy.DefaultRequest())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	var out bytes.Buffer
	status := transcode.StatusPending
	for i := 0; i < len(raw) && !status.Terminal(); i++ {
		status = s.FeedBorrowed(context.Background(), raw[i:i+1])
		for _, c := range s.Output() {
			out.Write(c)
		}
	}
	if !status.Terminal() {
		status = s.CloseInput(context.Background())
		for _, c := range s.Output() {
			out.Write(c)
		}
	}
	if status != transcode.StatusOK {
		t.Fatalf("status: got %s, want ok (err %v)", status, s.Err())
	}
	if w, h := webpSize(t, out.Bytes()); w != 20 || h != 20 {
		t.Errorf("size: got %dx%d, want 20x20", w, h)
	}
	if s.Written() != int64(out.Len()) {
		t.Errorf("written: got %d, want %d", s.Written(), out.Len())
	}
}

func TestSession_CloseUnfinished(t *testing.T) {
	proc := newProc(t)
	raw := newRedJPEG(t, 64, 64)

	s, err := proc.NewSession(strategy.DefaultRequest())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if st := s.Feed(context.Background(), raw[:len(raw)/2]); st != transcode.StatusPending {
		t.Fatalf("status after half: got %s, want pending", st)
	}
	s.Close()

	if s.Status() != transcode.StatusFailed {
		t.Errorf("status after close: got %s, want failed", s.Status())
	}
	if !errors.Is(s.Err(), apperrors.ErrCanceled) {
		t.Errorf("err after close: got %v, want canceled", s.Err())
	}
	if _, _, failed := proc.Stats(); failed != 1 {
		t.Errorf("errors: got %d, want 1", failed)
	}
}

func TestSession_Pump(t *testing.T) {
	proc := newProc(t)
	raw := newGradientPNG(t, 24, 24)
	s, err := proc.NewSession(strategy.DefaultRequest())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	var out bytes.Buffer
	sinks := 0
	status, err := s.Pump(context.Background(), iotest.HalfReader(bytes.NewReader(raw)), 16, func() error {
		sinks++
		return s.WriteTo(&out)
	})
	if err != nil || status != transcode.StatusOK {
		t.Fatalf("pump: got %s / %v, want ok", status, err)
	}
	if sinks < 2 {
		t.Errorf("sink calls: got %d, want one per step", sinks)
	}
	if w, h := webpSize(t, out.Bytes()); w != 24 || h != 24 {
		t.Errorf("size: got %dx%d, want 24x24", w, h)
	}
}

func TestSession_PumpFailures(t *testing.T) {
	errRead := errors.New("connection reset")
	errSink := errors.New("sink full")
	raw := newRedJPEG(t, 32, 32)

	cases := []struct {
		name     string
		src      io.Reader
		sink     func() error
		wantErr  error
		wantCat  apperrors.Category
		wantStat transcode.Status
	}{
		{"read error", io.MultiReader(bytes.NewReader(raw[:200]), iotest.ErrReader(errRead)), nil,
			errRead, apperrors.CategoryInput, transcode.StatusFailed},
		{"sink error", bytes.NewReader(raw), func() error { return apperrors.Wrap(apperrors.CategoryTransport, "test", errSink) },
			errSink, apperrors.CategoryTransport, transcode.StatusPending},
		{"truncated", bytes.NewReader(raw[:len(raw)/2]), nil,
			nil, "", transcode.StatusFailed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			proc := newProc(t)
			s, err := proc.NewSession(strategy.DefaultRequest())
			if err != nil {
				t.Fatalf("NewSession: %v", err)
			}
			defer s.Close()

			status, err := s.Pump(context.Background(), c.src, 64, c.sink)
			if status != c.wantStat {
				t.Errorf("status: got %s, want %s", status, c.wantStat)
			}
			if c.wantErr == nil {
				if err != nil {
					t.Errorf("err: got %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, c.wantErr) || !apperrors.IsCategory(err, c.wantCat) {
				t.Errorf("err: got %v, want %v in %s", err, c.wantErr, c.wantCat)
			}
		})
	}
}

// recordingLogger keeps warnings.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{})  {}
func (l *recordingLogger) Error(string, ...interface{}) {}
func (l *recordingLogger) Warn(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestNewSession_WarnsNativeMethod(t *testing.T) {
	proc := newProc(t)
	log := &recordingLogger{}
	proc.SetLogger(log)

	if _, err := proc.NewSession(strategy.DefaultRequest()); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if len(log.warns) != 0 {
		t.Fatalf("warnings without method: %v", log.warns)
	}
	req := strategy.DefaultRequest()
	req.Method = 6
	s, err := proc.NewSession(req)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()
	if len(log.warns) != 1 || !strings.Contains(log.warns[0], "method") {
		t.Errorf("warnings: got %v, want one about method", log.warns)
	}
}

// ── Inspect ───────────────────────────────────────────────────────────────────

func TestInspect(t *testing.T) {
	proc := newProc(t)

	info, err := proc.Inspect(context.Background(), bytes.NewReader(newBlinkGIF(t, 2)))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Width != 12 || info.Height != 10 {
		t.Errorf("size: got %dx%d, want 12x10", info.Width, info.Height)
	}
	if info.Format != imagetranscoder.GIF {
		t.Errorf("format: got %s, want gif", info.Format)
	}
	if processed, declined, failed := proc.Stats(); processed+declined+failed != 0 {
		t.Errorf("inspect should not be counted, got %d/%d/%d", processed, declined, failed)
	}
}

// ── Concurrency tests ─────────────────────────────────────────────────────────

func TestTranscode_ConcurrentSafety(t *testing.T) {
	proc := newProc(t)
	raw := newRedJPEG(t, 64, 64)

	const goroutines = 20
	var wg sync.WaitGroup
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = proc.Transcode(context.Background(), bytes.NewReader(raw), io.Discard, strategy.DefaultRequest())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: %v", i, err)
		}
	}
	if processed, _, _ := proc.Stats(); processed != goroutines {
		t.Errorf("processed: got %d, want %d", processed, goroutines)
	}
}

// ── Batch test ────────────────────────────────────────────────────────────────

func TestBatch(t *testing.T) {
	proc := newProc(t)
	raw := newRedJPEG(t, 32, 32)

	items := make([]imagetranscoder.BatchItem, 5)
	outs := make([]bytes.Buffer, len(items))
	for i := range items {
		items[i] = imagetranscoder.BatchItem{Src: bytes.NewReader(raw), Dst: &outs[i], Request: strategy.DefaultRequest()}
	}

	results, errs := proc.Batch(context.Background(), items)
	for i, err := range errs {
		if err != nil {
			t.Errorf("batch[%d]: %v", i, err)
		}
		if results[i] == nil || results[i].Status != transcode.StatusOK {
			t.Errorf("batch[%d]: want ok result", i)
		}
		if outs[i].Len() == 0 {
			t.Errorf("batch[%d]: empty output", i)
		}
	}
}

// ── Async worker pool test ────────────────────────────────────────────────────

func TestWorkerPool_Async(t *testing.T) {
	proc := newProc(t)

	var out bytes.Buffer
	resultCh := make(chan imagetranscoder.JobResult, 1)
	job := imagetranscoder.Job{
		ID:       "test-job-1",
		Ctx:      context.Background(),
		Src:      bytes.NewReader(newRedJPEG(t, 50, 40)),
		Dst:      &out,
		Request:  strategy.DefaultRequest(),
		ResultCh: resultCh,
	}

	if err := proc.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case res := <-resultCh:
		if res.Err != nil {
			t.Fatalf("async job error: %v", res.Err)
		}
		if res.JobID != "test-job-1" {
			t.Errorf("job id: got %q", res.JobID)
		}
		if res.Result.Info.Width != 50 {
			t.Errorf("async width: got %d, want 50", res.Result.Info.Width)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("async job timed out")
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	cfg := imagetranscoder.DefaultConfig()
	cfg.QueueSize = 1
	proc, err := imagetranscoder.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Not started: nothing drains the queue.
	defer proc.Stop()

	job := imagetranscoder.Job{Src: bytes.NewReader(nil), Dst: io.Discard}
	if err := proc.Submit(job); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := proc.Submit(job); !errors.Is(err, apperrors.ErrWorkerPoolFull) {
		t.Errorf("second submit: got %v, want ErrWorkerPoolFull", err)
	}
}

// ── Hooks / Metrics test ─────────────────────────────────────────────────────

func TestMetricsHook(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	proc := newProc(t)
	proc.SetMetrics(m)

	var out bytes.Buffer
	if _, err := proc.Transcode(context.Background(), bytes.NewReader(newRedJPEG(t, 40, 40)), &out, strategy.DefaultRequest()); err != nil {
		t.Fatalf("Transcode: %v", err)
	}

	snap := m.Snapshot()
	for _, step := range []string{"sniff_format", "read_metadata", "decide", "transcode_loop"} {
		if snap.StepCalls[step] == 0 {
			t.Errorf("step %s was not recorded in metrics", step)
		}
	}
	if snap.Statuses["ok"] != 1 {
		t.Errorf("ok statuses: got %d, want 1", snap.Statuses["ok"])
	}
	if snap.TotalThroughputB != int64(out.Len()) {
		t.Errorf("throughput: got %d, want %d", snap.TotalThroughputB, out.Len())
	}
}

// ── Benchmarks ────────────────────────────────────────────────────────────────

func BenchmarkTranscode_JPEG(b *testing.B) {
	proc, err := imagetranscoder.New(imagetranscoder.DefaultConfig())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	defer proc.Stop()
	raw := newRedJPEG(b, 640, 480)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := proc.Transcode(context.Background(), bytes.NewReader(raw), io.Discard, strategy.DefaultRequest()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTranscode_GIF(b *testing.B) {
	proc, err := imagetranscoder.New(imagetranscoder.DefaultConfig())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	defer proc.Stop()
	raw := newBlinkGIF(b, 8)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := proc.Transcode(context.Background(), bytes.NewReader(raw), io.Discard, strategy.DefaultRequest()); err != nil {
			b.Fatal(err)
		}
	}
}
