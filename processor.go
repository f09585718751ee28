// Package imagetranscoder converts JPEG, PNG and GIF images to WebP while
// the input is still arriving.
//
// A Processor owns the codec registry and a worker pool.  Each request gets
// its own Session: bytes are fed in as they arrive and WebP output can be
// drained after every call.
package imagetranscoder

import (
	"context"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Skryldev/image-transcoder/adapters/decoder"
	"github.com/Skryldev/image-transcoder/adapters/encoder"
	"github.com/Skryldev/image-transcoder/adapters/vips"
	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/config"
	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
	"github.com/Skryldev/image-transcoder/hooks"
	"github.com/Skryldev/image-transcoder/strategy"
	"github.com/Skryldev/image-transcoder/transcode"
	"github.com/Skryldev/image-transcoder/utils"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	GIF  = core.FormatGIF
	WebP = core.FormatWebP
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Result describes a finished request.
type Result struct {
	Status transcode.Status
	Format core.Format
	Info   *core.ImageInfo
	Stats  core.Stats
}

// Processor is the primary entry point.  It is safe for concurrent use.
type Processor struct {
	cfg     config.Config
	reg     *codec.Registry
	backend *vips.Backend
	hooks   []core.Hook
	logger  core.Logger
	metrics core.MetricsCollector

	// Worker pool.
	jobQueue chan Job
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	shutdown chan struct{}

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	declinedCount  int64
	errorCount     int64
}

// New creates a fully wired Processor with the GIF, JPEG, PNG and WebP
// decoders and the WebP encoder selected by cfg.Encoder.
func New(cfg config.Config) (*Processor, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "new", err)
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	p := &Processor{
		cfg:      cfg,
		reg:      codec.NewRegistry(),
		logger:   core.NopLogger{},
		jobQueue: make(chan Job, cfg.QueueSize),
		shutdown: make(chan struct{}),
	}
	decoder.Register(p.reg)
	switch cfg.Encoder {
	case config.EncoderVips:
		p.backend = vips.NewBackend(vips.BackendConfig{
			MaxCacheSize: cfg.Vips.MaxCacheSize,
			MaxWorkers:   cfg.Vips.ConcurrencyLevel,
		})
		vips.Register(p.reg, p.backend)
	default:
		encoder.Register(p.reg)
	}
	return p, nil
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l core.Logger) { p.logger = l }

// SetMetrics attaches a metrics collector.
func (p *Processor) SetMetrics(m core.MetricsCollector) { p.metrics = m }

// AddHook registers an observer for transcoder state steps.
func (p *Processor) AddHook(h core.Hook) { p.hooks = append(p.hooks, h) }

// Registry returns the codec registry so callers can register codecs after
// construction.
func (p *Processor) Registry() *codec.Registry { return p.reg }

// Config returns the configuration the Processor runs with.
func (p *Processor) Config() config.Config { return p.cfg }

// Start launches the worker pool.  It is idempotent.
func (p *Processor) Start() {
	p.once.Do(func() {
		for i := 0; i < p.cfg.WorkerCount; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop shuts down all workers and releases the encoder backend.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.shutdown)
		p.wg.Wait()
		if p.backend != nil {
			p.backend.Shutdown()
		}
	})
}

// Policy builds the per-request policy for req.
func (p *Processor) Policy(req strategy.Request) *strategy.Policy {
	defaults := core.DefaultWebPEncoderParams()
	defaults.Quality = p.cfg.DefaultQuality
	defaults.Method = p.cfg.DefaultMethod
	b := strategy.NewBuilder().SetBaseStrategy(strategy.NewConvertToWebP(defaults))
	for _, l := range req.Layers() {
		b.AddLayer(l)
	}
	return b.Build(p.reg)
}

func (p *Processor) transcodeOptions() transcode.Options {
	hs := make([]core.Hook, 0, len(p.hooks)+1)
	hs = append(hs, p.hooks...)
	if p.metrics != nil {
		hs = append(hs, hooks.NewMetricsHook(p.metrics))
	}
	return transcode.Options{Logger: p.logger, Hooks: hs}
}

// Transcode streams src through a new Session and writes the WebP output to
// dst as it is produced.  Input is read in cfg.ChunkSize fragments and is
// limited to cfg.MaxImageBytes.
func (p *Processor) Transcode(ctx context.Context, src io.Reader, dst io.Writer, req strategy.Request) (*Result, error) {
	s, err := p.NewSession(req)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	lr := &utils.LimitedReader{R: src, Max: p.cfg.MaxImageBytes}
	status, err := s.Pump(ctx, lr, p.cfg.ChunkSize, func() error { return s.WriteTo(dst) })
	if err != nil {
		return s.Result(), err
	}
	if status == transcode.StatusFailed {
		return s.Result(), s.Err()
	}
	return s.Result(), nil
}

// Inspect reads only as much of r as needed to return the image header.
func (p *Processor) Inspect(ctx context.Context, r io.Reader) (*core.ImageInfo, error) {
	b := strategy.NewBuilder().
		SetBaseStrategy(strategy.NewConvertToWebP(core.DefaultWebPEncoderParams())).
		AddLayer(inspectOnly{})
	s := p.newSession(b.Build(p.reg), transcode.Options{Logger: p.logger})
	s.counted = true
	defer s.Close()

	lr := &utils.LimitedReader{R: r, Max: p.cfg.MaxImageBytes}
	if _, err := s.Pump(ctx, lr, p.cfg.ChunkSize, nil); err != nil {
		return nil, err
	}
	if info := s.Info(); info != nil {
		return info, nil
	}
	return nil, s.Err()
}

// inspectOnly stops every request once its header is known.
type inspectOnly struct{ strategy.NopLayer }

func (inspectOnly) ShouldEvenBother(*core.ImageInfo) bool { return false }

// ── Async jobs ────────────────────────────────────────────────────────────────

// Job is one asynchronous transcode.
type Job struct {
	ID       string
	Ctx      context.Context
	Src      io.Reader
	Dst      io.Writer
	Request  strategy.Request
	ResultCh chan<- JobResult
}

// JobResult is delivered on Job.ResultCh.
type JobResult struct {
	JobID  string
	Result *Result
	Err    error
}

// Submit enqueues an async job.  Returns ErrWorkerPoolFull if the queue is full.
func (p *Processor) Submit(job Job) error {
	select {
	case p.jobQueue <- job:
		return nil
	default:
		return apperrors.New(apperrors.CategoryTransport, "submit", apperrors.ErrWorkerPoolFull)
	}
}

// BatchItem is one input of Batch.
type BatchItem struct {
	Src     io.Reader
	Dst     io.Writer
	Request strategy.Request
}

// Batch transcodes several inputs concurrently (fan-out / fan-in).
func (p *Processor) Batch(ctx context.Context, items []BatchItem) ([]*Result, []error) {
	results := make([]*Result, len(items))
	errs := make([]error, len(items))
	var wg sync.WaitGroup

	for i, it := range items {
		wg.Add(1)
		go func(idx int, it BatchItem) {
			defer wg.Done()
			results[idx], errs[idx] = p.Transcode(ctx, it.Src, it.Dst, it.Request)
		}(i, it)
	}
	wg.Wait()
	return results, errs
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (p *Processor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.shutdown:
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.processJob(job)
		}
	}
}

func (p *Processor) processJob(job Job) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := p.cfg.JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := p.Transcode(ctx, job.Src, job.Dst, job.Request)
	if job.ResultCh != nil {
		job.ResultCh <- JobResult{JobID: job.ID, Result: result, Err: err}
	}
}

func (p *Processor) count(s transcode.Status) {
	switch s {
	case transcode.StatusOK:
		atomic.AddInt64(&p.processedCount, 1)
	case transcode.StatusDeclined:
		atomic.AddInt64(&p.declinedCount, 1)
	case transcode.StatusFailed:
		atomic.AddInt64(&p.errorCount, 1)
	}
}

// Stats returns how many requests finished in each terminal status.
func (p *Processor) Stats() (processed, declined, errors int64) {
	return atomic.LoadInt64(&p.processedCount),
		atomic.LoadInt64(&p.declinedCount),
		atomic.LoadInt64(&p.errorCount)
}
