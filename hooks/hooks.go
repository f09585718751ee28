// Package hooks provides production-ready Hook and Logger implementations.
package hooks

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
)

// ── Structured logger adapter ─────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

// NewLogger returns a text logger writing to w at the named level
// ("debug", "info", "warn" or "error"; anything else means info).
func NewLogger(level string, w io.Writer) *SlogLogger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return NewSlogLogger(slog.New(h))
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Slog returns the wrapped slog.Logger.
func (s *SlogLogger) Slog() *slog.Logger { return s.log }

func (s *SlogLogger) Debug(msg string, fields ...interface{}) {
	s.log.Debug(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Info(msg string, fields ...interface{}) {
	s.log.Info(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Warn(msg string, fields ...interface{}) {
	s.log.Warn(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Error(msg string, fields ...interface{}) {
	s.log.Error(msg, toAttrs(fields)...)
}

func toAttrs(fields []interface{}) []any { return fields }

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs before/after each transcoder step.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeStep(_ context.Context, stepName string, info *core.ImageInfo) {
	if info == nil {
		h.logger.Debug("transcode.step.start", "step", stepName)
		return
	}
	h.logger.Debug("transcode.step.start",
		"step", stepName,
		"format", string(info.Format),
		"width", info.Width,
		"height", info.Height,
	)
}

func (h *LoggingHook) AfterStep(_ context.Context, stepName string, _ *core.ImageInfo, d time.Duration, err error) {
	if err != nil {
		h.logger.Error("transcode.step.error",
			"step", stepName,
			"duration_ms", d.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	h.logger.Debug("transcode.step.done",
		"step", stepName,
		"duration_ms", d.Milliseconds(),
	)
}

func (h *LoggingHook) Complete(_ context.Context, status string, stats core.Stats) {
	h.logger.Info("transcode.complete",
		"status", status,
		"coded_size", stats.CodedSize,
		"frames", stats.Frames,
		"digest", stats.Digest,
	)
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics atomically; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	stepDurationsMs map[string]int64 // cumulative ms per step
	stepCalls       map[string]int64 // call count per step
	stepErrors      map[string]int64
	statuses        map[string]int64

	totalThroughputB int64
	peakMemoryB      int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		stepDurationsMs: make(map[string]int64),
		stepCalls:       make(map[string]int64),
		stepErrors:      make(map[string]int64),
		statuses:        make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordProcessingTime(stepName string, d time.Duration) {
	m.mu.Lock()
	m.stepDurationsMs[stepName] += d.Milliseconds()
	m.stepCalls[stepName]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordThroughput(bytes int64) {
	atomic.AddInt64(&m.totalThroughputB, bytes)
}

// RecordMemory keeps the largest value seen.
func (m *InMemoryMetrics) RecordMemory(bytes int64) {
	for {
		cur := atomic.LoadInt64(&m.peakMemoryB)
		if bytes <= cur || atomic.CompareAndSwapInt64(&m.peakMemoryB, cur, bytes) {
			return
		}
	}
}

func (m *InMemoryMetrics) RecordError(stepName string, _ string) {
	m.mu.Lock()
	m.stepErrors[stepName]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordStatus(status string) {
	m.mu.Lock()
	m.statuses[status]++
	m.mu.Unlock()
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		StepDurationsMs:  make(map[string]int64, len(m.stepDurationsMs)),
		StepCalls:        make(map[string]int64, len(m.stepCalls)),
		StepErrors:       make(map[string]int64, len(m.stepErrors)),
		Statuses:         make(map[string]int64, len(m.statuses)),
		TotalThroughputB: atomic.LoadInt64(&m.totalThroughputB),
		PeakMemoryB:      atomic.LoadInt64(&m.peakMemoryB),
	}
	for k, v := range m.stepDurationsMs {
		snap.StepDurationsMs[k] = v
	}
	for k, v := range m.stepCalls {
		snap.StepCalls[k] = v
	}
	for k, v := range m.stepErrors {
		snap.StepErrors[k] = v
	}
	for k, v := range m.statuses {
		snap.Statuses[k] = v
	}
	return snap
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	StepDurationsMs  map[string]int64
	StepCalls        map[string]int64
	StepErrors       map[string]int64
	Statuses         map[string]int64
	TotalThroughputB int64
	PeakMemoryB      int64
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds transcoder events into a MetricsCollector.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeStep(_ context.Context, _ string, _ *core.ImageInfo) {}

func (h *MetricsHook) AfterStep(_ context.Context, stepName string, _ *core.ImageInfo, d time.Duration, err error) {
	h.collector.RecordProcessingTime(stepName, d)
	if err != nil {
		category := string(apperrors.CategoryOf(err))
		if category == "" {
			category = "unknown"
		}
		h.collector.RecordError(stepName, category)
	}
}

func (h *MetricsHook) Complete(_ context.Context, status string, stats core.Stats) {
	h.collector.RecordStatus(status)
	h.collector.RecordThroughput(stats.CodedSize)
	h.collector.RecordMemory(stats.PeakBuffered)
}

var (
	_ core.Hook             = (*LoggingHook)(nil)
	_ core.Hook             = (*MetricsHook)(nil)
	_ core.Logger           = (*SlogLogger)(nil)
	_ core.MetricsCollector = (*InMemoryMetrics)(nil)
)
