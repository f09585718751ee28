// Package metrics exposes transcoder activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Skryldev/image-transcoder/core"
)

const namespace = "image_transcoder"

// Collector implements core.MetricsCollector on Prometheus vectors.
type Collector struct {
	StepDuration   *prometheus.HistogramVec
	StepErrors     *prometheus.CounterVec
	Results        *prometheus.CounterVec
	OutputBytes    prometheus.Counter
	PeakInputBytes prometheus.Histogram

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge
}

// New registers the transcoder metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		StepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Time spent in one transcoder state step",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"step"},
		),
		StepErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_errors_total",
				Help:      "Transcoder steps that ended in an error",
			},
			[]string{"step", "category"},
		),
		Results: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Finished transcodes by terminal status",
			},
			[]string{"status"},
		),
		OutputBytes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_bytes_total",
				Help:      "WebP bytes produced",
			},
		),
		PeakInputBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "peak_buffered_input_bytes",
				Help:      "Largest amount of input held at once per request",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "HTTP requests currently being served",
			},
		),
	}
}

func (c *Collector) RecordProcessingTime(stepName string, d time.Duration) {
	c.StepDuration.WithLabelValues(stepName).Observe(d.Seconds())
}

func (c *Collector) RecordThroughput(bytes int64) { c.OutputBytes.Add(float64(bytes)) }

func (c *Collector) RecordMemory(bytes int64) { c.PeakInputBytes.Observe(float64(bytes)) }

func (c *Collector) RecordError(stepName string, category string) {
	c.StepErrors.WithLabelValues(stepName, category).Inc()
}

func (c *Collector) RecordStatus(status string) { c.Results.WithLabelValues(status).Inc() }

var _ core.MetricsCollector = (*Collector)(nil)
