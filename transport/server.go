// Package transport serves the transcoder over HTTP/1.1 and cleartext
// HTTP/2.
//
//	POST /v1/transcode   image in, WebP out, options in X-Transcode-Params
//	GET  /healthz        liveness
//	GET  /metrics        Prometheus exposition
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	imagetranscoder "github.com/Skryldev/image-transcoder"
	"github.com/Skryldev/image-transcoder/config"
	"github.com/Skryldev/image-transcoder/core"
	"github.com/Skryldev/image-transcoder/metrics"
)

// Options configures the HTTP binding.
type Options struct {
	Logger core.Logger
	// Metrics and Gatherer are optional.  Without a Gatherer /metrics is not
	// routed.
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
}

// Server owns the HTTP listener for one Processor.
type Server struct {
	proc    *imagetranscoder.Processor
	cfg     config.Config
	logger  core.Logger
	metrics *metrics.Collector
	srv     *http.Server
	router  *mux.Router
}

// NewServer builds the router and the http.Server.  It does not listen.
func NewServer(proc *imagetranscoder.Processor, opts Options) *Server {
	s := &Server{
		proc:    proc,
		cfg:     proc.Config(),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if s.logger == nil {
		s.logger = core.NopLogger{}
	}
	s.router = s.setupRouter(opts.Gatherer)

	h2s := &http2.Server{IdleTimeout: s.cfg.HTTP.IdleTimeout}
	s.srv = &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           h2c.NewHandler(s.router, h2s),
		ReadHeaderTimeout: s.cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.HTTP.IdleTimeout,
	}
	return s
}

func (s *Server) setupRouter(gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Use(Logging(s.logger))
	if s.metrics != nil {
		r.Use(Metrics(s.metrics))
	}

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/transcode", s.transcode).Methods(http.MethodPost)
	return r
}

// Handler returns the routed handler without the h2c wrapper.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until ctx is done, then shuts the server down
// gracefully within cfg.HTTP.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("transport: listening", "addr", ln.Addr().String())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("transport: shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
