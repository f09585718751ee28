package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Skryldev/image-transcoder/metrics"
	"github.com/Skryldev/image-transcoder/transport"
)

var (
	serveAddr    string
	serveWorkers int
	serveMaxSize int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP transcoding service",
	Long: `Serves POST /v1/transcode over HTTP/1.1 and cleartext HTTP/2.
The request body is the source image; the response body is WebP, streamed
as it is produced.  Options travel as JSON in the X-Transcode-Params header.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	serveCmd.Flags().IntVarP(&serveWorkers, "workers", "w", 0, "worker pool size (0 = NumCPU)")
	serveCmd.Flags().Int64Var(&serveMaxSize, "max-bytes", 0, "reject inputs larger than this (0 = no limit)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
	}
	if cmd.Flags().Changed("workers") {
		cfg.WorkerCount = serveWorkers
	}
	if cmd.Flags().Changed("max-bytes") {
		cfg.MaxImageBytes = serveMaxSize
	}

	proc, err := newProcessor()
	if err != nil {
		return err
	}
	proc.Start()
	defer proc.Stop()

	opts := transport.Options{Logger: logger}
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector := metrics.New(reg)
		proc.SetMetrics(collector)
		opts.Metrics = collector
		opts.Gatherer = reg
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return transport.NewServer(proc, opts).ListenAndServe(ctx)
}
