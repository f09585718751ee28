package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// EncoderBackend selects the WebP encoder implementation.
type EncoderBackend string

const (
	EncoderNative EncoderBackend = "native"
	EncoderVips   EncoderBackend = "vips"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Worker pool controls.
	WorkerCount int // default: runtime.NumCPU()
	QueueSize   int // max queued jobs before backpressure; default: 256
	JobTimeout  time.Duration

	// Streaming / memory limits.
	ChunkSize       int   // input fragment size in bytes; default 32 KiB
	OutputChunkSize int   // output chunk size in bytes; default 4 KiB
	MaxImageBytes   int64 // 0 = no limit

	// Default encode options applied when a request does not override them.
	DefaultQuality float32 // 0-100; default 50
	DefaultMethod  int     // 0-6; default 3

	Encoder EncoderBackend
	Vips    VipsConfig

	HTTP HTTPConfig

	// Logging / metrics.
	LogLevel       string // "debug", "info", "warn", "error"
	MetricsEnabled bool
}

// VipsConfig configures the libvips encoder backend.
type VipsConfig struct {
	MaxCacheSize     int
	ConcurrencyLevel int // 0 = NumCPU
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount:     0, // resolved at runtime to NumCPU
		QueueSize:       256,
		JobTimeout:      30 * time.Second,
		ChunkSize:       32 * 1024,
		OutputChunkSize: 4096,
		DefaultQuality:  50,
		DefaultMethod:   3,
		Encoder:         EncoderNative,
		Vips: VipsConfig{
			MaxCacheSize: 100,
		},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		LogLevel:       "info",
		MetricsEnabled: true,
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.DefaultQuality < 0 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 0 and 100")
	}
	if c.DefaultMethod < 0 || c.DefaultMethod > 6 {
		return errors.New("config: DefaultMethod must be between 0 and 6")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.OutputChunkSize <= 0 {
		return errors.New("config: OutputChunkSize must be positive")
	}
	if c.MaxImageBytes < 0 {
		return errors.New("config: MaxImageBytes must not be negative")
	}
	switch c.Encoder {
	case EncoderNative, EncoderVips:
	default:
		return fmt.Errorf("config: unknown Encoder %q", c.Encoder)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LogLevel %q", c.LogLevel)
	}
	return nil
}

// FromEnv overrides fields of c from TRANSCODER_* environment variables.
func FromEnv(c Config) (Config, error) {
	var err error
	set := func(key string, apply func(string) error) {
		v, ok := os.LookupEnv(key)
		if !ok || err != nil {
			return
		}
		if e := apply(v); e != nil {
			err = fmt.Errorf("config: %s: %w", key, e)
		}
	}

	set("TRANSCODER_WORKERS", intVar(&c.WorkerCount))
	set("TRANSCODER_QUEUE_SIZE", intVar(&c.QueueSize))
	set("TRANSCODER_JOB_TIMEOUT", durationVar(&c.JobTimeout))
	set("TRANSCODER_CHUNK_SIZE", intVar(&c.ChunkSize))
	set("TRANSCODER_OUTPUT_CHUNK_SIZE", intVar(&c.OutputChunkSize))
	set("TRANSCODER_MAX_IMAGE_BYTES", func(v string) (e error) {
		c.MaxImageBytes, e = strconv.ParseInt(v, 10, 64)
		return e
	})
	set("TRANSCODER_QUALITY", func(v string) error {
		q, e := strconv.ParseFloat(v, 32)
		c.DefaultQuality = float32(q)
		return e
	})
	set("TRANSCODER_METHOD", intVar(&c.DefaultMethod))
	set("TRANSCODER_ENCODER", func(v string) error {
		c.Encoder = EncoderBackend(v)
		return nil
	})
	set("TRANSCODER_VIPS_CACHE_SIZE", intVar(&c.Vips.MaxCacheSize))
	set("TRANSCODER_VIPS_CONCURRENCY", intVar(&c.Vips.ConcurrencyLevel))
	set("TRANSCODER_HTTP_ADDR", func(v string) error {
		c.HTTP.Addr = v
		return nil
	})
	set("TRANSCODER_LOG_LEVEL", func(v string) error {
		c.LogLevel = v
		return nil
	})
	set("TRANSCODER_METRICS", func(v string) (e error) {
		c.MetricsEnabled, e = strconv.ParseBool(v)
		return e
	})
	return c, err
}

func intVar(dst *int) func(string) error {
	return func(v string) (err error) {
		*dst, err = strconv.Atoi(v)
		return err
	}
}

func durationVar(dst *time.Duration) func(string) error {
	return func(v string) (err error) {
		*dst, err = time.ParseDuration(v)
		return err
	}
}
