package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	imagetranscoder "github.com/Skryldev/image-transcoder"
	"github.com/Skryldev/image-transcoder/config"
	"github.com/Skryldev/image-transcoder/hooks"
)

var (
	version = "0.1.0"

	logLevel string
	encoder  string
	verbose  bool

	cfg    config.Config
	logger *hooks.SlogLogger
)

var rootCmd = &cobra.Command{
	Use:   "transcoder",
	Short: "Streaming JPEG/PNG/GIF to WebP transcoder",
	Long: `transcoder converts JPEG, PNG and GIF images to WebP while the input
is still arriving.  Animated GIFs become animated WebPs.

Configuration comes from TRANSCODER_* environment variables and is
overridden by flags.`,
	Version:       version,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.FromEnv(config.Default())
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		if cmd.Flags().Changed("encoder") {
			cfg.Encoder = config.EncoderBackend(encoder)
		}
		logger = hooks.NewLogger(cfg.LogLevel, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&encoder, "encoder", string(config.EncoderNative), "WebP encoder backend: native or vips")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level=debug")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"transcoder %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// newProcessor builds a Processor from the resolved configuration.
func newProcessor() (*imagetranscoder.Processor, error) {
	proc, err := imagetranscoder.New(cfg)
	if err != nil {
		return nil, err
	}
	proc.SetLogger(logger)
	proc.AddHook(hooks.NewLoggingHook(logger))
	return proc, nil
}
