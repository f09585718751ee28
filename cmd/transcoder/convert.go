package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	imagetranscoder "github.com/Skryldev/image-transcoder"
	"github.com/Skryldev/image-transcoder/adapters/storage"
	"github.com/Skryldev/image-transcoder/strategy"
	"github.com/Skryldev/image-transcoder/transcode"
)

var (
	convertParams       string
	convertQuality      float32
	convertMethod       int
	convertCompression  string
	convertRecordStats  bool
	convertKeepMetadata bool
	convertStripAlpha   bool
	convertPhotoMetric  float64
	convertSidecar      bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <input> [output]",
	Short: "Convert one image to WebP",
	Long: `Converts a JPEG, PNG or GIF file to WebP.  Use "-" for stdin or stdout.
Without an output argument the result is written next to the input with a
.webp extension.  A WebP input is left alone.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConvert,
}

func init() {
	f := convertCmd.Flags()
	f.StringVar(&convertParams, "params", "", "request options as JSON; flags override individual fields")
	f.Float32VarP(&convertQuality, "quality", "q", 0, "quality 0-100 (0 = server default)")
	f.IntVarP(&convertMethod, "method", "m", 0, "compression effort 0-6 (0 = server default)")
	f.StringVarP(&convertCompression, "compression", "c", string(strategy.CompressionAuto), "auto, lossy, lossless or mixed")
	f.BoolVar(&convertRecordStats, "stats", false, "compute PSNR of the output")
	f.BoolVar(&convertKeepMetadata, "keep-metadata", false, "copy ICC, EXIF and XMP into the output")
	f.BoolVar(&convertStripAlpha, "strip-alpha", false, "drop a fully opaque alpha channel from PNG input")
	f.Float64Var(&convertPhotoMetric, "min-photo-metric", 0, "encode lossless below this photo score (0 = off)")
	f.BoolVar(&convertSidecar, "sidecar", false, "write result statistics to <output>.meta.json")
	rootCmd.AddCommand(convertCmd)
}

func convertRequest(cmd *cobra.Command) (strategy.Request, error) {
	req := strategy.DefaultRequest()
	if convertParams != "" {
		var err error
		if req, err = strategy.ParseRequest([]byte(convertParams)); err != nil {
			return req, err
		}
	}
	f := cmd.Flags()
	if f.Changed("quality") {
		req.Quality = convertQuality
	}
	if f.Changed("method") {
		req.Method = convertMethod
	}
	if f.Changed("compression") {
		req.Compression = strategy.CompressionMode(convertCompression)
	}
	if f.Changed("stats") {
		req.RecordStats = convertRecordStats
	}
	if f.Changed("keep-metadata") {
		req.KeepMetadata = convertKeepMetadata
	}
	if f.Changed("strip-alpha") {
		req.TryStripAlpha = convertStripAlpha
	}
	if f.Changed("min-photo-metric") {
		req.MinPhotoMetric = convertPhotoMetric
	}
	return req, req.Validate()
}

func outputPath(in string, args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	if in == "-" {
		return "-"
	}
	return strings.TrimSuffix(in, filepath.Ext(in)) + ".webp"
}

func runConvert(cmd *cobra.Command, args []string) error {
	req, err := convertRequest(cmd)
	if err != nil {
		return err
	}

	var src io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		src = f
	}

	outPath := outputPath(args[0], args)
	var dst io.Writer = os.Stdout
	var obj *storage.Object
	if outPath != "-" {
		sink, err := storage.NewLocal(filepath.Dir(outPath), 0)
		if err != nil {
			return err
		}
		if obj, err = sink.Create(cmd.Context(), filepath.Base(outPath)); err != nil {
			return err
		}
		defer obj.Abort()
		dst = obj
	}

	proc, err := newProcessor()
	if err != nil {
		return err
	}
	defer proc.Stop()

	ctx := cmd.Context()
	if cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := proc.Transcode(ctx, src, dst, req)
	if err != nil {
		return err
	}
	if obj != nil {
		if res.Status == transcode.StatusDeclined {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s input left unchanged\n", args[0], res.Format)
			return nil
		}
		var meta map[string]string
		if convertSidecar {
			meta = sidecar(args[0], res)
		}
		if err := obj.Commit(meta); err != nil {
			return err
		}
	}

	logger.Info("convert: done",
		"input", args[0], "output", outPath, "status", res.Status.String(),
		"format", string(res.Format), "frames", res.Stats.Frames,
		"bytes_in", res.Stats.BytesIn, "bytes_out", res.Stats.CodedSize,
		"digest", res.Stats.Digest, "elapsed", time.Since(start).String())
	if req.RecordStats {
		fmt.Fprintf(cmd.ErrOrStderr(), "psnr: %.2f dB\n", res.Stats.PSNR)
	}
	return nil
}

func sidecar(source string, res *imagetranscoder.Result) map[string]string {
	return map[string]string{
		"source":        source,
		"source_format": string(res.Format),
		"width":         strconv.Itoa(res.Info.Width),
		"height":        strconv.Itoa(res.Info.Height),
		"frames":        strconv.Itoa(res.Stats.Frames),
		"bytes_in":      strconv.FormatInt(res.Stats.BytesIn, 10),
		"coded_size":    strconv.FormatInt(res.Stats.CodedSize, 10),
		"digest":        res.Stats.Digest,
		"psnr":          strconv.FormatFloat(res.Stats.PSNR, 'f', 2, 64),
	}
}
