package core

import (
	"context"
	"time"
)

// Decoder incrementally turns buffered input into an ImageInfo, frames and
// metadata.  None of its methods block: when input runs dry they return a
// pending Outcome and may be called again once more bytes arrive.
// Implementations live in adapters/decoder/.
type Decoder interface {
	// DecodeImageInfo parses the header.
	DecodeImageInfo() Outcome
	// Decode parses up to and including the next frame.
	Decode() Outcome
	// DecodeMetadata scans for ICC, EXIF and XMP until none can follow.
	DecodeMetadata() Outcome
	// Progress returns the number of input bytes consumed so far.
	Progress() int64

	IsImageInfoComplete() bool
	ImageInfo() ImageInfo
	IsFrameCompleteAtIndex(i int) bool
	// FrameAtIndex panics when frame i has not been decoded.
	FrameAtIndex(i int) *Frame
	FrameCount() int
	Metadata() *Metadata
	IsAllMetadataComplete() bool
	IsAllFramesComplete() bool
	IsImageComplete() bool
	HasError() bool

	Close() error
}

// Encoder serialises frames to the writer it was created with.
// Implementations live in adapters/encoder/ and adapters/vips/.
type Encoder interface {
	Initialize(info *ImageInfo) error
	SetMetadata(md *Metadata)
	// EncodeFrame encodes f; last is true for the final frame of the image.
	EncodeFrame(f *Frame, last bool) error
	// Finish writes any trailing bytes and fills stats.
	Finish(stats *Stats) error
	// Progress returns the number of bytes emitted so far.
	Progress() int64
}

// ImageReader delivers frames on demand from a Decoder.
type ImageReader interface {
	ImageInfo() (*ImageInfo, Outcome)
	NextFrame() (*Frame, Outcome)
	FrameAtIndex(i int) (*Frame, Outcome)
	HasMoreFrames() bool
	FramesRead() int
	ReadMetadata() Outcome
	ReadTillTheEnd() Outcome
	Metadata() *Metadata
	Close() error
}

// ImageWriter accepts frames and hands them to an Encoder.
type ImageWriter interface {
	Initialize(info *ImageInfo) error
	SetMetadata(md *Metadata)
	WriteFrame(f *Frame) error
	Finish(stats *Stats) error
}

// MetricsCollector receives performance observations from the transcoder.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d time.Duration)
	RecordThroughput(bytes int64)
	RecordMemory(bytes int64)
	RecordError(stepName string, category string)
	RecordStatus(status string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Hook is an optional observer invoked around transcoder state steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, info *ImageInfo)
	AfterStep(ctx context.Context, stepName string, info *ImageInfo, d time.Duration, err error)
	Complete(ctx context.Context, status string, stats Stats)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
