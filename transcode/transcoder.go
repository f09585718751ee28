// Package transcode drives one request from its first input bytes to the
// end of the WebP output.
//
// A Transcoder never blocks.  Process advances as far as the buffered input
// allows and returns StatusPending when it needs more; the caller appends
// bytes to the cursor's sequence and calls Process again.
package transcode

import (
	"context"
	"fmt"
	"time"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
	"github.com/Skryldev/image-transcoder/strategy"
)

// Options carries the optional observers of a Transcoder.  Metrics are
// collected through a hook, see hooks.MetricsHook.
type Options struct {
	Logger core.Logger
	Hooks  []core.Hook
}

// Transcoder is the per-request state machine.  It is not safe for
// concurrent use.
type Transcoder struct {
	policy *strategy.Policy
	cur    *buffer.Cursor
	out    *buffer.Output
	logger core.Logger
	hooks  []core.Hook

	state    State
	format   core.Format
	reader   core.ImageReader
	writer   core.ImageWriter
	info     *core.ImageInfo
	stats    core.Stats
	err      error
	done     bool
	released bool
	started  time.Time
}

// New returns a Transcoder reading from cur and writing to out.
func New(policy *strategy.Policy, cur *buffer.Cursor, out *buffer.Output, opts Options) *Transcoder {
	logger := opts.Logger
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Transcoder{
		policy: policy,
		cur:    cur,
		out:    out,
		logger: logger,
		hooks:  opts.Hooks,
		format: core.FormatUnknown,
	}
}

func (t *Transcoder) State() State        { return t.state }
func (t *Transcoder) Format() core.Format { return t.format }
func (t *Transcoder) Err() error          { return t.err }

// Info returns the image header, or nil before it has been read.
func (t *Transcoder) Info() *core.ImageInfo { return t.info }

// Stats returns what is known so far about the request.
func (t *Transcoder) Stats() core.Stats { return t.stats }

// Process advances the state machine.  Calling it again after a terminal
// status returns the same status.
func (t *Transcoder) Process(ctx context.Context) Status {
	if t.started.IsZero() {
		t.started = time.Now()
	}
	for {
		if status, ok := t.terminal(); ok {
			return status
		}
		if err := ctx.Err(); err != nil {
			t.fail(ctx, apperrors.New(apperrors.CategoryInput, "transcode.process",
				fmt.Errorf("%w: %v", apperrors.ErrCanceled, err)))
			continue
		}

		state := t.state
		t.notifyBefore(ctx, state)
		start := time.Now()
		res := t.step(state)
		elapsed := time.Since(start)
		t.trackBuffered()

		var err error
		if res.IsError() {
			err = res.Err()
		}
		t.notifyAfter(ctx, state, elapsed, err)

		switch {
		case res.IsPending():
			return StatusPending
		case res.IsEOF():
			t.fail(ctx, apperrors.New(apperrors.CategoryDecode, "transcode."+state.String(), apperrors.ErrEmptyInput))
		case err != nil:
			t.fail(ctx, err)
		default:
			if t.state != state {
				t.logger.Debug("transcode: state changed", "from", state.String(), "to", t.state.String())
			}
			if s, ok := t.terminal(); ok {
				t.complete(ctx, s)
			}
		}
	}
}

func (t *Transcoder) step(s State) core.Outcome {
	switch s {
	case StateSniffFormat:
		return t.sniff()
	case StateReadMetadata:
		return t.readMetadata()
	case StateDecide:
		return t.decide()
	case StateTranscodeLoop:
		return t.loop()
	case StateFinished:
		return t.finish()
	}
	panic(fmt.Sprintf("transcode: no step for state %s", s))
}

// terminal returns the status of a state no step leaves.
func (t *Transcoder) terminal() (Status, bool) {
	switch {
	case t.state == StateFinished && t.done:
		return StatusOK, true
	case t.state == StateDeclined:
		return StatusDeclined, true
	case t.state == StateFailed:
		return StatusFailed, true
	}
	return StatusPending, false
}

// ── Steps ─────────────────────────────────────────────────────────────────────

func (t *Transcoder) sniff() core.Outcome {
	var prefix [codec.LongestSignature]byte
	head := prefix[:]
	res := t.cur.PeekAtLeastNInto(head, len(head))
	if res.IsEOF() {
		// The whole input is shorter than the longest signature.
		n := t.cur.Buffered()
		if n == 0 {
			return core.Fail(apperrors.New(apperrors.CategoryInput, "transcode.sniff", apperrors.ErrEmptyInput))
		}
		head = prefix[:n]
		res = t.cur.PeekAtLeastNInto(head, n)
	}
	if !res.IsOK() {
		return res
	}
	t.format = codec.Sniff(head)
	if t.format == core.FormatUnknown {
		return core.Fail(apperrors.New(apperrors.CategoryInput, "transcode.sniff", apperrors.ErrUnsupportedFormat))
	}
	t.state = StateReadMetadata
	return core.OK(0)
}

func (t *Transcoder) readMetadata() core.Outcome {
	if t.reader == nil {
		r, err := t.policy.CreateImageReader(t.format, t.cur)
		if err != nil {
			return core.Fail(err)
		}
		t.reader = r
	}
	if t.info == nil {
		info, res := t.reader.ImageInfo()
		if !res.IsOK() {
			return res
		}
		t.info = info
		t.logger.Debug("transcode: image info",
			"format", string(info.Format), "width", info.Width, "height", info.Height,
			"scheme", string(info.ColorScheme), "multiframe", info.Multiframe)
		if !t.policy.ShouldEvenBother(info) {
			t.state = StateDeclined
			return core.OK(0)
		}
	}
	if t.policy.ShouldWaitForMetadata() {
		if res := t.reader.ReadMetadata(); !res.IsOK() {
			return res
		}
	}
	t.state = StateDecide
	return core.OK(0)
}

func (t *Transcoder) decide() core.Outcome {
	r, err := t.policy.AdjustImageReaderAfterInfoReady(t.reader, t.info)
	if err != nil {
		return core.Fail(err)
	}
	t.reader = r
	w, err := t.policy.CreateImageWriter(t.out, t.reader, t.info)
	if err != nil {
		return core.Fail(err)
	}
	if err := w.Initialize(t.info); err != nil {
		return core.Fail(err)
	}
	w.SetMetadata(t.reader.Metadata())
	t.writer = w
	t.state = StateTranscodeLoop
	return core.OK(0)
}

func (t *Transcoder) loop() core.Outcome {
	for t.reader.HasMoreFrames() {
		f, res := t.reader.NextFrame()
		if res.IsEOF() {
			break
		}
		if !res.IsOK() {
			return res
		}
		if err := t.writer.WriteFrame(f); err != nil {
			return core.Fail(err)
		}
		t.out.Flush()
	}
	t.state = StateFinished
	return core.OK(0)
}

func (t *Transcoder) finish() core.Outcome {
	if err := t.writer.Finish(&t.stats); err != nil {
		return core.Fail(err)
	}
	t.out.Flush()
	t.done = true
	return core.OK(0)
}

// ── Termination ───────────────────────────────────────────────────────────────

func (t *Transcoder) fail(ctx context.Context, err error) {
	from := t.state
	t.err = err
	t.state = StateFailed
	t.logger.Warn("transcode: failed", "state", from.String(), "error", err.Error())
	t.complete(ctx, StatusFailed)
}

// complete publishes the final status and releases the input.
func (t *Transcoder) complete(ctx context.Context, s Status) {
	t.stats.BytesIn = t.cur.Offset()
	if t.stats.CodedSize == 0 {
		t.stats.CodedSize = t.out.Written()
	}
	t.release()
	t.logger.Info("transcode: done",
		"status", s.String(), "format", string(t.format),
		"bytes_in", t.stats.BytesIn, "bytes_out", t.stats.CodedSize,
		"elapsed", time.Since(t.started).String())
	for _, h := range t.hooks {
		h.Complete(ctx, s.String(), t.stats)
	}
}

// Close releases the decoder and all buffered input.  A Transcoder that had
// not reached a terminal state fails with ErrCanceled.
func (t *Transcoder) Close() error {
	if _, ok := t.terminal(); !ok {
		t.fail(context.Background(), apperrors.New(apperrors.CategoryInput, "transcode.close", apperrors.ErrCanceled))
	}
	return t.release()
}

func (t *Transcoder) release() error {
	if t.released {
		return nil
	}
	t.released = true
	var err error
	if t.reader != nil {
		err = t.reader.Close()
	}
	t.cur.Sequence().Release()
	return err
}

// ── Observers ─────────────────────────────────────────────────────────────────

func (t *Transcoder) trackBuffered() {
	if n := t.cur.Sequence().Retained(); n > t.stats.PeakBuffered {
		t.stats.PeakBuffered = n
	}
}

func (t *Transcoder) notifyBefore(ctx context.Context, s State) {
	for _, h := range t.hooks {
		h.BeforeStep(ctx, s.String(), t.info)
	}
}

func (t *Transcoder) notifyAfter(ctx context.Context, s State, d time.Duration, err error) {
	for _, h := range t.hooks {
		h.AfterStep(ctx, s.String(), t.info, d, err)
	}
}
