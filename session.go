package imagetranscoder

import (
	"context"
	"io"

	"github.com/Skryldev/image-transcoder/buffer"
	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
	"github.com/Skryldev/image-transcoder/strategy"
	"github.com/Skryldev/image-transcoder/transcode"
)

// Session is one request in flight.  It is not safe for concurrent use.
type Session struct {
	p       *Processor
	seq     *buffer.Sequence
	out     *buffer.Output
	tc      *transcode.Transcoder
	status  transcode.Status
	counted bool
}

// NewSession starts a request with the given options.
func (p *Processor) NewSession(req strategy.Request) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Method > 0 && p.backend == nil {
		p.logger.Warn("session: method is ignored by the native encoder, use the vips encoder to tune effort",
			"method", req.Method)
	}
	return p.newSession(p.Policy(req), p.transcodeOptions()), nil
}

func (p *Processor) newSession(policy *strategy.Policy, opts transcode.Options) *Session {
	seq := buffer.NewSequence()
	out := buffer.NewOutput(p.cfg.OutputChunkSize)
	return &Session{
		p:   p,
		seq: seq,
		out: out,
		tc:  transcode.New(policy, buffer.NewCursor(seq), out, opts),
	}
}

// Feed copies b into the session and advances the transcoder.
func (s *Session) Feed(ctx context.Context, b []byte) transcode.Status {
	return s.add(ctx, buffer.Copy(b))
}

// FeedBorrowed hands b to the session without copying.  b must not be
// modified until the session reaches a terminal status or is closed.
func (s *Session) FeedBorrowed(ctx context.Context, b []byte) transcode.Status {
	return s.add(ctx, buffer.Borrow(b))
}

func (s *Session) add(ctx context.Context, c buffer.Chunk) transcode.Status {
	if s.status.Terminal() {
		return s.status
	}
	if err := s.seq.AddChunk(c); err != nil {
		s.p.logger.Warn("session: chunk dropped", "error", err.Error())
	}
	return s.advance(ctx)
}

// CloseInput marks the end of the input and advances the transcoder.
func (s *Session) CloseInput(ctx context.Context) transcode.Status {
	if !s.seq.EofReceived() {
		s.seq.SendEof()
	}
	return s.advance(ctx)
}

func (s *Session) advance(ctx context.Context) transcode.Status {
	s.status = s.tc.Process(ctx)
	if s.status.Terminal() && !s.counted {
		s.counted = true
		s.p.count(s.status)
	}
	return s.status
}

// Pump reads src in chunkSize fragments and feeds them until the session is
// terminal.  sink, when set, is called after every step to move the output
// produced so far; its error is returned as is.  A read error fails the
// session and comes back as an input error.  A session still pending at the
// end of src is closed.
func (s *Session) Pump(ctx context.Context, src io.Reader, chunkSize int, sink func() error) (transcode.Status, error) {
	drain := func() error {
		if sink == nil {
			return nil
		}
		return sink()
	}
	buf := make([]byte, chunkSize)
	for !s.status.Terminal() {
		n, rerr := src.Read(buf)
		if n > 0 {
			s.Feed(ctx, buf[:n])
			if err := drain(); err != nil {
				return s.status, err
			}
			if s.status.Terminal() {
				break
			}
		}
		switch {
		case rerr == io.EOF:
			s.CloseInput(ctx)
			if err := drain(); err != nil {
				return s.status, err
			}
			if !s.status.Terminal() {
				s.p.logger.Warn("session: input ended before the image did", "read", s.seq.Size())
				s.Close()
			}
		case rerr != nil:
			s.Close()
			return s.status, apperrors.Wrap(apperrors.CategoryInput, "session.read", rerr)
		}
	}
	return s.status, nil
}

// Output removes and returns the output chunks produced so far.
func (s *Session) Output() [][]byte { return s.out.Drain() }

// WriteTo drains the produced output into w.
func (s *Session) WriteTo(w io.Writer) error {
	for _, c := range s.out.Drain() {
		if _, err := w.Write(c); err != nil {
			return apperrors.Wrap(apperrors.CategoryTransport, "session.write", err)
		}
	}
	return nil
}

func (s *Session) Status() transcode.Status { return s.status }
func (s *Session) Err() error               { return s.tc.Err() }
func (s *Session) Format() core.Format      { return s.tc.Format() }
func (s *Session) Info() *core.ImageInfo    { return s.tc.Info() }
func (s *Session) Stats() core.Stats        { return s.tc.Stats() }

// Written returns the number of output bytes produced so far.
func (s *Session) Written() int64 { return s.out.Written() }

// Result summarises the session.
func (s *Session) Result() *Result {
	return &Result{Status: s.status, Format: s.tc.Format(), Info: s.tc.Info(), Stats: s.tc.Stats()}
}

// Close releases all resources.  An unfinished session fails as canceled.
func (s *Session) Close() error {
	err := s.tc.Close()
	if !s.status.Terminal() {
		s.status = transcode.StatusFailed
		if !s.counted {
			s.counted = true
			s.p.count(s.status)
		}
	}
	return err
}
