package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	imagetranscoder "github.com/Skryldev/image-transcoder"
	"github.com/Skryldev/image-transcoder/codec"
	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
	"github.com/Skryldev/image-transcoder/strategy"
	"github.com/Skryldev/image-transcoder/transcode"
	"github.com/Skryldev/image-transcoder/utils"
)

// Request and response header names.
const (
	ParamsHeader    = "X-Transcode-Params"
	StatusHeader    = "X-Transcode-Status"
	CodedSizeHeader = "X-Transcode-Coded-Size"
	DigestHeader    = "X-Transcode-Digest"
	PSNRHeader      = "X-Transcode-PSNR"
)

// Values of StatusHeader.
const (
	StatusOK                = "ok"
	StatusDeclined          = "declined"
	StatusError             = "error"
	StatusInvalidMessage    = "invalid-message"
	StatusUnsupportedFormat = "unsupported-format"
	StatusDecodeError       = "decode-error"
	StatusTooLarge          = "too-large"
)

var trailers = []string{StatusHeader, CodedSizeHeader, DigestHeader, PSNRHeader}

// streamingResponse writes transcoder output as soon as it is produced.
// Once started, the status code is fixed and errors surface as trailers.
type streamingResponse struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func (sr *streamingResponse) start() {
	if sr.started {
		return
	}
	sr.started = true
	h := sr.w.Header()
	h.Set("Content-Type", codec.ContentType(core.FormatWebP))
	h.Set("Trailer", strings.Join(trailers, ", "))
	sr.w.WriteHeader(http.StatusOK)
}

func (sr *streamingResponse) drain(s *imagetranscoder.Session) error {
	chunks := s.Output()
	if len(chunks) == 0 {
		return nil
	}
	sr.start()
	for _, c := range chunks {
		if _, err := sr.w.Write(c); err != nil {
			return apperrors.Wrap(apperrors.CategoryTransport, "http.write", err)
		}
	}
	if err := sr.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return apperrors.Wrap(apperrors.CategoryTransport, "http.flush", err)
	}
	return nil
}

func (s *Server) transcode(w http.ResponseWriter, r *http.Request) {
	req, err := strategy.ParseRequest([]byte(r.Header.Get(ParamsHeader)))
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		s.reject(w, http.StatusBadRequest, StatusInvalidMessage, err)
		return
	}
	sess, err := s.proc.NewSession(req)
	if err != nil {
		s.reject(w, http.StatusBadRequest, StatusInvalidMessage, err)
		return
	}
	defer sess.Close()

	ctx := r.Context()
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	rc := http.NewResponseController(w)
	// HTTP/1.1 only; HTTP/2 is always full duplex.
	_ = rc.EnableFullDuplex()
	resp := &streamingResponse{w: w, rc: rc}

	body := &utils.LimitedReader{R: r.Body, Max: s.cfg.MaxImageBytes}
	status, err := sess.Pump(ctx, body, s.cfg.ChunkSize, func() error { return resp.drain(sess) })
	switch {
	case apperrors.IsCategory(err, apperrors.CategoryTransport):
		s.logger.Warn("transport: client went away", "error", err.Error())
		return
	case err != nil:
		s.logger.Warn("transport: reading request body", "error", err.Error(), "bytes_read", body.Count())
		if resp.started {
			w.Header().Set(StatusHeader, StatusError)
			return
		}
		if errors.Is(err, apperrors.ErrTooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, StatusTooLarge, err)
			return
		}
		s.reject(w, http.StatusBadRequest, StatusInvalidMessage, err)
		return
	}

	if declared := codec.FormatFromContentType(r.Header.Get("Content-Type")); declared != core.FormatUnknown && declared != sess.Format() {
		s.logger.Debug("transport: content type disagrees with sniffed format",
			"declared", string(declared), "sniffed", string(sess.Format()))
	}

	switch status {
	case transcode.StatusOK:
		resp.start()
		stats := sess.Stats()
		h := w.Header()
		h.Set(StatusHeader, StatusOK)
		h.Set(CodedSizeHeader, strconv.FormatInt(stats.CodedSize, 10))
		h.Set(DigestHeader, stats.Digest)
		if req.RecordStats {
			h.Set(PSNRHeader, strconv.FormatFloat(stats.PSNR, 'f', 2, 64))
		}
	case transcode.StatusDeclined:
		w.Header().Set(StatusHeader, StatusDeclined)
		w.WriteHeader(http.StatusNoContent)
	default:
		if resp.started {
			w.Header().Set(StatusHeader, StatusError)
			return
		}
		code, label := classify(sess.Err())
		s.reject(w, code, label, sess.Err())
	}
}

// classify maps a failed transcode onto an HTTP status and StatusHeader value.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, StatusUnsupportedFormat
	case errors.Is(err, apperrors.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, StatusTooLarge
	}
	return http.StatusUnprocessableEntity, StatusDecodeError
}

func (s *Server) reject(w http.ResponseWriter, code int, label string, err error) {
	msg := label
	if err != nil {
		msg = err.Error()
	}
	w.Header().Set(StatusHeader, label)
	http.Error(w, msg, code)
}
