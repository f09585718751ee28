package strategy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Skryldev/image-transcoder/core"
	apperrors "github.com/Skryldev/image-transcoder/errors"
)

// CompressionMode is the compression a caller asks for.
type CompressionMode string

const (
	CompressionAuto     CompressionMode = "auto"
	CompressionLossy    CompressionMode = "lossy"
	CompressionLossless CompressionMode = "lossless"
	CompressionMixed    CompressionMode = "mixed"
)

// Request carries the caller's transcoding options.  Zero values leave the
// corresponding encoder default in place.
type Request struct {
	Quality        float32         `json:"quality"`
	Method         int             `json:"method"`
	Compression    CompressionMode `json:"compression"`
	RecordStats    bool            `json:"record_stats"`
	KeepMetadata   bool            `json:"keep_metadata"`
	TryStripAlpha  bool            `json:"try_strip_alpha"`
	MinPhotoMetric float64         `json:"min_photo_metric"`
}

// DefaultRequest returns a request that changes nothing.
func DefaultRequest() Request {
	return Request{Compression: CompressionAuto}
}

// ParseRequest decodes a JSON request envelope.
func ParseRequest(raw []byte) (Request, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Request{}, apperrors.New(apperrors.CategoryProtocol, "request.parse", apperrors.ErrInvalidMessage)
	}
	req := DefaultRequest()
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, apperrors.New(apperrors.CategoryProtocol, "request.parse",
			fmt.Errorf("%w: %v", apperrors.ErrInvalidMessage, err))
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate checks every field's range.
func (r Request) Validate() error {
	var problem string
	switch {
	case r.Quality < 0 || r.Quality > 100:
		problem = fmt.Sprintf("quality %v outside 0-100", r.Quality)
	case r.Method < 0 || r.Method > 6:
		problem = fmt.Sprintf("method %d outside 0-6", r.Method)
	case r.MinPhotoMetric < 0 || r.MinPhotoMetric > 100:
		problem = fmt.Sprintf("min_photo_metric %v outside 0-100", r.MinPhotoMetric)
	}
	if problem == "" {
		switch r.Compression {
		case "", CompressionAuto, CompressionLossy, CompressionLossless, CompressionMixed:
		default:
			problem = fmt.Sprintf("unknown compression %q", r.Compression)
		}
	}
	if problem != "" {
		return apperrors.New(apperrors.CategoryProtocol, "request.validate",
			fmt.Errorf("%w: %s", apperrors.ErrInvalidMessage, problem))
	}
	return nil
}

// toCompression maps a mode onto encoder compression.  ok is false for auto.
func (m CompressionMode) toCompression() (core.Compression, bool) {
	switch m {
	case CompressionLossy:
		return core.CompressionLossy, true
	case CompressionLossless:
		return core.CompressionLossless, true
	case CompressionMixed:
		return core.CompressionMixed, true
	}
	return core.CompressionLossy, false
}

// Layers returns the layers that apply r, in the order they are added to a
// Policy.
func (r Request) Layers() []Layer {
	layers := []Layer{&RequestLayer{Request: r}}
	if r.TryStripAlpha {
		layers = append(layers, StripAlphaLayer{})
	}
	if r.MinPhotoMetric > 0 {
		layers = append(layers, NewPhotoLayer(r.MinPhotoMetric))
	}
	return layers
}
