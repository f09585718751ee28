package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryDecode    Category = "decode"
	CategoryEncode    Category = "encode"
	CategoryInput     Category = "input"
	CategoryPolicy    Category = "policy"
	CategoryProtocol  Category = "protocol"
	CategoryConfig    Category = "config"
	CategoryTransport Category = "transport"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category Category
	Op       string // operation name
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Wrap wraps an existing error with context.  An error that is already a
// ProcessingError keeps its original category.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	return New(category, op, err)
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// CategoryOf returns the category of err, or "" when err is not a
// ProcessingError.
func CategoryOf(err error) Category {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrEmptyInput        = errors.New("empty input")
	ErrInputClosed       = errors.New("input already closed")
	ErrMetadataFrozen    = errors.New("metadata kind already frozen")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrNotConfigured     = errors.New("not configured")
	ErrCanceled          = errors.New("canceled")
	ErrStalled           = errors.New("decoder made no progress")
	ErrTooLarge          = errors.New("input exceeds size limit")
	ErrWorkerPoolFull    = errors.New("worker pool queue full")
)
