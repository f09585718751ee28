package core

import "fmt"

// Code classifies an Outcome.
type Code int

const (
	CodeOK Code = iota
	CodePending
	CodeEOF
	CodeError
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodePending:
		return "pending"
	case CodeEOF:
		return "eof"
	case CodeError:
		return "error"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Outcome is the result of every non-blocking operation: the cursor, the
// decoders, the frame reader and the orchestrator all report progress with
// it.  Exactly one of ok(n), pending, eof or error holds.
type Outcome struct {
	code Code
	n    int
	err  error
}

// OK reports success with n bytes or items processed.
func OK(n int) Outcome { return Outcome{code: CodeOK, n: n} }

// Pending reports that more input is needed before progress can be made.
func Pending() Outcome { return Outcome{code: CodePending} }

// EOF reports that the input ended.
func EOF() Outcome { return Outcome{code: CodeEOF} }

// Fail reports a terminal error.
func Fail(err error) Outcome { return Outcome{code: CodeError, err: err} }

func (o Outcome) Code() Code      { return o.code }
func (o Outcome) N() int          { return o.n }
func (o Outcome) Err() error      { return o.err }
func (o Outcome) IsOK() bool      { return o.code == CodeOK }
func (o Outcome) IsPending() bool { return o.code == CodePending }
func (o Outcome) IsEOF() bool     { return o.code == CodeEOF }
func (o Outcome) IsError() bool   { return o.code == CodeError }

func (o Outcome) String() string {
	switch o.code {
	case CodeOK:
		return fmt.Sprintf("ok(%d)", o.n)
	case CodeError:
		return fmt.Sprintf("error(%v)", o.err)
	}
	return o.code.String()
}
