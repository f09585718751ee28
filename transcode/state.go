package transcode

import "fmt"

// State is the position of a Transcoder in its state machine.
type State int

const (
	StateSniffFormat State = iota
	StateReadMetadata
	StateDecide
	StateTranscodeLoop
	StateFinished
	StateDeclined
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSniffFormat:
		return "sniff_format"
	case StateReadMetadata:
		return "read_metadata"
	case StateDecide:
		return "decide"
	case StateTranscodeLoop:
		return "transcode_loop"
	case StateFinished:
		return "finished"
	case StateDeclined:
		return "declined"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status is what Process reports to its caller.
type Status int

const (
	// StatusPending asks for more input before Process is called again.
	StatusPending Status = iota
	StatusOK
	// StatusDeclined is a successful exit without output.
	StatusDeclined
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOK:
		return "ok"
	case StatusDeclined:
		return "declined"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further Process call can change s.
func (s Status) Terminal() bool { return s != StatusPending }
