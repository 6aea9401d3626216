package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol is matched by every lifecycle callback that the state
	// machine does not permit.
	ErrProtocol = errors.New("protocol violation")

	// ErrMissingAttribute reports a required context field that is absent.
	ErrMissingAttribute = errors.New("missing attribute")

	// ErrPoisoned is returned for callbacks arriving after a protocol
	// violation, until the invocation ends.
	ErrPoisoned = errors.New("invocation poisoned by an earlier protocol violation")

	// ErrConcurrentUse is returned when a callback enters the recorder while
	// another one is still running.
	ErrConcurrentUse = errors.New("recorder entered concurrently")
)

// ProtocolError describes a rejected lifecycle callback.
type ProtocolError struct {
	// Event is the callback name, e.g. "test_ended".
	Event string
	// State is the stack of open kinds when the callback arrived, e.g. "IMR".
	State  string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	state := e.State
	if state == "" {
		state = "∅"
	}
	msg := fmt.Sprintf("%s in state %s: %s", e.Event, state, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap makes errors.Is match ErrProtocol and the underlying cause.
func (e *ProtocolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProtocol}
	}
	return []error{ErrProtocol, e.Err}
}
