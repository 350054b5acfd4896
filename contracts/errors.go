package contracts

import (
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is matched by every EnvelopeError
var ErrMalformedEnvelope = errors.New("malformed envelope")

// EnvelopeError reports a message body that does not have the envelope shape
type EnvelopeError struct {
	Event  EventKind
	Reason string
	Err    error
}

func (e *EnvelopeError) Error() string {
	msg := "malformed envelope"
	if e.Event != "" {
		msg += " " + string(e.Event)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *EnvelopeError) Unwrap() error {
	return e.Err
}

// Is reports ErrMalformedEnvelope as a match
func (e *EnvelopeError) Is(target error) bool {
	return target == ErrMalformedEnvelope
}
