package pump

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is the error of Calls which were pending, or sent, after
	// the Pump was closed.
	ErrClosed = errors.New("pump closed")
	// ErrChannelClosed is the error of Calls which were pending, or sent,
	// after the Pump's upstream Channel closed.
	ErrChannelClosed = errors.New("upstream channel closed")
)

// ProtocolError is a malformed or unmatched Envelope. ProtocolErrors are
// logged and counted by the Pump which observes them, and are never returned
// to a caller.
type ProtocolError struct {
	// Reason is a short, stable description used as a metric label.
	Reason string
	Err    error
}

// Reasons of ProtocolErrors.
const (
	ReasonMalformed      = "malformed"
	ReasonInvalid        = "invalid"
	ReasonUnknownID      = "unknown-id"
	ReasonUnexpectedKind = "unexpected-kind"
)

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%s): %s", e.Reason, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProtocolError) Unwrap() error { return e.Err }
