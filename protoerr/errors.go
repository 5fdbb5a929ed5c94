// Package protoerr defines the error taxonomy shared by the decoder and
// replication session: ProtocolError for grammar violations, TransportError
// for connection-level I/O failures, and the CleanEnd sentinel for a
// server-initiated clean disconnect.
package protoerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrCleanEnd is returned (never wrapped) when the replication stream ends
// because of a clean server-initiated disconnect ("Connection terminated")
// or a normal end-of-copy. It is not an error condition; callers should
// treat it the same as a plain end-of-stream.
var ErrCleanEnd = errors.New("replication stream ended cleanly")

// ProtocolError represents any deviation from the documented pgoutput or
// WAL-envelope grammar: an unknown tag, an unknown submessage key, a
// truncated frame, or a reference to an unknown relation OID. It is fatal
// for the frame and for the session.
type ProtocolError struct {
	Msg   string
	Cause error
}

// NewProtocolError builds a ProtocolError with no underlying cause.
func NewProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// WrapProtocolError builds a ProtocolError from an underlying cause, such
// as an *OutOfBoundsError surfaced by the binary reader.
func WrapProtocolError(cause error, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error: %s: %s", e.Msg, e.Cause)
	}
	return fmt.Sprintf("protocol error: %s", e.Msg)
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// TransportError represents a connection-level I/O failure other than a
// clean termination. It is surfaced to the consumer and ends the stream.
type TransportError struct {
	Cause error
}

// WrapTransportError builds a TransportError from an underlying I/O cause.
func WrapTransportError(cause error) *TransportError {
	return &TransportError{Cause: cause}
}

func (e *TransportError) Error() string {
	return errors.Wrap(e.Cause, "transport error").Error()
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsCleanEnd reports whether err represents a clean, expected end of the
// replication stream (as opposed to a protocol or transport failure).
func IsCleanEnd(err error) bool {
	return errors.Is(err, ErrCleanEnd)
}
