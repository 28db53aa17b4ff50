package stream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrPartialRecord reports a stream that ended with an undelimited record.
// It is only surfaced when strict end-of-stream handling is enabled.
var ErrPartialRecord = errors.New("stream ended inside an undelimited record")

// TransportError is a network or HTTP status failure that happened before
// (or instead of) a well-formed event.
type TransportError struct {
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("agent API returned status %d: %v", e.StatusCode, e.Err)
		}
		return fmt.Sprintf("agent API returned status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err != nil {
		return "transport failure: " + e.Err.Error()
	}
	return "transport failure"
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a malformed payload or an explicit error record sent by
// the server. For server records Error returns the server message verbatim.
type ProtocolError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return e.Message + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

// Unwrap returns the underlying cause.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status carried by a TransportError, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
