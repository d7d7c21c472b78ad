package core

import "errors"

var (
	// ErrConnectionFailed wraps a dial that errored or never reached the
	// open state within the connect timeout.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNotConnected is returned by Send while the connection is not
	// open. Non-fatal; callers may ignore it.
	ErrNotConnected = errors.New("not connected")

	// ErrRequestTimeout means no reply of the expected type arrived in
	// time for a request/reply round-trip.
	ErrRequestTimeout = errors.New("request timed out")

	ErrBackpressure = errors.New("backpressure")
)

// ApplicationError carries the human-readable text of a server-sent
// ERROR message. The client does not classify these further.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return e.Message
}
