package counter

import "errors"

// Domain errors for the counter bridge package.
//
// The codec wraps the underlying I/O error with one of these so callers can
// classify failures with errors.Is while keeping the cause for logging.
var (
	// ErrTransportUnavailable is returned when the serial port cannot be opened.
	ErrTransportUnavailable = errors.New("counter: transport unavailable")

	// ErrTimeout is returned when no frame terminator arrives before the deadline.
	ErrTimeout = errors.New("counter: response timed out")

	// ErrMalformedFrame is returned when a terminated frame cannot be decoded.
	ErrMalformedFrame = errors.New("counter: malformed frame")

	// ErrWriteFailed is returned when the port rejects an outgoing frame.
	ErrWriteFailed = errors.New("counter: write failed")

	// ErrTransport is returned when reading from the port fails.
	ErrTransport = errors.New("counter: transport error")

	// ErrQueueClosed is returned for jobs submitted to, or still pending in,
	// a closed access queue.
	ErrQueueClosed = errors.New("counter: access queue closed")

	// ErrInvalidScope is returned for an unknown reset scope.
	ErrInvalidScope = errors.New("counter: invalid reset scope")
)
