package relay

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned by Endpoint.ReadChunk when no data arrived
// within the wait interval. The relay loop treats it as "poll again".
var ErrTimeout = errors.New("read wait timed out")

// Leg identifies which endpoint of a relay an error belongs to.
type Leg uint8

const (
	// LegA is the first endpoint passed to Run.
	LegA Leg = 0
	// LegB is the second endpoint passed to Run.
	LegB Leg = 1
)

// String returns the leg name.
func (l Leg) String() string {
	switch l {
	case LegA:
		return "A"
	case LegB:
		return "B"
	default:
		return "UNKNOWN"
	}
}

// Op distinguishes a failed read (source side) from a failed write
// (sink side).
type Op uint8

const (
	// OpRead indicates the endpoint failed while being read.
	OpRead Op = 0
	// OpWrite indicates the endpoint failed while being written.
	OpWrite Op = 1
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Error reports which endpoint of a relay failed and how. A read failure
// is a source error, a write failure a sink error; end-of-stream is
// reported as a source error wrapping io.EOF.
type Error struct {
	// Leg is the endpoint that failed.
	Leg Leg

	// Name is the endpoint's name, for logging.
	Name string

	// Op is the operation that failed.
	Op Op

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("relay %s on %s (leg %s): %v", e.Op, e.Name, e.Leg, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Source reports whether the endpoint failed as a data source.
func (e *Error) Source() bool {
	return e.Op == OpRead
}

// Sink reports whether the endpoint failed as a data sink.
func (e *Error) Sink() bool {
	return e.Op == OpWrite
}

// FailedLeg extracts the failed leg from a relay error.
// ok is false if err is not a relay error.
func FailedLeg(err error) (leg Leg, ok bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Leg, true
	}
	return 0, false
}
