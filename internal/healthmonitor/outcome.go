package healthmonitor

import (
	"context"
	"errors"
	"net"
)

// Outcome is the result of one proxied attempt against a backend.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransportError
	OutcomeTimeout
	OutcomeServerError // upstream returned 5xx
)

// Failure reports whether the outcome counts against the backend.
func (o Outcome) Failure() bool {
	return o != OutcomeSuccess
}

// OutcomeForError classifies a transport-level error from a failed attempt,
// so the router and the active probe report deadline overruns the same way.
func OutcomeForError(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeTransportError
}

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeServerError:
		return "server_error"
	default:
		return "unknown"
	}
}
