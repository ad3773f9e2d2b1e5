// Package resilience classifies fetch failures and retries the transient
// ones. The taxonomy matches how the run degrades: transient errors feed the
// task retry machine, challenge errors escalate to the operator, and
// validation errors (internal/model) only ever drop single records.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps a failure that is safe to retry through the task state
// machine: navigation timeouts, dropped connections, a challenge that stayed
// unresolved after operator intervention.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransient marks err as retryable.
func NewTransient(err error) *TransientError {
	return &TransientError{Err: err}
}

// ChallengeError reports that the source presented an anti-automation
// challenge the driver could not pass on its own. TrackLength, when known, is
// the slider track width in pixels for motion synthesis.
type ChallengeError struct {
	Err         error
	TrackLength int
}

func (e *ChallengeError) Error() string {
	if e.Err != nil {
		return "challenge: " + e.Err.Error()
	}
	return "challenge presented"
}

func (e *ChallengeError) Unwrap() error { return e.Err }

// IsChallenge reports whether err carries a ChallengeError.
func IsChallenge(err error) (*ChallengeError, bool) {
	var ce *ChallengeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsTransient returns true if the error (or any error in its chain) is an
// explicit TransientError, or matches common network-level transient
// patterns from the automation session.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Heuristics for wrapped errors from the devtools transport.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"navigation timeout",
		"page load timeout",
		"websocket: close",
		"target closed",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
