package dispatch

import (
	"errors"
	"fmt"

	"github.com/chatrelay/chatrelay/internal/session"
)

var (
	// ErrSessionNotFound is returned for session ids with no record. It is
	// the Store's ErrNotFound, so both match with errors.Is.
	ErrSessionNotFound = session.ErrNotFound
	// ErrRemoteInvocation wraps every failure of the provider boundary,
	// including non-completed run states and timeouts.
	ErrRemoteInvocation = errors.New("remote invocation failed")
)

// Result is the outcome of SendMessage. Failures are reported here rather
// than as Go errors; Err keeps the classified error for errors.Is.
type Result struct {
	Success   bool   `json:"success"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id"`
	Err       error  `json:"-"`
}

func succeeded(sessionID, response string) Result {
	return Result{Success: true, Response: response, SessionID: sessionID}
}

func failed(sessionID string, err error) Result {
	return Result{Success: false, Error: err.Error(), SessionID: sessionID, Err: err}
}

func remoteErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemoteInvocation, op, err)
}
