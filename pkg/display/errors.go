package display

import (
	"errors"
	"fmt"
)

// Sentinel errors for common display server error conditions.
var (
	// ErrServerClosed is returned when an operation is attempted on a closed
	// server.
	ErrServerClosed = errors.New("display: server closed")

	// ErrNotConnected is returned by operations that need a live client
	// connection, such as Sync.
	ErrNotConnected = errors.New("display: no client connected")

	// ErrWindowNotFound is returned when an operation addresses a window id
	// the server does not know.
	ErrWindowNotFound = errors.New("display: window not found")

	// ErrSyncInterrupted is returned by Sync when the client connection goes
	// away before the sync reply arrives.
	ErrSyncInterrupted = errors.New("display: sync interrupted by disconnect")

	// ErrAuthFailed is returned internally when an upgrade carries a missing
	// or wrong password.
	ErrAuthFailed = errors.New("display: authentication failed")
)

// ConnError wraps an error with connection context.
type ConnError struct {
	ConnID uint64
	Op     string
	Err    error
}

// Error returns the error message with connection context.
func (e *ConnError) Error() string {
	return fmt.Sprintf("display: conn %d: %s: %v", e.ConnID, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnError) Unwrap() error {
	return e.Err
}
