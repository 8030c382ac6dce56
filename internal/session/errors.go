package session

import "errors"

var (
	// ErrNotFound is returned when a session does not exist or has expired
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when a status update violates the
	// session status graph
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMaxRetriesExceeded is returned when the retry budget is spent
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
