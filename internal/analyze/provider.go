package analyze

import (
	"context"
	"errors"
	"fmt"
)

// Class categorizes analysis failures for the retry decision
type Class string

// Failure classes. Unauthorized and not-found are never retried; everything
// else is considered transient.
const (
	ClassUnauthorized Class = "unauthorized"
	ClassNotFound     Class = "not_found"
	ClassRateLimited  Class = "rate_limited"
	ClassServerError  Class = "server_error"
	ClassOther        Class = "other"
)

// Retryable reports whether a failure of this class may be retried
func (c Class) Retryable() bool {
	switch c {
	case ClassUnauthorized, ClassNotFound:
		return false
	default:
		return true
	}
}

// Error is a classified analysis failure
type Error struct {
	Class   Class
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis failed (%s): %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("analysis failed (%s): %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify extracts the failure class from an error, defaulting to other
func Classify(err error) Class {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Class
	}
	return ClassOther
}

// ChunkFunc receives streamed partial output, strictly in production order,
// one call per chunk before the final result is returned
type ChunkFunc func(text string)

// Provider runs the AI analysis of extracted document text. Implementations
// invoke onChunk zero or more times before returning the complete raw output.
type Provider interface {
	Analyze(ctx context.Context, text string, onChunk ChunkFunc) (string, error)
}
