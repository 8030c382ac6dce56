package extract

import (
	"context"
	"fmt"
)

// Extraction error type constants, carried to clients in error payloads
const (
	ErrTypeNotFound    = "file_not_found"
	ErrTypeUnsupported = "unsupported_format"
	ErrTypeCorrupted   = "corrupted_document"
	ErrTypeEmpty       = "empty_document"
	ErrTypeReadFailure = "read_failure"
)

// Result is the output of a successful extraction
type Result struct {
	Text       string
	PageCount  int
	TextLength int
}

// Error is a typed extraction failure. Extraction failures are terminal for
// the workflow and never retried automatically.
type Error struct {
	Type    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s): %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extractor turns an uploaded document into plain text. Implementations make
// a single blocking call with no internal retry.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}
