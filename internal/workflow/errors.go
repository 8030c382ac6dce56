package workflow

import (
	"errors"
	"fmt"
)

// Workflow stage names, reported in error payloads and stage events
const (
	StageExtraction = "extraction"
	StageAnalysis   = "analysis"
)

// Machine-readable error codes carried on terminal error states
const (
	CodeExtractionFailed = "extraction_failed"
	CodeAnalysisFailed   = "analysis_failed"
	CodeRetriesExhausted = "retries_exhausted"
	CodeInternalError    = "internal_error"
	CodeRetryNotAllowed  = "retry_not_allowed"
	CodeRetriesSpent     = "retry_budget_spent"
	CodeSessionNotFound  = "session_not_found"
)

var (
	// ErrRetryNotAllowed is returned when a manual retry targets a session
	// that is not in the error state
	ErrRetryNotAllowed = errors.New("manual retry only allowed from error state")

	// ErrRetryBudgetSpent is returned when a manual retry is requested with
	// the retry counter already at its cap
	ErrRetryBudgetSpent = errors.New("retry budget spent")
)

// ConfigurationError aborts orchestrator construction before any stage runs
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("orchestrator misconfigured: %s", e.Reason)
}

// WorkflowError wraps an unexpected failure during orchestration. It is not
// auto-retried by the orchestrator; callers decide whether to retry manually.
type WorkflowError struct {
	Stage string
	Err   error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow failed during %s: %v", e.Stage, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}
