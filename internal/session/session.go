package session

import "time"

// Status represents the lifecycle state of an analysis session
type Status string

// Session status constants
const (
	StatusCreated    Status = "created"
	StatusUploaded   Status = "uploaded"
	StatusExtracting Status = "extracting"
	StatusExtracted  Status = "extracted"
	StatusAnalyzing  Status = "analyzing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether the status ends a workflow run
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// transitions is the allowed status graph. A session may only move along
// these edges; error -> retrying is the manual re-entry path.
var transitions = map[Status][]Status{
	StatusCreated:    {StatusUploaded},
	StatusUploaded:   {StatusExtracting},
	StatusExtracting: {StatusExtracted, StatusError},
	StatusExtracted:  {StatusAnalyzing, StatusError},
	StatusAnalyzing:  {StatusCompleted, StatusRetrying, StatusError},
	StatusRetrying:   {StatusAnalyzing, StatusError},
	StatusError:      {StatusRetrying},
	StatusCompleted:  {},
}

// CanTransition reports whether moving from one status to another is legal
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrorInfo describes a terminal workflow failure
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Stage     string `json:"stage"`
	Retryable bool   `json:"retryable"`
}

// Session holds the authoritative state of one analysis job
type Session struct {
	ID         string
	Status     Status
	FileName   string
	SourceRef  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  time.Time
	RetryCount int

	// ExtractedText and PageCount are retained after extraction so a manual
	// retry can re-enter the workflow at the analysis stage.
	ExtractedText string
	PageCount     int

	Result      map[string]any
	LastError   *ErrorInfo
	CompletedAt *time.Time
}

// Expired reports whether the session is past its expiration deadline
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
