package dto

import (
	"time"

	"github.com/cuongbtq/docinsight-be/internal/session"
)

// SessionResponse is the point-in-time view of a session returned by the API
type SessionResponse struct {
	SessionID   string         `json:"session_id"`
	Status      string         `json:"status"`
	FileName    string         `json:"file_name,omitempty"`
	PageCount   int            `json:"page_count,omitempty"`
	RetryCount  int            `json:"retry_count"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	ExpiresAt   string         `json:"expires_at"`
	Result      map[string]any `json:"result,omitempty"`
	Error       *SessionError  `json:"error,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
}

// SessionError mirrors the terminal error details of a session
type SessionError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Stage     string `json:"stage"`
	Retryable bool   `json:"retryable"`
}

// FromSession maps a session snapshot into its API representation
func FromSession(s session.Session) SessionResponse {
	resp := SessionResponse{
		SessionID:  s.ID,
		Status:     string(s.Status),
		FileName:   s.FileName,
		PageCount:  s.PageCount,
		RetryCount: s.RetryCount,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  s.UpdatedAt.Format(time.RFC3339),
		ExpiresAt:  s.ExpiresAt.Format(time.RFC3339),
		Result:     s.Result,
	}

	if s.LastError != nil {
		resp.Error = &SessionError{
			Code:      s.LastError.Code,
			Message:   s.LastError.Message,
			Stage:     s.LastError.Stage,
			Retryable: s.LastError.Retryable,
		}
	}

	if s.CompletedAt != nil {
		resp.CompletedAt = s.CompletedAt.Format(time.RFC3339)
	}

	return resp
}
