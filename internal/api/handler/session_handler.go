package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/docinsight-be/internal/api/dto"
	"github.com/cuongbtq/docinsight-be/internal/session"
	"github.com/cuongbtq/docinsight-be/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateSession handles POST /api/v1/sessions
// Accepts a document upload, creates the session and starts the workflow
func (h *SessionHandler) CreateSession(c *gin.Context) {
	fileHeader, err := c.FormFile("document")
	if err != nil {
		h.logger.Error("Missing document upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "multipart field 'document' is required",
		})
		return
	}

	if maxBytes := h.upload.MaxSizeMB * 1024 * 1024; fileHeader.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("document exceeds the %dMB size limit", h.upload.MaxSizeMB),
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !h.extensionAllowed(ext) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error": fmt.Sprintf("unsupported document format %q", ext),
		})
		return
	}

	sessionID := uuid.New().String()
	sess := h.store.Create(sessionID, filepath.Base(fileHeader.Filename))

	// The upload layer owns the saved file; the workflow only reads it
	destination := filepath.Join(h.upload.Dir, sessionID+ext)
	if err := c.SaveUploadedFile(fileHeader, destination); err != nil {
		h.logger.Error("Failed to save upload",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		h.store.Delete(sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to store uploaded document",
		})
		return
	}

	if err := h.store.SetSource(sessionID, destination); err != nil {
		h.logger.Error("Failed to mark session uploaded",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to initialize session",
		})
		return
	}

	h.orchestrator.Start(sessionID)

	sess, _ = h.store.Get(sessionID)
	c.JSON(http.StatusCreated, dto.FromSession(sess))
}

// GetSession handles GET /api/v1/sessions/:session_id
// Returns the point-in-time status of a session
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	sess, found := h.store.Get(sessionID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "session not found",
			"code":  workflow.CodeSessionNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromSession(sess))
}

// RetrySession handles POST /api/v1/sessions/:session_id/retry
// Re-enters an errored session at the analysis stage
func (h *SessionHandler) RetrySession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	err := h.orchestrator.Retry(sessionID)
	switch {
	case err == nil:
		sess, _ := h.store.Get(sessionID)
		c.JSON(http.StatusAccepted, dto.FromSession(sess))
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "session not found",
			"code":  workflow.CodeSessionNotFound,
		})
	case errors.Is(err, workflow.ErrRetryBudgetSpent):
		c.JSON(http.StatusConflict, gin.H{
			"error": "retry budget spent",
			"code":  workflow.CodeRetriesSpent,
		})
	case errors.Is(err, workflow.ErrRetryNotAllowed):
		c.JSON(http.StatusConflict, gin.H{
			"error": "session is not in a retryable state",
			"code":  workflow.CodeRetryNotAllowed,
		})
	default:
		h.logger.Error("Manual retry failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retry session",
		})
	}
}

// DeleteSession handles DELETE /api/v1/sessions/:session_id
// Removes the session and forcibly closes its subscriber streams
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	h.registry.CloseAll(sessionID)
	if !h.store.Delete(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "session not found",
			"code":  workflow.CodeSessionNotFound,
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// CloseSubscribers handles DELETE /api/v1/sessions/:session_id/subscribers
// Detaches every live stream for the session without touching its run
func (h *SessionHandler) CloseSubscribers(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	closed := h.registry.CountFor(sessionID)
	h.registry.CloseAll(sessionID)

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"closed":     closed,
	})
}

// sessionID validates the path parameter, writing the error response itself
func (h *SessionHandler) sessionID(c *gin.Context) (string, bool) {
	sessionID := c.Param("session_id")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "session_id must be a valid UUID",
		})
		return "", false
	}
	return sessionID, true
}

func (h *SessionHandler) extensionAllowed(ext string) bool {
	for _, allowed := range h.upload.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}
