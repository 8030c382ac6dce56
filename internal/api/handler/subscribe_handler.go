package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/docinsight-be/internal/api/dto"
	"github.com/cuongbtq/docinsight-be/internal/session"
	"github.com/cuongbtq/docinsight-be/internal/stream"
	"github.com/gin-gonic/gin"
)

// Subscribe handles GET /api/v1/sessions/:session_id/events
// Attaches a long-lived SSE stream that receives, in order: a connected
// acknowledgment, a snapshot of the current (or terminal) state, then live
// events until the client disconnects or the stream is closed server-side.
// Missed events are never replayed; the snapshot substitutes for replay.
func (h *SessionHandler) Subscribe(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	sess, found := h.store.Get(sessionID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	s, err := stream.NewSSEStream(c.Writer)
	if err != nil {
		h.logger.Error("Failed to initialize subscriber stream",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	if !h.registry.Attach(sessionID, s) {
		h.logger.Warn("Subscriber attach rejected", slog.String("session_id", sessionID))
		return
	}
	defer h.registry.Detach(sessionID, s)

	// Re-read the session now that the stream is attached: a transition in
	// the window between the first read and Attach is either in this snapshot
	// or fanned out as a live event, never lost.
	if cur, found := h.store.Get(sessionID); found {
		sess = cur
	}

	// A live subscriber keeps the session around a while longer
	h.store.ExtendExpiration(sessionID, h.sessionCfg.TTL)

	if err := s.Send(stream.NewEvent(sessionID, stream.EventConnected, nil)); err != nil {
		return
	}
	if err := s.Send(snapshotEvent(sess)); err != nil {
		return
	}

	h.logger.Info("Subscriber connected",
		slog.String("session_id", sessionID),
		slog.Int("subscribers", h.registry.CountFor(sessionID)),
	)

	select {
	case <-c.Request.Context().Done():
		s.Close()
	case <-s.Done():
	}

	h.logger.Info("Subscriber disconnected", slog.String("session_id", sessionID))
}

// snapshotEvent builds the attachment-time state event: the terminal result
// for finished sessions, the current status otherwise
func snapshotEvent(sess session.Session) stream.Event {
	resp := dto.FromSession(sess)

	data := map[string]any{
		"status":      resp.Status,
		"retry_count": resp.RetryCount,
	}
	if sess.Status == session.StatusCompleted {
		data["result"] = resp.Result
	}
	if resp.Error != nil {
		data["error"] = resp.Error
	}

	return stream.NewEvent(sess.ID, stream.EventStatus, data)
}
