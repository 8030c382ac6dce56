package stream

import "time"

// Event type constants
const (
	EventConnected      = "connected"
	EventStatus         = "status"
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventChunk          = "chunk"
	EventRetry          = "retry"
	EventError          = "error"
	EventHeartbeat      = "heartbeat"
)

// Event is the envelope delivered to subscribers. Events are not persisted;
// a subscriber attached after an event was emitted never receives it.
type Event struct {
	SessionID string         `json:"session_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent builds an envelope stamped with the current time
func NewEvent(sessionID, eventType string, data map[string]any) Event {
	return Event{
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
