package stream

import (
	"log/slog"
	"time"
)

// Broadcaster translates domain occurrences into event envelopes and hands
// them to the registry. It is stateless and fire-and-forget: delivery
// failures are the registry's concern and are never surfaced back to the
// workflow.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   logger,
	}
}

// StageStarted announces that a workflow stage began
func (b *Broadcaster) StageStarted(sessionID, stage string) {
	b.emit(sessionID, EventStageStarted, map[string]any{
		"stage": stage,
	})
}

// StageCompleted announces that a workflow stage finished, carrying its output
func (b *Broadcaster) StageCompleted(sessionID, stage string, data map[string]any) {
	payload := map[string]any{"stage": stage}
	for k, v := range data {
		payload[k] = v
	}
	b.emit(sessionID, EventStageCompleted, payload)
}

// Chunk forwards one streamed analysis fragment as it arrives
func (b *Broadcaster) Chunk(sessionID, text string) {
	b.emit(sessionID, EventChunk, map[string]any{
		"text": text,
	})
}

// RetryStarted announces an upcoming analysis retry and its backoff delay
func (b *Broadcaster) RetryStarted(sessionID string, attempt int, delay time.Duration) {
	b.emit(sessionID, EventRetry, map[string]any{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	})
}

// Error announces a terminal workflow failure
func (b *Broadcaster) Error(sessionID, code, message, stage string, retryable bool) {
	b.emit(sessionID, EventError, map[string]any{
		"code":      code,
		"message":   message,
		"stage":     stage,
		"retryable": retryable,
	})
}

// Heartbeat emits a keep-alive to every attached subscriber, independent of
// job status
func (b *Broadcaster) Heartbeat() {
	b.registry.FanoutAll(NewEvent("", EventHeartbeat, nil))
}

func (b *Broadcaster) emit(sessionID, eventType string, data map[string]any) {
	b.logger.Debug("Broadcasting event",
		slog.String("session_id", sessionID),
		slog.String("event_type", eventType),
	)
	b.registry.Fanout(sessionID, NewEvent(sessionID, eventType, data))
}
