package stream

import (
	"log/slog"
	"sync"
)

// Registry tracks the live subscriber streams per session and fans events
// out to them. It holds non-owning references only; stream lifecycles belong
// to the transport handlers that accepted them.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]map[Stream]struct{}
	logger  *slog.Logger
}

// NewRegistry creates an empty connection registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		streams: make(map[string]map[Stream]struct{}),
		logger:  logger,
	}
}

// Attach registers a stream for a session. It fails gracefully when the
// stream could not be initialized or is already dead.
func (r *Registry) Attach(sessionID string, s Stream) bool {
	if s == nil || !s.IsAlive() {
		return false
	}

	r.mu.Lock()
	set, ok := r.streams[sessionID]
	if !ok {
		set = make(map[Stream]struct{})
		r.streams[sessionID] = set
	}
	set[s] = struct{}{}
	count := len(set)
	r.mu.Unlock()

	r.logger.Debug("Subscriber attached",
		slog.String("session_id", sessionID),
		slog.Int("subscribers", count),
	)
	return true
}

// Detach removes a stream from a session's subscriber set. Removing the last
// subscriber never affects the session's workflow run.
func (r *Registry) Detach(sessionID string, s Stream) {
	r.mu.Lock()
	if set, ok := r.streams[sessionID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.streams, sessionID)
		}
	}
	r.mu.Unlock()

	r.logger.Debug("Subscriber detached", slog.String("session_id", sessionID))
}

// Fanout delivers an event to every live subscriber of the session. A write
// failure on one stream marks it for removal but never aborts delivery to the
// remaining subscribers. Fanout to zero subscribers is a no-op.
func (r *Registry) Fanout(sessionID string, ev Event) {
	for _, s := range r.snapshot(sessionID) {
		if err := s.Send(ev); err != nil {
			r.logger.Warn("Dropping dead subscriber",
				slog.String("session_id", sessionID),
				slog.String("event_type", ev.Type),
				slog.String("error", err.Error()),
			)
			r.Detach(sessionID, s)
		}
	}
}

// FanoutAll delivers an event to every subscriber of every session, stamping
// each envelope with its session ID
func (r *Registry) FanoutAll(ev Event) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		scoped := ev
		scoped.SessionID = id
		r.Fanout(id, scoped)
	}
}

// CountFor returns the number of subscribers attached to a session
func (r *Registry) CountFor(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams[sessionID])
}

// CountTotal returns the number of subscribers across all sessions
func (r *Registry) CountTotal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.streams {
		total += len(set)
	}
	return total
}

// CloseAll forcibly terminates every stream attached to a session without
// affecting the session's own run
func (r *Registry) CloseAll(sessionID string) {
	r.mu.Lock()
	set := r.streams[sessionID]
	delete(r.streams, sessionID)
	r.mu.Unlock()

	for s := range set {
		s.Close()
	}

	if len(set) > 0 {
		r.logger.Info("Closed session subscribers",
			slog.String("session_id", sessionID),
			slog.Int("closed", len(set)),
		)
	}
}

// SweepDead prunes streams that died without being caught by inline fanout
// pruning and returns how many were removed
func (r *Registry) SweepDead() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, set := range r.streams {
		for s := range set {
			if !s.IsAlive() {
				delete(set, s)
				removed++
			}
		}
		if len(set) == 0 {
			delete(r.streams, id)
		}
	}

	if removed > 0 {
		r.logger.Info("Dead subscribers swept", slog.Int("removed", removed))
	}
	return removed
}

// Shutdown closes every stream during coordinated service shutdown
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := r.streams
	r.streams = make(map[string]map[Stream]struct{})
	r.mu.Unlock()

	for _, set := range all {
		for s := range set {
			s.Close()
		}
	}
}

// snapshot copies the subscriber set so sends happen outside the lock
func (r *Registry) snapshot(sessionID string) []Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.streams[sessionID]
	if !ok {
		return nil
	}
	out := make([]Stream, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}
