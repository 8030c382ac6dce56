package session

import (
	"log/slog"
	"sync"
	"time"
)

// Store is the in-memory authoritative session registry. Sessions expire
// after the configured TTL; expired sessions are treated as absent by all
// read paths and physically removed either lazily on access or by the
// periodic sweep.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *slog.Logger
}

// NewStore creates a session store with the given TTL
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger,
	}
}

// Create registers a new session and returns a snapshot of it
func (s *Store) Create(id, fileName string) Session {
	now := time.Now()
	sess := &Session{
		ID:        id,
		Status:    StatusCreated,
		FileName:  fileName,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Info("Session created",
		slog.String("session_id", id),
		slog.String("file_name", fileName),
		slog.Time("expires_at", sess.ExpiresAt),
	)

	return *sess
}

// Get returns a snapshot of the session, treating an expired session as
// absent and evicting it lazily
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	if ok && !sess.Expired(time.Now()) {
		snapshot := *sess
		s.mu.RUnlock()
		return snapshot, true
	}
	s.mu.RUnlock()

	if !ok {
		return Session{}, false
	}

	// Lazy eviction; re-check under the write lock since the expiration may
	// have been extended in between.
	s.mu.Lock()
	if cur, still := s.sessions[id]; still && cur.Expired(time.Now()) {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	return Session{}, false
}

// update applies fn to the live session under the write lock. The session ID
// is never reassigned and UpdatedAt is always refreshed.
func (s *Store) update(id string, fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}

	now := time.Now()
	if sess.Expired(now) {
		delete(s.sessions, id)
		return ErrNotFound
	}

	if err := fn(sess); err != nil {
		return err
	}

	sess.ID = id
	sess.UpdatedAt = now
	return nil
}

// UpdateStatus moves the session along the status graph, rejecting illegal
// transitions
func (s *Store) UpdateStatus(id string, to Status) error {
	return s.update(id, func(sess *Session) error {
		if !CanTransition(sess.Status, to) {
			s.logger.Warn("Rejected status transition",
				slog.String("session_id", id),
				slog.String("from", string(sess.Status)),
				slog.String("to", string(to)),
			)
			return ErrInvalidTransition
		}
		sess.Status = to
		return nil
	})
}

// SetSource records the uploaded file reference and marks the session uploaded
func (s *Store) SetSource(id, sourceRef string) error {
	return s.update(id, func(sess *Session) error {
		if !CanTransition(sess.Status, StatusUploaded) {
			return ErrInvalidTransition
		}
		sess.Status = StatusUploaded
		sess.SourceRef = sourceRef
		return nil
	})
}

// SetExtracted stores the extraction output and marks the session extracted
func (s *Store) SetExtracted(id, text string, pageCount int) error {
	return s.update(id, func(sess *Session) error {
		if !CanTransition(sess.Status, StatusExtracted) {
			return ErrInvalidTransition
		}
		sess.Status = StatusExtracted
		sess.ExtractedText = text
		sess.PageCount = pageCount
		return nil
	})
}

// SetResult stores the final analysis payload and completes the session
func (s *Store) SetResult(id string, result map[string]any) error {
	return s.update(id, func(sess *Session) error {
		if !CanTransition(sess.Status, StatusCompleted) {
			return ErrInvalidTransition
		}
		now := time.Now()
		sess.Status = StatusCompleted
		sess.Result = result
		sess.LastError = nil
		sess.CompletedAt = &now
		return nil
	})
}

// SetError moves the session to the terminal error state with failure details
func (s *Store) SetError(id string, info ErrorInfo) error {
	return s.update(id, func(sess *Session) error {
		if !CanTransition(sess.Status, StatusError) {
			return ErrInvalidTransition
		}
		sess.Status = StatusError
		sess.LastError = &info
		return nil
	})
}

// IncrementRetry bumps the retry counter, enforcing the cap
func (s *Store) IncrementRetry(id string, maxRetries int) (int, error) {
	var count int
	err := s.update(id, func(sess *Session) error {
		if sess.RetryCount >= maxRetries {
			return ErrMaxRetriesExceeded
		}
		sess.RetryCount++
		count = sess.RetryCount
		return nil
	})
	return count, err
}

// ResetForRetry re-enters an errored session into the workflow. The error
// state is cleared and the retry counter bumped against the same budget the
// automatic retries draw from.
func (s *Store) ResetForRetry(id string, maxRetries int) error {
	return s.update(id, func(sess *Session) error {
		if sess.Status != StatusError {
			return ErrInvalidTransition
		}
		if sess.RetryCount >= maxRetries {
			return ErrMaxRetriesExceeded
		}
		sess.Status = StatusRetrying
		sess.LastError = nil
		sess.RetryCount++
		return nil
	})
}

// ExtendExpiration pushes the session's expiration further out. Extension is
// additive from now and idempotent; it never shortens the deadline.
func (s *Store) ExtendExpiration(id string, d time.Duration) bool {
	err := s.update(id, func(sess *Session) error {
		if deadline := time.Now().Add(d); deadline.After(sess.ExpiresAt) {
			sess.ExpiresAt = deadline
		}
		return nil
	})
	return err == nil
}

// Delete removes the session, reporting whether it existed
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.logger.Info("Session deleted", slog.String("session_id", id))
	return true
}

// SweepExpired physically removes all expired sessions and returns the count
func (s *Store) SweepExpired() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("Expired sessions swept", slog.Int("removed", removed))
	}
	return removed
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
