package stream

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-contrib/sse"
)

// Stream is the capability interface the registry needs from a subscriber
// connection. Keeping it transport-agnostic lets the registry be tested with
// fakes and keeps dead-connection detection behind Send/IsAlive.
type Stream interface {
	// Send writes one event to the subscriber. A failed write marks the
	// stream dead.
	Send(ev Event) error
	// IsAlive reports whether the stream can still accept events
	IsAlive() bool
	// Close releases the stream's server-side handle. It never closes the
	// underlying transport resource; that belongs to the accepting handler.
	Close()
}

// SSEStream adapts an HTTP response writer into a Stream using
// server-sent-events framing. The subscribe handler owns the underlying
// connection; the registry only holds this wrapper.
type SSEStream struct {
	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
	alive   bool
	done    chan struct{}
}

// NewSSEStream wraps the response writer, failing when the transport cannot
// flush incrementally
func NewSSEStream(w http.ResponseWriter) (*SSEStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &SSEStream{
		writer:  w,
		flusher: flusher,
		alive:   true,
		done:    make(chan struct{}),
	}, nil
}

// Send encodes the event as an SSE frame and flushes it immediately
func (s *SSEStream) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive {
		return fmt.Errorf("stream closed")
	}

	err := sse.Encode(s.writer, sse.Event{
		Event: ev.Type,
		Data:  ev,
	})
	if err != nil {
		s.markDead()
		return fmt.Errorf("failed to write event: %w", err)
	}

	s.flusher.Flush()
	return nil
}

// IsAlive reports whether the stream is still writable
func (s *SSEStream) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Close marks the stream dead and unblocks the handler waiting on Done
func (s *SSEStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDead()
}

// Done is closed once the stream has been shut down
func (s *SSEStream) Done() <-chan struct{} {
	return s.done
}

// markDead must be called with the mutex held
func (s *SSEStream) markDead() {
	if s.alive {
		s.alive = false
		close(s.done)
	}
}
