package workflow

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/docinsight-be/internal/analyze"
	"github.com/cuongbtq/docinsight-be/internal/extract"
	"github.com/cuongbtq/docinsight-be/internal/session"
	"github.com/cuongbtq/docinsight-be/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder is a fake subscriber stream capturing everything fanned out
type eventRecorder struct {
	mu     sync.Mutex
	events []stream.Event
}

func (r *eventRecorder) Send(ev stream.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) IsAlive() bool { return true }
func (r *eventRecorder) Close()        {}

func (r *eventRecorder) ofType(types ...string) []stream.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []stream.Event
	for _, ev := range r.events {
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// fakeExtractor returns a canned extraction result or error
type fakeExtractor struct {
	result *extract.Result
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (*extract.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// scriptedProvider fails with the scripted errors first, then succeeds
type scriptedProvider struct {
	mu       sync.Mutex
	failures []error
	chunks   []string
	final    string
	calls    int
}

func (p *scriptedProvider) Analyze(ctx context.Context, text string, onChunk analyze.ChunkFunc) (string, error) {
	p.mu.Lock()
	p.calls++
	var err error
	if len(p.failures) > 0 {
		err = p.failures[0]
		p.failures = p.failures[1:]
	}
	p.mu.Unlock()

	if err != nil {
		return "", err
	}
	for _, c := range p.chunks {
		if onChunk != nil {
			onChunk(c)
		}
	}
	return p.final, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func helloExtractor() *fakeExtractor {
	return &fakeExtractor{
		result: &extract.Result{Text: "Hello", PageCount: 1, TextLength: 5},
	}
}

func classError(class analyze.Class) error {
	return &analyze.Error{Class: class, Message: "scripted failure"}
}

type harness struct {
	orchestrator *Orchestrator
	store        *session.Store
	recorder     *eventRecorder
}

func newHarness(t *testing.T, extractor extract.Extractor, provider, fallback analyze.Provider) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	store := session.NewStore(time.Minute, logger)
	registry := stream.NewRegistry(logger)
	broadcaster := stream.NewBroadcaster(registry, logger)

	recorder := &eventRecorder{}
	require.True(t, registry.Attach("s1", recorder))

	o, err := New(Config{
		Store:            store,
		Events:           broadcaster,
		Extractor:        extractor,
		Provider:         provider,
		FallbackProvider: fallback,
		MaxRetries:       3,
		BackoffBase:      time.Millisecond,
		BackoffCap:       5 * time.Millisecond,
		Logger:           logger,
	})
	require.NoError(t, err)

	store.Create("s1", "doc.txt")
	require.NoError(t, store.SetSource("s1", "/tmp/doc.txt"))

	return &harness{orchestrator: o, store: store, recorder: recorder}
}

func (h *harness) session(t *testing.T) session.Session {
	t.Helper()
	sess, ok := h.store.Get("s1")
	require.True(t, ok)
	return sess
}

func TestNew_ConfigurationErrors(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	store := session.NewStore(time.Minute, logger)
	registry := stream.NewRegistry(logger)
	broadcaster := stream.NewBroadcaster(registry, logger)
	extractor := helloExtractor()
	provider := &scriptedProvider{final: `{"summary": "ok"}`}

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing store", cfg: Config{Events: broadcaster, Extractor: extractor, Provider: provider}},
		{name: "missing broadcaster", cfg: Config{Store: store, Extractor: extractor, Provider: provider}},
		{name: "missing extractor", cfg: Config{Store: store, Events: broadcaster, Provider: provider}},
		{name: "missing provider", cfg: Config{Store: store, Events: broadcaster, Extractor: extractor}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)

			var cerr *ConfigurationError
			assert.ErrorAs(t, err, &cerr)
		})
	}
}

func TestOrchestrator_Backoff(t *testing.T) {
	o, err := New(Config{
		Store:     session.NewStore(time.Minute, slog.New(slog.DiscardHandler)),
		Events:    stream.NewBroadcaster(stream.NewRegistry(slog.New(slog.DiscardHandler)), slog.New(slog.DiscardHandler)),
		Extractor: helloExtractor(),
		Provider:  &scriptedProvider{},
		Logger:    slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	tests := []struct {
		n    int
		want time.Duration
	}{
		{n: 0, want: 0},
		{n: 1, want: 1000 * time.Millisecond},
		{n: 2, want: 2000 * time.Millisecond},
		{n: 3, want: 4000 * time.Millisecond},
		{n: 4, want: 8000 * time.Millisecond},
		{n: 5, want: 10000 * time.Millisecond},
		{n: 10, want: 10000 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, o.Backoff(tt.n), "backoff(%d)", tt.n)
	}
}

func TestOrchestrator_CompletesFirstAttempt(t *testing.T) {
	provider := &scriptedProvider{
		chunks: []string{"analyzing", " the", " document"},
		final:  `{"summary": "a greeting", "key_points": ["says hello"]}`,
	}
	h := newHarness(t, helloExtractor(), provider, nil)

	h.orchestrator.run(context.Background(), "s1")

	sess := h.session(t)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Equal(t, 0, sess.RetryCount)
	assert.Equal(t, "a greeting", sess.Result["summary"])
	assert.NotNil(t, sess.CompletedAt)
	assert.Equal(t, "Hello", sess.ExtractedText)
	assert.Equal(t, 1, sess.PageCount)

	// Chunks arrive in production order
	chunks := h.recorder.ofType(stream.EventChunk)
	require.Len(t, chunks, 3)
	assert.Equal(t, "analyzing", chunks[0].Data["text"])
	assert.Equal(t, " the", chunks[1].Data["text"])
	assert.Equal(t, " document", chunks[2].Data["text"])

	// Stage events bracket both stages
	stages := h.recorder.ofType(stream.EventStageStarted, stream.EventStageCompleted)
	require.Len(t, stages, 4)
	assert.Equal(t, StageExtraction, stages[0].Data["stage"])
	assert.Equal(t, StageExtraction, stages[1].Data["stage"])
	assert.Equal(t, StageAnalysis, stages[2].Data["stage"])
	assert.Equal(t, StageAnalysis, stages[3].Data["stage"])
}

func TestOrchestrator_RetriesThenSucceeds(t *testing.T) {
	provider := &scriptedProvider{
		failures: []error{
			classError(analyze.ClassRateLimited),
			classError(analyze.ClassOther),
		},
		final: `{"summary": "third time lucky"}`,
	}
	h := newHarness(t, helloExtractor(), provider, nil)

	h.orchestrator.run(context.Background(), "s1")

	sess := h.session(t)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Equal(t, 2, sess.RetryCount)
	assert.Equal(t, 3, provider.callCount())

	// One analysis start plus two retry announcements, in order
	attempts := h.recorder.ofType(stream.EventStageStarted, stream.EventRetry)
	var analysisAttempts []stream.Event
	for _, ev := range attempts {
		if ev.Type == stream.EventRetry || ev.Data["stage"] == StageAnalysis {
			analysisAttempts = append(analysisAttempts, ev)
		}
	}
	require.Len(t, analysisAttempts, 3)
	assert.Equal(t, stream.EventStageStarted, analysisAttempts[0].Type)
	assert.Equal(t, stream.EventRetry, analysisAttempts[1].Type)
	assert.Equal(t, 1, analysisAttempts[1].Data["attempt"])
	assert.Equal(t, stream.EventRetry, analysisAttempts[2].Type)
	assert.Equal(t, 2, analysisAttempts[2].Data["attempt"])
}

func TestOrchestrator_NonRetryableFailsImmediately(t *testing.T) {
	provider := &scriptedProvider{
		failures: []error{classError(analyze.ClassUnauthorized)},
	}
	h := newHarness(t, helloExtractor(), provider, nil)

	start := time.Now()
	h.orchestrator.run(context.Background(), "s1")
	elapsed := time.Since(start)

	sess := h.session(t)
	assert.Equal(t, session.StatusError, sess.Status)
	assert.Equal(t, 0, sess.RetryCount)
	require.NotNil(t, sess.LastError)
	assert.Equal(t, CodeAnalysisFailed, sess.LastError.Code)
	assert.Equal(t, StageAnalysis, sess.LastError.Stage)
	assert.False(t, sess.LastError.Retryable)
	assert.Equal(t, 1, provider.callCount())

	// No backoff was incurred and no retry announced
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Empty(t, h.recorder.ofType(stream.EventRetry))
}

func TestOrchestrator_RetriesExhausted(t *testing.T) {
	provider := &scriptedProvider{
		failures: []error{
			classError(analyze.ClassOther),
			classError(analyze.ClassOther),
			classError(analyze.ClassOther),
			classError(analyze.ClassOther),
		},
	}
	h := newHarness(t, helloExtractor(), provider, nil)

	h.orchestrator.run(context.Background(), "s1")

	sess := h.session(t)
	assert.Equal(t, session.StatusError, sess.Status)
	assert.Equal(t, 3, sess.RetryCount)
	require.NotNil(t, sess.LastError)
	assert.Equal(t, CodeRetriesExhausted, sess.LastError.Code)
	assert.False(t, sess.LastError.Retryable)

	// Initial attempt plus the three retries
	assert.Equal(t, 4, provider.callCount())

	errorEvents := h.recorder.ofType(stream.EventError)
	require.Len(t, errorEvents, 1)
	assert.Contains(t, errorEvents[0].Data["message"], "after 4 attempts")
}

func TestOrchestrator_ExtractionFailureIsTerminal(t *testing.T) {
	extractor := &fakeExtractor{
		err: &extract.Error{Type: extract.ErrTypeCorrupted, Message: "broken xref table"},
	}
	provider := &scriptedProvider{final: `{"summary": "never reached"}`}
	h := newHarness(t, extractor, provider, nil)

	h.orchestrator.run(context.Background(), "s1")

	sess := h.session(t)
	assert.Equal(t, session.StatusError, sess.Status)
	require.NotNil(t, sess.LastError)
	assert.Equal(t, CodeExtractionFailed, sess.LastError.Code)
	assert.Equal(t, StageExtraction, sess.LastError.Stage)
	assert.False(t, sess.LastError.Retryable)
	assert.Equal(t, 0, provider.callCount())
}

func TestOrchestrator_FallbackEngineSwitch(t *testing.T) {
	primary := &scriptedProvider{
		failures: []error{classError(analyze.ClassServerError)},
		final:    `{"summary": "from primary"}`,
	}
	fallback := &scriptedProvider{final: `{"summary": "from fallback"}`}
	h := newHarness(t, helloExtractor(), primary, fallback)

	h.orchestrator.run(context.Background(), "s1")

	sess := h.session(t)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Equal(t, "from fallback", sess.Result["summary"])

	// The switch happened before the next retry and consumed that one retry
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, fallback.callCount())
	assert.Equal(t, 1, sess.RetryCount)
}

func TestOrchestrator_RateLimitDoesNotSwitchEngine(t *testing.T) {
	primary := &scriptedProvider{
		failures: []error{classError(analyze.ClassRateLimited)},
		final:    `{"summary": "from primary"}`,
	}
	fallback := &scriptedProvider{final: `{"summary": "from fallback"}`}
	h := newHarness(t, helloExtractor(), primary, fallback)

	h.orchestrator.run(context.Background(), "s1")

	sess := h.session(t)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Equal(t, "from primary", sess.Result["summary"])
	assert.Equal(t, 0, fallback.callCount())
}

func TestOrchestrator_MalformedResultUsesFallbackStructure(t *testing.T) {
	provider := &scriptedProvider{final: "the model rambled with no json"}
	h := newHarness(t, helloExtractor(), provider, nil)

	h.orchestrator.run(context.Background(), "s1")

	sess := h.session(t)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Equal(t, FallbackResult(), sess.Result)
}

func TestOrchestrator_ManualRetry(t *testing.T) {
	provider := &scriptedProvider{
		failures: []error{classError(analyze.ClassUnauthorized)},
		final:    `{"summary": "recovered"}`,
	}
	h := newHarness(t, helloExtractor(), provider, nil)

	h.orchestrator.run(context.Background(), "s1")
	require.Equal(t, session.StatusError, h.session(t).Status)

	require.NoError(t, h.orchestrator.Retry("s1"))

	assert.Eventually(t, func() bool {
		sess, ok := h.store.Get("s1")
		return ok && sess.Status == session.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	sess := h.session(t)
	assert.Equal(t, "recovered", sess.Result["summary"])
	assert.Equal(t, 1, sess.RetryCount)
	assert.Nil(t, sess.LastError)
}

func TestOrchestrator_ManualRetryRejections(t *testing.T) {
	t.Run("completed session", func(t *testing.T) {
		provider := &scriptedProvider{final: `{"summary": "done"}`}
		h := newHarness(t, helloExtractor(), provider, nil)
		h.orchestrator.run(context.Background(), "s1")
		before := h.session(t)
		require.Equal(t, session.StatusCompleted, before.Status)

		err := h.orchestrator.Retry("s1")
		assert.ErrorIs(t, err, ErrRetryNotAllowed)

		// No side effects
		after := h.session(t)
		assert.Equal(t, before.Status, after.Status)
		assert.Equal(t, before.RetryCount, after.RetryCount)
	})

	t.Run("retry budget spent", func(t *testing.T) {
		provider := &scriptedProvider{
			failures: []error{
				classError(analyze.ClassOther),
				classError(analyze.ClassOther),
				classError(analyze.ClassOther),
				classError(analyze.ClassOther),
			},
		}
		h := newHarness(t, helloExtractor(), provider, nil)
		h.orchestrator.run(context.Background(), "s1")
		require.Equal(t, 3, h.session(t).RetryCount)

		err := h.orchestrator.Retry("s1")
		assert.ErrorIs(t, err, ErrRetryBudgetSpent)
	})

	t.Run("no extracted text", func(t *testing.T) {
		extractor := &fakeExtractor{
			err: &extract.Error{Type: extract.ErrTypeEmpty, Message: "nothing to read"},
		}
		h := newHarness(t, extractor, &scriptedProvider{}, nil)
		h.orchestrator.run(context.Background(), "s1")
		require.Equal(t, session.StatusError, h.session(t).Status)

		err := h.orchestrator.Retry("s1")
		assert.ErrorIs(t, err, ErrRetryNotAllowed)
	})

	t.Run("unknown session", func(t *testing.T) {
		h := newHarness(t, helloExtractor(), &scriptedProvider{final: `{"summary": "x"}`}, nil)
		err := h.orchestrator.Retry("does-not-exist")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestOrchestrator_RunsWithZeroSubscribers(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	store := session.NewStore(time.Minute, logger)
	broadcaster := stream.NewBroadcaster(stream.NewRegistry(logger), logger)

	o, err := New(Config{
		Store:       store,
		Events:      broadcaster,
		Extractor:   helloExtractor(),
		Provider:    &scriptedProvider{final: `{"summary": "quiet run"}`},
		BackoffBase: time.Millisecond,
		Logger:      logger,
	})
	require.NoError(t, err)

	store.Create("s1", "doc.txt")
	require.NoError(t, store.SetSource("s1", "/tmp/doc.txt"))

	o.run(context.Background(), "s1")

	sess, ok := store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, session.StatusCompleted, sess.Status)
}
