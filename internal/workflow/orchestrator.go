package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/cuongbtq/docinsight-be/internal/analyze"
	"github.com/cuongbtq/docinsight-be/internal/extract"
	"github.com/cuongbtq/docinsight-be/internal/session"
	"github.com/cuongbtq/docinsight-be/internal/stream"
)

// Default retry policy
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 1000 * time.Millisecond
	DefaultBackoffCap  = 10000 * time.Millisecond
)

// Config holds the orchestrator's dependencies and retry policy
type Config struct {
	Store     *session.Store
	Events    *stream.Broadcaster
	Extractor extract.Extractor
	Provider  analyze.Provider
	// FallbackProvider, when set, replaces the primary engine after a
	// server-error classified failure. The switch itself consumes no retry
	// attempt.
	FallbackProvider analyze.Provider
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	Logger           *slog.Logger
}

// Orchestrator drives a session through the extract -> analyze workflow,
// mutating the session store and emitting progress events along the way. A
// single orchestrator instance owns all workflow-field mutation for the
// sessions it runs; each session is driven by exactly one goroutine.
type Orchestrator struct {
	store       *session.Store
	events      *stream.Broadcaster
	extractor   extract.Extractor
	provider    analyze.Provider
	fallback    analyze.Provider
	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
	logger      *slog.Logger
}

// New validates the configuration and builds an orchestrator. Missing
// dependencies abort construction before any stage can run.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Store == nil:
		return nil, &ConfigurationError{Reason: "session store is required"}
	case cfg.Events == nil:
		return nil, &ConfigurationError{Reason: "event broadcaster is required"}
	case cfg.Extractor == nil:
		return nil, &ConfigurationError{Reason: "extractor is required"}
	case cfg.Provider == nil:
		return nil, &ConfigurationError{Reason: "analysis provider is required"}
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}

	return &Orchestrator{
		store:       cfg.Store,
		events:      cfg.Events,
		extractor:   cfg.Extractor,
		provider:    cfg.Provider,
		fallback:    cfg.FallbackProvider,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		logger:      cfg.Logger,
	}, nil
}

// MaxRetries returns the automatic retry cap
func (o *Orchestrator) MaxRetries() int {
	return o.maxRetries
}

// Backoff returns the delay before analysis attempt n (1-indexed retries):
// min(base * 2^(n-1), cap)
func (o *Orchestrator) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := o.backoffBase << (n - 1)
	if d <= 0 || d > o.backoffCap {
		return o.backoffCap
	}
	return d
}

// Start launches the workflow for a session in its own goroutine. Subscriber
// presence never gates execution; the run proceeds with zero listeners.
func (o *Orchestrator) Start(sessionID string) {
	go func() {
		defer o.recoverRun(sessionID)
		o.run(context.Background(), sessionID)
	}()
}

// Retry re-enters an errored session at the analysis stage. Only sessions in
// the error state qualify, and the manual retry draws from the same retry
// budget as automatic retries.
func (o *Orchestrator) Retry(sessionID string) error {
	sess, ok := o.store.Get(sessionID)
	if !ok {
		return session.ErrNotFound
	}
	if sess.Status != session.StatusError {
		return ErrRetryNotAllowed
	}
	if sess.ExtractedText == "" {
		// Extraction never succeeded, so there is nothing to re-analyze
		return ErrRetryNotAllowed
	}

	if err := o.store.ResetForRetry(sessionID, o.maxRetries); err != nil {
		switch err {
		case session.ErrMaxRetriesExceeded:
			return ErrRetryBudgetSpent
		case session.ErrNotFound:
			return session.ErrNotFound
		default:
			return ErrRetryNotAllowed
		}
	}

	o.logger.Info("Manual retry accepted",
		slog.String("session_id", sessionID),
		slog.Int("retry_count", sess.RetryCount+1),
	)

	go func() {
		defer o.recoverRun(sessionID)
		o.runAnalysis(context.Background(), sessionID, sess.ExtractedText)
	}()
	return nil
}

// run executes the full workflow: extraction first, then the analysis loop
func (o *Orchestrator) run(ctx context.Context, sessionID string) {
	sess, ok := o.store.Get(sessionID)
	if !ok {
		o.logger.Warn("Workflow start skipped - session missing",
			slog.String("session_id", sessionID),
		)
		return
	}

	o.logger.Info("Workflow started",
		slog.String("session_id", sessionID),
		slog.String("file_name", sess.FileName),
	)

	if err := o.store.UpdateStatus(sessionID, session.StatusExtracting); err != nil {
		o.logger.Error("Failed to enter extraction stage",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}
	o.events.StageStarted(sessionID, StageExtraction)

	result, err := o.extractor.Extract(ctx, sess.SourceRef)
	if err != nil {
		// Extraction failures are terminal and never retried automatically
		o.fail(sessionID, session.ErrorInfo{
			Code:      CodeExtractionFailed,
			Message:   err.Error(),
			Stage:     StageExtraction,
			Retryable: false,
		})
		return
	}

	if err := o.store.SetExtracted(sessionID, result.Text, result.PageCount); err != nil {
		o.logger.Error("Failed to store extraction result",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}
	o.events.StageCompleted(sessionID, StageExtraction, map[string]any{
		"page_count":  result.PageCount,
		"text_length": result.TextLength,
	})

	o.runAnalysis(ctx, sessionID, result.Text)
}

// runAnalysis drives the bounded retry loop around the analysis provider.
// The loop is explicit rather than recursive so the attempt counter stays
// visible and the stack stays flat.
func (o *Orchestrator) runAnalysis(ctx context.Context, sessionID, text string) {
	engine := o.provider
	usingFallback := false

	for attempt := 0; ; attempt++ {
		if attempt == 0 {
			if err := o.store.UpdateStatus(sessionID, session.StatusAnalyzing); err != nil {
				o.logger.Error("Failed to enter analysis stage",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
				return
			}
			o.events.StageStarted(sessionID, StageAnalysis)
		} else {
			if err := o.store.UpdateStatus(sessionID, session.StatusRetrying); err != nil {
				o.logger.Error("Failed to enter retry state",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
				return
			}
			delay := o.Backoff(attempt)
			o.events.RetryStarted(sessionID, attempt, delay)
			o.logger.Info("Retrying analysis",
				slog.String("session_id", sessionID),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}

			if err := o.store.UpdateStatus(sessionID, session.StatusAnalyzing); err != nil {
				return
			}
		}

		raw, err := engine.Analyze(ctx, text, func(chunk string) {
			o.events.Chunk(sessionID, chunk)
		})
		if err == nil {
			o.complete(sessionID, raw)
			return
		}

		class := analyze.Classify(err)
		o.logger.Warn("Analysis attempt failed",
			slog.String("session_id", sessionID),
			slog.Int("attempt", attempt),
			slog.String("class", string(class)),
			slog.String("error", err.Error()),
		)

		if !class.Retryable() {
			o.fail(sessionID, session.ErrorInfo{
				Code:      CodeAnalysisFailed,
				Message:   err.Error(),
				Stage:     StageAnalysis,
				Retryable: false,
			})
			return
		}

		// An unreachable engine triggers a one-time switch to the fallback
		// model; the switch does not consume a retry attempt.
		if class == analyze.ClassServerError && o.fallback != nil && !usingFallback {
			engine = o.fallback
			usingFallback = true
			o.logger.Info("Switching to fallback analysis engine",
				slog.String("session_id", sessionID),
			)
		}

		if attempt >= o.maxRetries {
			o.fail(sessionID, session.ErrorInfo{
				Code:      CodeRetriesExhausted,
				Message:   fmt.Sprintf("analysis failed after %d attempts: %s", attempt+1, err.Error()),
				Stage:     StageAnalysis,
				Retryable: false,
			})
			return
		}

		if _, rerr := o.store.IncrementRetry(sessionID, o.maxRetries); rerr != nil {
			o.fail(sessionID, session.ErrorInfo{
				Code:      CodeRetriesExhausted,
				Message:   err.Error(),
				Stage:     StageAnalysis,
				Retryable: false,
			})
			return
		}
	}
}

// complete parses the raw model output and finishes the session. Unparseable
// output degrades to the fixed fallback result instead of failing the run.
func (o *Orchestrator) complete(sessionID, raw string) {
	result := ParseResult(raw)

	if err := o.store.SetResult(sessionID, result); err != nil {
		o.logger.Error("Failed to store analysis result",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	o.events.StageCompleted(sessionID, StageAnalysis, map[string]any{
		"result": result,
	})
	o.logger.Info("Workflow completed", slog.String("session_id", sessionID))
}

// fail records a terminal error on the session and broadcasts it. Collaborator
// failures stop here; nothing propagates past the orchestrator.
func (o *Orchestrator) fail(sessionID string, info session.ErrorInfo) {
	if err := o.store.SetError(sessionID, info); err != nil {
		o.logger.Error("Failed to record session error",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	o.events.Error(sessionID, info.Code, info.Message, info.Stage, info.Retryable)
	o.logger.Error("Workflow failed",
		slog.String("session_id", sessionID),
		slog.String("code", info.Code),
		slog.String("stage", info.Stage),
		slog.Bool("retryable", info.Retryable),
	)
}

// recoverRun converts a panic in a workflow goroutine into a terminal
// WorkflowError on the session instead of crashing the process
func (o *Orchestrator) recoverRun(sessionID string) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		o.logger.Error("Workflow goroutine panicked",
			slog.String("session_id", sessionID),
			slog.String("panic", fmt.Sprintf("%v", r)),
			slog.String("stack", string(buf[:n])),
		)

		werr := &WorkflowError{Stage: StageAnalysis, Err: fmt.Errorf("%v", r)}
		o.fail(sessionID, session.ErrorInfo{
			Code:      CodeInternalError,
			Message:   werr.Error(),
			Stage:     werr.Stage,
			Retryable: true,
		})
	}
}
