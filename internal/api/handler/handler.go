package handler

import (
	"log/slog"

	"github.com/cuongbtq/docinsight-be/internal/config"
	"github.com/cuongbtq/docinsight-be/internal/session"
	"github.com/cuongbtq/docinsight-be/internal/stream"
	"github.com/cuongbtq/docinsight-be/internal/workflow"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Store        *session.Store
	Registry     *stream.Registry
	Orchestrator *workflow.Orchestrator
	Upload       config.UploadConfig
	Session      config.SessionConfig
}

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	logger       *slog.Logger
	store        *session.Store
	registry     *stream.Registry
	orchestrator *workflow.Orchestrator
	upload       config.UploadConfig
	sessionCfg   config.SessionConfig
}

// NewSessionHandler creates a new SessionHandler instance
func NewSessionHandler(deps *Dependencies) *SessionHandler {
	return &SessionHandler{
		logger:       deps.Logger,
		store:        deps.Store,
		registry:     deps.Registry,
		orchestrator: deps.Orchestrator,
		upload:       deps.Upload,
		sessionCfg:   deps.Session,
	}
}
