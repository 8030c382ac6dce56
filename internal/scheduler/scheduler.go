package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/docinsight-be/internal/session"
	"github.com/cuongbtq/docinsight-be/internal/stream"
)

// Default intervals for the periodic activities
const (
	DefaultExpirationInterval = 5 * time.Minute
	DefaultConnectionInterval = 30 * time.Second
	DefaultHeartbeatInterval  = 30 * time.Second
)

// Config holds scheduler dependencies and intervals
type Config struct {
	Store              *session.Store
	Registry           *stream.Registry
	Broadcaster        *stream.Broadcaster
	ExpirationInterval time.Duration
	ConnectionInterval time.Duration
	HeartbeatInterval  time.Duration
	Logger             *slog.Logger
}

// Scheduler runs the three periodic background activities: session
// expiration sweep, dead-connection sweep and subscriber heartbeat. Each is
// independent and all stop on Shutdown.
type Scheduler struct {
	store       *session.Store
	registry    *stream.Registry
	broadcaster *stream.Broadcaster

	expirationInterval time.Duration
	connectionInterval time.Duration
	heartbeatInterval  time.Duration

	logger   *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler, filling unset intervals with the defaults
func New(cfg Config) *Scheduler {
	if cfg.ExpirationInterval <= 0 {
		cfg.ExpirationInterval = DefaultExpirationInterval
	}
	if cfg.ConnectionInterval <= 0 {
		cfg.ConnectionInterval = DefaultConnectionInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}

	return &Scheduler{
		store:              cfg.Store,
		registry:           cfg.Registry,
		broadcaster:        cfg.Broadcaster,
		expirationInterval: cfg.ExpirationInterval,
		connectionInterval: cfg.ConnectionInterval,
		heartbeatInterval:  cfg.HeartbeatInterval,
		logger:             cfg.Logger,
		stopChan:           make(chan struct{}),
	}
}

// Start launches the periodic activities in their own goroutines
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler",
		slog.Duration("expiration_interval", s.expirationInterval),
		slog.Duration("connection_interval", s.connectionInterval),
		slog.Duration("heartbeat_interval", s.heartbeatInterval),
	)

	s.wg.Add(3)
	go s.loop("expiration-sweep", s.expirationInterval, func() {
		s.store.SweepExpired()
	})
	go s.loop("connection-sweep", s.connectionInterval, func() {
		s.registry.SweepDead()
	})
	go s.loop("heartbeat", s.heartbeatInterval, func() {
		s.broadcaster.Heartbeat()
	})
}

// Stop cancels all periodic activities and waits for them to exit
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop(name string, interval time.Duration, tick func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Debug("Scheduler activity started",
		slog.String("activity", name),
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-s.stopChan:
			s.logger.Debug("Scheduler activity stopped", slog.String("activity", name))
			return
		case <-ticker.C:
			tick()
		}
	}
}
