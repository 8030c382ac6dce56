package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/docinsight-be/internal/analyze"
	"github.com/cuongbtq/docinsight-be/internal/api/handler"
	"github.com/cuongbtq/docinsight-be/internal/api/router"
	"github.com/cuongbtq/docinsight-be/internal/config"
	"github.com/cuongbtq/docinsight-be/internal/extract"
	"github.com/cuongbtq/docinsight-be/internal/scheduler"
	"github.com/cuongbtq/docinsight-be/internal/session"
	"github.com/cuongbtq/docinsight-be/internal/stream"
	"github.com/cuongbtq/docinsight-be/internal/workflow"
	"github.com/cuongbtq/docinsight-be/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	ctx := context.Background()

	// Core state: session store and subscriber registry
	store := session.NewStore(cfg.Session.TTL, appLogger.Logger)
	registry := stream.NewRegistry(appLogger.Logger)
	broadcaster := stream.NewBroadcaster(registry, appLogger.Logger)

	// Collaborators: document extraction and AI analysis
	extractor := extract.NewDocumentExtractor(appLogger.Logger)

	provider, err := analyze.NewVertexProvider(ctx, cfg.Analysis.ProjectID, cfg.Analysis.Location, cfg.Analysis.Model, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize analysis provider: %w", err)
	}
	defer provider.Close()

	var fallback analyze.Provider
	if cfg.Analysis.FallbackModel != "" {
		fb, err := analyze.NewVertexProvider(ctx, cfg.Analysis.ProjectID, cfg.Analysis.Location, cfg.Analysis.FallbackModel, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize fallback provider: %w", err)
		}
		defer fb.Close()
		fallback = fb
	}

	orchestrator, err := workflow.New(workflow.Config{
		Store:            store,
		Events:           broadcaster,
		Extractor:        extractor,
		Provider:         provider,
		FallbackProvider: fallback,
		MaxRetries:       cfg.Workflow.MaxRetries,
		BackoffBase:      cfg.Workflow.BackoffBase,
		BackoffCap:       cfg.Workflow.BackoffCap,
		Logger:           appLogger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	// Background sweeps and heartbeat
	sched := scheduler.New(scheduler.Config{
		Store:              store,
		Registry:           registry,
		Broadcaster:        broadcaster,
		ExpirationInterval: cfg.Session.SweepInterval,
		ConnectionInterval: cfg.Stream.SweepInterval,
		HeartbeatInterval:  cfg.Stream.HeartbeatInterval,
		Logger:             appLogger.Logger,
	})
	sched.Start()

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, store, registry, orchestrator)

	// Create HTTP server. WriteTimeout stays unset so SSE streams are not cut.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop the periodic activities, then drop every subscriber so the SSE
	// handlers unblock and the server can drain
	sched.Stop()
	registry.Shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, store *session.Store, registry *stream.Registry, orchestrator *workflow.Orchestrator) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize handler dependencies
	handlerDeps := &handler.Dependencies{
		Logger:       logger,
		Store:        store,
		Registry:     registry,
		Orchestrator: orchestrator,
		Upload:       cfg.Upload,
		Session:      cfg.Session,
	}

	// Setup router
	return router.SetupRouter(handlerDeps)
}
