package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Upload   UploadConfig   `yaml:"upload"`
	Session  SessionConfig  `yaml:"session"`
	Stream   StreamConfig   `yaml:"stream"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// ServerConfig holds HTTP server configuration. WriteTimeout must stay zero;
// SSE subscriptions are long-lived writes.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// UploadConfig holds document upload settings
type UploadConfig struct {
	Dir               string   `yaml:"dir"`
	MaxSizeMB         int64    `yaml:"max_size_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// SessionConfig holds session store settings
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StreamConfig holds subscriber stream settings
type StreamConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

// WorkflowConfig holds the analysis retry policy
type WorkflowConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
}

// AnalysisConfig holds the Vertex AI provider settings. ProjectID falls back
// to the PROJECT_ID environment variable when empty.
type AnalysisConfig struct {
	ProjectID     string `yaml:"project_id"`
	Location      string `yaml:"location"`
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Analysis.ProjectID == "" {
		config.Analysis.ProjectID = os.Getenv("PROJECT_ID")
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Upload.Dir == "" {
		return fmt.Errorf("upload dir is required")
	}

	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("upload max_size_mb must be greater than 0")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be greater than 0")
	}

	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session sweep_interval must be greater than 0")
	}

	if c.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("stream heartbeat_interval must be greater than 0")
	}

	if c.Stream.SweepInterval <= 0 {
		return fmt.Errorf("stream sweep_interval must be greater than 0")
	}

	if c.Workflow.MaxRetries <= 0 {
		return fmt.Errorf("workflow max_retries must be greater than 0")
	}

	if c.Workflow.BackoffBase <= 0 {
		return fmt.Errorf("workflow backoff_base must be greater than 0")
	}

	if c.Workflow.BackoffCap < c.Workflow.BackoffBase {
		return fmt.Errorf("workflow backoff_cap must not be smaller than backoff_base")
	}

	if c.Analysis.ProjectID == "" {
		return fmt.Errorf("analysis project_id is required (config or PROJECT_ID env)")
	}

	if c.Analysis.Location == "" {
		return fmt.Errorf("analysis location is required")
	}

	if c.Analysis.Model == "" {
		return fmt.Errorf("analysis model is required")
	}

	return nil
}
