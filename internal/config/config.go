// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Model   ModelConfig   `mapstructure:"model" yaml:"model"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Events  EventsConfig  `mapstructure:"events" yaml:"events"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig controls the HTTP transport.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// StepTimeout bounds a single-step invocation end to end.
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	// LoopMinTimeout and LoopStepBudget derive the auto-mode deadline:
	// max(LoopMinTimeout, maxSteps*LoopStepBudget).
	LoopMinTimeout time.Duration `mapstructure:"loop_min_timeout" yaml:"loop_min_timeout"`
	LoopStepBudget time.Duration `mapstructure:"loop_step_budget" yaml:"loop_step_budget"`
}

// ModelConfig configures the Gemini REST client.
type ModelConfig struct {
	Model           string        `mapstructure:"model" yaml:"model"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout      time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	ThinkingLevel   string        `mapstructure:"thinking_level" yaml:"thinking_level"`
	IncludeThoughts bool          `mapstructure:"include_thoughts" yaml:"include_thoughts"`
	// RequestsPerMinute paces outbound generateContent calls. Zero disables
	// pacing.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// AgentConfig carries the orchestrator's retry and timing policy. The
// defaults are the production values; tests compress them.
type AgentConfig struct {
	CaptureAttempts        int           `mapstructure:"capture_attempts" yaml:"capture_attempts"`
	CaptureRetryDelay      time.Duration `mapstructure:"capture_retry_delay" yaml:"capture_retry_delay"`
	ModelAttempts          int           `mapstructure:"model_attempts" yaml:"model_attempts"`
	ModelRetryDelay        time.Duration `mapstructure:"model_retry_delay" yaml:"model_retry_delay"`
	SettleDelay            time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	FailureRetryDelay      time.Duration `mapstructure:"failure_retry_delay" yaml:"failure_retry_delay"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	DefaultMaxSteps        int           `mapstructure:"default_max_steps" yaml:"default_max_steps"`

	// StrictSignatures turns a history signature-invariant violation from a
	// logged warning into a hard step failure.
	StrictSignatures bool `mapstructure:"strict_signatures" yaml:"strict_signatures"`

	// RecentNotes is how many trailing notes the continuation prompt renders.
	RecentNotes int `mapstructure:"recent_notes" yaml:"recent_notes"`
}

// EventsConfig controls the per-session event bus.
type EventsConfig struct {
	QueueSize         int           `mapstructure:"queue_size" yaml:"queue_size"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
}

// BrowserConfig configures the managed browser actuator.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	StartURL          string        `mapstructure:"start_url" yaml:"start_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "operant")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.listen", "127.0.0.1:5000")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.step_timeout", "120s")
	v.SetDefault("server.loop_min_timeout", "300s")
	v.SetDefault("server.loop_step_budget", "30s")

	// -- Model --
	v.SetDefault("model.model", "gemini-3-pro-preview")
	v.SetDefault("model.endpoint", "")
	v.SetDefault("model.api_timeout", "120s")
	v.SetDefault("model.temperature", 1.0)
	v.SetDefault("model.thinking_level", "low")
	v.SetDefault("model.include_thoughts", true)
	v.SetDefault("model.requests_per_minute", 0)

	// -- Agent --
	v.SetDefault("agent.capture_attempts", 3)
	v.SetDefault("agent.capture_retry_delay", "2s")
	v.SetDefault("agent.model_attempts", 3)
	v.SetDefault("agent.model_retry_delay", "10s")
	v.SetDefault("agent.settle_delay", "1s")
	v.SetDefault("agent.failure_retry_delay", "3s")
	v.SetDefault("agent.max_consecutive_failures", 3)
	v.SetDefault("agent.default_max_steps", 20)
	v.SetDefault("agent.strict_signatures", false)
	v.SetDefault("agent.recent_notes", 5)

	// -- Events --
	v.SetDefault("events.queue_size", 100)
	v.SetDefault("events.heartbeat_interval", "30s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.start_url", "about:blank")
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
}

// NewDefaultConfig returns a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	_ = v.BindEnv("model.api_key", "OPERANT_MODEL_API_KEY", "GEMINI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.CaptureAttempts <= 0 {
		return fmt.Errorf("agent.capture_attempts must be a positive integer")
	}
	if c.Agent.ModelAttempts <= 0 {
		return fmt.Errorf("agent.model_attempts must be a positive integer")
	}
	if c.Agent.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("agent.max_consecutive_failures must be a positive integer")
	}
	if c.Events.QueueSize <= 0 {
		return fmt.Errorf("events.queue_size must be a positive integer")
	}
	if c.Events.HeartbeatInterval <= 0 {
		return fmt.Errorf("events.heartbeat_interval must be a positive duration")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be within [0, 2]")
	}
	return nil
}
