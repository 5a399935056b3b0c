package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the main configuration structure
type Config struct {
	// Batch orchestration
	Batch BatchConfig `json:"batch" mapstructure:"batch"`

	// Chrome process
	Browser BrowserConfig `json:"browser" mapstructure:"browser"`

	// Target portal
	Portal PortalConfig `json:"portal" mapstructure:"portal"`

	// SQS transport for the consume command
	Queue QueueConfig `json:"queue" mapstructure:"queue"`

	// Result persistence for the run command
	Results ResultsConfig `json:"results" mapstructure:"results"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// BatchConfig holds the orchestrator settings
type BatchConfig struct {
	MaxConcurrency     int    `json:"max_concurrency" mapstructure:"max_concurrency"`
	MaxAttempts        int    `json:"max_attempts" mapstructure:"max_attempts"`
	RetryDelayMs       int    `json:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	StepTimeoutSeconds int    `json:"step_timeout_seconds" mapstructure:"step_timeout_seconds"`
	CapturePolicy      string `json:"capture_policy" mapstructure:"capture_policy"` // always, on-failure-only
}

// BrowserConfig holds Chrome launch settings
type BrowserConfig struct {
	Headless     bool   `json:"headless" mapstructure:"headless"`
	ChromePath   string `json:"chrome_path" mapstructure:"chrome_path"`
	UserDataDir  string `json:"user_data_dir" mapstructure:"user_data_dir"`
	NoSandbox    bool   `json:"no_sandbox" mapstructure:"no_sandbox"`
	WindowWidth  int    `json:"window_width" mapstructure:"window_width"`
	WindowHeight int    `json:"window_height" mapstructure:"window_height"`
	UserAgent    string `json:"user_agent" mapstructure:"user_agent"`
}

// PortalConfig holds the lookup page settings
type PortalConfig struct {
	URL              string   `json:"url" mapstructure:"url"`
	AcceptLanguage   string   `json:"accept_language" mapstructure:"accept_language"`
	KeystrokeDelayMs int      `json:"keystroke_delay_ms" mapstructure:"keystroke_delay_ms"`
	NetworkIdleMs    int      `json:"network_idle_ms" mapstructure:"network_idle_ms"`
	BlockedHosts     []string `json:"blocked_hosts" mapstructure:"blocked_hosts"`

	// Result table labels
	ExpiredAtLabel      string `json:"expired_at_label" mapstructure:"expired_at_label"`
	CollectionDateLabel string `json:"collection_date_label" mapstructure:"collection_date_label"`
	NoRecordPhrase      string `json:"no_record_phrase" mapstructure:"no_record_phrase"`
}

// QueueConfig holds SQS settings
type QueueConfig struct {
	Region           string `json:"region" mapstructure:"region"`
	Endpoint         string `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID      string `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey  string `json:"secret_access_key" mapstructure:"secret_access_key"`
	RequestQueueURL  string `json:"request_queue_url" mapstructure:"request_queue_url"`
	ResponseQueueURL string `json:"response_queue_url" mapstructure:"response_queue_url"`
	BatchSize        int    `json:"batch_size" mapstructure:"batch_size"`               // 1-10
	WaitTimeSeconds  int    `json:"wait_time_seconds" mapstructure:"wait_time_seconds"` // 0-20
}

// ResultsConfig holds result file settings
type ResultsConfig struct {
	File string `json:"file" mapstructure:"file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	// RedactPatterns are extra regular expressions masked in log output.
	RedactPatterns []string `json:"redact_patterns,omitempty" mapstructure:"redact_patterns"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"` // empty disables the endpoint
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"` // 0-1
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Batch: BatchConfig{
			MaxConcurrency:     5,
			MaxAttempts:        3,
			RetryDelayMs:       500,
			StepTimeoutSeconds: 60,
			CapturePolicy:      "always",
		},
		Browser: BrowserConfig{
			Headless:     false,
			NoSandbox:    true,
			WindowWidth:  1920,
			WindowHeight: 1080,
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Portal: PortalConfig{
			URL:                 "https://portalservicos.senatran.serpro.gov.br/#/condutor/consultar-toxicologico",
			AcceptLanguage:      "pt-BR,pt;q=0.9",
			KeystrokeDelayMs:    120,
			NetworkIdleMs:       500,
			BlockedHosts:        []string{"googlesyndication", "doubleclick", "analytics"},
			ExpiredAtLabel:      "Prazo para realização de novo exame",
			CollectionDateLabel: "Amostra para novo exame coletada em",
			NoRecordPhrase:      "Não há registro",
		},
		Queue: QueueConfig{
			Region:          "us-east-1",
			BatchSize:       10,
			WaitTimeSeconds: 20,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "portalcheck",
			SampleRatio: 1,
		},
	}
}

// applyPaths fills the path defaults derived from DataDir.
func (c *Config) applyPaths() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".portalcheck")
	}
	if c.Browser.UserDataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.Browser.UserDataDir = filepath.Join(home, ".chrome_senatran_profile")
	}
	if c.Results.File == "" {
		c.Results.File = filepath.Join(c.DataDir, "results.json")
	}
	return nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateQueue checks the settings the consume command needs.
func (c *Config) ValidateQueue() error {
	if err := c.Validate(); err != nil {
		return err
	}
	v := NewValidator()
	if err := v.ValidateQueueURL("request_queue_url", c.Queue.RequestQueueURL); err != nil {
		return err
	}
	if err := v.ValidateQueueURL("response_queue_url", c.Queue.ResponseQueueURL); err != nil {
		return err
	}
	if c.Queue.Region == "" {
		return fmt.Errorf("queue.region is required")
	}
	return nil
}
