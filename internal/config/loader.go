package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// PORTALCHECK_BATCH_MAX_CONCURRENCY.
const EnvPrefix = "PORTALCHECK"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file and environment. A missing file
// yields the defaults with environment overrides applied.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := newViper()
	setDefaults(v, DefaultConfig())

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("json")

			// Read config file
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Unmarshal into config struct
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.applyPaths(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("batch", cfg.Batch)
	v.Set("browser", cfg.Browser)
	v.Set("portal", cfg.Portal)
	v.Set("queue", cfg.Queue)
	v.Set("results", cfg.Results)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	// Write config file
	if err := v.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".portalcheck", "portalcheck.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every key so AutomaticEnv can override keys the
// config file does not mention.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("batch.max_concurrency", cfg.Batch.MaxConcurrency)
	v.SetDefault("batch.max_attempts", cfg.Batch.MaxAttempts)
	v.SetDefault("batch.retry_delay_ms", cfg.Batch.RetryDelayMs)
	v.SetDefault("batch.step_timeout_seconds", cfg.Batch.StepTimeoutSeconds)
	v.SetDefault("batch.capture_policy", cfg.Batch.CapturePolicy)

	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.chrome_path", cfg.Browser.ChromePath)
	v.SetDefault("browser.user_data_dir", cfg.Browser.UserDataDir)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("browser.window_width", cfg.Browser.WindowWidth)
	v.SetDefault("browser.window_height", cfg.Browser.WindowHeight)
	v.SetDefault("browser.user_agent", cfg.Browser.UserAgent)

	v.SetDefault("portal.url", cfg.Portal.URL)
	v.SetDefault("portal.accept_language", cfg.Portal.AcceptLanguage)
	v.SetDefault("portal.keystroke_delay_ms", cfg.Portal.KeystrokeDelayMs)
	v.SetDefault("portal.network_idle_ms", cfg.Portal.NetworkIdleMs)
	v.SetDefault("portal.blocked_hosts", cfg.Portal.BlockedHosts)
	v.SetDefault("portal.expired_at_label", cfg.Portal.ExpiredAtLabel)
	v.SetDefault("portal.collection_date_label", cfg.Portal.CollectionDateLabel)
	v.SetDefault("portal.no_record_phrase", cfg.Portal.NoRecordPhrase)

	v.SetDefault("queue.region", cfg.Queue.Region)
	v.SetDefault("queue.endpoint", cfg.Queue.Endpoint)
	v.SetDefault("queue.access_key_id", cfg.Queue.AccessKeyID)
	v.SetDefault("queue.secret_access_key", cfg.Queue.SecretAccessKey)
	v.SetDefault("queue.request_queue_url", cfg.Queue.RequestQueueURL)
	v.SetDefault("queue.response_queue_url", cfg.Queue.ResponseQueueURL)
	v.SetDefault("queue.batch_size", cfg.Queue.BatchSize)
	v.SetDefault("queue.wait_time_seconds", cfg.Queue.WaitTimeSeconds)

	v.SetDefault("results.file", cfg.Results.File)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.redact_patterns", cfg.Logging.RedactPatterns)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", cfg.Tracing.SampleRatio)

	v.SetDefault("data_dir", cfg.DataDir)
}
