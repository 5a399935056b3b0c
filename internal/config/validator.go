package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateCapturePolicy validates the diagnostic capture policy
func (v *Validator) ValidateCapturePolicy(policy string) error {
	if policy == "" {
		return nil // Use default
	}

	validPolicies := []string{"always", "on-failure-only"}
	for _, valid := range validPolicies {
		if policy == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid capture policy: %s (must be one of: %s)", policy, strings.Join(validPolicies, ", "))
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateQueueURL validates an SQS queue URL
func (v *Validator) ValidateQueueURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("queue.%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("queue.%s is not a valid URL: %s", name, raw)
	}
	return nil
}

// ValidatePortalURL validates the lookup page URL
func (v *Validator) ValidatePortalURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("portal.url is not a valid URL: %s", raw)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("portal.url must be http or https, got %s", u.Scheme)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Batch.MaxConcurrency <= 0 {
		errors = append(errors, fmt.Errorf("batch.max_concurrency must be positive, got %d", cfg.Batch.MaxConcurrency))
	}
	if cfg.Batch.MaxAttempts <= 0 {
		errors = append(errors, fmt.Errorf("batch.max_attempts must be positive, got %d", cfg.Batch.MaxAttempts))
	}
	if cfg.Batch.RetryDelayMs < 0 {
		errors = append(errors, fmt.Errorf("batch.retry_delay_ms must be >= 0"))
	}
	if cfg.Batch.StepTimeoutSeconds <= 0 {
		errors = append(errors, fmt.Errorf("batch.step_timeout_seconds must be positive"))
	}
	if err := v.ValidateCapturePolicy(cfg.Batch.CapturePolicy); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidatePortalURL(cfg.Portal.URL); err != nil {
		errors = append(errors, err)
	}
	if cfg.Portal.KeystrokeDelayMs < 0 {
		errors = append(errors, fmt.Errorf("portal.keystroke_delay_ms must be >= 0"))
	}

	if cfg.Queue.BatchSize < 1 || cfg.Queue.BatchSize > 10 {
		errors = append(errors, fmt.Errorf("queue.batch_size must be between 1 and 10, got %d", cfg.Queue.BatchSize))
	}
	if cfg.Queue.WaitTimeSeconds < 0 || cfg.Queue.WaitTimeSeconds > 20 {
		errors = append(errors, fmt.Errorf("queue.wait_time_seconds must be between 0 and 20, got %d", cfg.Queue.WaitTimeSeconds))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	for _, p := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errors = append(errors, fmt.Errorf("logging.redact_patterns: invalid pattern %q: %w", p, err))
		}
	}

	return errors
}
