package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 3, cfg.Batch.MaxAttempts)
	assert.Equal(t, 500, cfg.Batch.RetryDelayMs)
	assert.Equal(t, 60, cfg.Batch.StepTimeoutSeconds)
	assert.Equal(t, "always", cfg.Batch.CapturePolicy)
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.NoSandbox)
	assert.Equal(t, 120, cfg.Portal.KeystrokeDelayMs)
	assert.Equal(t, "Não há registro", cfg.Portal.NoRecordPhrase)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, 20, cfg.Queue.WaitTimeSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("non-positive concurrency", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Batch.MaxConcurrency = 0

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_concurrency")
	})

	t.Run("non-positive attempts", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Batch.MaxAttempts = -1

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_attempts")
	})

	t.Run("unknown capture policy", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Batch.CapturePolicy = "sometimes"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "capture policy")
	})

	t.Run("bad redaction pattern", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logging.RedactPatterns = []string{`RENACH-\d+`, `(unclosed`}

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redact_patterns")
	})

	t.Run("bad portal url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Portal.URL = "ftp://example.com"

		assert.Error(t, cfg.Validate())
	})
}

func TestConfigValidateQueue(t *testing.T) {
	t.Run("missing queue urls", func(t *testing.T) {
		cfg := DefaultConfig()

		err := cfg.ValidateQueue()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "request_queue_url")
	})

	t.Run("valid queue", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Queue.RequestQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/requests"
		cfg.Queue.ResponseQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/responses"

		assert.NoError(t, cfg.ValidateQueue())
	})

	t.Run("batch size out of range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Queue.RequestQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/requests"
		cfg.Queue.ResponseQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/responses"
		cfg.Queue.BatchSize = 11

		err := cfg.ValidateQueue()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch_size")
	})
}
