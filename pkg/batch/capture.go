package batch

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/harun/portalcheck/internal/metrics"
	"github.com/harun/portalcheck/internal/tracing"
	"github.com/rs/zerolog/log"
)

// CapturePolicy decides which terminal outcomes get a diagnostic capture.
type CapturePolicy string

const (
	// CaptureAlways captures on success and on failure.
	CaptureAlways CapturePolicy = "always"
	// CaptureOnFailureOnly captures on terminal failures only.
	CaptureOnFailureOnly CapturePolicy = "on-failure-only"
)

// ParseCapturePolicy parses a policy name. The empty string means CaptureAlways.
func ParseCapturePolicy(s string) (CapturePolicy, error) {
	switch CapturePolicy(s) {
	case "", CaptureAlways:
		return CaptureAlways, nil
	case CaptureOnFailureOnly:
		return CaptureOnFailureOnly, nil
	default:
		return "", fmt.Errorf("unknown capture policy %q", s)
	}
}

// Capturer takes best-effort evidence snapshots. It never returns an error.
type Capturer struct {
	policy  CapturePolicy
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewCapturer creates a capturer bounded by timeout per snapshot.
func NewCapturer(policy CapturePolicy, timeout time.Duration, m *metrics.Metrics) *Capturer {
	if policy == "" {
		policy = CaptureAlways
	}
	return &Capturer{policy: policy, timeout: timeout, metrics: m}
}

// Wants reports whether an outcome with the given success flag is captured.
func (c *Capturer) Wants(success bool) bool {
	return !success || c.policy == CaptureAlways
}

// Capture returns the base64 encoded snapshot of s, or nil when it fails.
// It runs even when ctx has been cancelled.
func (c *Capturer) Capture(ctx context.Context, s Session) *string {
	ctx = context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	img, err := c.snapshot(ctx, s)
	if err == nil && len(img) == 0 {
		err = fmt.Errorf("empty snapshot")
	}
	if err != nil {
		c.metrics.Capture("failed")
		logger.Warn().Err(&Error{Kind: KindCapture, Message: "diagnostic capture", Err: err}).Msg("Diagnostic capture failed")
		return nil
	}

	c.metrics.Capture("ok")
	encoded := base64.StdEncoding.EncodeToString(img)
	return &encoded
}

func (c *Capturer) snapshot(ctx context.Context, s Session) (img []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Screenshot(ctx)
}
