package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/portalcheck/internal/config"
	"github.com/harun/portalcheck/internal/logger"
	"github.com/harun/portalcheck/internal/metrics"
	"github.com/harun/portalcheck/internal/tracing"
	"github.com/harun/portalcheck/pkg/batch"
	"github.com/harun/portalcheck/pkg/portal"
	"github.com/spf13/cobra"
)

// app holds the process-wide services a command runs with.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	server  *metrics.Server
	tracing bool
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newApp initializes logging, metrics and tracing from cfg.
func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Redaction: cfg.Logging.Redaction,
		Patterns:  cfg.Logging.RedactPatterns,
		Service:   "portalcheck",
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     lg,
		metrics: metrics.NewMetrics(),
	}

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.NewServer(cfg.Metrics.Addr, a.metrics)
		if err != nil {
			_ = lg.Close()
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		srv.Start()
		a.server = srv
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			lg.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			a.tracing = true
			lg.Info().Msg("Tracing initialized successfully")
		}
	}

	return a, nil
}

// Close stops the services started by newApp.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}
	if a.tracing {
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Failed to shutdown tracing")
		}
	}
	_ = a.log.Close()
}

// orchestrator builds a batch orchestrator backed by the portal launcher.
func (a *app) orchestrator() (*batch.Orchestrator, error) {
	return newOrchestrator(a.cfg, a.metrics)
}

func newOrchestrator(cfg *config.Config, m *metrics.Metrics) (*batch.Orchestrator, error) {
	opts, err := batchOptions(cfg, m)
	if err != nil {
		return nil, err
	}
	return batch.New(portal.NewLauncher(portalConfig(cfg)), opts), nil
}

// portalConfig maps the browser and portal sections onto a portal.Config.
func portalConfig(cfg *config.Config) *portal.Config {
	pc := portal.DefaultConfig()

	if cfg.Portal.URL != "" {
		pc.URL = cfg.Portal.URL
	}
	pc.Headless = cfg.Browser.Headless
	pc.ChromePath = cfg.Browser.ChromePath
	if cfg.Browser.UserDataDir != "" {
		pc.UserDataDir = cfg.Browser.UserDataDir
	}
	pc.NoSandbox = cfg.Browser.NoSandbox
	if cfg.Browser.WindowWidth > 0 && cfg.Browser.WindowHeight > 0 {
		pc.WindowWidth = cfg.Browser.WindowWidth
		pc.WindowHeight = cfg.Browser.WindowHeight
	}
	if cfg.Browser.UserAgent != "" {
		pc.UserAgent = cfg.Browser.UserAgent
	}
	if cfg.Portal.AcceptLanguage != "" {
		pc.AcceptLanguage = cfg.Portal.AcceptLanguage
	}
	if cfg.Portal.KeystrokeDelayMs >= 0 {
		pc.KeystrokeDelay = time.Duration(cfg.Portal.KeystrokeDelayMs) * time.Millisecond
	}
	if cfg.Portal.NetworkIdleMs > 0 {
		pc.NetworkIdle = time.Duration(cfg.Portal.NetworkIdleMs) * time.Millisecond
	}
	if cfg.Portal.BlockedHosts != nil {
		pc.BlockedHosts = cfg.Portal.BlockedHosts
	}

	return pc
}

// batchOptions maps the batch and portal sections onto batch.Options.
func batchOptions(cfg *config.Config, m *metrics.Metrics) (batch.Options, error) {
	policy, err := batch.ParseCapturePolicy(cfg.Batch.CapturePolicy)
	if err != nil {
		return batch.Options{}, err
	}

	fields := batch.DefaultFieldMap()
	if cfg.Portal.ExpiredAtLabel != "" {
		fields.ExpiredAt = cfg.Portal.ExpiredAtLabel
	}
	if cfg.Portal.CollectionDateLabel != "" {
		fields.CollectionDate = cfg.Portal.CollectionDateLabel
	}
	if cfg.Portal.NoRecordPhrase != "" {
		fields.NoRecord = cfg.Portal.NoRecordPhrase
	}

	return batch.Options{
		MaxConcurrency: cfg.Batch.MaxConcurrency,
		MaxAttempts:    cfg.Batch.MaxAttempts,
		RetryDelay:     time.Duration(cfg.Batch.RetryDelayMs) * time.Millisecond,
		StepTimeout:    time.Duration(cfg.Batch.StepTimeoutSeconds) * time.Second,
		CapturePolicy:  policy,
		Fields:         fields,
		Metrics:        m,
	}, nil
}
