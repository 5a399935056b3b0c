package portal

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/harun/portalcheck/pkg/batch"
	"github.com/rs/zerolog/log"
)

// Launcher starts Chrome processes configured by Config.
type Launcher struct {
	cfg *Config
}

// NewLauncher creates a launcher. A nil cfg means DefaultConfig.
func NewLauncher(cfg *Config) *Launcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Launcher{cfg: cfg}
}

// Launch spawns Chrome and connects to it over CDP. The process outlives ctx;
// it ends with Engine.Close.
func (pl *Launcher) Launch(ctx context.Context) (batch.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Ensure user data directory exists
	if pl.cfg.UserDataDir != "" {
		if err := os.MkdirAll(pl.cfg.UserDataDir, 0755); err != nil {
			return nil, &PortalError{
				Code:    ErrCodeConfiguration,
				Message: fmt.Sprintf("Failed to create user data directory: %v", err),
				Err:     err,
			}
		}
	}

	l := buildLauncher(pl.cfg)

	url, err := l.Launch()
	if err != nil {
		return nil, &PortalError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to launch Chrome: %v", err),
			Err:     err,
		}
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, &PortalError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to connect to CDP: %v", err),
			Err:     err,
		}
	}

	log.Info().
		Bool("headless", pl.cfg.Headless).
		Str("user_data_dir", pl.cfg.UserDataDir).
		Msg("Chrome started")

	return &Engine{
		cfg:      pl.cfg,
		filter:   NewRequestFilter(pl.cfg.BlockedHosts),
		browser:  browser,
		launcher: l,
	}, nil
}

// buildLauncher translates cfg into Chrome flags.
func buildLauncher(cfg *Config) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}

	// Set custom Chrome path if specified
	if cfg.ChromePath != "" {
		l = l.Bin(cfg.ChromePath)
	}

	if cfg.NoSandbox {
		l = l.Set("disable-setuid-sandbox")
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		l = l.Set("window-size", strconv.Itoa(cfg.WindowWidth)+","+strconv.Itoa(cfg.WindowHeight))
	}

	return l.
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars")
}

// Engine is one running Chrome process shared by many sessions.
type Engine struct {
	cfg      *Config
	filter   *RequestFilter
	browser  *rod.Browser
	launcher *launcher.Launcher

	closeOnce sync.Once
	closeErr  error
}

// NewSession opens a page in a fresh incognito context.
func (e *Engine) NewSession(ctx context.Context) (batch.Session, error) {
	s, err := newSession(ctx, e.cfg, e.filter, e.browser)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close shuts Chrome down. The process is killed if the CDP close fails.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if err := e.browser.Close(); err != nil {
			e.closeErr = &PortalError{
				Code:    ErrCodeBrowserCrash,
				Message: fmt.Sprintf("Failed to close Chrome: %v", err),
				Err:     err,
			}
		}
		e.launcher.Kill()
		log.Info().Msg("Chrome stopped")
	})
	return e.closeErr
}
