package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/harun/portalcheck/pkg/batch"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// readTableJS collects the two-cell rows of the result table into a map.
const readTableJS = `(selector) => {
  const data = {};
  document.querySelectorAll(selector).forEach((row) => {
    const cells = row.querySelectorAll('td');
    if (cells.length >= 2) {
      data[cells[0].innerText.trim()] = cells[1].innerText.trim();
    }
  });
  return data;
}`

// visibleJS returns the first element matching selector that is rendered
// with a non-empty box, or null.
const visibleJS = `(selector) => {
  for (const el of document.querySelectorAll(selector)) {
    const style = window.getComputedStyle(el);
    const rect = el.getBoundingClientRect();
    if (style.visibility !== 'hidden' && style.display !== 'none' && rect.width > 0 && rect.height > 0) {
      return el;
    }
  }
  return null;
}`

// Session is one incognito context with a single page.
type Session struct {
	id     string
	cfg    *Config
	incog  *rod.Browser
	page   *rod.Page
	router *rod.HijackRouter

	closeOnce sync.Once
	closeErr  error
}

func newSession(ctx context.Context, cfg *Config, filter *RequestFilter, browser *rod.Browser) (*Session, error) {
	incog, err := browser.Incognito()
	if err != nil {
		return nil, &PortalError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to create browser context: %v", err),
			Err:     err,
		}
	}

	page, err := incog.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incog.Close()
		return nil, &PortalError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to create page: %v", err),
			Err:     err,
		}
	}

	s := &Session{
		id:    gonanoid.Must(),
		cfg:   cfg,
		incog: incog,
		page:  page,
	}

	if err := s.setup(ctx, filter); err != nil {
		_ = s.Close()
		return nil, err
	}

	log.Debug().Str("session_id", s.id).Str("target_id", string(page.TargetID)).Msg("Session opened")
	return s, nil
}

// setup installs overrides that must exist before the first navigation.
func (s *Session) setup(ctx context.Context, filter *RequestFilter) error {
	p := s.page.Context(ctx)

	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.cfg.UserAgent,
		AcceptLanguage: s.cfg.AcceptLanguage,
	}); err != nil {
		return s.scriptErr("set user agent", err)
	}

	if s.cfg.WindowWidth > 0 && s.cfg.WindowHeight > 0 {
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             s.cfg.WindowWidth,
			Height:            s.cfg.WindowHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			return s.scriptErr("set viewport", err)
		}
	}

	if s.cfg.AcceptLanguage != "" {
		if _, err := p.SetExtraHeaders([]string{"Accept-Language", s.cfg.AcceptLanguage}); err != nil {
			return s.scriptErr("set headers", err)
		}
	}

	if _, err := p.EvalOnNewDocument(fingerprintPatch); err != nil {
		return s.scriptErr("install fingerprint patch", err)
	}

	// The router is bound to the session page, not to ctx.
	router := s.page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if filter.Blocked(h.Request.URL(), h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return s.scriptErr("install request filter", err)
	}
	go router.Run()
	s.router = router

	return nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads the lookup page and waits for the network to settle.
func (s *Session) Navigate(ctx context.Context) error {
	p := s.page.Context(ctx)

	wait := p.WaitRequestIdle(s.cfg.NetworkIdle, nil, nil, nil)
	if err := p.Navigate(s.cfg.URL); err != nil {
		return &PortalError{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("Failed to navigate to %s: %v", s.cfg.URL, err),
			Err:     err,
		}
	}
	if err := p.WaitLoad(); err != nil {
		return &PortalError{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("Page load failed: %v", err),
			Err:     err,
		}
	}
	wait()

	return ctx.Err()
}

// Submit fills the form with q and presses the proceed button.
func (s *Session) Submit(ctx context.Context, q batch.Query) error {
	p := s.page.Context(ctx)
	sel := s.cfg.Selectors

	fields := []struct {
		selector string
		value    string
	}{
		{sel.SubjectIdentifier, q.SubjectIdentifier},
		{sel.BirthDate, q.BirthDate},
		{sel.DocumentExpiryDate, q.DocumentExpiryDate},
	}

	for _, f := range fields {
		if err := s.fill(ctx, p, f.selector, f.value); err != nil {
			return err
		}
	}

	btn, err := p.Element(sel.Proceed)
	if err != nil {
		return s.notFound(sel.Proceed, err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return s.scriptErr("click proceed", err)
	}
	return nil
}

func (s *Session) fill(ctx context.Context, p *rod.Page, selector, value string) error {
	el, err := p.Element(selector)
	if err != nil {
		return s.notFound(selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return s.notFound(selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return s.scriptErr("select "+selector, err)
	}

	// Typed key by key so the input masks see real key events.
	for _, r := range value {
		if r < 0x20 || r > 0x7e {
			err = el.Input(string(r))
		} else {
			err = el.Type(input.Key(r))
		}
		if err != nil {
			return s.scriptErr("type into "+selector, err)
		}
		if err := sleep(ctx, s.cfg.KeystrokeDelay); err != nil {
			return err
		}
	}
	return nil
}

// AwaitOutcome races the success heading against the failure banner. Only a
// visible element settles the race, so a hidden leftover of the other
// signal cannot win it.
func (s *Session) AwaitOutcome(ctx context.Context) (batch.Outcome, error) {
	sel := s.cfg.Selectors
	var outcome batch.Outcome

	_, err := s.page.Context(ctx).Race().
		ElementByJS(rod.Eval(visibleJS, sel.Success)).Handle(func(*rod.Element) error {
			outcome = batch.OutcomeAccepted
			return nil
		}).
		ElementByJS(rod.Eval(visibleJS, sel.Failure)).Handle(func(*rod.Element) error {
			outcome = batch.OutcomeRejected
			return nil
		}).
		Do()
	if err != nil {
		return 0, &PortalError{
			Code:    ErrCodeElementNotFound,
			Message: fmt.Sprintf("No outcome signal: %v", err),
			Err:     err,
		}
	}
	return outcome, nil
}

// RejectionMessage returns the title of the failure banner.
func (s *Session) RejectionMessage(ctx context.Context) (string, error) {
	el, err := s.page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(s.cfg.Selectors.FailureTitle)
	if err != nil {
		return "", s.notFound(s.cfg.Selectors.FailureTitle, err)
	}
	text, err := el.Text()
	if err != nil {
		return "", s.scriptErr("read failure title", err)
	}
	return strings.TrimSpace(text), nil
}

// ReadRecord returns the label/value pairs of the result table.
func (s *Session) ReadRecord(ctx context.Context) (map[string]string, error) {
	res, err := s.page.Context(ctx).Eval(readTableJS, s.cfg.Selectors.ResultRows)
	if err != nil {
		return nil, s.scriptErr("read result table", err)
	}

	raw := make(map[string]string)
	if err := res.Value.Unmarshal(&raw); err != nil {
		return nil, s.scriptErr("decode result table", err)
	}
	return raw, nil
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	img, err := s.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, s.scriptErr("screenshot", err)
	}
	return img, nil
}

// Close stops request interception and disposes the incognito context.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.router != nil {
			if err := s.router.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.incog.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := errors.Join(errs...); err != nil {
			s.closeErr = &PortalError{
				Code:    ErrCodeSessionClosed,
				Message: fmt.Sprintf("Failed to close session %s: %v", s.id, err),
				Err:     err,
			}
		}
		log.Debug().Str("session_id", s.id).Msg("Session closed")
	})
	return s.closeErr
}

func (s *Session) notFound(selector string, err error) error {
	return &PortalError{
		Code:    ErrCodeElementNotFound,
		Message: fmt.Sprintf("Element %s not available: %v", selector, err),
		Details: map[string]interface{}{"selector": selector},
		Err:     err,
	}
}

func (s *Session) scriptErr(step string, err error) error {
	return &PortalError{
		Code:    ErrCodeScriptExecution,
		Message: fmt.Sprintf("Failed to %s: %v", step, err),
		Err:     err,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
