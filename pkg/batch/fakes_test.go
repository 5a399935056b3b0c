package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// script drives the fake portal for one subject.
type script struct {
	// rejections is the number of attempts answered with the failure
	// signal before accepting. Negative means always rejected.
	rejections int
	// submitErrs is the number of attempts whose Submit fails.
	submitErrs    int
	panicOnSubmit bool
	delay         time.Duration
	message       string
	record        map[string]string
	recordErr     error
	screenshotErr error
}

type fakeLauncher struct {
	engine    *fakeEngine
	launchErr error

	mu       sync.Mutex
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context) (Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return l.engine, nil
}

func (l *fakeLauncher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

type fakeEngine struct {
	mu       sync.Mutex
	scripts  map[string]*script
	attempts map[string]int
	events   []string
	nextID   int
	open     int
	peak     int
	opened   int
	closed   int
	shutdown int
	// openAtShutdown is the number of open sessions seen by Close.
	openAtShutdown int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		scripts:  make(map[string]*script),
		attempts: make(map[string]int),
	}
}

func (e *fakeEngine) script(subject string, s *script) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[subject] = s
}

func (e *fakeEngine) NewSession(ctx context.Context) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.opened++
	e.open++
	if e.open > e.peak {
		e.peak = e.open
	}
	s := &fakeSession{engine: e, id: fmt.Sprintf("s%d", e.nextID)}
	e.events = append(e.events, "open:"+s.id)
	return s, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown++
	e.openAtShutdown = e.open
	return nil
}

func (e *fakeEngine) counts() (opened, closed, peak, shutdown int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened, e.closed, e.peak, e.shutdown
}

func (e *fakeEngine) attemptsFor(subject string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[subject]
}

func (e *fakeEngine) eventLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type fakeSession struct {
	engine  *fakeEngine
	id      string
	subject string
	attempt int
	script  *script
	closed  bool
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Navigate(ctx context.Context) error {
	return ctx.Err()
}

func (s *fakeSession) Submit(ctx context.Context, q Query) error {
	e := s.engine
	e.mu.Lock()
	e.attempts[q.SubjectIdentifier]++
	s.subject = q.SubjectIdentifier
	s.attempt = e.attempts[q.SubjectIdentifier]
	s.script = e.scripts[q.SubjectIdentifier]
	e.events = append(e.events, fmt.Sprintf("submit:%s:%s", s.id, q.SubjectIdentifier))
	e.mu.Unlock()

	if s.script == nil {
		s.script = &script{}
	}
	if s.script.panicOnSubmit {
		panic("boom")
	}
	if s.attempt <= s.script.submitErrs {
		return errors.New("form not ready")
	}
	return nil
}

func (s *fakeSession) AwaitOutcome(ctx context.Context) (Outcome, error) {
	if s.script.delay > 0 {
		select {
		case <-time.After(s.script.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if s.script.rejections < 0 || s.attempt <= s.script.rejections {
		return OutcomeRejected, nil
	}
	return OutcomeAccepted, nil
}

func (s *fakeSession) RejectionMessage(ctx context.Context) (string, error) {
	if s.script.message == "" {
		return "", errors.New("no banner title")
	}
	return fmt.Sprintf("%s (%d)", s.script.message, s.attempt), nil
}

func (s *fakeSession) ReadRecord(ctx context.Context) (map[string]string, error) {
	if s.script.recordErr != nil {
		return nil, s.script.recordErr
	}
	return s.script.record, nil
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	if s.script != nil && s.script.screenshotErr != nil {
		return nil, s.script.screenshotErr
	}
	return []byte("png:" + s.id), nil
}

func (s *fakeSession) Close() error {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.closed {
		return errors.New("session closed twice")
	}
	s.closed = true
	e.open--
	e.closed++
	e.events = append(e.events, "close:"+s.id)
	return nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RetryDelay = time.Millisecond
	opts.StepTimeout = 2 * time.Second
	return opts
}

func validQuery(subject string) Query {
	return Query{
		SubjectIdentifier:  subject,
		BirthDate:          "01/02/1980",
		DocumentExpiryDate: "10/10/2030",
	}
}
