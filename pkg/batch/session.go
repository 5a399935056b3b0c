package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/portalcheck/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Outcome is the terminal signal observed after a form submission.
type Outcome int

const (
	// OutcomeAccepted means the success signal appeared first.
	OutcomeAccepted Outcome = iota + 1
	// OutcomeRejected means the failure signal appeared first.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Launcher starts the shared automation engine for one batch.
type Launcher interface {
	Launch(ctx context.Context) (Engine, error)
}

// Engine is the long-lived automation process shared by every session of a batch.
type Engine interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session is an isolated handle to the portal. Implementations must not share
// cookies or storage with other sessions of the same engine.
type Session interface {
	ID() string
	Navigate(ctx context.Context) error
	Submit(ctx context.Context, q Query) error
	AwaitOutcome(ctx context.Context) (Outcome, error)
	RejectionMessage(ctx context.Context) (string, error)
	ReadRecord(ctx context.Context) (map[string]string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// ErrSessionsOpen is returned by Shutdown while leases are still outstanding.
var ErrSessionsOpen = errors.New("batch: engine shutdown with open sessions")

// SessionStats is a snapshot of the session counters of one batch.
type SessionStats struct {
	Opened int
	Closed int
	Open   int
	Peak   int
}

// SessionManager owns the engine lifetime of one batch and hands out leases.
type SessionManager struct {
	launcher Launcher
	metrics  *metrics.Metrics

	startOnce sync.Once
	engine    Engine
	startErr  error

	mu       sync.Mutex
	stats    SessionStats
	shutdown bool

	closeOnce sync.Once
	closeErr  error
}

// NewSessionManager creates a manager. The engine is not started until the
// first Open.
func NewSessionManager(l Launcher, m *metrics.Metrics) *SessionManager {
	return &SessionManager{launcher: l, metrics: m}
}

func (sm *SessionManager) engineFor(ctx context.Context) (Engine, error) {
	sm.startOnce.Do(func() {
		log.Info().Msg("Launching automation engine")
		eng, err := sm.launcher.Launch(ctx)

		sm.mu.Lock()
		defer sm.mu.Unlock()
		if err != nil {
			sm.startErr = &Error{Kind: KindEngine, Message: "engine failed to start", Err: err}
			sm.metrics.EngineFailed()
			log.Error().Err(err).Msg("Automation engine failed to start")
			return
		}
		sm.engine = eng
	})
	return sm.engine, sm.startErr
}

// Open starts the engine if needed and opens one isolated session.
func (sm *SessionManager) Open(ctx context.Context) (*Lease, error) {
	sm.mu.Lock()
	if sm.shutdown {
		sm.mu.Unlock()
		return nil, &Error{Kind: KindEngine, Message: "engine already shut down"}
	}
	sm.mu.Unlock()

	eng, err := sm.engineFor(ctx)
	if err != nil {
		return nil, err
	}

	s, err := eng.NewSession(ctx)
	if err != nil {
		return nil, transient("open session", err)
	}

	sm.mu.Lock()
	sm.stats.Opened++
	sm.stats.Open++
	if sm.stats.Open > sm.stats.Peak {
		sm.stats.Peak = sm.stats.Open
	}
	sm.mu.Unlock()
	sm.metrics.SessionOpened()

	return &Lease{Session: s, manager: sm}, nil
}

func (sm *SessionManager) release() {
	sm.mu.Lock()
	sm.stats.Closed++
	sm.stats.Open--
	sm.mu.Unlock()
	sm.metrics.SessionClosed()
}

// Shutdown closes the engine exactly once. It refuses while any lease is open.
// A manager whose engine never started shuts down without error.
func (sm *SessionManager) Shutdown() error {
	sm.mu.Lock()
	if sm.stats.Open > 0 {
		open := sm.stats.Open
		sm.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrSessionsOpen, open)
	}
	sm.shutdown = true
	sm.mu.Unlock()

	sm.closeOnce.Do(func() {
		// Blocks a late first Open from launching after shutdown.
		sm.startOnce.Do(func() {})
		if sm.engine == nil {
			return
		}
		log.Info().Msg("Closing automation engine")
		sm.closeErr = sm.engine.Close()
	})
	return sm.closeErr
}

// StartErr returns the memoized engine start failure, if any.
func (sm *SessionManager) StartErr() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.startErr
}

// Stats returns a snapshot of the session counters.
func (sm *SessionManager) Stats() SessionStats {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.stats
}

// Lease is an open Session owned by exactly one query. Close is idempotent
// and safe on a nil lease.
type Lease struct {
	Session
	manager *SessionManager

	once sync.Once
	err  error
}

// Close closes the underlying session once and returns its error.
func (l *Lease) Close() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		l.err = l.Session.Close()
		l.manager.release()
		if l.err != nil {
			log.Warn().Err(l.err).Str("session_id", l.ID()).Msg("Session close failed")
		}
	})
	return l.err
}
