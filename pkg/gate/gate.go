package gate

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrUnbalancedRelease is returned when Release is called with no slot held.
var ErrUnbalancedRelease = errors.New("gate: release without matching acquire")

// Observer receives the slot counters after every change. It is called with
// the gate's lock held and must not call back into the gate.
type Observer func(inUse, waiting int)

// Gate limits the number of simultaneous holders. Waiters queue in FIFO order.
type Gate struct {
	sem *semaphore.Weighted
	max int64

	mu       sync.Mutex
	held     int64
	waiting  int64
	peak     int64
	observer Observer
}

// New creates a gate with max slots. Values below one are clamped to one.
func New(max int) *Gate {
	if max < 1 {
		max = 1
	}
	return &Gate{
		sem: semaphore.NewWeighted(int64(max)),
		max: int64(max),
	}
}

// SetObserver installs fn, replacing any previous observer, and reports the
// current counters to it.
func (g *Gate) SetObserver(fn Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observer = fn
	g.notify()
}

// notify must be called with mu held.
func (g *Gate) notify() {
	if g.observer != nil {
		g.observer(int(g.held), int(g.waiting))
	}
}

// Acquire occupies a slot, suspending the caller until one is free.
// It only fails when ctx is done before a slot becomes available.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	g.waiting++
	g.notify()
	g.mu.Unlock()

	err := g.sem.Acquire(ctx, 1)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.waiting--
	if err != nil {
		g.notify()
		return err
	}

	g.held++
	if g.held > g.peak {
		g.peak = g.held
	}
	g.notify()
	return nil
}

// Release frees one slot and wakes the oldest waiter, if any.
func (g *Gate) Release() error {
	g.mu.Lock()
	if g.held == 0 {
		g.mu.Unlock()
		return ErrUnbalancedRelease
	}
	g.held--
	g.notify()
	g.mu.Unlock()

	g.sem.Release(1)
	return nil
}

// Max returns the configured number of slots.
func (g *Gate) Max() int {
	return int(g.max)
}

// InUse returns the number of occupied slots.
func (g *Gate) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.held)
}

// Waiting returns the number of callers suspended in Acquire.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.waiting)
}

// Peak returns the highest number of slots ever held at once.
func (g *Gate) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.peak)
}
