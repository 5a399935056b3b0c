// Package gate provides a bounded-admission primitive limiting how many
// sessions may be in flight at once.
//
// Invariants:
// - The number of held slots never exceeds the configured maximum.
// - Waiters are admitted in FIFO order.
// - Release without a matching Acquire is reported, never applied.
//
// Usage:
//
//	g := gate.New(5)
//	if err := g.Acquire(ctx); err != nil {
//		return err
//	}
//	defer g.Release()
package gate
