// Package batch runs lookups for a roster of subjects against an external
// self-service portal and streams one Result per Query in completion order.
//
// Invariants:
// - Every submitted Query yields exactly one Result, emitted exactly once.
// - A Session is closed before the gate slot it occupied is released.
// - Open sessions never exceed the configured concurrency.
// - The shared Engine is launched at most once per Run and closed at most
//   once, after the last Result has been emitted.
//
// Usage:
//
//	orch := batch.New(portal.NewLauncher(cfg), batch.DefaultOptions())
//	run := orch.Process(ctx, queries)
//	for res := range run.Results() {
//		_ = res
//	}
//	if err := run.Err(); err != nil {
//		// the engine could not be started
//	}
package batch
