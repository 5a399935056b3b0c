package cli

import (
	"context"
	"sync"

	"github.com/harun/portalcheck/internal/config"
	"github.com/harun/portalcheck/pkg/batch"
	"github.com/rs/zerolog/log"
)

// buildFunc creates the orchestrator for one configuration.
type buildFunc func(cfg *config.Config) (*batch.Orchestrator, error)

// liveOrchestrator hands every batch to the orchestrator built from the
// latest configuration. A batch already running keeps the orchestrator it
// started with.
type liveOrchestrator struct {
	build buildFunc

	mu         sync.RWMutex
	current    *batch.Orchestrator
	generation int
}

func newLiveOrchestrator(cfg *config.Config, build buildFunc) (*liveOrchestrator, error) {
	orch, err := build(cfg)
	if err != nil {
		return nil, err
	}
	return &liveOrchestrator{build: build, current: orch}, nil
}

// Process runs queries on the current orchestrator.
func (l *liveOrchestrator) Process(ctx context.Context, queries []batch.Query) *batch.Run {
	l.mu.RLock()
	orch := l.current
	l.mu.RUnlock()
	return orch.Process(ctx, queries)
}

// apply rebuilds the orchestrator from cfg. A failed build keeps the
// previous one.
func (l *liveOrchestrator) apply(cfg *config.Config) {
	orch, err := l.build(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to apply reloaded config, keeping previous settings")
		return
	}

	l.mu.Lock()
	l.current = orch
	l.generation++
	gen := l.generation
	l.mu.Unlock()

	log.Info().
		Int("generation", gen).
		Int("max_concurrency", cfg.Batch.MaxConcurrency).
		Int("max_attempts", cfg.Batch.MaxAttempts).
		Str("capture_policy", cfg.Batch.CapturePolicy).
		Msg("Batch settings reloaded, next batch uses them")
}

// Generation counts the configurations applied since start.
func (l *liveOrchestrator) Generation() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.generation
}
