// Package resultlog appends batch results to a JSON array file.
//
// Every append rewrites the whole file through a temp file and rename, so a
// crash never leaves a half-written array behind. A missing file, or one
// that does not hold a JSON array, is treated as empty.
package resultlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/harun/portalcheck/internal/metrics"
	"github.com/harun/portalcheck/pkg/batch"
	"github.com/natefinch/atomic"
	"github.com/rs/zerolog/log"
)

// Log is a JSON array file of results. It is safe for concurrent use
// within one process.
type Log struct {
	path    string
	metrics *metrics.Metrics
	mu      sync.Mutex
}

// New returns a Log backed by path. m may be nil.
func New(path string, m *metrics.Metrics) *Log {
	return &Log{path: path, metrics: m}
}

// Path returns the file path.
func (l *Log) Path() string {
	return l.path
}

// Append adds results to the end of the array.
func (l *Log) Append(results ...batch.Result) error {
	if len(results) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readRaw()
	if err != nil {
		return err
	}

	for _, r := range results {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		entries = append(entries, raw)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	if err := atomic.WriteFile(l.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	for range results {
		l.metrics.ResultWritten()
	}
	return nil
}

// Load returns every result stored in the file.
func (l *Log) Load() ([]batch.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readRaw()
	if err != nil {
		return nil, err
	}

	results := make([]batch.Result, 0, len(entries))
	for i, raw := range entries {
		var r batch.Result
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode result %d: %w", i, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// readRaw reads the current array, starting a new one when the file is
// missing or corrupt.
func (l *Log) readRaw() ([]json.RawMessage, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn().Err(err).Str("path", l.path).Msg("Results file is not a JSON array, starting a new one")
		return nil, nil
	}
	return entries, nil
}
