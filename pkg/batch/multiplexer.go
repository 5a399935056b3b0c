package batch

import (
	"errors"
	"sync/atomic"
)

// ErrMultiplexerFull is returned by Submit after the expected number of
// results has already been received.
var ErrMultiplexerFull = errors.New("batch: more results than queries")

// Multiplexer fans in the results of N concurrent executions and yields them
// in the order they were submitted, which is the order they settled.
type Multiplexer struct {
	n   int
	in  chan Result
	out chan Result

	submitted atomic.Int64
	emitted   atomic.Int64
}

// NewMultiplexer creates a multiplexer expecting exactly n results.
func NewMultiplexer(n int) *Multiplexer {
	if n < 0 {
		n = 0
	}
	return &Multiplexer{
		n:   n,
		in:  make(chan Result, n),
		out: make(chan Result),
	}
}

// Submit hands over a settled result. It never blocks.
func (m *Multiplexer) Submit(r Result) error {
	if m.submitted.Add(1) > int64(m.n) {
		return ErrMultiplexerFull
	}
	m.in <- r
	return nil
}

// Results is the completion-ordered output. It is closed after n results.
func (m *Multiplexer) Results() <-chan Result {
	return m.out
}

// Stream forwards exactly n results, then runs onDrained and closes the
// output. The consumer must drain Results for Stream to return.
func (m *Multiplexer) Stream(onDrained func()) {
	for i := 0; i < m.n; i++ {
		m.out <- <-m.in
		m.emitted.Add(1)
	}
	if onDrained != nil {
		onDrained()
	}
	close(m.out)
}

// Emitted returns the number of results handed to the consumer so far.
func (m *Multiplexer) Emitted() int {
	return int(m.emitted.Load())
}

// Expected returns n.
func (m *Multiplexer) Expected() int {
	return m.n
}
