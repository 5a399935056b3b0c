package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/portalcheck/internal/tracing"
	"github.com/harun/portalcheck/pkg/gate"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/harun/portalcheck/pkg/batch"

// unknownRejection is reported when the failure banner carries no readable text.
const unknownRejection = "unknown error"

// State is a step of the per-query state machine.
type State int

const (
	StateValidating State = iota
	StateNavigating
	StateSubmitting
	StateAwaitingOutcome
	StateExtractingData
	StateRetryableFailure
	StateTerminalFailure
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateNavigating:
		return "navigating"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingOutcome:
		return "awaiting_outcome"
	case StateExtractingData:
		return "extracting_data"
	case StateRetryableFailure:
		return "retryable_failure"
	case StateTerminalFailure:
		return "terminal_failure"
	case StateSuccess:
		return "success"
	default:
		return "unknown"
	}
}

type verdict int

const (
	verdictSuccess verdict = iota
	verdictRetry
	verdictFail
)

func (v verdict) String() string {
	switch v {
	case verdictSuccess:
		return "success"
	case verdictRetry:
		return "retry"
	default:
		return "fail"
	}
}

// attemptOutcome is the folded result of one attempt. lease is still open
// when returned and is closed by the caller.
type attemptOutcome struct {
	verdict verdict
	lease   *Lease
	record  Record
	err     error
}

// Executor drives the retry state machine for single queries.
type Executor struct {
	sessions *SessionManager
	gate     *gate.Gate
	capturer *Capturer
	opts     Options
}

// NewExecutor creates an executor. g may be nil for unbounded admission.
func NewExecutor(sessions *SessionManager, g *gate.Gate, opts Options) *Executor {
	opts = opts.withDefaults()
	return &Executor{
		sessions: sessions,
		gate:     g,
		capturer: NewCapturer(opts.CapturePolicy, opts.StepTimeout, opts.Metrics),
		opts:     opts,
	}
}

// Execute runs q to a terminal Result. It never panics and never returns
// without closing the sessions it opened.
func (e *Executor) Execute(ctx context.Context, q Query) Result {
	start := time.Now()
	ctx = tracing.PropagateToQuery(ctx, q.Identifier)
	ctx, span := tracing.StartSpan(ctx, tracerName, "batch.query")
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().Stringer("state", StateValidating).Msg("Query admitted")

	res := e.execute(ctx, q)
	res.Duration = time.Since(start)

	if res.Result.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, string(res.Kind))
	}
	span.SetAttributes(attribute.Int("query.attempts", res.Attempts))
	e.opts.Metrics.QuerySettled(res.Status(), string(res.Kind), res.Duration)

	event := logger.Info()
	if !res.Result.Success {
		event = logger.Warn().Str("kind", string(res.Kind)).Str("error", deref(res.Result.Error))
	}
	event.Int("attempts", res.Attempts).
		Dur("duration", res.Duration).
		Str("status", res.Status()).
		Msg("Query settled")

	return res
}

func (e *Executor) execute(ctx context.Context, q Query) Result {
	if err := q.Validate(); err != nil {
		return failedResult(q, err)
	}

	if e.gate != nil {
		if err := e.gate.Acquire(ctx); err != nil {
			return failedResult(q, transient("waiting for a session slot", err))
		}
		// Runs after settle has closed the session.
		defer func() {
			if err := e.gate.Release(); err != nil {
				log.Error().Err(err).Str("query_id", q.Identifier).Msg("Gate release failed")
			}
		}()
	}

	return e.runAttempts(ctx, q)
}

func (e *Executor) runAttempts(ctx context.Context, q Query) Result {
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	var out attemptOutcome
	attempt := 1
	for ; ; attempt++ {
		out = e.attempt(tracing.WithAttempt(ctx, attempt), q)
		e.opts.Metrics.Attempt(out.verdict.String())

		if out.verdict != verdictRetry || attempt >= e.opts.MaxAttempts {
			break
		}

		logger.Info().
			Int("attempt", attempt).
			Int("max_attempts", e.opts.MaxAttempts).
			Stringer("state", StateRetryableFailure).
			Err(out.err).
			Msg("Attempt failed, retrying")

		_ = out.lease.Close()
		out.lease = nil

		if err := sleep(ctx, e.opts.RetryDelay); err != nil {
			out = attemptOutcome{verdict: verdictFail, err: transient("retry delay", err)}
			break
		}
	}

	return e.settle(ctx, q, out, attempt)
}

// settle is the single terminal hook: capture per policy, then close.
func (e *Executor) settle(ctx context.Context, q Query, out attemptOutcome, attempts int) Result {
	defer out.lease.Close()

	res := Result{Payload: q, Attempts: attempts}
	if out.verdict == verdictSuccess {
		res.Result = out.record
		res.Result.Success = true
	} else {
		if out.err == nil {
			out.err = &Error{Kind: KindTransient, Message: "attempt failed without an error"}
		}
		msg := out.err.Error()
		res.Result = Record{Error: &msg}
		res.Kind = KindOf(out.err)
	}

	if out.lease != nil && e.capturer.Wants(res.Result.Success) {
		res.Result.CapturedImageBase64 = e.capturer.Capture(ctx, out.lease)
	}
	return res
}

func (e *Executor) attempt(ctx context.Context, q Query) (out attemptOutcome) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "batch.attempt")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			out.verdict = verdictRetry
			out.err = &Error{Kind: KindTransient, Message: fmt.Sprintf("panic: %v", r)}
		}
		if out.err != nil {
			span.RecordError(out.err)
		}
	}()

	lease, err := e.sessions.Open(ctx)
	if err != nil {
		return e.failure(ctx, err)
	}
	out.lease = lease
	ctx = tracing.WithSessionID(ctx, lease.ID())
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	enter := func(s State) {
		span.AddEvent(s.String())
		logger.Debug().Stringer("state", s).Msg("State transition")
	}

	enter(StateNavigating)
	if err := e.step(ctx, "navigate", lease.Navigate); err != nil {
		return e.failed(ctx, out, err)
	}

	enter(StateSubmitting)
	if err := e.step(ctx, "submit", func(sctx context.Context) error {
		return lease.Submit(sctx, q)
	}); err != nil {
		return e.failed(ctx, out, err)
	}

	enter(StateAwaitingOutcome)
	var outcome Outcome
	if err := e.step(ctx, "await outcome", func(sctx context.Context) error {
		var err error
		outcome, err = lease.AwaitOutcome(sctx)
		return err
	}); err != nil {
		return e.failed(ctx, out, err)
	}

	if outcome != OutcomeAccepted {
		msg := e.rejectionMessage(ctx, lease)
		out.err = &Error{Kind: KindRemoteRejection, Message: msg}
		out.verdict = verdictRetry
		return out
	}

	enter(StateExtractingData)
	var raw map[string]string
	if err := e.step(ctx, "read record", func(sctx context.Context) error {
		var err error
		raw, err = lease.ReadRecord(sctx)
		return err
	}); err != nil {
		// The outcome is already known; an unreadable table only loses the dates.
		logger.Warn().Err(err).Msg("Result table could not be read")
		raw = nil
	}
	e.opts.Fields.Apply(raw, &out.record)
	out.verdict = verdictSuccess
	return out
}

func (e *Executor) rejectionMessage(ctx context.Context, s Session) string {
	var msg string
	err := e.step(ctx, "rejection message", func(sctx context.Context) error {
		var err error
		msg, err = s.RejectionMessage(sctx)
		return err
	})
	msg = strings.TrimSpace(msg)
	if err != nil || msg == "" {
		return unknownRejection
	}
	return msg
}

func (e *Executor) step(ctx context.Context, name string, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, e.opts.StepTimeout)
	defer cancel()
	if err := fn(sctx); err != nil {
		return transient(name, err)
	}
	return nil
}

func (e *Executor) failed(ctx context.Context, out attemptOutcome, err error) attemptOutcome {
	f := e.failure(ctx, err)
	f.lease = out.lease
	return f
}

// failure classifies err. Engine failures and a finished parent context end
// the query; everything else retryable is retried.
func (e *Executor) failure(ctx context.Context, err error) attemptOutcome {
	out := attemptOutcome{verdict: verdictFail, err: err}
	if ctx.Err() != nil {
		return out
	}
	if IsRetryable(err) && !errors.Is(err, context.Canceled) {
		out.verdict = verdictRetry
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
