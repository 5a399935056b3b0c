package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToQuery derives the context for one query of a run. The trace
// and run IDs are inherited; session and attempt are reset.
func PropagateToQuery(ctx context.Context, queryID string) context.Context {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = NewTraceID()
	}

	newCtx := WithTraceID(ctx, traceID)
	newCtx = WithQueryID(newCtx, queryID)
	newCtx = WithSessionID(newCtx, "")
	newCtx = WithAttempt(newCtx, 0)
	return newCtx
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RunID != "" {
		logger = logger.With().Str("run_id", tc.RunID).Logger()
	}
	if tc.QueryID != "" {
		logger = logger.With().Str("query_id", tc.QueryID).Logger()
	}
	if tc.SessionID != "" {
		logger = logger.With().Str("session_id", tc.SessionID).Logger()
	}
	if tc.Attempt > 0 {
		logger = logger.With().Int("attempt", tc.Attempt).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext merges tracing information from source context into target context.
// Values already present in target win. A queue poll uses it to start its own
// trace only when the caller has none.
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.RunID != "" && GetRunID(target) == "" {
		target = WithRunID(target, tc.RunID)
	}
	if tc.QueryID != "" && GetQueryID(target) == "" {
		target = WithQueryID(target, tc.QueryID)
	}
	if tc.SessionID != "" && GetSessionID(target) == "" {
		target = WithSessionID(target, tc.SessionID)
	}

	return target
}
