package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for the batch run ID
	RunIDKey ContextKey = "run_id"
	// QueryIDKey is the context key for the query identifier
	QueryIDKey ContextKey = "query_id"
	// SessionIDKey is the context key for the portal session ID
	SessionIDKey ContextKey = "session_id"
	// AttemptKey is the context key for the current attempt number
	AttemptKey ContextKey = "attempt"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RunID     string
	QueryID   string
	SessionID string
	Attempt   int
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithQueryID adds a query identifier to the context
func WithQueryID(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, QueryIDKey, queryID)
}

// WithSessionID adds a portal session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithAttempt adds the attempt number to the context
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, AttemptKey, attempt)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetQueryID retrieves the query identifier from the context
func GetQueryID(ctx context.Context) string {
	if queryID, ok := ctx.Value(QueryIDKey).(string); ok {
		return queryID
	}
	return ""
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// GetAttempt retrieves the attempt number, or 0 when unset
func GetAttempt(ctx context.Context) int {
	if attempt, ok := ctx.Value(AttemptKey).(int); ok {
		return attempt
	}
	return 0
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RunID:     GetRunID(ctx),
		QueryID:   GetQueryID(ctx),
		SessionID: GetSessionID(ctx),
		Attempt:   GetAttempt(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RunID != "" {
		ctx = WithRunID(ctx, tc.RunID)
	}
	if tc.QueryID != "" {
		ctx = WithQueryID(ctx, tc.QueryID)
	}
	if tc.SessionID != "" {
		ctx = WithSessionID(ctx, tc.SessionID)
	}
	if tc.Attempt > 0 {
		ctx = WithAttempt(ctx, tc.Attempt)
	}
	return ctx
}

// NewRunContext creates a context for a batch run with a fresh run ID,
// keeping an existing trace ID or minting one.
func NewRunContext(ctx context.Context) (context.Context, string) {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	runID := NewRunID()
	return WithRunID(ctx, runID), runID
}
