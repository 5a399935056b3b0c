package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestNewRunID(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()

	if id1 == "" {
		t.Error("NewRunID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewRunID returned duplicate IDs")
	}
}

func TestWithQueryID(t *testing.T) {
	ctx := WithQueryID(context.Background(), "q-1")

	if got := GetQueryID(ctx); got != "q-1" {
		t.Errorf("Expected query ID q-1, got %s", got)
	}
}

func TestWithAttempt(t *testing.T) {
	ctx := context.Background()
	if got := GetAttempt(ctx); got != 0 {
		t.Errorf("Expected attempt 0 on empty context, got %d", got)
	}

	ctx = WithAttempt(ctx, 2)
	if got := GetAttempt(ctx); got != 2 {
		t.Errorf("Expected attempt 2, got %d", got)
	}
}

func TestFromContextRoundTrip(t *testing.T) {
	tc := &TraceContext{
		TraceID:   "trace",
		RunID:     "run",
		QueryID:   "query",
		SessionID: "session",
		Attempt:   3,
	}

	got := FromContext(NewContext(context.Background(), tc))

	if *got != *tc {
		t.Errorf("Expected %+v, got %+v", tc, got)
	}
}

func TestNewRunContext(t *testing.T) {
	ctx, runID := NewRunContext(context.Background())

	if runID == "" {
		t.Fatal("NewRunContext returned empty run ID")
	}
	if GetRunID(ctx) != runID {
		t.Errorf("Expected run ID %s in context, got %s", runID, GetRunID(ctx))
	}
	if GetTraceID(ctx) == "" {
		t.Error("NewRunContext did not set a trace ID")
	}

	parent := WithTraceID(context.Background(), "keep-me")
	ctx, _ = NewRunContext(parent)
	if GetTraceID(ctx) != "keep-me" {
		t.Errorf("Expected inherited trace ID, got %s", GetTraceID(ctx))
	}
}
