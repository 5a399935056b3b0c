package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/harun/portalcheck/internal/metrics"
	"github.com/harun/portalcheck/internal/tracing"
	"github.com/harun/portalcheck/pkg/batch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	acceptedBody = `{"id":"q1","subject_identifier":"12345678901","birth_date":"01/02/1980","document_expiry_date":"10/10/2030"}`
	rejectedBody = `{"id":"q2","subject_identifier":"00000000000","birth_date":"01/02/1980","document_expiry_date":"10/10/2030"}`
	legacyBody   = `{"cpf":"98765432100","birthday":"05/06/1975","cnh_due_at":"01/01/2029"}`
)

func decodeResults(t *testing.T, bodies []string) map[string]batch.Result {
	t.Helper()
	out := make(map[string]batch.Result, len(bodies))
	for _, b := range bodies {
		var r batch.Result
		require.NoError(t, json.Unmarshal([]byte(b), &r))
		out[r.Payload.Identifier] = r
	}
	return out
}

func TestNewConsumerValidation(t *testing.T) {
	orch := newOrchestrator(&portalStub{})

	_, err := NewConsumer(nil, orch, testConfig(), nil)
	assert.Error(t, err)

	_, err = NewConsumer(&fakeSQS{}, nil, testConfig(), nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.ResponseQueueURL = ""
	_, err = NewConsumer(&fakeSQS{}, orch, cfg, nil)
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{BatchSize: 50, WaitTimeSeconds: -1}.withDefaults()
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 20, cfg.WaitTimeSeconds)
	assert.Equal(t, time.Second, cfg.PollBackoff)
}

func TestPollRelaysAndDeletes(t *testing.T) {
	api := &fakeSQS{inbox: []types.Message{
		msg("m1", acceptedBody),
		msg("m2", rejectedBody),
		msg("m3", legacyBody),
	}}
	m := metrics.NewMetrics()
	c, err := NewConsumer(api, newOrchestrator(&portalStub{}), testConfig(), m)
	require.NoError(t, err)

	stats, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollStats{Received: 3, Relayed: 3}, stats)

	sent, deleted, _ := api.snapshot()
	assert.ElementsMatch(t, []string{"rh-m1", "rh-m2", "rh-m3"}, deleted)

	results := decodeResults(t, sent)
	require.Len(t, results, 3)

	ok := results["q1"]
	assert.True(t, ok.Result.Success)
	require.NotNil(t, ok.Result.ExpiredAt)
	assert.Equal(t, "2025-03-15 00:00:00.000", *ok.Result.ExpiredAt)
	assert.Nil(t, ok.Result.CollectionDate)

	rejected := results["q2"]
	assert.False(t, rejected.Result.Success)
	require.NotNil(t, rejected.Result.Error)
	assert.Equal(t, "Condutor não encontrado", *rejected.Result.Error)

	legacy, found := results["m3"]
	require.True(t, found, "message id should stand in for a missing identifier")
	assert.Equal(t, "98765432100", legacy.Payload.SubjectIdentifier)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueMessages.WithLabelValues(ActionDeleted)))
}

func TestPollLeavesMalformedMessages(t *testing.T) {
	api := &fakeSQS{inbox: []types.Message{
		msg("m1", "not json"),
		msg("m2", `{"subject_identifier": 12345678901}`),
		msg("m3", acceptedBody),
	}}
	m := metrics.NewMetrics()
	c, err := NewConsumer(api, newOrchestrator(&portalStub{}), testConfig(), m)
	require.NoError(t, err)

	stats, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Malformed)
	assert.Equal(t, 1, stats.Relayed)

	_, deleted, _ := api.snapshot()
	assert.Equal(t, []string{"rh-m3"}, deleted)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueMessages.WithLabelValues(ActionReceived)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueueMessages.WithLabelValues(ActionMalformed)))
}

func TestPollRelaysValidationFailures(t *testing.T) {
	api := &fakeSQS{inbox: []types.Message{
		msg("m1", `{"id":"q1","subject_identifier":"12345678901"}`),
	}}
	c, err := NewConsumer(api, newOrchestrator(&portalStub{}), testConfig(), nil)
	require.NoError(t, err)

	stats, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Relayed)

	sent, deleted, _ := api.snapshot()
	assert.Equal(t, []string{"rh-m1"}, deleted)
	res := decodeResults(t, sent)["q1"]
	require.NotNil(t, res.Result.Error)
	assert.Contains(t, *res.Result.Error, "birth_date")
}

func TestPollKeepsMessageWhenRelayFails(t *testing.T) {
	api := &fakeSQS{
		inbox:    []types.Message{msg("m1", acceptedBody), msg("m2", rejectedBody)},
		sendFail: `"id":"q1"`,
	}
	c, err := NewConsumer(api, newOrchestrator(&portalStub{}), testConfig(), nil)
	require.NoError(t, err)

	stats, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Relayed)
	assert.Equal(t, 1, stats.Requeued)

	_, deleted, _ := api.snapshot()
	assert.Equal(t, []string{"rh-m2"}, deleted)
}

func TestPollEngineFailureRequeues(t *testing.T) {
	api := &fakeSQS{inbox: []types.Message{msg("m1", acceptedBody)}}
	m := metrics.NewMetrics()
	c, err := NewConsumer(api, newOrchestrator(&portalStub{launchErr: errors.New("no chrome")}), testConfig(), m)
	require.NoError(t, err)

	stats, err := c.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no chrome")
	assert.Equal(t, 1, stats.Requeued)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueMessages.WithLabelValues(ActionRequeued)))

	sent, deleted, _ := api.snapshot()
	assert.Empty(t, sent)
	assert.Empty(t, deleted)
}

func TestPollEmptyQueue(t *testing.T) {
	api := &fakeSQS{}
	c, err := NewConsumer(api, newOrchestrator(&portalStub{}), testConfig(), nil)
	require.NoError(t, err)

	stats, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollStats{}, stats)
}

func TestPollReceiveError(t *testing.T) {
	api := &fakeSQS{receiveErr: errors.New("throttled")}
	c, err := NewConsumer(api, newOrchestrator(&portalStub{}), testConfig(), nil)
	require.NoError(t, err)

	_, err = c.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestRunStopsOnCancel(t *testing.T) {
	api := &fakeSQS{receiveErr: errors.New("throttled")}
	cfg := testConfig()
	cfg.PollBackoff = 10 * time.Millisecond
	c, err := NewConsumer(api, newOrchestrator(&portalStub{}), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	_, _, receives := api.snapshot()
	assert.Greater(t, receives, 1, "poll errors should not stop the loop")
}

func TestPollSettlesDuplicateIdentifiersByMessage(t *testing.T) {
	dupAccepted := `{"id":"dup","subject_identifier":"12345678901","birth_date":"01/02/1980","document_expiry_date":"10/10/2030"}`
	dupRejected := `{"id":"dup","subject_identifier":"00000000000","birth_date":"01/02/1980","document_expiry_date":"10/10/2030"}`
	api := &fakeSQS{
		inbox:    []types.Message{msg("m1", dupAccepted), msg("m2", dupRejected)},
		sendFail: "00000000000",
	}
	c, err := NewConsumer(api, newOrchestrator(&portalStub{}), testConfig(), nil)
	require.NoError(t, err)

	stats, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Relayed)
	assert.Equal(t, 1, stats.Requeued)

	sent, deleted, _ := api.snapshot()
	require.Len(t, sent, 1)
	var res batch.Result
	require.NoError(t, json.Unmarshal([]byte(sent[0]), &res))
	assert.Equal(t, "dup", res.Payload.Identifier)
	assert.True(t, res.Result.Success)
	assert.Equal(t, []string{"rh-m1"}, deleted)
}

func TestPollTagsResultsWithTraceID(t *testing.T) {
	t.Run("fresh trace per poll", func(t *testing.T) {
		api := &fakeSQS{inbox: []types.Message{msg("m1", acceptedBody), msg("m2", rejectedBody)}}
		c, err := NewConsumer(api, newOrchestrator(&portalStub{}), testConfig(), nil)
		require.NoError(t, err)

		_, err = c.Poll(context.Background())
		require.NoError(t, err)

		traces := api.traceIDs()
		require.Len(t, traces, 2)
		assert.NotEmpty(t, traces[0])
		assert.Equal(t, traces[0], traces[1])
	})

	t.Run("caller trace is kept", func(t *testing.T) {
		api := &fakeSQS{inbox: []types.Message{msg("m1", acceptedBody)}}
		c, err := NewConsumer(api, newOrchestrator(&portalStub{}), testConfig(), nil)
		require.NoError(t, err)

		_, err = c.Poll(tracing.WithTraceID(context.Background(), "trace-upstream"))
		require.NoError(t, err)
		assert.Equal(t, []string{"trace-upstream"}, api.traceIDs())
	})
}
