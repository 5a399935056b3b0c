package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/harun/portalcheck/internal/metrics"
	"github.com/harun/portalcheck/internal/tracing"
	"github.com/harun/portalcheck/pkg/batch"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Message actions recorded in metrics.
const (
	ActionReceived     = "received"
	ActionMalformed    = "malformed"
	ActionRelayed      = "relayed"
	ActionRelayFailed  = "relay_failed"
	ActionDeleted      = "deleted"
	ActionDeleteFailed = "delete_failed"
	ActionRequeued     = "requeued"
)

const (
	defaultPollBackoff  = time.Second
	maxReceiveBatchSize = 10
	maxWaitTimeSeconds  = 20
)

// Processor runs a batch of queries. *batch.Orchestrator satisfies it.
type Processor interface {
	Process(ctx context.Context, queries []batch.Query) *batch.Run
}

// Config names the queues and the polling parameters.
type Config struct {
	RequestQueueURL  string
	ResponseQueueURL string
	BatchSize        int
	WaitTimeSeconds  int
	// PollBackoff is the pause after a failed receive.
	PollBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize < 1 || c.BatchSize > maxReceiveBatchSize {
		c.BatchSize = maxReceiveBatchSize
	}
	if c.WaitTimeSeconds < 0 || c.WaitTimeSeconds > maxWaitTimeSeconds {
		c.WaitTimeSeconds = maxWaitTimeSeconds
	}
	if c.PollBackoff <= 0 {
		c.PollBackoff = defaultPollBackoff
	}
	return c
}

// PollStats counts what happened to the messages of one poll.
type PollStats struct {
	Received  int
	Malformed int
	Relayed   int
	Requeued  int
}

// Consumer moves queries from the request queue through a Processor to the
// response queue.
type Consumer struct {
	api     API
	proc    Processor
	cfg     Config
	metrics *metrics.Metrics
	schema  *gojsonschema.Schema
}

// NewConsumer creates a consumer. m may be nil.
func NewConsumer(api API, proc Processor, cfg Config, m *metrics.Metrics) (*Consumer, error) {
	if api == nil {
		return nil, errors.New("queue: nil SQS client")
	}
	if proc == nil {
		return nil, errors.New("queue: nil processor")
	}
	if cfg.RequestQueueURL == "" || cfg.ResponseQueueURL == "" {
		return nil, errors.New("queue: request and response queue URLs are required")
	}

	schema, err := compileRequestSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schema: %w", err)
	}

	return &Consumer{
		api:     api,
		proc:    proc,
		cfg:     cfg.withDefaults(),
		metrics: m,
		schema:  schema,
	}, nil
}

// Run polls until ctx is cancelled. Each poll is processed as its own batch.
func (c *Consumer) Run(ctx context.Context) error {
	log.Info().
		Str("request_queue", c.cfg.RequestQueueURL).
		Str("response_queue", c.cfg.ResponseQueueURL).
		Int("batch_size", c.cfg.BatchSize).
		Msg("Queue consumer started")

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Queue consumer stopped")
			return nil
		}

		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("Queue poll failed")
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.PollBackoff):
			}
		}
	}
}

// TraceAttribute is the message attribute carrying the poll's trace id on
// relayed results.
const TraceAttribute = "trace_id"

// inflight is a decoded request waiting for its result.
type inflight struct {
	handle     string
	identifier string
}

// Poll receives one batch of messages, processes it and relays the results.
// Queries are correlated by their message id, so requests sharing an
// identifier are still settled against their own receipt handle.
func (c *Consumer) Poll(ctx context.Context) (PollStats, error) {
	var stats PollStats

	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.cfg.RequestQueueURL),
		MaxNumberOfMessages: int32(c.cfg.BatchSize),
		WaitTimeSeconds:     int32(c.cfg.WaitTimeSeconds),
	})
	if err != nil {
		return stats, fmt.Errorf("failed to receive messages: %w", err)
	}
	if len(out.Messages) == 0 {
		return stats, nil
	}

	pending := make(map[string]inflight, len(out.Messages))
	queries := make([]batch.Query, 0, len(out.Messages))
	for i, msg := range out.Messages {
		stats.Received++
		c.metrics.QueueMessage(ActionReceived)

		q, err := c.decode(msg)
		if err != nil {
			stats.Malformed++
			c.metrics.QueueMessage(ActionMalformed)
			log.Warn().Err(err).Str("message_id", aws.ToString(msg.MessageId)).Msg("Malformed queue message left on queue")
			continue
		}

		token := aws.ToString(msg.MessageId)
		if _, dup := pending[token]; token == "" || dup {
			token = fmt.Sprintf("%s#%d", token, i)
		}
		pending[token] = inflight{handle: aws.ToString(msg.ReceiptHandle), identifier: q.Identifier}
		q.Identifier = token
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return stats, nil
	}

	// A poll is its own trace unless the caller already started one.
	ctx = tracing.MergeContext(ctx, tracing.WithTraceID(context.Background(), tracing.NewTraceID()))

	run := c.proc.Process(ctx, queries)
	for res := range run.Results() {
		req, ok := pending[res.Payload.Identifier]
		if !ok {
			log.Error().Str("message_id", res.Payload.Identifier).Msg("Result has no matching queue message")
			continue
		}
		delete(pending, res.Payload.Identifier)
		res.Payload.Identifier = req.identifier

		if c.settle(ctx, res, req.handle) {
			stats.Relayed++
		} else {
			stats.Requeued++
		}
	}

	if err := run.Err(); err != nil {
		return stats, fmt.Errorf("batch %s failed: %w", run.ID, err)
	}
	return stats, nil
}

// decode checks the body shape and returns the query. An empty identifier
// is replaced by the message id.
func (c *Consumer) decode(msg types.Message) (batch.Query, error) {
	body := aws.ToString(msg.Body)
	if err := checkBody(c.schema, body); err != nil {
		return batch.Query{}, err
	}

	var q batch.Query
	if err := json.Unmarshal([]byte(body), &q); err != nil {
		return batch.Query{}, fmt.Errorf("failed to decode query: %w", err)
	}
	if q.Identifier == "" {
		q.Identifier = aws.ToString(msg.MessageId)
	}
	return q, nil
}

// settle relays res and deletes the request message. It reports whether the
// message was consumed. Results of a failed engine or a cancelled poll are
// not relayed, leaving the message for redelivery.
func (c *Consumer) settle(ctx context.Context, res batch.Result, handle string) bool {
	logger := log.With().Str("query_id", res.Payload.Identifier).Logger()

	if ctx.Err() != nil || res.Kind == batch.KindEngine {
		c.metrics.QueueMessage(ActionRequeued)
		logger.Warn().Str("kind", string(res.Kind)).Msg("Result not relayed, message left for redelivery")
		return false
	}

	body, err := json.Marshal(res)
	if err != nil {
		c.metrics.QueueMessage(ActionRelayFailed)
		logger.Error().Err(err).Msg("Failed to encode result")
		return false
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.cfg.ResponseQueueURL),
		MessageBody: aws.String(string(body)),
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		in.MessageAttributes = map[string]types.MessageAttributeValue{
			TraceAttribute: {DataType: aws.String("String"), StringValue: aws.String(traceID)},
		}
	}
	if _, err := c.api.SendMessage(ctx, in); err != nil {
		c.metrics.QueueMessage(ActionRelayFailed)
		logger.Error().Err(err).Msg("Failed to relay result")
		return false
	}
	c.metrics.QueueMessage(ActionRelayed)

	if _, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.cfg.RequestQueueURL),
		ReceiptHandle: aws.String(handle),
	}); err != nil {
		c.metrics.QueueMessage(ActionDeleteFailed)
		logger.Error().Err(err).Msg("Failed to delete relayed message")
		return true
	}
	c.metrics.QueueMessage(ActionDeleted)

	logger.Debug().Str("status", res.Status()).Msg("Result relayed")
	return true
}
