package queue

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/harun/portalcheck/pkg/batch"
)

type fakeSQS struct {
	mu         sync.Mutex
	inbox      []types.Message
	receiveErr error
	// sendFail fails SendMessage when the body contains the substring.
	sendFail  string
	deleteErr error

	receives int
	sent     []string
	traces   []string
	deleted  []string
}

func msg(id, body string) types.Message {
	return types.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("rh-" + id),
		Body:          aws.String(body),
	}
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receives++
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	n := int(in.MaxNumberOfMessages)
	if n > len(f.inbox) {
		n = len(f.inbox)
	}
	out := f.inbox[:n]
	f.inbox = f.inbox[n:]
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body := aws.ToString(in.MessageBody)
	if f.sendFail != "" && strings.Contains(body, f.sendFail) {
		return nil, errors.New("send failed")
	}
	f.sent = append(f.sent, body)
	f.traces = append(f.traces, aws.ToString(in.MessageAttributes[TraceAttribute].StringValue))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) traceIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.traces...)
}

func (f *fakeSQS) snapshot() (sent, deleted []string, receives int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), append([]string(nil), f.deleted...), f.receives
}

// portalStub accepts every subject except those starting with "000".
type portalStub struct {
	launchErr error
}

func (p *portalStub) Launch(ctx context.Context) (batch.Engine, error) {
	if p.launchErr != nil {
		return nil, p.launchErr
	}
	return engineStub{}, nil
}

type engineStub struct{}

func (engineStub) NewSession(ctx context.Context) (batch.Session, error) {
	return &sessionStub{}, nil
}

func (engineStub) Close() error { return nil }

type sessionStub struct {
	subject string
}

func (s *sessionStub) ID() string                         { return "stub" }
func (s *sessionStub) Navigate(ctx context.Context) error { return nil }

func (s *sessionStub) Submit(ctx context.Context, q batch.Query) error {
	s.subject = q.SubjectIdentifier
	return nil
}

func (s *sessionStub) AwaitOutcome(ctx context.Context) (batch.Outcome, error) {
	if strings.HasPrefix(s.subject, "000") {
		return batch.OutcomeRejected, nil
	}
	return batch.OutcomeAccepted, nil
}

func (s *sessionStub) RejectionMessage(ctx context.Context) (string, error) {
	return "Condutor não encontrado", nil
}

func (s *sessionStub) ReadRecord(ctx context.Context) (map[string]string, error) {
	return map[string]string{
		"Prazo para realização de novo exame": "15/03/2025",
		"Amostra para novo exame coletada em": "Não há registro",
	}, nil
}

func (s *sessionStub) Screenshot(ctx context.Context) ([]byte, error) { return []byte("png"), nil }
func (s *sessionStub) Close() error                                   { return nil }

func newOrchestrator(l batch.Launcher) *batch.Orchestrator {
	opts := batch.DefaultOptions()
	opts.MaxAttempts = 1
	opts.RetryDelay = 0
	opts.CapturePolicy = batch.CaptureOnFailureOnly
	return batch.New(l, opts)
}

func testConfig() Config {
	return Config{
		RequestQueueURL:  "https://sqs.us-east-1.amazonaws.com/000000000000/requests",
		ResponseQueueURL: "https://sqs.us-east-1.amazonaws.com/000000000000/responses",
		BatchSize:        10,
		WaitTimeSeconds:  0,
	}
}
