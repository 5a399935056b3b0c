package cli

import (
	"context"
	"strings"

	"github.com/harun/portalcheck/pkg/batch"
)

// portalStub accepts every subject except those starting with "000".
type portalStub struct{}

func (portalStub) Launch(ctx context.Context) (batch.Engine, error) { return portalStub{}, nil }
func (portalStub) Close() error                                     { return nil }

func (portalStub) NewSession(ctx context.Context) (batch.Session, error) {
	return &sessionStub{}, nil
}

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
	return map[string]string{"Prazo para realização de novo exame": "15/03/2025"}, nil
}

func (s *sessionStub) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (s *sessionStub) Close() error                                   { return nil }
