package messaging

import (
	"context"
	"log/slog"
	"sync"
)

// DryRunMessage is one message accepted by DryRunService.
type DryRunMessage struct {
	To   string
	Body string
}

// DryRunService logs messages instead of delivering them. It is the default backend so a
// fresh server can exercise bulk sends without WhatsApp credentials.
type DryRunService struct {
	guard stopGuard
	mu    sync.Mutex
	sent  []DryRunMessage
}

var _ Service = (*DryRunService)(nil)

func NewDryRunService() *DryRunService {
	return &DryRunService{}
}

func (s *DryRunService) Name() string {
	return BackendDryRun
}

func (s *DryRunService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone("DryRunService", recipient)
}

func (s *DryRunService) SendMessage(ctx context.Context, to string, body string) error {
	if err := s.guard.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, DryRunMessage{To: to, Body: body})
	s.mu.Unlock()
	slog.Info("DryRunService.SendMessage: message not delivered (dry run)", "to", to, "body", body)
	return nil
}

// Sent returns a copy of every accepted message.
func (s *DryRunService) Sent() []DryRunMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DryRunMessage(nil), s.sent...)
}

func (s *DryRunService) Stop() error {
	s.guard.stop()
	return nil
}
