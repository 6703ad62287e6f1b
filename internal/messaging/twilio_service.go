package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/PromptPanel/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio WhatsApp API.
type TwilioService struct {
	client twiliowhatsapp.Sender
	guard  stopGuard
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService wraps a real Twilio client or a MockClient.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

func (s *TwilioService) Name() string {
	return BackendTwilio
}

// ValidateAndCanonicalizeRecipient removes all non-numeric characters and checks the length.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone("TwilioService", recipient)
}

func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if err := s.guard.check(); err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("TwilioService.SendMessage: send failed", "error", err, "to", to)
		return err
	}
	return nil
}

func (s *TwilioService) Stop() error {
	if s.guard.stop() {
		slog.Info("TwilioService.Stop: stopped")
	}
	return nil
}
