package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/PromptPanel/internal/whatsapp"
)

// WhatsAppService implements Service using the whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client whatsapp.Sender
	guard  stopGuard
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	return &WhatsAppService{client: client}
}

func (s *WhatsAppService) Name() string {
	return BackendWhatsApp
}

// ValidateAndCanonicalizeRecipient reduces a phone number to the digits of a WhatsApp JID user.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone("WhatsAppService", recipient)
}

func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if err := s.guard.check(); err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", to)
		return err
	}
	slog.Debug("WhatsAppService.SendMessage: sent", "to", to)
	return nil
}

// Stop disconnects the underlying whatsmeow client when there is one.
func (s *WhatsAppService) Stop() error {
	if !s.guard.stop() {
		return nil
	}
	if c, ok := s.client.(*whatsapp.Client); ok {
		c.Close()
	}
	slog.Info("WhatsAppService.Stop: stopped")
	return nil
}
