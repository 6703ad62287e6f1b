// Package messaging delivers PromptPanel bulk messages over WhatsApp.
//
// A Service validates recipients in its own way and sends plain text. BulkSender drives
// a Service over the rows of a recipients CSV.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
)

// Backend names accepted by MESSAGING_BACKEND.
const (
	BackendWhatsApp = "whatsapp"
	BackendTwilio   = "twilio"
	BackendDryRun   = "dryrun"
)

const (
	// MinPhoneDigits is the shortest canonical phone number accepted.
	MinPhoneDigits = 6
	// MaxPhoneDigits is the E.164 maximum.
	MaxPhoneDigits = 15
)

var (
	// ErrServiceStopped is returned by SendMessage after Stop.
	ErrServiceStopped = errors.New("messaging service stopped")
	// ErrInvalidRecipient wraps every recipient validation failure.
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// phoneNumberRegex matches every character that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a canonical recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Stop makes later sends fail with ErrServiceStopped and releases the backend.
	Stop() error
}

// canonicalizePhone strips formatting and checks the digit count.
func canonicalizePhone(service, recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient cannot be empty", ErrInvalidRecipient)
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("%w: no digits found in %q", ErrInvalidRecipient, recipient)
	}
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("%w: %q is too short (minimum %d digits required)", ErrInvalidRecipient, canonical, MinPhoneDigits)
	}
	if len(canonical) > MaxPhoneDigits {
		return "", fmt.Errorf("%w: %q is too long (maximum %d digits allowed)", ErrInvalidRecipient, canonical, MaxPhoneDigits)
	}
	if canonical != recipient {
		slog.Debug(service+" canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// stopGuard is the shared stopped flag of every Service implementation.
type stopGuard struct {
	mu      sync.RWMutex
	stopped bool
}

func (g *stopGuard) check() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.stopped {
		return ErrServiceStopped
	}
	return nil
}

// stop reports whether this call did the stopping.
func (g *stopGuard) stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.stopped = true
	return true
}
