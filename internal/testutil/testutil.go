// Package testutil boots an in-process panel API for tests of packages that talk to it over HTTP.
package testutil

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PromptPanel/internal/api"
	"github.com/BTreeMap/PromptPanel/internal/auth"
	"github.com/BTreeMap/PromptPanel/internal/messaging"
	"github.com/BTreeMap/PromptPanel/internal/sessions"
	"github.com/BTreeMap/PromptPanel/internal/store"
)

// Credentials of the superadmin every Panel starts with.
const (
	OwnerEmail    = "owner@example.com"
	OwnerPassword = "correct-horse"
	// Secret signs the tokens of every Panel.
	Secret = "testutil-secret-0123456789"
)

// Panel is a running panel API backed by in-memory stores.
type Panel struct {
	URL      string
	Server   *api.Server
	HTTP     *httptest.Server
	Store    *store.InMemoryStore
	Sessions *sessions.InMemoryStore
	DryRun   *messaging.DryRunService
	Issuer   *auth.TokenIssuer
	Registry *prometheus.Registry
}

// NewPanel starts a panel API on a loopback port and stops it when the test ends.
func NewPanel(t *testing.T, opts ...api.Option) *Panel {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(Secret)
	require.NoError(t, err)

	p := &Panel{
		Store:    store.NewInMemoryStore(),
		Sessions: sessions.NewInMemoryStore(),
		DryRun:   messaging.NewDryRunService(),
		Issuer:   issuer,
		Registry: prometheus.NewRegistry(),
	}
	p.Server = api.NewServer(p.Store, p.Sessions, p.DryRun, issuer, append([]api.Option{api.WithRegistry(p.Registry)}, opts...)...)
	require.NoError(t, p.Server.BootstrapAdmin(context.Background(), OwnerEmail, OwnerPassword))

	p.HTTP = httptest.NewServer(p.Server.Handler())
	p.URL = p.HTTP.URL
	t.Cleanup(p.HTTP.Close)
	return p
}

// Close stops the HTTP listener early, e.g. to exercise client fallbacks.
func (p *Panel) Close() {
	p.HTTP.Close()
}
