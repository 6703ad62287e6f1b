// Package api provides the HTTP server of the PromptPanel admin API.
//
// It exposes the REST resources the panel client edits (businesses, providers, agendas,
// panel admins, state-machine configurations and message templates), the conversation
// session monitor and the bulk message sender.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/PromptPanel/internal/auth"
	"github.com/BTreeMap/PromptPanel/internal/messaging"
	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/sessions"
	"github.com/BTreeMap/PromptPanel/internal/store"
)

// Default server settings
const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds how long in-flight requests may take after Run's context ends.
	DefaultShutdownTimeout = 5 * time.Second
	// DefaultMaxBodyBytes caps request bodies, including bulk CSV uploads.
	DefaultMaxBodyBytes = 4 << 20
	// DefaultBulkTimeout bounds one bulk send request.
	DefaultBulkTimeout = 10 * time.Minute
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr         string
	Location     *time.Location // zone of {date} path segments
	BulkDelay    time.Duration
	BulkTimeout  time.Duration
	MaxBodyBytes int64
	Registry     *prometheus.Registry
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithLocation sets the time zone used to interpret agenda and timeslot dates.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// WithBulkDelay sets the pause between consecutive bulk messages.
func WithBulkDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.BulkDelay = d
	}
}

// WithBulkTimeout bounds a single bulk send.
func WithBulkTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.BulkTimeout = d
	}
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(o *Opts) {
		o.MaxBodyBytes = n
	}
}

// WithRegistry sets the Prometheus registry exposed at /metrics. Tests pass a fresh one.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *Opts) {
		o.Registry = reg
	}
}

// Server holds the dependencies of the panel API.
type Server struct {
	st         store.Store
	sessions   sessions.Store
	msgService messaging.Service
	issuer     *auth.TokenIssuer
	bulk       *messaging.BulkSender
	metrics    *httpMetrics
	registry   *prometheus.Registry
	opts       Opts
	now        func() time.Time
}

// NewServer wires a Server. msgService may be nil, in which case bulk sends are rejected.
func NewServer(st store.Store, sess sessions.Store, msgService messaging.Service, issuer *auth.TokenIssuer, opts ...Option) *Server {
	cfg := Opts{
		Addr:         DefaultAddr,
		Location:     time.UTC,
		BulkTimeout:  DefaultBulkTimeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		st:         st,
		sessions:   sess,
		msgService: msgService,
		issuer:     issuer,
		metrics:    newHTTPMetrics(cfg.Registry),
		registry:   cfg.Registry,
		opts:       cfg,
		now:        time.Now,
	}
	if msgService != nil {
		s.bulk = messaging.NewBulkSender(msgService,
			messaging.WithDelay(cfg.BulkDelay),
			messaging.WithMetrics(messaging.NewBulkMetrics(cfg.Registry)))
	}
	slog.Debug("Server.NewServer: server configured", "addr", cfg.Addr, "location", cfg.Location.String(),
		"messaging", msgService != nil)
	return s
}

// Handler builds the router with every panel route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID, s.logRequests, s.instrument, s.limitBody)

	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Post("/panel-admin/auth", s.authHandler)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)

		r.Get("/panel-admin", s.listAdminsHandler)
		r.Get("/panel-admin/{id}", s.getAdminHandler)
		r.Group(func(r chi.Router) {
			r.Use(requireSuperAdmin)
			r.Post("/panel-admin", s.createAdminHandler)
			r.Put("/panel-admin/{id}", s.updateAdminHandler)
			r.Delete("/panel-admin/{id}", s.deleteAdminHandler)
		})

		r.Route("/business", func(r chi.Router) {
			r.Get("/", s.listBusinessesHandler)
			r.Post("/", s.createBusinessHandler)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getBusinessHandler)
				r.Put("/", s.updateBusinessHandler)
				r.Delete("/", s.deleteBusinessHandler)

				r.Get("/providers", s.listProvidersHandler)
				r.Post("/providers", s.createProviderHandler)
				r.Get("/provider/{providerId}", s.getProviderHandler)
				r.Put("/provider/{providerId}", s.updateProviderHandler)
				r.Delete("/provider/{providerId}", s.deleteProviderHandler)

				r.Get("/provider-instructions", s.getInstructionsHandler)
				r.Put("/provider-instructions", s.updateInstructionsHandler)

				r.Get("/agenda/{providerId}/{date}", s.agendaHandler)
				r.Post("/appointment", s.createAppointmentHandler)
				r.Put("/appointment/{appointmentId}", s.updateAppointmentHandler)
				r.Delete("/appointment/{appointmentId}", s.deleteAppointmentHandler)
				r.Get("/appointment/{providerId}/timeslots/{date}", s.timeslotsHandler)
			})
		})

		// The legacy path serves the same resource as the current one.
		for _, base := range []string{"/state-machine-config", "/state-machine/configurations"} {
			r.Get(base, s.listConfigsHandler)
			r.Post(base, s.createConfigHandler)
			r.Get(base+"/{id}", s.getConfigHandler)
			r.Put(base+"/{id}", s.updateConfigHandler)
			r.Delete(base+"/{id}", s.deleteConfigHandler)
		}

		r.Get("/conversation-sessions", s.listSessionsHandler)
		r.Get("/conversation-sessions/{id}", s.getSessionHandler)
		r.Delete("/conversation-sessions/{id}", s.terminateSessionHandler)

		r.Get("/message-templates", s.listTemplatesHandler)
		r.Post("/message-templates", s.createTemplateHandler)
		r.Delete("/message-templates/{id}", s.deleteTemplateHandler)

		r.Post("/bulk-messages", s.bulkSendHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	})
	return r
}

// Run serves the API until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: panel API listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down", "timeout", DefaultShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Server.Run: graceful shutdown did not complete", "error", err)
			return srv.Close()
		}
		slog.Info("Server.Run: stopped gracefully")
		return nil
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "promptpanel"}))
}
