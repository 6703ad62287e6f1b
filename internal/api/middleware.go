package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BTreeMap/PromptPanel/internal/auth"
	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/store"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey int

const (
	requestIDKey contextKey = iota
	claimsKey
	adminKey
)

// httpMetrics holds the request collectors exposed at /metrics.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptpanel",
			Name:      "http_requests_total",
			Help:      "Panel API requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptpanel",
			Name:      "http_request_duration_seconds",
			Help:      "Panel API request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// requestID propagates the caller's X-Request-ID or assigns a new one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("Server.logRequests: request served",
			"request_id", requestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

// instrument records request counts and latency keyed by the chi route pattern,
// so path parameters do not explode label cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && s.opts.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects requests without a valid bearer token. The token must still
// belong to a stored admin; role and email come from that record, not from the token,
// so deleting or demoting an admin takes effect before the token expires.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			slog.Warn("Server.requireAdmin: missing bearer token", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Authorization required"))
			return
		}
		claims, err := s.issuer.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, "requireAdmin", err)
			return
		}
		admin, err := s.st.GetPanelAdmin(r.Context(), claims.Subject)
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("Server.requireAdmin: token of a removed admin", "admin", claims.Subject, "jti", claims.ID)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Admin account no longer exists"))
			return
		}
		if err != nil {
			writeError(w, "requireAdmin", err)
			return
		}
		if claims.Role != admin.Role {
			slog.Info("Server.requireAdmin: role changed since token was issued", "admin", admin.ID, "token_role", claims.Role, "role", admin.Role)
		}
		claims.Role = admin.Role
		claims.Email = admin.Email

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, adminKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSuperAdmin must run after requireAdmin.
func requireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin := adminFrom(r.Context())
		if admin == nil || admin.Role != models.AdminRoleSuperAdmin {
			writeError(w, "requireSuperAdmin", forbidden("Only superadmins can manage panel admins"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminFrom returns the stored record of the authenticated admin.
func adminFrom(ctx context.Context) *models.PanelAdmin {
	a, _ := ctx.Value(adminKey).(*models.PanelAdmin)
	return a
}

func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}
