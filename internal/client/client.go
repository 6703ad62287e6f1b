// Package client is the Go client of the PromptPanel admin API.
//
// A Client resolves its base URL once, when it is built, from PANEL_API_URL or the
// persisted environment toggle, so one session never talks to two backends. The bearer
// token lives in the preferences file; a 401 from the server clears it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/prefs"
)

// Base URL settings
const (
	// DefaultProductionURL is used for the production environment when PANEL_API_URL_PRODUCTION is unset.
	DefaultProductionURL = "https://api.promptpanel.app"
	// DefaultLocalURL is used for the local environment when PANEL_API_URL_LOCAL is unset.
	DefaultLocalURL = "http://localhost:8080"
	// DefaultTimeout bounds every request made with the default HTTP client.
	DefaultTimeout = 30 * time.Second
	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 8 << 20
)

var (
	// ErrUnauthorized is wrapped by every 401 APIError. The stored token is already cleared.
	ErrUnauthorized = errors.New("not signed in or session expired")
	// ErrNotFound is wrapped by every 404 APIError.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict is wrapped by every 409 APIError.
	ErrConflict = errors.New("resource conflict")
	// ErrConfigInUse is returned by DeleteStateMachineConfig when a business still uses the configuration.
	ErrConfigInUse = errors.New("state machine configuration is used by a business")
)

// APIError is a non-2xx answer from the panel API.
type APIError struct {
	StatusCode int
	Message    string
	// Details holds the per-field violations of a rejected state-machine configuration.
	Details []string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("panel API returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("panel API returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers test the common statuses with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return nil
	}
}

// ResolveBaseURL picks the API base URL. PANEL_API_URL wins; otherwise env selects
// PANEL_API_URL_PRODUCTION or PANEL_API_URL_LOCAL, falling back to the built-in defaults.
// An empty env falls back to PANEL_API_ENV and then to production.
func ResolveBaseURL(getenv func(string) string, env prefs.Environment) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if u := strings.TrimSpace(getenv("PANEL_API_URL")); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	if env == "" {
		env = prefs.Environment(strings.TrimSpace(getenv("PANEL_API_ENV")))
	}
	if env == prefs.EnvLocal {
		if u := strings.TrimSpace(getenv("PANEL_API_URL_LOCAL")); u != "" {
			return strings.TrimSuffix(u, "/")
		}
		return DefaultLocalURL
	}
	if u := strings.TrimSpace(getenv("PANEL_API_URL_PRODUCTION")); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	return DefaultProductionURL
}

// Opts holds configuration options for the Client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
	CacheDir   string
	Getenv     func(string) string
}

// Option defines a configuration option for the Client.
type Option func(*Opts)

// WithBaseURL pins the base URL and skips environment resolution.
func WithBaseURL(u string) Option {
	return func(o *Opts) {
		o.BaseURL = u
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Opts) {
		if hc != nil {
			o.HTTPClient = hc
		}
	}
}

// WithCacheDir sets where the legacy state-machine cache is kept. Defaults to the preferences directory.
func WithCacheDir(dir string) Option {
	return func(o *Opts) {
		o.CacheDir = dir
	}
}

// WithGetenv replaces os.Getenv during base URL resolution, for tests.
func WithGetenv(getenv func(string) string) Option {
	return func(o *Opts) {
		o.Getenv = getenv
	}
}

// Client talks to one panel API base URL for its whole lifetime.
type Client struct {
	baseURL  string
	http     *http.Client
	prefs    *prefs.Store
	cacheDir string
}

// New builds a Client. The base URL is resolved here and never changes afterwards;
// toggling the environment only affects Clients built later.
func New(p *prefs.Store, opts ...Option) (*Client, error) {
	if p == nil {
		return nil, fmt.Errorf("preferences store is required")
	}
	cfg := Opts{
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		Getenv:     os.Getenv,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		stored, err := p.Load()
		if err != nil {
			return nil, err
		}
		baseURL = ResolveBaseURL(cfg.Getenv, stored.Environment)
	}
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Dir(p.Path())
	}
	slog.Debug("Client.New: client configured", "base_url", baseURL)
	return &Client{baseURL: baseURL, http: cfg.HTTPClient, prefs: p, cacheDir: cacheDir}, nil
}

// BaseURL returns the URL this client was pinned to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope mirrors models.APIResponse with a raw result.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// do sends one JSON request and decodes the envelope result into out when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send attaches the stored token, executes req and interprets the envelope.
func (c *Client) send(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	token, err := c.prefs.Token()
	if err != nil {
		slog.Warn("Client.send: could not read stored token", "error", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", req.Method, req.URL.Path, err)
	}
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: env.Message}
		if decodeErr != nil || env.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		if len(env.Result) > 0 {
			_ = json.Unmarshal(env.Result, &apiErr.Details)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.forceLogout()
		}
		slog.Debug("Client.send: API error", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
		return apiErr
	}

	if decodeErr != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.URL.Path, decodeErr)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s %s result: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func (c *Client) forceLogout() {
	if err := c.prefs.ClearToken(); err != nil {
		slog.Error("Client.forceLogout: failed to clear stored token", "error", err)
		return
	}
	slog.Info("Client.forceLogout: session rejected by server, signed out")
}

// Login signs in and stores the token for later requests.
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/panel-admin/auth", models.AuthRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	if err := c.prefs.SetSession(resp.Token, resp.Admin.Email); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return &resp, nil
}

// Logout forgets the stored token.
func (c *Client) Logout() error {
	return c.prefs.ClearToken()
}

// Health checks that the API answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
