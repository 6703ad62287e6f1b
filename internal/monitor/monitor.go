// Package monitor polls the panel API for live conversation sessions.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

// DefaultInterval is how often active sessions are polled when no interval is set.
const DefaultInterval = 5 * time.Second

// SessionLister is the part of the panel client the monitor needs.
type SessionLister interface {
	ListSessions(ctx context.Context, activeOnly bool) ([]models.ConversationSession, error)
}

// Snapshot is the result of one poll. Err is set when the poll failed; Sessions is then nil.
type Snapshot struct {
	At       time.Time
	Sessions []models.ConversationSession
	Err      error
}

// Handler receives every snapshot in poll order.
type Handler func(Snapshot)

// Opts holds configuration options for the Monitor.
type Opts struct {
	Interval   time.Duration
	ActiveOnly bool
}

// Option defines a configuration option for the Monitor.
type Option func(*Opts)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.Interval = d
		}
	}
}

// WithAllSessions includes terminated sessions in every snapshot.
func WithAllSessions() Option {
	return func(o *Opts) {
		o.ActiveOnly = false
	}
}

// Monitor polls sessions on a fixed interval. Polls never overlap: the next tick is
// only consumed after the handler of the previous poll returned.
type Monitor struct {
	lister  SessionLister
	handler Handler
	opts    Opts
	now     func() time.Time
}

// New creates a Monitor that hands every snapshot to handler.
func New(lister SessionLister, handler Handler, opts ...Option) *Monitor {
	cfg := Opts{Interval: DefaultInterval, ActiveOnly: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Monitor{lister: lister, handler: handler, opts: cfg, now: time.Now}
}

// Run polls once immediately and then on every tick. It blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("Monitor.Run: starting session monitor", "interval", m.opts.Interval, "active_only", m.opts.ActiveOnly)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Monitor.Run: stopping")
			return ctx.Err()
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	sessions, err := m.lister.ListSessions(ctx, m.opts.ActiveOnly)
	if ctx.Err() != nil {
		return
	}
	snap := Snapshot{At: m.now(), Sessions: sessions, Err: err}
	if err != nil {
		slog.Warn("Monitor.poll: listing sessions failed", "error", err)
		snap.Sessions = nil
	} else {
		slog.Debug("Monitor.poll: sessions listed", "count", len(sessions))
	}
	if m.handler != nil {
		m.handler(snap)
	}
}
