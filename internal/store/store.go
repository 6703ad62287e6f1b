// Package store provides storage backends for PromptPanel.
//
// It includes an in-memory store for tests and development plus SQLite and PostgreSQL
// backends that share one database/sql implementation.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique field (e.g. admin email) is already taken.
	ErrDuplicate = errors.New("record already exists")
	// ErrConfigInUse is returned when deleting a state-machine configuration that a business references.
	ErrConfigInUse = errors.New("state machine configuration is used by a business")
	// ErrUnknownReference is returned when a record points at a parent that does not exist.
	ErrUnknownReference = errors.New("referenced record does not exist")
)

// Store is the persistence contract of the panel API.
type Store interface {
	ListBusinesses(ctx context.Context) ([]models.Business, error)
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	SaveBusiness(ctx context.Context, b models.Business) error
	DeleteBusiness(ctx context.Context, id string) error

	ListProviders(ctx context.Context, businessID string) ([]models.Provider, error)
	GetProvider(ctx context.Context, businessID, id string) (*models.Provider, error)
	SaveProvider(ctx context.Context, p models.Provider) error
	DeleteProvider(ctx context.Context, businessID, id string) error

	ListPanelAdmins(ctx context.Context) ([]models.PanelAdmin, error)
	GetPanelAdmin(ctx context.Context, id string) (*models.PanelAdmin, error)
	GetPanelAdminByEmail(ctx context.Context, email string) (*models.PanelAdmin, error)
	SavePanelAdmin(ctx context.Context, a models.PanelAdmin) error
	DeletePanelAdmin(ctx context.Context, id string) error

	// ListAppointments returns a provider's appointments starting in [from, to).
	ListAppointments(ctx context.Context, businessID, providerID string, from, to time.Time) ([]models.Appointment, error)
	GetAppointment(ctx context.Context, businessID, id string) (*models.Appointment, error)
	SaveAppointment(ctx context.Context, a models.Appointment) error
	DeleteAppointment(ctx context.Context, businessID, id string) error

	ListStateMachineConfigs(ctx context.Context) ([]models.StateMachineConfig, error)
	GetStateMachineConfig(ctx context.Context, id string) (*models.StateMachineConfig, error)
	SaveStateMachineConfig(ctx context.Context, c models.StateMachineConfig) error
	// DeleteStateMachineConfig fails with ErrConfigInUse while any business references the configuration.
	DeleteStateMachineConfig(ctx context.Context, id string) error

	ListTemplates(ctx context.Context) ([]models.MessageTemplate, error)
	GetTemplate(ctx context.Context, id string) (*models.MessageTemplate, error)
	SaveTemplate(ctx context.Context, t models.MessageTemplate) error
	DeleteTemplate(ctx context.Context, id string) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open builds the backend matching the DSN; an empty DSN yields an in-memory store.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		slog.Warn("store.Open: no DSN configured, using in-memory store; data will not survive restarts")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		slog.Debug("store.Open: detected PostgreSQL DSN", "dsn_type", "postgresql")
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	slog.Debug("store.Open: detected SQLite DSN", "dsn_type", "sqlite", "db_path", dsn)
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}
