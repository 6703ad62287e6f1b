package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

// sqlStore implements Store on database/sql. Queries are written with '?' placeholders
// and rebound to '$n' for PostgreSQL.
type sqlStore struct {
	db           *sql.DB
	name         string // "SQLiteStore" or "PostgresStore", used in log messages
	numbered     bool
	isUnique     func(error) bool
	isForeignKey func(error) bool
}

func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// mapWriteErr translates driver constraint errors into store errors.
func (s *sqlStore) mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case s.isUnique != nil && s.isUnique(err):
		return ErrDuplicate
	case s.isForeignKey != nil && s.isForeignKey(err):
		return ErrUnknownReference
	default:
		return err
	}
}

func (s *sqlStore) execAffecting(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return s.mapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing database connection", "store", s.name)
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close database", "store", s.name, "error", err)
	} else {
		slog.Debug("Database connection closed successfully", "store", s.name)
	}
	return err
}

const businessColumns = `id, name, phone, email, address, state_machine_id, provider_instructions, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBusiness(row rowScanner) (models.Business, error) {
	var b models.Business
	var smID sql.NullString
	err := row.Scan(&b.ID, &b.Name, &b.Phone, &b.Email, &b.Address, &smID, &b.ProviderInstructions, &b.CreatedAt, &b.UpdatedAt)
	b.StateMachineID = smID.String
	return b, err
}

func (s *sqlStore) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+businessColumns+` FROM businesses ORDER BY name`)
	if err != nil {
		slog.Error(s.name+" ListBusinesses query failed", "error", err)
		return nil, fmt.Errorf("failed to query businesses: %w", err)
	}
	defer rows.Close()

	out := []models.Business{}
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate business rows: %w", err)
	}
	slog.Debug(s.name+" ListBusinesses succeeded", "count", len(out))
	return out, nil
}

func (s *sqlStore) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	b, err := scanBusiness(s.db.QueryRowContext(ctx, s.q(`SELECT `+businessColumns+` FROM businesses WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error(s.name+" GetBusiness failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get business %s: %w", id, err)
	}
	return &b, nil
}

func (s *sqlStore) SaveBusiness(ctx context.Context, b models.Business) error {
	query := `
		INSERT INTO businesses (` + businessColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, phone = excluded.phone, email = excluded.email,
			address = excluded.address, state_machine_id = excluded.state_machine_id,
			provider_instructions = excluded.provider_instructions, updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, s.q(query), b.ID, b.Name, b.Phone, b.Email, b.Address,
		nullableRef(b.StateMachineID), b.ProviderInstructions, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		slog.Error(s.name+" SaveBusiness failed", "error", err, "id", b.ID)
		return s.mapWriteErr(err)
	}
	slog.Debug(s.name+" SaveBusiness succeeded", "id", b.ID)
	return nil
}

// DeleteBusiness relies on ON DELETE CASCADE for providers and appointments.
func (s *sqlStore) DeleteBusiness(ctx context.Context, id string) error {
	return s.execAffecting(ctx, `DELETE FROM businesses WHERE id = ?`, id)
}

const providerColumns = `id, business_id, name, specialty, phone, working_hours, created_at, updated_at`

func scanProvider(row rowScanner) (models.Provider, error) {
	var p models.Provider
	var hoursJSON string
	if err := row.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Specialty, &p.Phone, &hoursJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	if hoursJSON != "" {
		if err := json.Unmarshal([]byte(hoursJSON), &p.WorkingHours); err != nil {
			return p, fmt.Errorf("failed to decode working hours of provider %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func (s *sqlStore) ListProviders(ctx context.Context, businessID string) ([]models.Provider, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+providerColumns+` FROM providers WHERE business_id = ? ORDER BY name`), businessID)
	if err != nil {
		slog.Error(s.name+" ListProviders query failed", "error", err, "business", businessID)
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	out := []models.Provider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetProvider(ctx context.Context, businessID, id string) (*models.Provider, error) {
	p, err := scanProvider(s.db.QueryRowContext(ctx, s.q(`SELECT `+providerColumns+` FROM providers WHERE business_id = ? AND id = ?`), businessID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider %s: %w", id, err)
	}
	return &p, nil
}

func (s *sqlStore) SaveProvider(ctx context.Context, p models.Provider) error {
	hours, err := json.Marshal(p.WorkingHours)
	if err != nil {
		return fmt.Errorf("failed to encode working hours: %w", err)
	}
	query := `
		INSERT INTO providers (` + providerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, specialty = excluded.specialty, phone = excluded.phone,
			working_hours = excluded.working_hours, updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, s.q(query), p.ID, p.BusinessID, p.Name, p.Specialty, p.Phone,
		string(hours), p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		slog.Error(s.name+" SaveProvider failed", "error", err, "id", p.ID)
		return s.mapWriteErr(err)
	}
	return nil
}

func (s *sqlStore) DeleteProvider(ctx context.Context, businessID, id string) error {
	return s.execAffecting(ctx, `DELETE FROM providers WHERE business_id = ? AND id = ?`, businessID, id)
}

const adminColumns = `id, name, email, role, password_hash, created_at, updated_at`

func scanAdmin(row rowScanner) (models.PanelAdmin, error) {
	var a models.PanelAdmin
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *sqlStore) ListPanelAdmins(ctx context.Context) ([]models.PanelAdmin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+adminColumns+` FROM panel_admins ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to query panel admins: %w", err)
	}
	defer rows.Close()

	out := []models.PanelAdmin{}
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan panel admin row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqlStore) getAdmin(ctx context.Context, where string, arg string) (*models.PanelAdmin, error) {
	a, err := scanAdmin(s.db.QueryRowContext(ctx, s.q(`SELECT `+adminColumns+` FROM panel_admins WHERE `+where), arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get panel admin: %w", err)
	}
	return &a, nil
}

func (s *sqlStore) GetPanelAdmin(ctx context.Context, id string) (*models.PanelAdmin, error) {
	return s.getAdmin(ctx, `id = ?`, id)
}

func (s *sqlStore) GetPanelAdminByEmail(ctx context.Context, email string) (*models.PanelAdmin, error) {
	return s.getAdmin(ctx, `email = ?`, strings.ToLower(email))
}

func (s *sqlStore) SavePanelAdmin(ctx context.Context, a models.PanelAdmin) error {
	query := `
		INSERT INTO panel_admins (` + adminColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, email = excluded.email, role = excluded.role,
			password_hash = excluded.password_hash, updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, s.q(query), a.ID, a.Name, strings.ToLower(a.Email), a.Role,
		a.PasswordHash, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		slog.Warn(s.name+" SavePanelAdmin failed", "error", err, "id", a.ID)
		return s.mapWriteErr(err)
	}
	return nil
}

func (s *sqlStore) DeletePanelAdmin(ctx context.Context, id string) error {
	return s.execAffecting(ctx, `DELETE FROM panel_admins WHERE id = ?`, id)
}

const appointmentColumns = `id, business_id, provider_id, customer_name, customer_phone, start_at, end_at, status, notes, created_at, updated_at`

func scanAppointment(row rowScanner) (models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(&a.ID, &a.BusinessID, &a.ProviderID, &a.CustomerName, &a.CustomerPhone,
		&a.Start, &a.End, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *sqlStore) ListAppointments(ctx context.Context, businessID, providerID string, from, to time.Time) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE business_id = ? AND provider_id = ? AND start_at >= ? AND start_at < ?
		ORDER BY start_at`
	rows, err := s.db.QueryContext(ctx, s.q(query), businessID, providerID, from.UTC(), to.UTC())
	if err != nil {
		slog.Error(s.name+" ListAppointments query failed", "error", err, "provider", providerID)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	out := []models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetAppointment(ctx context.Context, businessID, id string) (*models.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRowContext(ctx, s.q(`SELECT `+appointmentColumns+` FROM appointments WHERE business_id = ? AND id = ?`), businessID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment %s: %w", id, err)
	}
	return &a, nil
}

func (s *sqlStore) SaveAppointment(ctx context.Context, a models.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			customer_name = excluded.customer_name, customer_phone = excluded.customer_phone,
			start_at = excluded.start_at, end_at = excluded.end_at, status = excluded.status,
			notes = excluded.notes, updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, s.q(query), a.ID, a.BusinessID, a.ProviderID, a.CustomerName,
		a.CustomerPhone, a.Start.UTC(), a.End.UTC(), a.Status, a.Notes, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		slog.Error(s.name+" SaveAppointment failed", "error", err, "id", a.ID)
		return s.mapWriteErr(err)
	}
	return nil
}

func (s *sqlStore) DeleteAppointment(ctx context.Context, businessID, id string) error {
	return s.execAffecting(ctx, `DELETE FROM appointments WHERE business_id = ? AND id = ?`, businessID, id)
}

const configColumns = `id, name, initial_state, states, transitions, created_at, updated_at`

func scanConfig(row rowScanner) (models.StateMachineConfig, error) {
	var c models.StateMachineConfig
	var statesJSON, transitionsJSON string
	if err := row.Scan(&c.ID, &c.Name, &c.InitialState, &statesJSON, &transitionsJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(statesJSON), &c.States); err != nil {
		return c, fmt.Errorf("failed to decode states of %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(transitionsJSON), &c.Transitions); err != nil {
		return c, fmt.Errorf("failed to decode transitions of %s: %w", c.ID, err)
	}
	return c, nil
}

func (s *sqlStore) ListStateMachineConfigs(ctx context.Context) ([]models.StateMachineConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configColumns+` FROM state_machine_configs ORDER BY name`)
	if err != nil {
		slog.Error(s.name+" ListStateMachineConfigs query failed", "error", err)
		return nil, fmt.Errorf("failed to query state machine configs: %w", err)
	}
	defer rows.Close()

	out := []models.StateMachineConfig{}
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetStateMachineConfig(ctx context.Context, id string) (*models.StateMachineConfig, error) {
	c, err := scanConfig(s.db.QueryRowContext(ctx, s.q(`SELECT `+configColumns+` FROM state_machine_configs WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error(s.name+" GetStateMachineConfig failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get state machine config %s: %w", id, err)
	}
	return &c, nil
}

func (s *sqlStore) SaveStateMachineConfig(ctx context.Context, c models.StateMachineConfig) error {
	if c.States == nil {
		c.States = []models.State{}
	}
	if c.Transitions == nil {
		c.Transitions = []models.Transition{}
	}
	statesJSON, err := json.Marshal(c.States)
	if err != nil {
		return fmt.Errorf("failed to encode states: %w", err)
	}
	transitionsJSON, err := json.Marshal(c.Transitions)
	if err != nil {
		return fmt.Errorf("failed to encode transitions: %w", err)
	}
	query := `
		INSERT INTO state_machine_configs (` + configColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, initial_state = excluded.initial_state, states = excluded.states,
			transitions = excluded.transitions, updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, s.q(query), c.ID, c.Name, c.InitialState, string(statesJSON),
		string(transitionsJSON), c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		slog.Error(s.name+" SaveStateMachineConfig failed", "error", err, "id", c.ID)
		return s.mapWriteErr(err)
	}
	slog.Debug(s.name+" SaveStateMachineConfig succeeded", "id", c.ID, "states", len(c.States), "transitions", len(c.Transitions))
	return nil
}

// DeleteStateMachineConfig checks for referencing businesses and deletes in one transaction.
// The foreign key on businesses.state_machine_id closes the remaining window between the two statements.
func (s *sqlStore) DeleteStateMachineConfig(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM state_machine_configs WHERE id = ?`), id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up state machine config %s: %w", id, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	var refs int
	err = tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM businesses WHERE state_machine_id = ?`), id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("failed to count businesses using %s: %w", id, err)
	}
	if refs > 0 {
		slog.Warn(s.name+" DeleteStateMachineConfig blocked", "id", id, "businesses", refs)
		return ErrConfigInUse
	}

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM state_machine_configs WHERE id = ?`), id); err != nil {
		if s.isForeignKey != nil && s.isForeignKey(err) {
			return ErrConfigInUse
		}
		return fmt.Errorf("failed to delete state machine config %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		if s.isForeignKey != nil && s.isForeignKey(err) {
			return ErrConfigInUse
		}
		return fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}
	slog.Debug(s.name+" DeleteStateMachineConfig succeeded", "id", id)
	return nil
}

const templateColumns = `id, name, body, created_at`

func scanTemplate(row rowScanner) (models.MessageTemplate, error) {
	var t models.MessageTemplate
	err := row.Scan(&t.ID, &t.Name, &t.Body, &t.CreatedAt)
	return t, err
}

func (s *sqlStore) ListTemplates(ctx context.Context) ([]models.MessageTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM message_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query message templates: %w", err)
	}
	defer rows.Close()

	out := []models.MessageTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message template row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetTemplate(ctx context.Context, id string) (*models.MessageTemplate, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx, s.q(`SELECT `+templateColumns+` FROM message_templates WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message template %s: %w", id, err)
	}
	return &t, nil
}

func (s *sqlStore) SaveTemplate(ctx context.Context, t models.MessageTemplate) error {
	query := `
		INSERT INTO message_templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, body = excluded.body`
	_, err := s.db.ExecContext(ctx, s.q(query), t.ID, t.Name, t.Body, t.CreatedAt.UTC())
	return s.mapWriteErr(err)
}

func (s *sqlStore) DeleteTemplate(ctx context.Context, id string) error {
	return s.execAffecting(ctx, `DELETE FROM message_templates WHERE id = ?`, id)
}
