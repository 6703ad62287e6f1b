package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PromptPanel/internal/messaging"
	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/prefs"
	"github.com/BTreeMap/PromptPanel/internal/sessions"
	"github.com/BTreeMap/PromptPanel/internal/testutil"
)

const (
	ownerEmail    = testutil.OwnerEmail
	ownerPassword = testutil.OwnerPassword
)

type fixture struct {
	t        *testing.T
	panel    *testutil.Panel
	sessions *sessions.InMemoryStore
	dry      *messaging.DryRunService
	prefs    *prefs.Store
	client   *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	panel := testutil.NewPanel(t)
	p := prefs.NewStore(t.TempDir())
	c, err := New(p, WithBaseURL(panel.URL), WithHTTPClient(panel.HTTP.Client()))
	require.NoError(t, err)
	return &fixture{t: t, panel: panel, sessions: panel.Sessions, dry: panel.DryRun, prefs: p, client: c}
}

func (f *fixture) login() {
	f.t.Helper()
	_, err := f.client.Login(context.Background(), ownerEmail, ownerPassword)
	require.NoError(f.t, err)
}

func envFrom(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		env  prefs.Environment
		want string
	}{
		{"defaults to production", nil, "", DefaultProductionURL},
		{"local default", nil, prefs.EnvLocal, DefaultLocalURL},
		{"override wins", map[string]string{"PANEL_API_URL": "http://override:1/", "PANEL_API_URL_LOCAL": "http://l"}, prefs.EnvLocal, "http://override:1"},
		{"configured production", map[string]string{"PANEL_API_URL_PRODUCTION": "https://prod.example.com"}, prefs.EnvProduction, "https://prod.example.com"},
		{"configured local", map[string]string{"PANEL_API_URL_LOCAL": "http://127.0.0.1:9000/"}, prefs.EnvLocal, "http://127.0.0.1:9000"},
		{"env var selects local", map[string]string{"PANEL_API_ENV": "local"}, "", DefaultLocalURL},
		{"stored choice beats env var", map[string]string{"PANEL_API_ENV": "local"}, prefs.EnvProduction, DefaultProductionURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveBaseURL(envFrom(tt.vars), tt.env))
		})
	}
}

func TestBaseURLPinnedPerClient(t *testing.T) {
	p := prefs.NewStore(t.TempDir())
	getenv := envFrom(map[string]string{
		"PANEL_API_URL_PRODUCTION": "https://prod.example.com",
		"PANEL_API_URL_LOCAL":      "http://localhost:9999",
	})

	first, err := New(p, WithGetenv(getenv))
	require.NoError(t, err)
	assert.Equal(t, "https://prod.example.com", first.BaseURL())

	require.NoError(t, p.SetEnvironment(prefs.EnvLocal))
	assert.Equal(t, "https://prod.example.com", first.BaseURL(), "existing client keeps its URL")

	second, err := New(p, WithGetenv(getenv))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", second.BaseURL())
}

func TestLoginStoresTokenAndUnauthorizedClearsIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.ListBusinesses(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.client.Login(ctx, ownerEmail, "wrong-password")
	require.ErrorIs(t, err, ErrUnauthorized)

	f.login()
	stored, err := f.prefs.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Token)
	assert.Equal(t, ownerEmail, stored.AdminEmail)

	_, err = f.client.ListBusinesses(ctx)
	require.NoError(t, err)

	require.NoError(t, f.prefs.SetSession("forged-token", ownerEmail))
	_, err = f.client.ListBusinesses(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	token, err := f.prefs.Token()
	require.NoError(t, err)
	assert.Empty(t, token, "a rejected session is forgotten")
}

func TestBusinessAndProviderRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.login()
	ctx := context.Background()

	_, err := f.client.CreateBusiness(ctx, models.Business{Name: "No phone"})
	require.ErrorIs(t, err, models.ErrEmptyPhone, "validated before the request")

	b, err := f.client.CreateBusiness(ctx, models.Business{Name: "Clínica Sorriso", Phone: "5511999999999"})
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)

	require.NoError(t, f.client.UpdateProviderInstructions(ctx, b.ID, "Always confirm the day before."))
	instr, err := f.client.GetProviderInstructions(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Always confirm the day before.", instr)

	p, err := f.client.CreateProvider(ctx, b.ID, models.Provider{
		Name:         "Dra. Ana",
		WorkingHours: models.WorkingHours{Start: "09:00", End: "10:00", SlotMinutes: 30, Weekdays: []int{1}},
	})
	require.NoError(t, err)
	assert.Equal(t, b.ID, p.BusinessID)

	monday := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	slots, err := f.client.TimeSlots(ctx, b.ID, p.ID, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 2)

	_, err = f.client.CreateAppointment(ctx, b.ID, models.Appointment{
		ProviderID:   p.ID,
		CustomerName: "João",
		Start:        monday.Add(9 * time.Hour),
		End:          monday.Add(9*time.Hour + 30*time.Minute),
	})
	require.NoError(t, err)
	_, err = f.client.CreateAppointment(ctx, b.ID, models.Appointment{
		ProviderID:   p.ID,
		CustomerName: "Maria",
		Start:        monday.Add(9*time.Hour + 15*time.Minute),
		End:          monday.Add(9*time.Hour + 45*time.Minute),
	})
	require.ErrorIs(t, err, ErrConflict)

	agenda, err := f.client.Agenda(ctx, b.ID, p.ID, monday)
	require.NoError(t, err)
	assert.Len(t, agenda, 1)

	require.NoError(t, f.client.DeleteBusiness(ctx, b.ID))
	_, err = f.client.GetBusiness(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStateMachineSaveAndDelete(t *testing.T) {
	f := newFixture(t)
	f.login()
	ctx := context.Background()

	cfg := models.StateMachineConfig{
		Name:         "  Booking ",
		InitialState: "greeting",
		States:       []models.State{{Name: "greeting"}, {Name: "done"}},
		Transitions:  []models.Transition{{FromState: "greeting", ToState: "done", Condition: "booked"}},
	}
	saved, err := f.client.SaveStateMachineConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "Booking", saved.Name)
	assert.Equal(t, "  Booking ", cfg.Name, "caller's value is not mutated")

	saved.States = append(saved.States, models.State{Name: "followup"})
	updated, err := f.client.SaveStateMachineConfig(ctx, *saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Len(t, updated.States, 3)

	bad := *updated
	bad.InitialState = "ghost"
	_, err = f.client.SaveStateMachineConfig(ctx, bad)
	require.Error(t, err)

	_, err = f.client.CreateBusiness(ctx, models.Business{Name: "Clinic", Phone: "1", StateMachineID: saved.ID})
	require.NoError(t, err)

	err = f.client.DeleteStateMachineConfig(ctx, saved.ID)
	require.ErrorIs(t, err, ErrConfigInUse)
	assert.Contains(t, err.Error(), "Clinic")

	_, err = f.client.GetStateMachineConfig(ctx, saved.ID)
	require.NoError(t, err, "refused delete leaves the configuration in place")
}

func TestAPIErrorDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","message":"2 validation errors","result":["a is wrong","b is wrong"]}`))
	}))
	defer srv.Close()

	c, err := New(prefs.NewStore(t.TempDir()), WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = c.ListBusinesses(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "2 validation errors", apiErr.Message)
	assert.Equal(t, []string{"a is wrong", "b is wrong"}, apiErr.Details)
	assert.Nil(t, errors.Unwrap(apiErr))
}

func TestAPIErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(prefs.NewStore(t.TempDir()), WithBaseURL(srv.URL))
	require.NoError(t, err)
	err = c.Health(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestSessionsAndTerminate(t *testing.T) {
	f := newFixture(t)
	f.login()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, f.sessions.Save(ctx, models.ConversationSession{ID: "s1", StateMachineID: "sm", CurrentState: "greeting", Status: models.SessionStatusActive, StartedAt: now, LastUpdatedAt: now}))
	require.NoError(t, f.sessions.Save(ctx, models.ConversationSession{ID: "s2", StateMachineID: "sm", CurrentState: "done", Status: models.SessionStatusTerminated, StartedAt: now, LastUpdatedAt: now}))

	active, err := f.client.ListSessions(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s1", active[0].ID)

	all, err := f.client.ListSessions(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := f.client.TerminateSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusTerminated, got.Status)
	_, err = f.client.TerminateSession(ctx, "s1")
	require.NoError(t, err, "terminating twice is harmless")

	_, err = f.client.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBulkSendMultipart(t *testing.T) {
	f := newFixture(t)
	f.login()
	ctx := context.Background()

	_, err := f.client.CreateTemplate(ctx, "Empty", "")
	require.Error(t, err)

	tpl, err := f.client.CreateTemplate(ctx, "Reminder", "Olá {{1}}")
	require.NoError(t, err)

	summary, err := f.client.BulkSend(ctx, tpl.ID, []byte("phone,name\n5511999999999,Ana\nabc,Bruno\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Failed)

	sent := f.dry.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Olá Ana", sent[0].Body)
}

func TestLegacyStateMachinesFallback(t *testing.T) {
	f := newFixture(t)
	f.login()
	ctx := context.Background()

	// Nothing cached and the server empty.
	list, fromCache, err := f.client.LegacyStateMachines(ctx)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Empty(t, list)

	_, err = f.client.SaveStateMachineConfig(ctx, models.StateMachineConfig{
		Name:         "Intake",
		InitialState: "start",
		States:       []models.State{{Name: "start"}},
	})
	require.NoError(t, err)

	list, fromCache, err = f.client.LegacyStateMachines(ctx)
	require.NoError(t, err)
	assert.False(t, fromCache)
	require.Len(t, list, 1)
	_, err = os.Stat(f.client.LegacyCachePath())
	require.NoError(t, err)

	// With the server gone the cached list is served.
	f.panel.Close()
	list, fromCache, err = f.client.LegacyStateMachines(ctx)
	require.NoError(t, err)
	assert.True(t, fromCache)
	require.Len(t, list, 1)
	assert.Equal(t, "Intake", list[0].Name)

	one, fromCache, err := f.client.LegacyStateMachine(ctx, list[0].ID)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "Intake", one.Name)

	// Writes land in the cache only and diverge from the server from here on.
	walkIn, fromCache, err := f.client.LegacySaveStateMachine(ctx, models.StateMachineConfig{
		Name:         " Walk-in ",
		InitialState: "hello",
		States:       []models.State{{Name: "hello"}},
	})
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.NotEmpty(t, walkIn.ID)
	assert.Equal(t, "Walk-in", walkIn.Name)

	renamed := *one
	renamed.Name = "Intake v2"
	_, fromCache, err = f.client.LegacySaveStateMachine(ctx, renamed)
	require.NoError(t, err)
	assert.True(t, fromCache)

	list, fromCache, err = f.client.LegacyStateMachines(ctx)
	require.NoError(t, err)
	assert.True(t, fromCache)
	require.Len(t, list, 2)
	assert.Equal(t, "Intake v2", list[0].Name)
	assert.Equal(t, walkIn.ID, list[1].ID)

	_, _, err = f.client.LegacySaveStateMachine(ctx, models.StateMachineConfig{Name: "Broken", InitialState: "nowhere"})
	require.Error(t, err, "invalid configurations are not cached")

	fromCache, err = f.client.LegacyDeleteStateMachine(ctx, walkIn.ID)
	require.NoError(t, err)
	assert.True(t, fromCache)
	_, err = f.client.LegacyDeleteStateMachine(ctx, walkIn.ID)
	assert.Error(t, err, "unknown locally and remotely")

	list, _, err = f.client.LegacyStateMachines(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Intake v2", list[0].Name)
}

func TestLegacyWritesOnline(t *testing.T) {
	f := newFixture(t)
	f.login()
	ctx := context.Background()

	saved, fromCache, err := f.client.LegacySaveStateMachine(ctx, models.StateMachineConfig{
		Name:         "Booking",
		InitialState: "start",
		States:       []models.State{{Name: "start"}},
	})
	require.NoError(t, err)
	assert.False(t, fromCache)

	remote, err := f.client.GetStateMachineConfig(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Booking", remote.Name)
	cached, err := f.client.readLegacyCache()
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, saved.ID, cached[0].ID)

	// A config in use is refused by the server and stays cached.
	_, err = f.client.CreateBusiness(ctx, models.Business{Name: "Clinic", Phone: "1", StateMachineID: saved.ID})
	require.NoError(t, err)
	_, err = f.client.LegacyDeleteStateMachine(ctx, saved.ID)
	require.ErrorIs(t, err, ErrConflict)
	cached, err = f.client.readLegacyCache()
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}

func TestLegacyStateMachinesNoCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c, err := New(prefs.NewStore(dir), WithBaseURL(srv.URL), WithCacheDir(filepath.Join(dir, "cache")))
	require.NoError(t, err)

	list, fromCache, err := c.LegacyStateMachines(context.Background())
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
