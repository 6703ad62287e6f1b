package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

// InMemoryStore keeps every record in process memory. It is safe for concurrent use.
type InMemoryStore struct {
	mu           sync.RWMutex
	businesses   map[string]models.Business
	providers    map[string]models.Provider
	admins       map[string]models.PanelAdmin
	appointments map[string]models.Appointment
	configs      map[string]models.StateMachineConfig
	templates    map[string]models.MessageTemplate
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		businesses:   make(map[string]models.Business),
		providers:    make(map[string]models.Provider),
		admins:       make(map[string]models.PanelAdmin),
		appointments: make(map[string]models.Appointment),
		configs:      make(map[string]models.StateMachineConfig),
		templates:    make(map[string]models.MessageTemplate),
	}
}

func (s *InMemoryStore) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Business, 0, len(s.businesses))
	for _, b := range s.businesses {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *InMemoryStore) SaveBusiness(ctx context.Context, b models.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.StateMachineID != "" {
		if _, ok := s.configs[b.StateMachineID]; !ok {
			return ErrUnknownReference
		}
	}
	s.businesses[b.ID] = b
	slog.Debug("InMemoryStore SaveBusiness succeeded", "id", b.ID)
	return nil
}

// DeleteBusiness removes the business with its providers and appointments.
func (s *InMemoryStore) DeleteBusiness(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.businesses[id]; !ok {
		return ErrNotFound
	}
	delete(s.businesses, id)
	for pid, p := range s.providers {
		if p.BusinessID == id {
			delete(s.providers, pid)
		}
	}
	for aid, a := range s.appointments {
		if a.BusinessID == id {
			delete(s.appointments, aid)
		}
	}
	return nil
}

func (s *InMemoryStore) ListProviders(ctx context.Context, businessID string) ([]models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Provider{}
	for _, p := range s.providers {
		if p.BusinessID == businessID {
			out = append(out, copyProvider(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) GetProvider(ctx context.Context, businessID, id string) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok || p.BusinessID != businessID {
		return nil, ErrNotFound
	}
	p = copyProvider(p)
	return &p, nil
}

func (s *InMemoryStore) SaveProvider(ctx context.Context, p models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.businesses[p.BusinessID]; !ok {
		return ErrUnknownReference
	}
	s.providers[p.ID] = copyProvider(p)
	return nil
}

// DeleteProvider removes the provider and its appointments.
func (s *InMemoryStore) DeleteProvider(ctx context.Context, businessID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok || p.BusinessID != businessID {
		return ErrNotFound
	}
	delete(s.providers, id)
	for aid, a := range s.appointments {
		if a.ProviderID == id {
			delete(s.appointments, aid)
		}
	}
	return nil
}

func (s *InMemoryStore) ListPanelAdmins(ctx context.Context) ([]models.PanelAdmin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PanelAdmin, 0, len(s.admins))
	for _, a := range s.admins {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *InMemoryStore) GetPanelAdmin(ctx context.Context, id string) (*models.PanelAdmin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admins[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *InMemoryStore) GetPanelAdminByEmail(ctx context.Context, email string) (*models.PanelAdmin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.admins {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) SavePanelAdmin(ctx context.Context, a models.PanelAdmin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.admins {
		if id != a.ID && strings.EqualFold(existing.Email, a.Email) {
			return ErrDuplicate
		}
	}
	s.admins[a.ID] = a
	return nil
}

func (s *InMemoryStore) DeletePanelAdmin(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[id]; !ok {
		return ErrNotFound
	}
	delete(s.admins, id)
	return nil
}

func (s *InMemoryStore) ListAppointments(ctx context.Context, businessID, providerID string, from, to time.Time) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Appointment{}
	for _, a := range s.appointments {
		if a.BusinessID != businessID || a.ProviderID != providerID {
			continue
		}
		if a.Start.Before(from) || !a.Start.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *InMemoryStore) GetAppointment(ctx context.Context, businessID, id string) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok || a.BusinessID != businessID {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *InMemoryStore) SaveAppointment(ctx context.Context, a models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[a.ProviderID]
	if !ok || p.BusinessID != a.BusinessID {
		return ErrUnknownReference
	}
	s.appointments[a.ID] = a
	return nil
}

func (s *InMemoryStore) DeleteAppointment(ctx context.Context, businessID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.BusinessID != businessID {
		return ErrNotFound
	}
	delete(s.appointments, id)
	return nil
}

func (s *InMemoryStore) ListStateMachineConfigs(ctx context.Context) ([]models.StateMachineConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StateMachineConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) GetStateMachineConfig(ctx context.Context, id string) (*models.StateMachineConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) SaveStateMachineConfig(ctx context.Context, c models.StateMachineConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[c.ID] = *c.Clone()
	slog.Debug("InMemoryStore SaveStateMachineConfig succeeded", "id", c.ID, "states", len(c.States))
	return nil
}

// DeleteStateMachineConfig checks references and deletes under one lock.
func (s *InMemoryStore) DeleteStateMachineConfig(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[id]; !ok {
		return ErrNotFound
	}
	for _, b := range s.businesses {
		if b.StateMachineID == id {
			slog.Warn("InMemoryStore DeleteStateMachineConfig blocked", "id", id, "business", b.ID)
			return ErrConfigInUse
		}
	}
	delete(s.configs, id)
	return nil
}

func (s *InMemoryStore) ListTemplates(ctx context.Context) ([]models.MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MessageTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) GetTemplate(ctx context.Context, id string) (*models.MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *InMemoryStore) SaveTemplate(ctx context.Context, t models.MessageTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	return nil
}

func (s *InMemoryStore) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return ErrNotFound
	}
	delete(s.templates, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

func copyProvider(p models.Provider) models.Provider {
	p.WorkingHours.Weekdays = append([]int(nil), p.WorkingHours.Weekdays...)
	return p
}
