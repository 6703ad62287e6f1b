// Package models defines the tenant records administered through the panel.
package models

import (
	"net/mail"
	"strings"
	"time"
)

// Business is a tenant owning providers, schedules and optionally one state-machine configuration.
type Business struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Phone                string    `json:"phone"`
	Email                string    `json:"email,omitempty"`
	Address              string    `json:"address,omitempty"`
	StateMachineID       string    `json:"stateMachineId,omitempty"`
	ProviderInstructions string    `json:"providerInstructions,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Validate checks the required fields of a Business.
func (b *Business) Validate() error {
	if err := validateName(b.Name); err != nil {
		return err
	}
	if strings.TrimSpace(b.Phone) == "" {
		return ErrEmptyPhone
	}
	if b.Email != "" {
		if _, err := mail.ParseAddress(b.Email); err != nil {
			return ErrInvalidEmail
		}
	}
	if len(b.ProviderInstructions) > MaxInstructionsLength {
		return ErrInstructionsTooLong
	}
	return nil
}

// ProviderInstructions is the payload of the provider-instructions endpoint.
type ProviderInstructions struct {
	Instructions string `json:"instructions"`
}

// WorkingHours describes when a provider accepts appointments.
type WorkingHours struct {
	Start       string `json:"start"`       // "HH:MM"
	End         string `json:"end"`         // "HH:MM"
	SlotMinutes int    `json:"slotMinutes"` // appointment granularity
	Weekdays    []int  `json:"weekdays"`    // time.Weekday values; empty means Monday to Friday
}

// Validate checks that the working hours describe a non-empty daily window.
func (wh *WorkingHours) Validate() error {
	start, err := ParseClock(wh.Start)
	if err != nil {
		return err
	}
	end, err := ParseClock(wh.End)
	if err != nil {
		return err
	}
	if end <= start {
		return ErrInvalidTimeRange
	}
	if wh.SlotMinutes < 5 || wh.SlotMinutes > 480 {
		return ErrInvalidSlotMinutes
	}
	for _, d := range wh.Weekdays {
		if d < 0 || d > 6 {
			return ErrInvalidWeekday
		}
	}
	return nil
}

// WorksOn reports whether the provider works on the given weekday.
func (wh *WorkingHours) WorksOn(day time.Weekday) bool {
	if len(wh.Weekdays) == 0 {
		return day >= time.Monday && day <= time.Friday
	}
	for _, d := range wh.Weekdays {
		if time.Weekday(d) == day {
			return true
		}
	}
	return false
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, ErrInvalidClock
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Provider is a professional belonging to a business whose agenda the panel manages.
type Provider struct {
	ID           string       `json:"id"`
	BusinessID   string       `json:"businessId"`
	Name         string       `json:"name"`
	Specialty    string       `json:"specialty,omitempty"`
	Phone        string       `json:"phone,omitempty"`
	WorkingHours WorkingHours `json:"workingHours"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Validate checks the required fields of a Provider.
func (p *Provider) Validate() error {
	if p.BusinessID == "" {
		return ErrEmptyBusinessID
	}
	if err := validateName(p.Name); err != nil {
		return err
	}
	return p.WorkingHours.Validate()
}

// AdminRole is the permission level of a panel admin.
type AdminRole string

const (
	// AdminRoleAdmin manages tenants and configurations.
	AdminRoleAdmin AdminRole = "admin"
	// AdminRoleSuperAdmin can additionally manage other panel admins.
	AdminRoleSuperAdmin AdminRole = "superadmin"
)

// IsValidAdminRole checks if the given role is supported.
func IsValidAdminRole(r AdminRole) bool {
	switch r {
	case AdminRoleAdmin, AdminRoleSuperAdmin:
		return true
	default:
		return false
	}
}

// PanelAdmin is an account allowed to sign in to the panel.
type PanelAdmin struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         AdminRole `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate checks the required fields of a PanelAdmin.
func (a *PanelAdmin) Validate() error {
	if err := validateName(a.Name); err != nil {
		return err
	}
	if a.Email == "" {
		return ErrEmptyEmail
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return ErrInvalidEmail
	}
	if !IsValidAdminRole(a.Role) {
		return ErrInvalidRole
	}
	return nil
}

// PanelAdminRequest is the payload for creating or updating a panel admin.
// Password may be empty on update to keep the current one.
type PanelAdminRequest struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     AdminRole `json:"role,omitempty"`
	Password string    `json:"password,omitempty"`
}

// ValidatePassword enforces the minimum password policy.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}

// AuthRequest is the payload of POST /panel-admin/auth.
type AuthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned after a successful sign-in.
type AuthResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Admin     PanelAdmin `json:"admin"`
}

// AppointmentStatus represents the lifecycle of an appointment.
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// IsValidAppointmentStatus checks if the given appointment status is valid.
func IsValidAppointmentStatus(s AppointmentStatus) bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusCancelled, AppointmentStatusCompleted:
		return true
	default:
		return false
	}
}

// Appointment is a booked slot in a provider's agenda.
type Appointment struct {
	ID            string            `json:"id"`
	BusinessID    string            `json:"businessId"`
	ProviderID    string            `json:"providerId"`
	CustomerName  string            `json:"customerName"`
	CustomerPhone string            `json:"customerPhone,omitempty"`
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
	Status        AppointmentStatus `json:"status"`
	Notes         string            `json:"notes,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Validate checks the required fields of an Appointment.
func (a *Appointment) Validate() error {
	if a.BusinessID == "" {
		return ErrEmptyBusinessID
	}
	if a.ProviderID == "" {
		return ErrEmptyProviderID
	}
	if err := validateName(a.CustomerName); err != nil {
		return err
	}
	if !a.End.After(a.Start) {
		return ErrInvalidTimeRange
	}
	if a.End.Sub(a.Start) > MaxAppointmentDuration {
		return ErrAppointmentTooLong
	}
	if !IsValidAppointmentStatus(a.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// Overlaps reports whether the appointment intersects [start, end).
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.Start.Before(end) && start.Before(a.End)
}

// TimeSlot is one bookable window in a provider's day.
type TimeSlot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// MessageTemplate is a reusable message body with positional placeholders ({{1}}, {{2}}, ...).
type MessageTemplate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the required fields of a MessageTemplate.
func (t *MessageTemplate) Validate() error {
	if err := validateName(t.Name); err != nil {
		return err
	}
	if strings.TrimSpace(t.Body) == "" {
		return ErrEmptyTemplateBody
	}
	if len(t.Body) > MaxTemplateBodyLength {
		return ErrTemplateTooLong
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}
