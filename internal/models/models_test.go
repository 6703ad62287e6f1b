package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIResponseBuilders(t *testing.T) {
	ok := SuccessWithMessage("created", map[string]string{"id": "b_1"})
	assert.Equal(t, "ok", ok.Status)
	assert.Equal(t, "created", ok.Message)

	bad := Error("boom")
	assert.Equal(t, "error", bad.Status)
	assert.Nil(t, bad.Result)

	rejected := ErrorWithDetails("configuration is invalid", []string{"state \"a\" is duplicated"})
	assert.Equal(t, "error", rejected.Status)
	assert.Equal(t, []string{"state \"a\" is duplicated"}, rejected.Result)
}

func TestBusinessValidate(t *testing.T) {
	b := Business{Name: "Clinic", Phone: "5511999999999"}
	require.NoError(t, b.Validate())

	b.Email = "not-an-email"
	assert.ErrorIs(t, b.Validate(), ErrInvalidEmail)

	b.Email = "front@clinic.test"
	b.Phone = " "
	assert.ErrorIs(t, b.Validate(), ErrEmptyPhone)

	b.Phone = "1"
	b.Name = ""
	assert.ErrorIs(t, b.Validate(), ErrEmptyName)
}

func TestWorkingHours(t *testing.T) {
	wh := WorkingHours{Start: "09:00", End: "12:00", SlotMinutes: 30}
	require.NoError(t, wh.Validate())
	assert.True(t, wh.WorksOn(time.Monday))
	assert.False(t, wh.WorksOn(time.Sunday))

	wh.Weekdays = []int{int(time.Saturday)}
	assert.True(t, wh.WorksOn(time.Saturday))
	assert.False(t, wh.WorksOn(time.Monday))

	assert.ErrorIs(t, (&WorkingHours{Start: "12:00", End: "09:00", SlotMinutes: 30}).Validate(), ErrInvalidTimeRange)
	assert.ErrorIs(t, (&WorkingHours{Start: "9am", End: "12:00", SlotMinutes: 30}).Validate(), ErrInvalidClock)
	assert.ErrorIs(t, (&WorkingHours{Start: "09:00", End: "12:00", SlotMinutes: 1}).Validate(), ErrInvalidSlotMinutes)
	assert.ErrorIs(t, (&WorkingHours{Start: "09:00", End: "12:00", SlotMinutes: 30, Weekdays: []int{7}}).Validate(), ErrInvalidWeekday)
}

func TestPanelAdminHidesPasswordHash(t *testing.T) {
	a := PanelAdmin{ID: "a_1", Name: "Root", Email: "root@panel.test", Role: AdminRoleSuperAdmin, PasswordHash: "secret-hash"}
	require.NoError(t, a.Validate())

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-hash")

	a.Role = "owner"
	assert.ErrorIs(t, a.Validate(), ErrInvalidRole)
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword(""), ErrEmptyPassword)
	assert.ErrorIs(t, ValidatePassword("short"), ErrPasswordTooShort)
	assert.NoError(t, ValidatePassword("long-enough"))
}

func TestAppointmentValidateAndOverlap(t *testing.T) {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	a := Appointment{
		BusinessID:   "b_1",
		ProviderID:   "pr_1",
		CustomerName: "Ana",
		Start:        start,
		End:          start.Add(30 * time.Minute),
		Status:       AppointmentStatusScheduled,
	}
	require.NoError(t, a.Validate())

	assert.True(t, a.Overlaps(start.Add(15*time.Minute), start.Add(45*time.Minute)))
	assert.False(t, a.Overlaps(start.Add(30*time.Minute), start.Add(60*time.Minute)))

	a.End = a.Start.Add(MaxAppointmentDuration)
	require.NoError(t, a.Validate())
	a.End = a.End.Add(time.Minute)
	assert.ErrorIs(t, a.Validate(), ErrAppointmentTooLong)

	a.End = a.Start
	assert.ErrorIs(t, a.Validate(), ErrInvalidTimeRange)
}

func TestStateMachineConfigClone(t *testing.T) {
	cfg := StateMachineConfig{
		Name:         "Flow",
		InitialState: "a",
		States:       []State{{Name: "a", Actions: []string{"notify"}}},
		Transitions:  []Transition{{FromState: "a", ToState: "a", Condition: "loop"}},
	}
	clone := cfg.Clone()
	clone.States[0].Actions[0] = "changed"
	clone.Transitions[0].Condition = "changed"

	assert.Equal(t, "notify", cfg.States[0].Actions[0])
	assert.Equal(t, "loop", cfg.Transitions[0].Condition)
}

func TestBulkSendRequestValidate(t *testing.T) {
	assert.ErrorIs(t, (&BulkSendRequest{CSV: "phone"}).Validate(), ErrEmptyTemplateID)
	assert.ErrorIs(t, (&BulkSendRequest{TemplateID: "t_1"}).Validate(), ErrEmptyCSV)
}
