package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

func provider() models.Provider {
	return models.Provider{
		ID:           "prov_1",
		BusinessID:   "biz_1",
		Name:         "Dr Lima",
		WorkingHours: models.WorkingHours{Start: "09:00", End: "11:00", SlotMinutes: 30},
	}
}

func appt(id string, start time.Time, minutes int, status models.AppointmentStatus) models.Appointment {
	return models.Appointment{ID: id, Start: start, End: start.Add(time.Duration(minutes) * time.Minute), Status: status}
}

func TestAvailableSlots(t *testing.T) {
	monday, err := ParseDate("2026-03-02", time.UTC)
	require.NoError(t, err)
	require.Equal(t, time.Monday, monday.Weekday())

	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name      string
		date      time.Time
		appts     []models.Appointment
		wantCount int
		wantFree  []bool
	}{
		{
			name:      "empty day",
			date:      monday,
			wantCount: 4,
			wantFree:  []bool{true, true, true, true},
		},
		{
			name:      "booked and cancelled appointments",
			date:      monday,
			appts:     []models.Appointment{appt("a", at(9, 30), 30, models.AppointmentStatusScheduled), appt("b", at(10, 0), 30, models.AppointmentStatusCancelled)},
			wantCount: 4,
			wantFree:  []bool{true, false, true, true},
		},
		{
			name:      "appointment straddling two slots",
			date:      monday,
			appts:     []models.Appointment{appt("a", at(9, 15), 30, models.AppointmentStatusCompleted)},
			wantCount: 4,
			wantFree:  []bool{false, false, true, true},
		},
		{
			name:      "weekend",
			date:      monday.AddDate(0, 0, 5),
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := AvailableSlots(provider(), tt.date, tt.appts)
			require.NoError(t, err)
			require.Len(t, slots, tt.wantCount)
			for i, free := range tt.wantFree {
				assert.Equal(t, free, slots[i].Available, "slot %d", i)
			}
			if tt.wantCount > 0 {
				assert.True(t, slots[0].Start.Equal(at(9, 0)))
				assert.True(t, slots[len(slots)-1].End.Equal(at(11, 0)))
			}
		})
	}
}

func TestAvailableSlots_DropsPartialSlot(t *testing.T) {
	p := provider()
	p.WorkingHours.SlotMinutes = 45
	date, _ := ParseDate("2026-03-02", time.UTC)

	slots, err := AvailableSlots(p, date, nil)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestAvailableSlots_ExplicitWeekdays(t *testing.T) {
	p := provider()
	p.WorkingHours.Weekdays = []int{int(time.Saturday)}
	saturday, _ := ParseDate("2026-03-07", time.UTC)
	monday, _ := ParseDate("2026-03-02", time.UTC)

	slots, err := AvailableSlots(p, saturday, nil)
	require.NoError(t, err)
	assert.Len(t, slots, 4)

	slots, err = AvailableSlots(p, monday, nil)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlots_InvalidHours(t *testing.T) {
	p := provider()
	p.WorkingHours.End = "08:00"
	_, err := AvailableSlots(p, time.Now(), nil)
	assert.ErrorIs(t, err, models.ErrInvalidTimeRange)
}

func TestParseDate(t *testing.T) {
	_, err := ParseDate("02/03/2026", nil)
	assert.ErrorIs(t, err, ErrInvalidDate)

	loc := time.FixedZone("BRT", -3*60*60)
	d, err := ParseDate("2026-03-02", loc)
	require.NoError(t, err)
	assert.Equal(t, loc, d.Location())
	from, to := DayBounds(d)
	assert.Equal(t, 24*time.Hour, to.Sub(from))
}

func TestConflicts(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 3, 2, h, 0, 0, 0, time.UTC) }
	existing := []models.Appointment{
		appt("a", at(9), 60, models.AppointmentStatusScheduled),
		appt("b", at(10), 60, models.AppointmentStatusCancelled),
		appt("c", at(11), 60, models.AppointmentStatusScheduled),
	}

	got := Conflicts(appt("new", at(9), 180, models.AppointmentStatusScheduled), existing)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	assert.Empty(t, Conflicts(appt("a", at(9), 60, models.AppointmentStatusScheduled), existing), "an appointment never conflicts with itself")
	assert.Empty(t, Conflicts(appt("x", at(9), 60, models.AppointmentStatusCancelled), existing))
}
