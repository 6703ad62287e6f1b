// Package schedule derives bookable time slots from a provider's working hours.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

// DateLayout is the format of the {date} path segment of agenda and timeslot routes.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a date segment is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// DayBounds returns [midnight, next midnight) of the day containing t, in t's location.
// The next midnight is computed by calendar so DST transitions stay correct.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// AvailableSlots splits the provider's working window on date into SlotMinutes steps.
// A slot is unavailable when it overlaps any appointment that is not cancelled.
// Days the provider does not work yield an empty list. A trailing partial slot is dropped.
func AvailableSlots(provider models.Provider, date time.Time, appointments []models.Appointment) ([]models.TimeSlot, error) {
	wh := provider.WorkingHours
	if err := wh.Validate(); err != nil {
		return nil, fmt.Errorf("provider %s has invalid working hours: %w", provider.ID, err)
	}

	slots := []models.TimeSlot{}
	if !wh.WorksOn(date.Weekday()) {
		return slots, nil
	}

	// Validate already guaranteed both clocks parse.
	startMin, _ := models.ParseClock(wh.Start)
	endMin, _ := models.ParseClock(wh.End)
	day, _ := DayBounds(date)
	step := time.Duration(wh.SlotMinutes) * time.Minute

	windowEnd := clockOn(day, endMin)
	for start := clockOn(day, startMin); !start.Add(step).After(windowEnd); start = start.Add(step) {
		end := start.Add(step)
		slots = append(slots, models.TimeSlot{
			Start:     start,
			End:       end,
			Available: !booked(appointments, start, end),
		})
	}
	return slots, nil
}

func clockOn(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}

func booked(appointments []models.Appointment, start, end time.Time) bool {
	for i := range appointments {
		a := &appointments[i]
		if a.Status == models.AppointmentStatusCancelled {
			continue
		}
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// Conflicts returns the non-cancelled appointments in existing that overlap candidate,
// ignoring candidate itself when it is already stored.
func Conflicts(candidate models.Appointment, existing []models.Appointment) []models.Appointment {
	var out []models.Appointment
	if candidate.Status == models.AppointmentStatusCancelled {
		return out
	}
	for _, a := range existing {
		if a.ID == candidate.ID || a.Status == models.AppointmentStatusCancelled {
			continue
		}
		if a.Overlaps(candidate.Start, candidate.End) {
			out = append(out, a)
		}
	}
	return out
}
