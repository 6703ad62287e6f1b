package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/schedule"
	"github.com/BTreeMap/PromptPanel/internal/util"
)

// conflictLookback is how far before a candidate's start existing appointments are
// scanned for overlaps. Appointment.Validate caps every appointment at this length.
const conflictLookback = models.MaxAppointmentDuration

// providerDay loads the provider and its appointments for the {date} path segment.
func (s *Server) providerDay(r *http.Request) (*models.Provider, time.Time, []models.Appointment, error) {
	businessID, providerID := chi.URLParam(r, "id"), chi.URLParam(r, "providerId")
	date, err := schedule.ParseDate(chi.URLParam(r, "date"), s.opts.Location)
	if err != nil {
		return nil, time.Time{}, nil, invalid(err)
	}
	p, err := s.st.GetProvider(r.Context(), businessID, providerID)
	if err != nil {
		return nil, time.Time{}, nil, err
	}
	from, to := schedule.DayBounds(date)
	appts, err := s.st.ListAppointments(r.Context(), businessID, providerID, from, to)
	if err != nil {
		return nil, time.Time{}, nil, err
	}
	return p, date, appts, nil
}

func (s *Server) agendaHandler(w http.ResponseWriter, r *http.Request) {
	_, _, appts, err := s.providerDay(r)
	if err != nil {
		writeError(w, "agendaHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(appts))
}

func (s *Server) timeslotsHandler(w http.ResponseWriter, r *http.Request) {
	p, date, appts, err := s.providerDay(r)
	if err != nil {
		writeError(w, "timeslotsHandler", err)
		return
	}
	slots, err := schedule.AvailableSlots(*p, date, appts)
	if err != nil {
		writeError(w, "timeslotsHandler", invalid(err))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(slots))
}

// checkConflicts rejects a non-cancelled appointment that overlaps another one of the same provider.
func (s *Server) checkConflicts(ctx context.Context, a models.Appointment) error {
	existing, err := s.st.ListAppointments(ctx, a.BusinessID, a.ProviderID, a.Start.Add(-conflictLookback), a.End)
	if err != nil {
		return err
	}
	if clash := schedule.Conflicts(a, existing); len(clash) > 0 {
		first := clash[0]
		return conflict(fmt.Sprintf("provider already has an appointment from %s to %s",
			first.Start.In(s.opts.Location).Format(time.RFC3339), first.End.In(s.opts.Location).Format(time.RFC3339)))
	}
	return nil
}

func (s *Server) createAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "id")
	var a models.Appointment
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, "createAppointmentHandler", err)
		return
	}
	now := s.now()
	a.ID = util.NewID(util.AppointmentIDPrefix)
	a.BusinessID = businessID
	a.CustomerName = strings.TrimSpace(a.CustomerName)
	if a.Status == "" {
		a.Status = models.AppointmentStatusScheduled
	}
	a.CreatedAt, a.UpdatedAt = now, now
	if err := a.Validate(); err != nil {
		writeError(w, "createAppointmentHandler", invalid(err))
		return
	}
	if _, err := s.st.GetProvider(r.Context(), businessID, a.ProviderID); err != nil {
		writeError(w, "createAppointmentHandler", err)
		return
	}
	if err := s.checkConflicts(r.Context(), a); err != nil {
		writeError(w, "createAppointmentHandler", err)
		return
	}
	if err := s.st.SaveAppointment(r.Context(), a); err != nil {
		writeError(w, "createAppointmentHandler", err)
		return
	}
	slog.Info("Server.createAppointmentHandler: appointment booked", "business", businessID,
		"provider", a.ProviderID, "id", a.ID, "start", a.Start)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Appointment created", a))
}

func (s *Server) updateAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	businessID, id := chi.URLParam(r, "id"), chi.URLParam(r, "appointmentId")
	var in models.Appointment
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, "updateAppointmentHandler", err)
		return
	}
	existing, err := s.st.GetAppointment(r.Context(), businessID, id)
	if err != nil {
		writeError(w, "updateAppointmentHandler", err)
		return
	}
	in.ID = existing.ID
	in.BusinessID = existing.BusinessID
	if in.ProviderID == "" {
		in.ProviderID = existing.ProviderID
	}
	if in.Status == "" {
		in.Status = existing.Status
	}
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CreatedAt = existing.CreatedAt
	in.UpdatedAt = s.now()
	if err := in.Validate(); err != nil {
		writeError(w, "updateAppointmentHandler", invalid(err))
		return
	}
	if in.ProviderID != existing.ProviderID {
		if _, err := s.st.GetProvider(r.Context(), businessID, in.ProviderID); err != nil {
			writeError(w, "updateAppointmentHandler", err)
			return
		}
	}
	if err := s.checkConflicts(r.Context(), in); err != nil {
		writeError(w, "updateAppointmentHandler", err)
		return
	}
	if err := s.st.SaveAppointment(r.Context(), in); err != nil {
		writeError(w, "updateAppointmentHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Appointment updated", in))
}

func (s *Server) deleteAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	businessID, id := chi.URLParam(r, "id"), chi.URLParam(r, "appointmentId")
	if err := s.st.DeleteAppointment(r.Context(), businessID, id); err != nil {
		writeError(w, "deleteAppointmentHandler", err)
		return
	}
	slog.Info("Server.deleteAppointmentHandler: appointment deleted", "business", businessID, "id", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Appointment deleted", nil))
}
