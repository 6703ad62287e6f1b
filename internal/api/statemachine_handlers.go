package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/statemachine"
	"github.com/BTreeMap/PromptPanel/internal/util"
)

// writeConfigRejected reports every violation so the editor can highlight all of them at once.
func writeConfigRejected(w http.ResponseWriter, handler string, err error) {
	var agg *statemachine.AggregateError
	if !errors.As(err, &agg) {
		writeError(w, handler, err)
		return
	}
	violations := make([]string, len(agg.Errors))
	for i, v := range agg.Errors {
		violations[i] = v.Error()
	}
	slog.Warn("Server."+handler+": configuration rejected", "violations", len(violations))
	writeJSONResponse(w, http.StatusBadRequest, models.ErrorWithDetails(err.Error(), violations))
}

func (s *Server) listConfigsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.st.ListStateMachineConfigs(r.Context())
	if err != nil {
		writeError(w, "listConfigsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}

func (s *Server) getConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.st.GetStateMachineConfig(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "getConfigHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(cfg))
}

func (s *Server) createConfigHandler(w http.ResponseWriter, r *http.Request) {
	var cfg models.StateMachineConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, "createConfigHandler", err)
		return
	}
	now := s.now()
	cfg.ID = util.NewID(util.StateMachineIDPrefix)
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	statemachine.Normalize(&cfg)
	if err := statemachine.Validate(&cfg); err != nil {
		writeConfigRejected(w, "createConfigHandler", err)
		return
	}
	if err := s.st.SaveStateMachineConfig(r.Context(), cfg); err != nil {
		writeError(w, "createConfigHandler", err)
		return
	}
	slog.Info("Server.createConfigHandler: configuration created", "id", cfg.ID, "states", len(cfg.States),
		"transitions", len(cfg.Transitions))
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("State machine configuration created", cfg))
}

// updateConfigHandler replaces the configuration. Concurrent saves are last-write-wins.
func (s *Server) updateConfigHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var cfg models.StateMachineConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, "updateConfigHandler", err)
		return
	}
	existing, err := s.st.GetStateMachineConfig(r.Context(), id)
	if err != nil {
		writeError(w, "updateConfigHandler", err)
		return
	}
	cfg.ID = existing.ID
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = s.now()
	statemachine.Normalize(&cfg)
	if err := statemachine.Validate(&cfg); err != nil {
		writeConfigRejected(w, "updateConfigHandler", err)
		return
	}
	if err := s.st.SaveStateMachineConfig(r.Context(), cfg); err != nil {
		writeError(w, "updateConfigHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("State machine configuration updated", cfg))
}

func (s *Server) deleteConfigHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.st.DeleteStateMachineConfig(r.Context(), id); err != nil {
		writeError(w, "deleteConfigHandler", err)
		return
	}
	slog.Info("Server.deleteConfigHandler: configuration deleted", "id", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("State machine configuration deleted", nil))
}
