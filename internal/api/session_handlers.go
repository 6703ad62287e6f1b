package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := r.URL.Query().Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, "listSessionsHandler", badRequest("active must be true or false"))
			return
		}
		activeOnly = b
	}
	list, err := s.sessions.List(r.Context(), activeOnly)
	if err != nil {
		writeError(w, "listSessionsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "getSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}

// terminateSessionHandler marks the session terminated; repeating it is harmless.
func (s *Server) terminateSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Terminate(r.Context(), id)
	if err != nil {
		writeError(w, "terminateSessionHandler", err)
		return
	}
	actor := ""
	if claims := claimsFrom(r.Context()); claims != nil {
		actor = claims.Subject
	}
	slog.Info("Server.terminateSessionHandler: session terminated", "id", id, "by", actor)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session terminated", sess))
}
