package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/util"
)

func (s *Server) listBusinessesHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.st.ListBusinesses(r.Context())
	if err != nil {
		writeError(w, "listBusinessesHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}

func (s *Server) getBusinessHandler(w http.ResponseWriter, r *http.Request) {
	b, err := s.st.GetBusiness(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "getBusinessHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(b))
}

func (s *Server) createBusinessHandler(w http.ResponseWriter, r *http.Request) {
	var b models.Business
	if err := decodeJSON(r, &b); err != nil {
		writeError(w, "createBusinessHandler", err)
		return
	}
	now := s.now()
	b.ID = util.NewID(util.BusinessIDPrefix)
	b.Name = strings.TrimSpace(b.Name)
	b.CreatedAt, b.UpdatedAt = now, now
	if err := b.Validate(); err != nil {
		writeError(w, "createBusinessHandler", invalid(err))
		return
	}
	if err := s.st.SaveBusiness(r.Context(), b); err != nil {
		writeError(w, "createBusinessHandler", err)
		return
	}
	slog.Info("Server.createBusinessHandler: business created", "id", b.ID, "state_machine", b.StateMachineID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Business created", b))
}

// updateBusinessHandler replaces the business profile. Provider instructions are
// owned by their own endpoint and survive a profile update.
func (s *Server) updateBusinessHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in models.Business
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, "updateBusinessHandler", err)
		return
	}
	existing, err := s.st.GetBusiness(r.Context(), id)
	if err != nil {
		writeError(w, "updateBusinessHandler", err)
		return
	}
	in.ID = existing.ID
	in.Name = strings.TrimSpace(in.Name)
	in.ProviderInstructions = existing.ProviderInstructions
	in.CreatedAt = existing.CreatedAt
	in.UpdatedAt = s.now()
	if err := in.Validate(); err != nil {
		writeError(w, "updateBusinessHandler", invalid(err))
		return
	}
	if err := s.st.SaveBusiness(r.Context(), in); err != nil {
		writeError(w, "updateBusinessHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Business updated", in))
}

func (s *Server) deleteBusinessHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.st.DeleteBusiness(r.Context(), id); err != nil {
		writeError(w, "deleteBusinessHandler", err)
		return
	}
	slog.Info("Server.deleteBusinessHandler: business deleted", "id", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Business deleted", nil))
}

func (s *Server) getInstructionsHandler(w http.ResponseWriter, r *http.Request) {
	b, err := s.st.GetBusiness(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "getInstructionsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(models.ProviderInstructions{Instructions: b.ProviderInstructions}))
}

func (s *Server) updateInstructionsHandler(w http.ResponseWriter, r *http.Request) {
	var in models.ProviderInstructions
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, "updateInstructionsHandler", err)
		return
	}
	if len(in.Instructions) > models.MaxInstructionsLength {
		writeError(w, "updateInstructionsHandler", invalid(models.ErrInstructionsTooLong))
		return
	}
	b, err := s.st.GetBusiness(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "updateInstructionsHandler", err)
		return
	}
	b.ProviderInstructions = in.Instructions
	b.UpdatedAt = s.now()
	if err := s.st.SaveBusiness(r.Context(), *b); err != nil {
		writeError(w, "updateInstructionsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Provider instructions updated", in))
}

func (s *Server) listProvidersHandler(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "id")
	if _, err := s.st.GetBusiness(r.Context(), businessID); err != nil {
		writeError(w, "listProvidersHandler", err)
		return
	}
	list, err := s.st.ListProviders(r.Context(), businessID)
	if err != nil {
		writeError(w, "listProvidersHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}

func (s *Server) getProviderHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.st.GetProvider(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "providerId"))
	if err != nil {
		writeError(w, "getProviderHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

func (s *Server) createProviderHandler(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "id")
	var p models.Provider
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, "createProviderHandler", err)
		return
	}
	if _, err := s.st.GetBusiness(r.Context(), businessID); err != nil {
		writeError(w, "createProviderHandler", err)
		return
	}
	now := s.now()
	p.ID = util.NewID(util.ProviderIDPrefix)
	p.BusinessID = businessID
	p.Name = strings.TrimSpace(p.Name)
	p.CreatedAt, p.UpdatedAt = now, now
	if err := p.Validate(); err != nil {
		writeError(w, "createProviderHandler", invalid(err))
		return
	}
	if err := s.st.SaveProvider(r.Context(), p); err != nil {
		writeError(w, "createProviderHandler", err)
		return
	}
	slog.Info("Server.createProviderHandler: provider created", "business", businessID, "id", p.ID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Provider created", p))
}

func (s *Server) updateProviderHandler(w http.ResponseWriter, r *http.Request) {
	businessID, id := chi.URLParam(r, "id"), chi.URLParam(r, "providerId")
	var in models.Provider
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, "updateProviderHandler", err)
		return
	}
	existing, err := s.st.GetProvider(r.Context(), businessID, id)
	if err != nil {
		writeError(w, "updateProviderHandler", err)
		return
	}
	in.ID = existing.ID
	in.BusinessID = existing.BusinessID
	in.Name = strings.TrimSpace(in.Name)
	in.CreatedAt = existing.CreatedAt
	in.UpdatedAt = s.now()
	if err := in.Validate(); err != nil {
		writeError(w, "updateProviderHandler", invalid(err))
		return
	}
	if err := s.st.SaveProvider(r.Context(), in); err != nil {
		writeError(w, "updateProviderHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Provider updated", in))
}

func (s *Server) deleteProviderHandler(w http.ResponseWriter, r *http.Request) {
	businessID, id := chi.URLParam(r, "id"), chi.URLParam(r, "providerId")
	if err := s.st.DeleteProvider(r.Context(), businessID, id); err != nil {
		writeError(w, "deleteProviderHandler", err)
		return
	}
	slog.Info("Server.deleteProviderHandler: provider deleted", "business", businessID, "id", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Provider deleted", nil))
}
