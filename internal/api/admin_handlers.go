package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/PromptPanel/internal/auth"
	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/store"
	"github.com/BTreeMap/PromptPanel/internal/util"
)

// BootstrapAdminName is the display name of the account created by BootstrapAdmin.
const BootstrapAdminName = "Panel Owner"

// BootstrapAdmin creates a superadmin when the store has no panel admins yet.
// It is a no-op once any admin exists, so restarts never reset credentials.
func (s *Server) BootstrapAdmin(ctx context.Context, email, password string) error {
	if email == "" {
		return nil
	}
	admins, err := s.st.ListPanelAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to list panel admins: %w", err)
	}
	if len(admins) > 0 {
		slog.Debug("Server.BootstrapAdmin: admins already present, skipping", "count", len(admins))
		return nil
	}
	if err := models.ValidatePassword(password); err != nil {
		return fmt.Errorf("bootstrap admin password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	now := s.now()
	admin := models.PanelAdmin{
		ID:           util.NewID(util.AdminIDPrefix),
		Name:         BootstrapAdminName,
		Email:        strings.TrimSpace(email),
		Role:         models.AdminRoleSuperAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := admin.Validate(); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if err := s.st.SavePanelAdmin(ctx, admin); err != nil {
		return fmt.Errorf("failed to save bootstrap admin: %w", err)
	}
	slog.Info("Server.BootstrapAdmin: created initial superadmin", "id", admin.ID, "email", admin.Email)
	return nil
}

func (s *Server) authHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AuthRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "authHandler", err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, "authHandler", badRequest("email and password are required"))
		return
	}

	admin, err := s.st.GetPanelAdminByEmail(r.Context(), strings.TrimSpace(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "authHandler", auth.ErrInvalidCredentials)
		return
	}
	if err != nil {
		writeError(w, "authHandler", err)
		return
	}
	if err := auth.CheckPassword(admin.PasswordHash, req.Password); err != nil {
		writeError(w, "authHandler", err)
		return
	}

	token, expires, err := s.issuer.Issue(*admin)
	if err != nil {
		writeError(w, "authHandler", err)
		return
	}
	slog.Info("Server.authHandler: admin signed in", "id", admin.ID, "role", admin.Role)
	writeJSONResponse(w, http.StatusOK, models.Success(models.AuthResponse{
		Token:     token,
		ExpiresAt: expires,
		Admin:     *admin,
	}))
}

func (s *Server) listAdminsHandler(w http.ResponseWriter, r *http.Request) {
	admins, err := s.st.ListPanelAdmins(r.Context())
	if err != nil {
		writeError(w, "listAdminsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(admins))
}

func (s *Server) getAdminHandler(w http.ResponseWriter, r *http.Request) {
	admin, err := s.st.GetPanelAdmin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "getAdminHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(admin))
}

func (s *Server) createAdminHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PanelAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "createAdminHandler", err)
		return
	}
	if req.Role == "" {
		req.Role = models.AdminRoleAdmin
	}
	now := s.now()
	admin := models.PanelAdmin{
		ID:        util.NewID(util.AdminIDPrefix),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Role:      req.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := admin.Validate(); err != nil {
		writeError(w, "createAdminHandler", invalid(err))
		return
	}
	if err := models.ValidatePassword(req.Password); err != nil {
		writeError(w, "createAdminHandler", invalid(err))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, "createAdminHandler", err)
		return
	}
	admin.PasswordHash = hash

	if err := s.st.SavePanelAdmin(r.Context(), admin); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = conflict("a panel admin with this email already exists")
		}
		writeError(w, "createAdminHandler", err)
		return
	}
	slog.Info("Server.createAdminHandler: panel admin created", "id", admin.ID, "role", admin.Role)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Panel admin created", admin))
}

func (s *Server) updateAdminHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.PanelAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "updateAdminHandler", err)
		return
	}
	admin, err := s.st.GetPanelAdmin(r.Context(), id)
	if err != nil {
		writeError(w, "updateAdminHandler", err)
		return
	}

	admin.Name = strings.TrimSpace(req.Name)
	admin.Email = strings.TrimSpace(req.Email)
	if req.Role != "" {
		admin.Role = req.Role
	}
	if err := admin.Validate(); err != nil {
		writeError(w, "updateAdminHandler", invalid(err))
		return
	}
	if admin.Role != models.AdminRoleSuperAdmin {
		if err := s.keepOneSuperAdmin(r.Context(), id); err != nil {
			writeError(w, "updateAdminHandler", err)
			return
		}
	}
	if req.Password != "" {
		if err := models.ValidatePassword(req.Password); err != nil {
			writeError(w, "updateAdminHandler", invalid(err))
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, "updateAdminHandler", err)
			return
		}
		admin.PasswordHash = hash
	}
	admin.UpdatedAt = s.now()

	if err := s.st.SavePanelAdmin(r.Context(), *admin); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = conflict("a panel admin with this email already exists")
		}
		writeError(w, "updateAdminHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Panel admin updated", admin))
}

func (s *Server) deleteAdminHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if claims := claimsFrom(r.Context()); claims != nil && claims.Subject == id {
		writeError(w, "deleteAdminHandler", conflict("you cannot delete your own account"))
		return
	}
	if err := s.keepOneSuperAdmin(r.Context(), id); err != nil {
		writeError(w, "deleteAdminHandler", err)
		return
	}
	if err := s.st.DeletePanelAdmin(r.Context(), id); err != nil {
		writeError(w, "deleteAdminHandler", err)
		return
	}
	slog.Info("Server.deleteAdminHandler: panel admin deleted", "id", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Panel admin deleted", nil))
}

// keepOneSuperAdmin fails when removing superadmin rights from id would leave none.
func (s *Server) keepOneSuperAdmin(ctx context.Context, id string) error {
	admins, err := s.st.ListPanelAdmins(ctx)
	if err != nil {
		return err
	}
	target := false
	others := 0
	for _, a := range admins {
		if a.Role != models.AdminRoleSuperAdmin {
			continue
		}
		if a.ID == id {
			target = true
		} else {
			others++
		}
	}
	if target && others == 0 {
		return conflict("at least one superadmin must remain")
	}
	return nil
}
