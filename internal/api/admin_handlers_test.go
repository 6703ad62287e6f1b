package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/store"
)

func TestPanelAdminCRUD(t *testing.T) {
	h := newHarness(t)

	h.expectError(h.do(http.MethodPost, "/panel-admin", models.PanelAdminRequest{Name: "Bia", Email: "bia@example.com", Password: "short"}), http.StatusBadRequest)
	h.expectError(h.do(http.MethodPost, "/panel-admin", models.PanelAdminRequest{Name: "Bia", Email: "not-an-email", Password: "long-enough"}), http.StatusBadRequest)

	rec := h.do(http.MethodPost, "/panel-admin", models.PanelAdminRequest{Name: "Bia", Email: "bia@example.com", Password: "long-enough"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	var bia models.PanelAdmin
	h.result(rec, &bia)
	assert.Equal(t, models.AdminRoleAdmin, bia.Role)

	msg := h.expectError(h.do(http.MethodPost, "/panel-admin", models.PanelAdminRequest{Name: "Dup", Email: "BIA@example.com", Password: "long-enough"}), http.StatusConflict)
	assert.Contains(t, msg, "already exists")

	var list []models.PanelAdmin
	h.result(h.do(http.MethodGet, "/panel-admin", nil), &list)
	assert.Len(t, list, 2)

	// The new admin can sign in and read, but not manage admins.
	biaToken := h.login("bia@example.com", "long-enough")
	assert.Equal(t, http.StatusOK, h.doAs(biaToken, http.MethodGet, "/panel-admin/"+bia.ID, nil).Code)
	h.expectError(h.doAs(biaToken, http.MethodPost, "/panel-admin", models.PanelAdminRequest{Name: "X", Email: "x@example.com", Password: "long-enough"}), http.StatusForbidden)
	h.expectError(h.doAs(biaToken, http.MethodDelete, "/panel-admin/"+bia.ID, nil), http.StatusForbidden)

	// Password change takes effect; an empty password keeps the old one.
	rec = h.do(http.MethodPut, "/panel-admin/"+bia.ID, models.PanelAdminRequest{Name: "Beatriz", Email: "bia@example.com", Password: "new-password"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h.login("bia@example.com", "new-password")
	rec = h.do(http.MethodPut, "/panel-admin/"+bia.ID, models.PanelAdminRequest{Name: "Beatriz", Email: "bia@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h.login("bia@example.com", "new-password")

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/panel-admin/"+bia.ID, nil).Code)
	h.expectError(h.do(http.MethodGet, "/panel-admin/"+bia.ID, nil), http.StatusNotFound)
}

func TestPanelAdminKeepsOneSuperAdmin(t *testing.T) {
	h := newHarness(t)
	owner, err := h.st.GetPanelAdminByEmail(context.Background(), testOwnerEmail)
	require.NoError(t, err)

	h.expectError(h.do(http.MethodDelete, "/panel-admin/"+owner.ID, nil), http.StatusConflict)

	demote := models.PanelAdminRequest{Name: owner.Name, Email: owner.Email, Role: models.AdminRoleAdmin}
	msg := h.expectError(h.do(http.MethodPut, "/panel-admin/"+owner.ID, demote), http.StatusConflict)
	assert.Contains(t, msg, "superadmin")

	// With a second superadmin the first may be demoted.
	rec := h.do(http.MethodPost, "/panel-admin", models.PanelAdminRequest{Name: "Caio", Email: "caio@example.com", Role: models.AdminRoleSuperAdmin, Password: "long-enough"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, http.StatusOK, h.do(http.MethodPut, "/panel-admin/"+owner.ID, demote).Code)
}

func TestRemovedAdminTokenIsRejected(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/panel-admin", models.PanelAdminRequest{Name: "Caio", Email: "caio@example.com", Role: models.AdminRoleSuperAdmin, Password: "long-enough"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var caio models.PanelAdmin
	h.result(rec, &caio)
	caioToken := h.login("caio@example.com", "long-enough")

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/panel-admin/"+caio.ID, nil).Code)

	msg := h.expectError(h.doAs(caioToken, http.MethodPost, "/panel-admin", models.PanelAdminRequest{Name: "Eve", Email: "eve@example.com", Role: models.AdminRoleSuperAdmin, Password: "long-enough"}), http.StatusUnauthorized)
	assert.Contains(t, msg, "no longer exists")
	h.expectError(h.doAs(caioToken, http.MethodGet, "/business", nil), http.StatusUnauthorized)

	_, err := h.st.GetPanelAdminByEmail(context.Background(), "eve@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDemotedAdminTokenLosesSuperAdminRights(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/panel-admin", models.PanelAdminRequest{Name: "Dani", Email: "dani@example.com", Role: models.AdminRoleSuperAdmin, Password: "long-enough"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dani models.PanelAdmin
	h.result(rec, &dani)
	daniToken := h.login("dani@example.com", "long-enough")
	require.Equal(t, http.StatusOK, h.doAs(daniToken, http.MethodGet, "/panel-admin", nil).Code)

	demote := models.PanelAdminRequest{Name: dani.Name, Email: dani.Email, Role: models.AdminRoleAdmin}
	require.Equal(t, http.StatusOK, h.do(http.MethodPut, "/panel-admin/"+dani.ID, demote).Code)

	h.expectError(h.doAs(daniToken, http.MethodPost, "/panel-admin", models.PanelAdminRequest{Name: "Eve", Email: "eve@example.com", Role: models.AdminRoleSuperAdmin, Password: "long-enough"}), http.StatusForbidden)
	h.expectError(h.doAs(daniToken, http.MethodDelete, "/panel-admin/"+dani.ID, nil), http.StatusForbidden)
	assert.Equal(t, http.StatusOK, h.doAs(daniToken, http.MethodGet, "/business", nil).Code, "plain admin rights remain")
}
