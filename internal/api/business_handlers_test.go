package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

func (h *harness) createBusiness(name string) models.Business {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/business", models.Business{Name: name, Phone: "+55 11 99999-9999", Email: "front@example.com"})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var b models.Business
	h.result(rec, &b)
	return b
}

func (h *harness) createProvider(businessID string, wh models.WorkingHours) models.Provider {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/business/"+businessID+"/providers", models.Provider{Name: "Dr. Silva", Specialty: "dentist", WorkingHours: wh})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var p models.Provider
	h.result(rec, &p)
	return p
}

var mondayMorning = models.WorkingHours{Start: "09:00", End: "11:00", SlotMinutes: 30, Weekdays: []int{1}}

func TestBusinessCRUD(t *testing.T) {
	h := newHarness(t)

	msg := h.expectError(h.do(http.MethodPost, "/business", models.Business{Phone: "1"}), http.StatusBadRequest)
	assert.Equal(t, models.ErrEmptyName.Error(), msg)

	b := h.createBusiness("Clinic")
	assert.NotEmpty(t, b.ID)
	assert.False(t, b.CreatedAt.IsZero())

	var list []models.Business
	h.result(h.do(http.MethodGet, "/business", nil), &list)
	require.Len(t, list, 1)

	b.Name = "Clinic Downtown"
	rec := h.do(http.MethodPut, "/business/"+b.ID, b)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got models.Business
	h.result(h.do(http.MethodGet, "/business/"+b.ID, nil), &got)
	assert.Equal(t, "Clinic Downtown", got.Name)
	assert.True(t, got.CreatedAt.Equal(b.CreatedAt))

	h.expectError(h.do(http.MethodPut, "/business/missing", b), http.StatusNotFound)

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/business/"+b.ID, nil).Code)
	h.expectError(h.do(http.MethodGet, "/business/"+b.ID, nil), http.StatusNotFound)
	h.expectError(h.do(http.MethodDelete, "/business/"+b.ID, nil), http.StatusNotFound)
}

func TestBusinessUnknownStateMachine(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/business", models.Business{Name: "Clinic", Phone: "1", StateMachineID: "sm_missing"})
	h.expectError(rec, http.StatusBadRequest)
}

func TestProviderInstructions(t *testing.T) {
	h := newHarness(t)
	b := h.createBusiness("Clinic")

	rec := h.do(http.MethodPut, "/business/"+b.ID+"/provider-instructions", models.ProviderInstructions{Instructions: "Always confirm the insurance plan."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got models.ProviderInstructions
	h.result(h.do(http.MethodGet, "/business/"+b.ID+"/provider-instructions", nil), &got)
	assert.Equal(t, "Always confirm the insurance plan.", got.Instructions)

	// A profile update leaves the instructions alone.
	b.Address = "Main St 1"
	require.Equal(t, http.StatusOK, h.do(http.MethodPut, "/business/"+b.ID, b).Code)
	h.result(h.do(http.MethodGet, "/business/"+b.ID+"/provider-instructions", nil), &got)
	assert.Equal(t, "Always confirm the insurance plan.", got.Instructions)

	long := make([]byte, models.MaxInstructionsLength+1)
	for i := range long {
		long[i] = 'a'
	}
	h.expectError(h.do(http.MethodPut, "/business/"+b.ID+"/provider-instructions", models.ProviderInstructions{Instructions: string(long)}), http.StatusBadRequest)
	h.expectError(h.do(http.MethodGet, "/business/missing/provider-instructions", nil), http.StatusNotFound)
}

func TestProviderCRUD(t *testing.T) {
	h := newHarness(t)
	b := h.createBusiness("Clinic")

	bad := models.Provider{Name: "Dr. Bad", WorkingHours: models.WorkingHours{Start: "10:00", End: "09:00", SlotMinutes: 30}}
	h.expectError(h.do(http.MethodPost, "/business/"+b.ID+"/providers", bad), http.StatusBadRequest)
	h.expectError(h.do(http.MethodPost, "/business/missing/providers", bad), http.StatusNotFound)

	p := h.createProvider(b.ID, mondayMorning)
	assert.Equal(t, b.ID, p.BusinessID)

	var list []models.Provider
	h.result(h.do(http.MethodGet, "/business/"+b.ID+"/providers", nil), &list)
	require.Len(t, list, 1)

	p.Specialty = "orthodontist"
	p.BusinessID = "someone-else"
	rec := h.do(http.MethodPut, "/business/"+b.ID+"/provider/"+p.ID, p)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got models.Provider
	h.result(h.do(http.MethodGet, "/business/"+b.ID+"/provider/"+p.ID, nil), &got)
	assert.Equal(t, "orthodontist", got.Specialty)
	assert.Equal(t, b.ID, got.BusinessID)

	other := h.createBusiness("Other")
	h.expectError(h.do(http.MethodGet, "/business/"+other.ID+"/provider/"+p.ID, nil), http.StatusNotFound)

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/business/"+b.ID+"/provider/"+p.ID, nil).Code)
	h.expectError(h.do(http.MethodGet, "/business/"+b.ID+"/provider/"+p.ID, nil), http.StatusNotFound)
}

func TestDeleteBusinessCascades(t *testing.T) {
	h := newHarness(t)
	b := h.createBusiness("Clinic")
	p := h.createProvider(b.ID, mondayMorning)

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/business/"+b.ID, nil).Code)
	h.expectError(h.do(http.MethodGet, "/business/"+b.ID+"/provider/"+p.ID, nil), http.StatusNotFound)
}
