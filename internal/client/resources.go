package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/schedule"
	"github.com/BTreeMap/PromptPanel/internal/statemachine"
)

func esc(s string) string {
	return url.PathEscape(s)
}

// getList fetches a collection; the result is never nil on success.
func getList[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var out []T
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Panel admins

func (c *Client) ListPanelAdmins(ctx context.Context) ([]models.PanelAdmin, error) {
	return getList[models.PanelAdmin](ctx, c, "/panel-admin")
}

func (c *Client) GetPanelAdmin(ctx context.Context, id string) (*models.PanelAdmin, error) {
	var out models.PanelAdmin
	if err := c.do(ctx, http.MethodGet, "/panel-admin/"+esc(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePanelAdmin checks the password policy locally before submitting.
func (c *Client) CreatePanelAdmin(ctx context.Context, req models.PanelAdminRequest) (*models.PanelAdmin, error) {
	if err := models.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	var out models.PanelAdmin
	if err := c.do(ctx, http.MethodPost, "/panel-admin", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePanelAdmin(ctx context.Context, id string, req models.PanelAdminRequest) (*models.PanelAdmin, error) {
	if req.Password != "" {
		if err := models.ValidatePassword(req.Password); err != nil {
			return nil, err
		}
	}
	var out models.PanelAdmin
	if err := c.do(ctx, http.MethodPut, "/panel-admin/"+esc(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePanelAdmin(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/panel-admin/"+esc(id), nil, nil)
}

// Businesses

func (c *Client) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	return getList[models.Business](ctx, c, "/business")
}

func (c *Client) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	var out models.Business
	if err := c.do(ctx, http.MethodGet, "/business/"+esc(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBusiness validates required fields locally before submitting.
func (c *Client) CreateBusiness(ctx context.Context, b models.Business) (*models.Business, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	var out models.Business
	if err := c.do(ctx, http.MethodPost, "/business", b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateBusiness(ctx context.Context, b models.Business) (*models.Business, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	var out models.Business
	if err := c.do(ctx, http.MethodPut, "/business/"+esc(b.ID), b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteBusiness(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/business/"+esc(id), nil, nil)
}

func (c *Client) GetProviderInstructions(ctx context.Context, businessID string) (string, error) {
	var out models.ProviderInstructions
	if err := c.do(ctx, http.MethodGet, "/business/"+esc(businessID)+"/provider-instructions", nil, &out); err != nil {
		return "", err
	}
	return out.Instructions, nil
}

func (c *Client) UpdateProviderInstructions(ctx context.Context, businessID, instructions string) error {
	if len(instructions) > models.MaxInstructionsLength {
		return models.ErrInstructionsTooLong
	}
	return c.do(ctx, http.MethodPut, "/business/"+esc(businessID)+"/provider-instructions",
		models.ProviderInstructions{Instructions: instructions}, nil)
}

// Providers

func (c *Client) ListProviders(ctx context.Context, businessID string) ([]models.Provider, error) {
	return getList[models.Provider](ctx, c, "/business/"+esc(businessID)+"/providers")
}

func (c *Client) GetProvider(ctx context.Context, businessID, id string) (*models.Provider, error) {
	var out models.Provider
	if err := c.do(ctx, http.MethodGet, "/business/"+esc(businessID)+"/provider/"+esc(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateProvider(ctx context.Context, businessID string, p models.Provider) (*models.Provider, error) {
	p.BusinessID = businessID
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out models.Provider
	if err := c.do(ctx, http.MethodPost, "/business/"+esc(businessID)+"/providers", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProvider(ctx context.Context, p models.Provider) (*models.Provider, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out models.Provider
	if err := c.do(ctx, http.MethodPut, "/business/"+esc(p.BusinessID)+"/provider/"+esc(p.ID), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProvider(ctx context.Context, businessID, id string) error {
	return c.do(ctx, http.MethodDelete, "/business/"+esc(businessID)+"/provider/"+esc(id), nil, nil)
}

// Agenda

// Agenda lists a provider's appointments on date. Only the calendar day of date is used.
func (c *Client) Agenda(ctx context.Context, businessID, providerID string, date time.Time) ([]models.Appointment, error) {
	path := fmt.Sprintf("/business/%s/agenda/%s/%s", esc(businessID), esc(providerID), date.Format(schedule.DateLayout))
	return getList[models.Appointment](ctx, c, path)
}

func (c *Client) TimeSlots(ctx context.Context, businessID, providerID string, date time.Time) ([]models.TimeSlot, error) {
	path := fmt.Sprintf("/business/%s/appointment/%s/timeslots/%s", esc(businessID), esc(providerID), date.Format(schedule.DateLayout))
	return getList[models.TimeSlot](ctx, c, path)
}

func (c *Client) CreateAppointment(ctx context.Context, businessID string, a models.Appointment) (*models.Appointment, error) {
	var out models.Appointment
	if err := c.do(ctx, http.MethodPost, "/business/"+esc(businessID)+"/appointment", a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAppointment(ctx context.Context, a models.Appointment) (*models.Appointment, error) {
	var out models.Appointment
	if err := c.do(ctx, http.MethodPut, "/business/"+esc(a.BusinessID)+"/appointment/"+esc(a.ID), a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAppointment(ctx context.Context, businessID, id string) error {
	return c.do(ctx, http.MethodDelete, "/business/"+esc(businessID)+"/appointment/"+esc(id), nil, nil)
}

// State-machine configurations

func (c *Client) ListStateMachineConfigs(ctx context.Context) ([]models.StateMachineConfig, error) {
	return getList[models.StateMachineConfig](ctx, c, "/state-machine-config")
}

func (c *Client) GetStateMachineConfig(ctx context.Context, id string) (*models.StateMachineConfig, error) {
	var out models.StateMachineConfig
	if err := c.do(ctx, http.MethodGet, "/state-machine-config/"+esc(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveStateMachineConfig runs the editor's Validate and submits only a valid configuration.
// An empty ID creates a new configuration; otherwise the stored one is replaced.
func (c *Client) SaveStateMachineConfig(ctx context.Context, cfg models.StateMachineConfig) (*models.StateMachineConfig, error) {
	draft := cfg.Clone()
	statemachine.Normalize(draft)
	if err := statemachine.Validate(draft); err != nil {
		return nil, err
	}
	method, path := http.MethodPost, "/state-machine-config"
	if draft.ID != "" {
		method, path = http.MethodPut, "/state-machine-config/"+esc(draft.ID)
	}
	var out models.StateMachineConfig
	if err := c.do(ctx, method, path, draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteStateMachineConfig refuses locally when a business still references the
// configuration. The server repeats the check atomically and answers 409 if one
// was attached in the meantime.
func (c *Client) DeleteStateMachineConfig(ctx context.Context, id string) error {
	businesses, err := c.ListBusinesses(ctx)
	if err != nil {
		return err
	}
	var users []string
	for _, b := range businesses {
		if b.StateMachineID == id {
			users = append(users, b.Name)
		}
	}
	if len(users) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigInUse, strings.Join(users, ", "))
	}
	return c.do(ctx, http.MethodDelete, "/state-machine-config/"+esc(id), nil, nil)
}

// Conversation sessions

func (c *Client) ListSessions(ctx context.Context, activeOnly bool) ([]models.ConversationSession, error) {
	path := "/conversation-sessions"
	if activeOnly {
		path += "?active=true"
	}
	return getList[models.ConversationSession](ctx, c, path)
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.ConversationSession, error) {
	var out models.ConversationSession
	if err := c.do(ctx, http.MethodGet, "/conversation-sessions/"+esc(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TerminateSession(ctx context.Context, id string) (*models.ConversationSession, error) {
	var out models.ConversationSession
	if err := c.do(ctx, http.MethodDelete, "/conversation-sessions/"+esc(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Message templates and bulk sends

func (c *Client) ListTemplates(ctx context.Context) ([]models.MessageTemplate, error) {
	return getList[models.MessageTemplate](ctx, c, "/message-templates")
}

func (c *Client) CreateTemplate(ctx context.Context, name, body string) (*models.MessageTemplate, error) {
	tpl := models.MessageTemplate{Name: name, Body: body}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	var out models.MessageTemplate
	if err := c.do(ctx, http.MethodPost, "/message-templates", tpl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/message-templates/"+esc(id), nil, nil)
}

// BulkSend uploads csvData as a multipart form, the way the dashboard uploads a file.
func (c *Client) BulkSend(ctx context.Context, templateID string, csvData []byte) (*models.BulkSummary, error) {
	req := models.BulkSendRequest{TemplateID: templateID, CSV: string(csvData)}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("templateId", templateID); err != nil {
		return nil, err
	}
	fw, err := mw.CreateFormFile("csv", "recipients.csv")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(csvData); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bulk-messages", &buf)
	if err != nil {
		return nil, fmt.Errorf("build bulk send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	var out models.BulkSummary
	if err := c.send(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
