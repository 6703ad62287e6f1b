package api

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/PromptPanel/internal/messaging"
	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/util"
)

// Multipart field names accepted by POST /bulk-messages.
const (
	bulkTemplateField = "templateId"
	bulkFileField     = "csv"
)

func (s *Server) listTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.st.ListTemplates(r.Context())
	if err != nil {
		writeError(w, "listTemplatesHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}

func (s *Server) createTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var t models.MessageTemplate
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, "createTemplateHandler", err)
		return
	}
	t.ID = util.NewID(util.TemplateIDPrefix)
	t.Name = strings.TrimSpace(t.Name)
	t.CreatedAt = s.now()
	if err := t.Validate(); err != nil {
		writeError(w, "createTemplateHandler", invalid(err))
		return
	}
	if err := s.st.SaveTemplate(r.Context(), t); err != nil {
		writeError(w, "createTemplateHandler", err)
		return
	}
	slog.Info("Server.createTemplateHandler: template created", "id", t.ID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Template created", t))
}

func (s *Server) deleteTemplateHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.st.DeleteTemplate(r.Context(), id); err != nil {
		writeError(w, "deleteTemplateHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Template deleted", nil))
}

// readBulkRequest accepts either a JSON body or a multipart form with a CSV file.
func readBulkRequest(r *http.Request) (models.BulkSendRequest, error) {
	var req models.BulkSendRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := decodeJSON(r, &req); err != nil {
			return req, err
		}
		return req, nil
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return req, badRequest("Invalid multipart form")
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return req, bodyError(err, "Invalid multipart form")
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return req, bodyError(err, "Invalid multipart form")
		}
		switch part.FormName() {
		case bulkTemplateField:
			req.TemplateID = strings.TrimSpace(string(data))
		case bulkFileField:
			req.CSV = string(data)
		}
	}
	return req, nil
}

func (s *Server) bulkSendHandler(w http.ResponseWriter, r *http.Request) {
	if s.bulk == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("No messaging backend configured"))
		return
	}
	req, err := readBulkRequest(r)
	if err != nil {
		writeError(w, "bulkSendHandler", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "bulkSendHandler", invalid(err))
		return
	}
	tpl, err := s.st.GetTemplate(r.Context(), req.TemplateID)
	if err != nil {
		writeError(w, "bulkSendHandler", err)
		return
	}
	recipients, err := messaging.ParseRecipientsCSV(strings.NewReader(req.CSV))
	if err != nil {
		writeError(w, "bulkSendHandler", invalid(err))
		return
	}

	ctx := r.Context()
	if s.opts.BulkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.BulkTimeout)
		defer cancel()
	}
	slog.Info("Server.bulkSendHandler: starting bulk send", "template", tpl.ID, "recipients", len(recipients),
		"backend", s.msgService.Name())
	summary := s.bulk.Send(ctx, *tpl, recipients)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Bulk send completed", summary))
}
