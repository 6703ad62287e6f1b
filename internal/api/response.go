// Package api provides HTTP response utilities for PromptPanel.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PromptPanel/internal/auth"
	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/sessions"
	"github.com/BTreeMap/PromptPanel/internal/statemachine"
	"github.com/BTreeMap/PromptPanel/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusError carries an explicit HTTP status for handler-level failures.
type statusError struct {
	status int
	msg    string
	err    error
}

func (e *statusError) Error() string { return e.msg }

func (e *statusError) Unwrap() error { return e.err }

// badRequest is a 400 with msg as the response text.
func badRequest(msg string) error {
	return &statusError{status: http.StatusBadRequest, msg: msg}
}

// invalid turns a validation failure into a 400 carrying its message.
func invalid(err error) error {
	return &statusError{status: http.StatusBadRequest, msg: err.Error(), err: err}
}

// conflict is a 409 with msg as the response text.
func conflict(msg string) error {
	return &statusError{status: http.StatusConflict, msg: msg}
}

// forbidden is a 403 with msg as the response text.
func forbidden(msg string) error {
	return &statusError{status: http.StatusForbidden, msg: msg}
}

// statusFor maps an error to an HTTP status and the message shown to the client.
// Unknown errors become a generic 500 so internals never leak.
func statusFor(err error) (int, string) {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.status, se.msg
	case errors.Is(err, store.ErrNotFound), errors.Is(err, sessions.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, store.ErrConfigInUse), errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, err.Error()
	case statemachine.IsValidation(err), errors.Is(err, store.ErrUnknownReference):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeError logs err under the handler name and writes the mapped envelope.
func writeError(w http.ResponseWriter, handler string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Server."+handler+": request failed", "error", err)
	} else {
		slog.Warn("Server."+handler+": request rejected", "status", status, "error", err)
	}
	writeJSONResponse(w, status, models.Error(msg))
}

// decodeJSON reads the request body into v. Decode failures are reported as
// "Invalid JSON format" and oversized bodies as 413.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bodyError(err, "Invalid JSON format")
	}
	return nil
}

// bodyError maps a failed body read to 413 when the size cap tripped, else to a 400 with msg.
func bodyError(err error, msg string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &statusError{status: http.StatusRequestEntityTooLarge, msg: "Request body too large", err: err}
	}
	return &statusError{status: http.StatusBadRequest, msg: msg, err: err}
}
