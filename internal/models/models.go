// Package models defines the core data structures for PromptPanel.
//
// It includes the tenant records (businesses, providers, appointments, panel admins),
// chatbot state-machine configurations, conversation sessions and the standard API
// response envelope shared by the server and the client.
package models

import (
	"errors"
	"time"
)

// Validation constants for input validation
const (
	// MaxNameLength defines the maximum allowed length for names and titles
	MaxNameLength = 200
	// MaxInstructionsLength defines the maximum allowed length for free-text instructions
	MaxInstructionsLength = 8192
	// MaxTemplateBodyLength defines the maximum allowed length for a message template body
	MaxTemplateBodyLength = 4096
	// MaxAppointmentDuration bounds End - Start of an appointment
	MaxAppointmentDuration = 24 * time.Hour
)

// Error variables for better error handling and testability
var (
	ErrEmptyName           = errors.New("name is required")
	ErrNameTooLong         = errors.New("name exceeds maximum length")
	ErrEmptyEmail          = errors.New("email is required")
	ErrInvalidEmail        = errors.New("email is not valid")
	ErrEmptyPhone          = errors.New("phone is required")
	ErrEmptyBusinessID     = errors.New("business id is required")
	ErrEmptyProviderID     = errors.New("provider id is required")
	ErrInstructionsTooLong = errors.New("instructions exceed maximum length")
	ErrInvalidRole         = errors.New("invalid admin role")
	ErrEmptyPassword       = errors.New("password is required")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters")
	ErrInvalidTimeRange    = errors.New("end must be after start")
	ErrAppointmentTooLong  = errors.New("appointment must not last longer than 24 hours")
	ErrInvalidClock        = errors.New("time must be in HH:MM format")
	ErrInvalidSlotMinutes  = errors.New("slot minutes must be between 5 and 480")
	ErrInvalidWeekday      = errors.New("weekday must be between 0 (Sunday) and 6 (Saturday)")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrEmptyTemplateBody   = errors.New("template body is required")
	ErrTemplateTooLong     = errors.New("template body exceeds maximum length")
)

// APIStatus is the status field of every panel API envelope.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the envelope of every panel API reply. The client decodes Result into
// the resource it asked for and surfaces Message when Status is "error". A rejected
// state-machine configuration is the one error reply that also carries a Result: the
// list of violations.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// APIResponseBuilder assembles an APIResponse field by field.
type APIResponseBuilder struct {
	response APIResponse
}

func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the payload: a resource, a list, a BulkSummary or violations.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success wraps a resource returned by a read.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithResult(result).Build()
}

// SuccessWithMessage wraps the outcome of a write, e.g. "Business created".
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithMessage(message).WithResult(result).Build()
}

// Error is a failed reply; message is what the CLI prints.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusError).WithMessage(message).Build()
}

// ErrorWithDetails is a failed reply whose Result lists every problem found.
func ErrorWithDetails(message string, details []string) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusError).WithMessage(message).WithResult(details).Build()
}
