package models

import "errors"

var (
	ErrEmptyCSV        = errors.New("csv content is required")
	ErrEmptyTemplateID = errors.New("template id is required")
)

// BulkSendRequest is the payload of POST /bulk-messages.
type BulkSendRequest struct {
	TemplateID string `json:"templateId"`
	CSV        string `json:"csv"`
}

// Validate checks the required fields of a BulkSendRequest.
func (r *BulkSendRequest) Validate() error {
	if r.TemplateID == "" {
		return ErrEmptyTemplateID
	}
	if r.CSV == "" {
		return ErrEmptyCSV
	}
	return nil
}

// BulkFailure describes one recipient that could not be messaged.
type BulkFailure struct {
	Row   int    `json:"row"` // 1-based data row, header excluded
	Phone string `json:"phone"`
	Error string `json:"error"`
}

// BulkSummary reports the outcome of a bulk send. Total always equals Sent + Failed.
type BulkSummary struct {
	Total    int           `json:"total"`
	Sent     int           `json:"sent"`
	Failed   int           `json:"failed"`
	Failures []BulkFailure `json:"failures,omitempty"`
}
