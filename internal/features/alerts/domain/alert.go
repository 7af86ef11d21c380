package domain

import (
	"errors"
	"time"
)

// Severity represents how loud an operator alert is.
type Severity string

const (
	SeverityWarning Severity = "WARNING"
	SeverityDanger  Severity = "DANGER"
)

var (
	ErrInvalidSeverity = errors.New("invalid alert severity")
	ErrAlertNotFound   = errors.New("alert not found")
)

// Alert represents an operator-facing notice, e.g. a record that could not
// be synced after exhausting its attempts.
type Alert struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAlert creates a new Alert and validates it.
func NewAlert(id string, severity Severity, message, sessionID, recordID string) (*Alert, error) {
	if severity != SeverityWarning && severity != SeverityDanger {
		return nil, ErrInvalidSeverity
	}

	return &Alert{
		ID:        id,
		Severity:  severity,
		Message:   message,
		SessionID: sessionID,
		RecordID:  recordID,
		CreatedAt: time.Now().UTC(),
	}, nil
}
