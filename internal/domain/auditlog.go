package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of lifecycle event recorded in the audit log.
type EventType string

// Possible event type values
const (
	EventCreated      EventType = "created"
	EventUpdated      EventType = "updated"
	EventCompleted    EventType = "completed"
	EventDeleted      EventType = "deleted"
	EventReminderSent EventType = "reminder_sent"
)

// Common validation errors for AuditLog
var (
	ErrInvalidEventType   = errors.New("invalid audit event type")
	ErrEmptyCorrelationID = errors.New("audit record correlation ID cannot be empty")
	ErrZeroAuditTimestamp = errors.New("audit record timestamp cannot be zero")
)

// AuditLog is one immutable audit record. ID is assigned monotonically by
// the store on append; rows are never mutated and only deleted by the
// time-based retention sweep.
type AuditLog struct {
	ID            int64           `json:"id"`
	EventType     EventType       `json:"event_type"`
	TaskID        *uuid.UUID      `json:"task_id,omitempty"`
	UserID        *uuid.UUID      `json:"user_id,omitempty"`
	EventData     json.RawMessage `json:"event_data"`
	CorrelationID string          `json:"correlation_id"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Validate checks if the AuditLog has valid data.
// Returns an error if any field fails validation.
func (a *AuditLog) Validate() error {
	switch a.EventType {
	case EventCreated, EventUpdated, EventCompleted, EventDeleted, EventReminderSent:
	default:
		return ErrInvalidEventType
	}

	if a.CorrelationID == "" {
		return ErrEmptyCorrelationID
	}

	if a.Timestamp.IsZero() {
		return ErrZeroAuditTimestamp
	}

	return nil
}
