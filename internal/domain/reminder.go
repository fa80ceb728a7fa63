package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// NotificationChannel represents where a reminder is delivered.
type NotificationChannel string

// Possible notification channel values
const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// DeliveryStatus represents the delivery state of a reminder.
type DeliveryStatus string

// Possible delivery status values. InFlight is an internal claim state used
// by the sweep so concurrent scheduler instances cannot double-claim a row;
// externally a reminder transitions pending -> sent | failed | cancelled.
const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusInFlight  DeliveryStatus = "in_flight"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

// MaxRetryCount is the default ceiling on transient delivery retries.
const MaxRetryCount = 10

// Common validation errors for Reminder
var (
	ErrEmptyReminderTaskID   = errors.New("reminder task ID cannot be empty")
	ErrEmptyReminderUserID   = errors.New("reminder user ID cannot be empty")
	ErrZeroRemindAt          = errors.New("reminder time cannot be zero")
	ErrInvalidChannel        = errors.New("invalid notification channel")
	ErrInvalidDeliveryStatus = errors.New("invalid delivery status")
	ErrInvalidRetryCount     = errors.New("retry count must be between 0 and 10")
)

// Reminder schedules a due-date notification for a task. CorrelationID is
// carried over from the lifecycle event that caused scheduling so the
// eventual reminder_sent audit record traces back to the originating action.
type Reminder struct {
	ID             uuid.UUID           `json:"id"`
	TaskID         uuid.UUID           `json:"task_id"`
	UserID         uuid.UUID           `json:"user_id"`
	RemindAt       time.Time           `json:"remind_at"`
	Channel        NotificationChannel `json:"notification_channel"`
	DeliveryStatus DeliveryStatus      `json:"delivery_status"`
	RetryCount     int                 `json:"retry_count"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	CorrelationID  string              `json:"correlation_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// NewReminder creates a pending reminder for the given task.
func NewReminder(
	taskID, userID uuid.UUID,
	remindAt time.Time,
	channel NotificationChannel,
	correlationID string,
) (*Reminder, error) {
	now := time.Now().UTC()
	reminder := &Reminder{
		ID:             uuid.New(),
		TaskID:         taskID,
		UserID:         userID,
		RemindAt:       remindAt,
		Channel:        channel,
		DeliveryStatus: DeliveryStatusPending,
		CorrelationID:  correlationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := reminder.Validate(); err != nil {
		return nil, err
	}

	return reminder, nil
}

// Validate checks if the Reminder has valid data.
// Returns an error if any field fails validation.
func (r *Reminder) Validate() error {
	if r.TaskID == uuid.Nil {
		return ErrEmptyReminderTaskID
	}

	if r.UserID == uuid.Nil {
		return ErrEmptyReminderUserID
	}

	if r.RemindAt.IsZero() {
		return ErrZeroRemindAt
	}

	switch r.Channel {
	case ChannelInApp, ChannelEmail, ChannelSMS:
	default:
		return ErrInvalidChannel
	}

	switch r.DeliveryStatus {
	case DeliveryStatusPending, DeliveryStatusInFlight, DeliveryStatusSent,
		DeliveryStatusFailed, DeliveryStatusCancelled:
	default:
		return ErrInvalidDeliveryStatus
	}

	if r.RetryCount < 0 || r.RetryCount > MaxRetryCount {
		return ErrInvalidRetryCount
	}

	return nil
}
