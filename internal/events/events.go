// Package events defines the lifecycle-event model shared by all pipeline
// components and the interfaces for publishing and handling events.
//
// Events flow through partitioned bus topics with at-least-once delivery.
// The message key is always the task ID so per-task ordering is preserved;
// consumers must tolerate redelivery, which the audit consumer handles with
// a time-boxed dedup window and the materializer with an idempotency key.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/avelinsk/taskmill/internal/domain"
)

// Bus topic names.
const (
	// TopicTaskEvents carries task lifecycle events
	// (created/updated/completed/deleted) from the request layer and
	// reminder_sent / materialization events from this pipeline.
	TopicTaskEvents = "task-events"

	// TopicTaskUpdates carries field-level task update events from the
	// request layer.
	TopicTaskUpdates = "task-updates"

	// TopicReminders carries reminder scheduling signals.
	TopicReminders = "reminders"

	// TopicDeadLetter holds events that exhausted their retry budget, for
	// operator inspection.
	TopicDeadLetter = "task-events-dlq"
)

// Event is the envelope for one task lifecycle event. CorrelationID is
// assigned by the originating user action and propagated unchanged across
// every event it causes.
type Event struct {
	Type          domain.EventType `json:"event_type"`
	TaskID        uuid.UUID        `json:"task_id"`
	UserID        uuid.UUID        `json:"user_id"`
	CorrelationID string           `json:"correlation_id"`
	Payload       json.RawMessage  `json:"payload,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// New creates an event with the given type and payload, stamped with the
// current time.
func New(
	eventType domain.EventType,
	taskID, userID uuid.UUID,
	correlationID string,
	payload any,
) (*Event, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		raw = b
	}

	return &Event{
		Type:          eventType,
		TaskID:        taskID,
		UserID:        userID,
		CorrelationID: correlationID,
		Payload:       raw,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// NewDerived creates an event caused by another event. The derived event
// keeps the cause's correlation ID and timestamp, so republishing it after a
// redelivered cause yields the same identity and downstream dedup absorbs
// the duplicate.
func NewDerived(
	cause *Event,
	eventType domain.EventType,
	taskID, userID uuid.UUID,
	payload any,
) (*Event, error) {
	event, err := New(eventType, taskID, userID, cause.CorrelationID, payload)
	if err != nil {
		return nil, err
	}
	event.Timestamp = cause.Timestamp
	return event, nil
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Key returns the bus partition key for the event. Partitioning by task ID
// is what preserves per-task ordering across consumer-group members.
func (e *Event) Key() []byte {
	return []byte(e.TaskID.String())
}

// DedupKey returns the natural identity of the event used to absorb
// at-least-once redelivery: (event_type, correlation_id, task_id, timestamp).
func (e *Event) DedupKey() string {
	return string(e.Type) + "|" + e.CorrelationID + "|" + e.TaskID.String() + "|" +
		strconv.FormatInt(e.Timestamp.UnixNano(), 10)
}

// TaskPayload is the payload shape the request layer attaches to task
// lifecycle events. All fields are optional; consumers read only what they
// need.
type TaskPayload struct {
	Title                 string     `json:"title,omitempty"`
	DueAt                 *time.Time `json:"due_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	RecurrencePatternID   *uuid.UUID `json:"recurrence_pattern_id,omitempty"`
	ReminderOffsetMinutes int        `json:"reminder_offset_minutes,omitempty"`
	Channel               string     `json:"channel,omitempty"`
	Error                 string     `json:"error,omitempty"`
}

// ReminderSignal is published to TopicReminders when a reminder is scheduled.
type ReminderSignal struct {
	ReminderID uuid.UUID `json:"reminder_id"`
	TaskID     uuid.UUID `json:"task_id"`
	RemindAt   time.Time `json:"remind_at"`
	Channel    string    `json:"channel"`
}

// Publisher publishes events to a bus topic.
type Publisher interface {
	// Publish sends the event to the given topic, keyed by task ID.
	Publish(ctx context.Context, topic string, event *Event) error
}

// Handler processes one consumed event. Returning a nil error acknowledges
// the event; returning an error leaves it unacknowledged for redelivery.
type Handler interface {
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls the wrapped function.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}
