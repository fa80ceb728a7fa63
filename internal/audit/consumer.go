// Package audit records every task lifecycle event in an append-only log.
// The consumer is a passive observer: it writes events verbatim, never
// triggers behavior, and tolerates redelivery with a time-boxed dedup
// window keyed on the event's natural identity.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelinsk/taskmill/internal/domain"
	"github.com/avelinsk/taskmill/internal/events"
	"github.com/avelinsk/taskmill/internal/platform/logger"
	"github.com/avelinsk/taskmill/internal/store"
)

// Consumer appends consumed lifecycle events to the audit log.
type Consumer struct {
	audits store.AuditStore
	dedup  *dedupWindow
	logger *slog.Logger
}

var _ events.Handler = (*Consumer)(nil)

// NewConsumer creates a Consumer with the given dedup window.
func NewConsumer(audits store.AuditStore, dedupWindowSize time.Duration, log *slog.Logger) *Consumer {
	if audits == nil {
		panic("audit.NewConsumer: audit store cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		audits: audits,
		dedup:  newDedupWindow(dedupWindowSize),
		logger: log.With(slog.String("component", "audit_consumer")),
	}
}

// HandleEvent appends the event to the audit log unless its identity was
// already seen within the dedup window. The event payload is stored
// verbatim; the audit log records what happened, it does not interpret it.
func (c *Consumer) HandleEvent(ctx context.Context, event *events.Event) error {
	log := logger.FromContextOrDefault(ctx, c.logger)

	if c.dedup.observe(event.DedupKey()) {
		log.DebugContext(ctx, "duplicate event absorbed",
			slog.String("event_type", string(event.Type)),
			slog.String("task_id", event.TaskID.String()))
		return nil
	}

	taskID := event.TaskID
	userID := event.UserID
	record := &domain.AuditLog{
		EventType:     event.Type,
		TaskID:        &taskID,
		UserID:        &userID,
		EventData:     event.Payload,
		CorrelationID: event.CorrelationID,
		Timestamp:     event.Timestamp,
	}
	if err := record.Validate(); err != nil {
		// An unrecordable event is logged and dropped rather than redelivered
		// forever.
		log.ErrorContext(ctx, "dropping invalid audit event",
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()))
		return nil
	}

	if err := c.audits.Append(ctx, record); err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}

	log.DebugContext(ctx, "audit record appended",
		slog.Int64("audit_id", record.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("correlation_id", event.CorrelationID))
	return nil
}
