package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelinsk/taskmill/internal/domain"
	"github.com/avelinsk/taskmill/internal/events"
	"github.com/avelinsk/taskmill/internal/notify"
	"github.com/avelinsk/taskmill/internal/platform/logger"
	"github.com/avelinsk/taskmill/internal/store"
)

// Dispatcher delivers claimed reminders through a notification sender and
// records the outcome. Every reminder it receives is already in_flight, so
// each outcome is a conditional transition that loses gracefully if the row
// was touched elsewhere.
type Dispatcher struct {
	reminders    store.ReminderStore
	tasks        store.TaskStore
	sender       notify.Sender
	publisher    events.Publisher
	retryCeiling int
	sendTimeout  time.Duration
	logger       *slog.Logger
}

// NewDispatcher creates a Dispatcher. retryCeiling bounds transient retries
// per reminder; sendTimeout is the hard deadline for one sender call.
func NewDispatcher(
	reminders store.ReminderStore,
	tasks store.TaskStore,
	sender notify.Sender,
	publisher events.Publisher,
	retryCeiling int,
	sendTimeout time.Duration,
	log *slog.Logger,
) *Dispatcher {
	if reminders == nil {
		panic("reminder.NewDispatcher: reminders store cannot be nil")
	}
	if sender == nil {
		panic("reminder.NewDispatcher: sender cannot be nil")
	}
	if publisher == nil {
		panic("reminder.NewDispatcher: publisher cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		reminders:    reminders,
		tasks:        tasks,
		sender:       sender,
		publisher:    publisher,
		retryCeiling: retryCeiling,
		sendTimeout:  sendTimeout,
		logger:       log.With(slog.String("component", "reminder_dispatcher")),
	}
}

// Dispatch attempts delivery of one claimed reminder. Failures are recorded
// on the reminder row rather than returned: a transient failure requeues the
// reminder with backoff until the retry ceiling, a permanent failure or an
// exhausted ceiling marks it failed, and a success marks it sent and emits a
// reminder_sent event.
func (d *Dispatcher) Dispatch(ctx context.Context, r *domain.Reminder) {
	log := logger.FromContextOrDefault(ctx, d.logger).With(
		slog.String("reminder_id", r.ID.String()),
		slog.String("task_id", r.TaskID.String()),
		slog.String("channel", string(r.Channel)))

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	err := d.sender.Send(sendCtx, r.Channel, r.UserID.String(), d.content(ctx, r))
	cancel()

	switch {
	case err == nil:
		d.recordSent(ctx, r, log)

	case notify.IsPermanent(err):
		log.WarnContext(ctx, "reminder delivery permanently failed",
			slog.String("error", err.Error()))
		d.recordFailed(ctx, r, err.Error(), log)
		d.publishFailure(ctx, r, err.Error(), false, log)

	default:
		d.retryOrFail(ctx, r, err, log)
	}
}

func (d *Dispatcher) recordSent(ctx context.Context, r *domain.Reminder, log *slog.Logger) {
	if err := d.reminders.MarkSent(ctx, r.ID); err != nil {
		// A conflict means the row left in_flight under us; the delivery
		// still happened, so log loudly rather than retry.
		log.ErrorContext(ctx, "failed to mark reminder sent",
			slog.String("error", err.Error()))
		return
	}

	event, err := events.New(domain.EventReminderSent, r.TaskID, r.UserID, r.CorrelationID,
		events.TaskPayload{Channel: string(r.Channel)})
	if err == nil {
		err = d.publisher.Publish(ctx, events.TopicTaskEvents, event)
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to publish reminder_sent event",
			slog.String("error", err.Error()))
		return
	}

	log.InfoContext(ctx, "reminder sent")
}

func (d *Dispatcher) recordFailed(ctx context.Context, r *domain.Reminder, message string, log *slog.Logger) {
	if err := d.reminders.MarkFailed(ctx, r.ID, message); err != nil {
		log.ErrorContext(ctx, "failed to mark reminder failed",
			slog.String("error", err.Error()))
	}
}

// publishFailure surfaces a permanently failed delivery on the event bus so
// the audit trail records it; an exhausted retry budget additionally routes
// the failure to the dead letter topic for operator inspection.
func (d *Dispatcher) publishFailure(ctx context.Context, r *domain.Reminder, cause string, deadLetter bool, log *slog.Logger) {
	event, err := events.New(domain.EventUpdated, r.TaskID, r.UserID, r.CorrelationID,
		events.TaskPayload{Channel: string(r.Channel), Error: cause})
	if err != nil {
		log.ErrorContext(ctx, "failed to build delivery-failure event",
			slog.String("error", err.Error()))
		return
	}

	if err := d.publisher.Publish(ctx, events.TopicTaskEvents, event); err != nil {
		log.ErrorContext(ctx, "failed to publish delivery-failure event",
			slog.String("error", err.Error()))
	}
	if deadLetter {
		if err := d.publisher.Publish(ctx, events.TopicDeadLetter, event); err != nil {
			log.ErrorContext(ctx, "failed to publish to dead letter topic",
				slog.String("error", err.Error()))
		}
	}
}

func (d *Dispatcher) retryOrFail(ctx context.Context, r *domain.Reminder, cause error, log *slog.Logger) {
	retryCount := r.RetryCount + 1
	if retryCount > d.retryCeiling {
		log.WarnContext(ctx, "reminder retry ceiling reached",
			slog.Int("retry_count", r.RetryCount),
			slog.String("error", cause.Error()))
		d.recordFailed(ctx, r, fmt.Sprintf("retry ceiling reached: %v", cause), log)
		d.publishFailure(ctx, r, cause.Error(), true, log)
		return
	}

	delay := nextBackoff(retryCount)
	remindAt := time.Now().UTC().Add(delay)

	if err := d.reminders.Requeue(ctx, r.ID, remindAt, retryCount); err != nil {
		log.ErrorContext(ctx, "failed to requeue reminder",
			slog.String("error", err.Error()))
		return
	}

	log.InfoContext(ctx, "reminder requeued after transient failure",
		slog.Int("retry_count", retryCount),
		slog.Duration("delay", delay),
		slog.String("error", cause.Error()))
}

// content builds the notification text. Task lookup failures fall back to a
// generic message; a reminder must not fail because its task title could
// not be read.
func (d *Dispatcher) content(ctx context.Context, r *domain.Reminder) string {
	if d.tasks != nil {
		if task, err := d.tasks.GetByID(ctx, r.TaskID); err == nil {
			if task.DueAt != nil {
				return fmt.Sprintf("Reminder: %q is due at %s",
					task.Title, task.DueAt.Format(time.RFC3339))
			}
			return fmt.Sprintf("Reminder: %q is due soon", task.Title)
		}
	}
	return "Reminder: a task is due soon"
}
