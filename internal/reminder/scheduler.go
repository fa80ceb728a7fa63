// Package reminder schedules due-date reminders from task lifecycle events
// and delivers them through a pluggable notification sender. Scheduling is
// event-driven; delivery runs on a periodic sweep that claims due rows with
// a conditional status update, so any number of worker instances can run
// the sweep concurrently without double-sending.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avelinsk/taskmill/internal/domain"
	"github.com/avelinsk/taskmill/internal/events"
	"github.com/avelinsk/taskmill/internal/platform/logger"
	"github.com/avelinsk/taskmill/internal/store"
)

// Scheduling errors.
var (
	// ErrNoDueDate is returned when a reminder is requested for a task
	// without a due date.
	ErrNoDueDate = errors.New("cannot schedule reminder for task without due date")

	// ErrPastDue is returned when the computed reminder time is already in
	// the past. The reminder is recorded as failed rather than silently
	// dropped or fired late.
	ErrPastDue = errors.New("reminder time is in the past")
)

// Scheduler creates, cancels, and sweeps reminders. It consumes task
// lifecycle events and hands claimed due reminders to the Dispatcher.
type Scheduler struct {
	reminders  store.ReminderStore
	publisher  events.Publisher
	dispatcher *Dispatcher
	sweepEvery time.Duration
	claimBatch int
	staleAfter time.Duration
	logger     *slog.Logger
}

var _ events.Handler = (*Scheduler)(nil)

// NewScheduler creates a Scheduler. staleAfter is how long a claim may sit
// in_flight before the sweep assumes its worker died and releases it. The
// dispatcher may be nil only in callers that never run the sweep.
func NewScheduler(
	reminders store.ReminderStore,
	publisher events.Publisher,
	dispatcher *Dispatcher,
	sweepEvery time.Duration,
	claimBatch int,
	staleAfter time.Duration,
	log *slog.Logger,
) *Scheduler {
	if reminders == nil {
		panic("reminder.NewScheduler: reminders store cannot be nil")
	}
	if publisher == nil {
		panic("reminder.NewScheduler: publisher cannot be nil")
	}
	if staleAfter <= 0 {
		panic("reminder.NewScheduler: staleAfter must be positive")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		reminders:  reminders,
		publisher:  publisher,
		dispatcher: dispatcher,
		sweepEvery: sweepEvery,
		claimBatch: claimBatch,
		staleAfter: staleAfter,
		logger:     log.With(slog.String("component", "reminder_scheduler")),
	}
}

// Schedule creates a pending reminder offsetMinutes before the task's due
// date and announces it on the reminders topic. A reminder time already in
// the past is persisted as failed and reported as ErrPastDue so the caller
// can surface it.
func (s *Scheduler) Schedule(
	ctx context.Context,
	taskID, userID uuid.UUID,
	dueAt *time.Time,
	offsetMinutes int,
	channel domain.NotificationChannel,
	correlationID string,
) (*domain.Reminder, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if dueAt == nil {
		return nil, ErrNoDueDate
	}
	if offsetMinutes < 0 {
		return nil, fmt.Errorf("%w: reminder offset cannot be negative", domain.ErrValidation)
	}

	remindAt := dueAt.Add(-time.Duration(offsetMinutes) * time.Minute)

	reminder, err := domain.NewReminder(taskID, userID, remindAt, channel, correlationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if !remindAt.After(time.Now().UTC()) {
		reminder.DeliveryStatus = domain.DeliveryStatusFailed
		reminder.ErrorMessage = ErrPastDue.Error()
		if err := s.reminders.Create(ctx, reminder); err != nil {
			return nil, fmt.Errorf("saving past-due reminder: %w", err)
		}
		log.WarnContext(ctx, "reminder time already passed",
			slog.String("task_id", taskID.String()),
			slog.Time("remind_at", remindAt))
		return reminder, ErrPastDue
	}

	if err := s.reminders.Create(ctx, reminder); err != nil {
		return nil, fmt.Errorf("saving reminder: %w", err)
	}

	signal, err := events.New(domain.EventUpdated, taskID, userID, correlationID, events.ReminderSignal{
		ReminderID: reminder.ID,
		TaskID:     taskID,
		RemindAt:   remindAt,
		Channel:    string(channel),
	})
	if err != nil {
		return nil, fmt.Errorf("building reminder signal: %w", err)
	}
	if err := s.publisher.Publish(ctx, events.TopicReminders, signal); err != nil {
		// The reminder is persisted and the sweep will still deliver it;
		// the signal is advisory.
		log.WarnContext(ctx, "failed to publish reminder signal",
			slog.String("reminder_id", reminder.ID.String()),
			slog.String("error", err.Error()))
	}

	log.InfoContext(ctx, "reminder scheduled",
		slog.String("reminder_id", reminder.ID.String()),
		slog.String("task_id", taskID.String()),
		slog.Time("remind_at", remindAt),
		slog.String("channel", string(channel)))
	return reminder, nil
}

// CancelForTask cancels all pending reminders for a task. Cancelling a task
// with no pending reminders is not an error. Reminders already claimed by a
// sweep are left alone; an in-flight dispatch wins the race and delivers
// exactly once.
func (s *Scheduler) CancelForTask(ctx context.Context, taskID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	cancelled, err := s.reminders.CancelPendingForTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("cancelling reminders for task %s: %w", taskID, err)
	}

	log.InfoContext(ctx, "reminders cancelled",
		slog.String("task_id", taskID.String()),
		slog.Int64("count", cancelled))
	return nil
}

// HandleEvent reacts to task lifecycle events: created and updated events
// carrying a reminder offset schedule a reminder (updates first cancel any
// pending ones), completed and deleted events cancel pending reminders.
func (s *Scheduler) HandleEvent(ctx context.Context, event *events.Event) error {
	switch event.Type {
	case domain.EventCreated, domain.EventUpdated:
		var payload events.TaskPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("%w: decoding task payload: %v", domain.ErrValidation, err)
		}

		// Pipeline components reuse the updated type for status notices
		// (delivery failures, series end). Those carry an error and never
		// change the task's due date, so they must not touch its reminders.
		if payload.Error != "" {
			return nil
		}

		if event.Type == domain.EventUpdated {
			if err := s.CancelForTask(ctx, event.TaskID); err != nil {
				return err
			}
		}

		if payload.ReminderOffsetMinutes <= 0 {
			return nil
		}

		channel := domain.NotificationChannel(payload.Channel)
		if payload.Channel == "" {
			channel = domain.ChannelInApp
		}

		_, err := s.Schedule(ctx, event.TaskID, event.UserID, payload.DueAt,
			payload.ReminderOffsetMinutes, channel, event.CorrelationID)
		if errors.Is(err, ErrNoDueDate) || errors.Is(err, ErrPastDue) {
			// Recorded or rejected; either way the event is handled.
			return nil
		}
		return err

	case domain.EventCompleted, domain.EventDeleted:
		return s.CancelForTask(ctx, event.TaskID)

	default:
		return nil
	}
}

// Run sweeps for due reminders until the context is cancelled. Each tick
// claims up to the batch size of due pending reminders and dispatches them.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.dispatcher == nil {
		panic("reminder.Scheduler.Run: dispatcher cannot be nil")
	}

	log := logger.FromContextOrDefault(ctx, s.logger)
	log.InfoContext(ctx, "reminder sweep started",
		slog.Duration("interval", s.sweepEvery),
		slog.Int("batch", s.claimBatch))

	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "reminder sweep stopping")
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				log.ErrorContext(ctx, "reminder sweep failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	// Claims abandoned by a crashed worker go back to pending first so this
	// same sweep can pick them up.
	released, err := s.reminders.ReleaseStale(ctx, time.Now().UTC().Add(-s.staleAfter))
	if err != nil {
		log.ErrorContext(ctx, "failed to release stale reminder claims",
			slog.String("error", err.Error()))
	} else if released > 0 {
		log.WarnContext(ctx, "recovered stale reminder claims", slog.Int64("count", released))
	}

	claimed, err := s.reminders.ClaimDue(ctx, time.Now().UTC(), s.claimBatch)
	if err != nil {
		return fmt.Errorf("claiming due reminders: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}

	log.DebugContext(ctx, "claimed due reminders", slog.Int("count", len(claimed)))

	for _, r := range claimed {
		s.dispatcher.Dispatch(ctx, r)
	}
	return nil
}
