// Package materializer creates the next instance of a recurring task when
// its current instance is completed. Materialization is idempotent under
// at-least-once event delivery: the completion event's identity and the
// instance it produced are recorded on the pattern row inside the same
// transaction that creates the instance, so a redelivered event re-announces
// the committed outcome instead of creating a second instance.
package materializer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/avelinsk/taskmill/internal/domain"
	"github.com/avelinsk/taskmill/internal/domain/recur"
	"github.com/avelinsk/taskmill/internal/events"
	"github.com/avelinsk/taskmill/internal/platform/logger"
	"github.com/avelinsk/taskmill/internal/store"
)

// Retry policy for one completion event before it is routed to the dead
// letter topic.
const (
	retryBase  = 500 * time.Millisecond
	maxRetries = 4
)

// Materializer consumes task completion events and creates the next
// instance of the recurring series inside a single transaction.
type Materializer struct {
	runTx     func(ctx context.Context, fn store.TxFn) error
	tasks     store.TaskStore
	patterns  store.PatternStore
	publisher events.Publisher
	logger    *slog.Logger
}

var _ events.Handler = (*Materializer)(nil)

// New creates a Materializer.
func New(
	db *sql.DB,
	tasks store.TaskStore,
	patterns store.PatternStore,
	publisher events.Publisher,
	log *slog.Logger,
) *Materializer {
	if db == nil {
		panic("materializer.New: db cannot be nil")
	}
	if tasks == nil {
		panic("materializer.New: tasks store cannot be nil")
	}
	if patterns == nil {
		panic("materializer.New: patterns store cannot be nil")
	}
	if publisher == nil {
		panic("materializer.New: publisher cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Materializer{
		runTx: func(ctx context.Context, fn store.TxFn) error {
			return store.RunInTransaction(ctx, db, fn)
		},
		tasks:     tasks,
		patterns:  patterns,
		publisher: publisher,
		logger:    log.With(slog.String("component", "materializer")),
	}
}

// outcome carries the result of one materialization transaction out to the
// post-commit event publishing step.
type outcome struct {
	skipped   bool
	exhausted bool
	instance  *domain.Task
}

// HandleEvent materializes the next instance for completed events that
// reference a recurrence pattern. Transient failures are retried with
// exponential backoff; an event whose retry budget is exhausted, or that can
// never succeed, is published to the dead letter topic and acknowledged so
// it does not block the partition.
func (m *Materializer) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != domain.EventCompleted {
		return nil
	}

	var payload events.TaskPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return m.deadLetter(ctx, event, fmt.Errorf("%w: decoding payload: %v", domain.ErrValidation, err))
	}
	if payload.RecurrencePatternID == nil {
		return nil
	}

	log := logger.FromContextOrDefault(ctx, m.logger).With(
		slog.String("task_id", event.TaskID.String()),
		slog.String("pattern_id", payload.RecurrencePatternID.String()))
	ctx = logger.WithLogger(ctx, log)

	eventKey := completionKey(event, payload)
	anchor := completionAnchor(event, payload)

	var result outcome
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var txErr error
		result, txErr = m.materialize(ctx, *payload.RecurrencePatternID, eventKey, anchor)
		if txErr != nil && isRetryable(txErr) {
			return retry.RetryableError(txErr)
		}
		return txErr
	})
	if err != nil {
		return m.deadLetter(ctx, event, err)
	}

	switch {
	case result.skipped:
		log.InfoContext(ctx, "stale completion event for exhausted pattern, skipping")
		return nil
	case result.exhausted:
		return m.publishSeriesEnded(ctx, event)
	default:
		return m.publishInstanceCreated(ctx, event, payload, result.instance)
	}
}

// materialize runs one attempt in a transaction: lock the pattern, check
// the idempotency key, compute the next occurrence, create the instance,
// and advance the pattern. Either everything commits or nothing does.
func (m *Materializer) materialize(
	ctx context.Context,
	patternID uuid.UUID,
	eventKey string,
	anchor time.Time,
) (outcome, error) {
	var result outcome

	err := m.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		patterns := m.patterns.WithTx(tx)

		pattern, err := patterns.GetByIDForUpdate(ctx, patternID)
		if err != nil {
			return fmt.Errorf("loading pattern: %w", err)
		}

		// A redelivery of the event that last advanced the pattern re-derives
		// the committed outcome, so the downstream announcement is published
		// again if the first attempt failed after commit. Derived events carry
		// a deterministic identity and the audit dedup window absorbs the
		// repeat when the first publish did land.
		if pattern.LastEventKey == eventKey {
			if pattern.Exhausted {
				result = outcome{exhausted: true}
				return nil
			}
			if pattern.LastInstanceID == nil {
				result = outcome{skipped: true}
				return nil
			}
			instance, err := m.tasks.WithTx(tx).GetByID(ctx, *pattern.LastInstanceID)
			if err != nil {
				return fmt.Errorf("loading materialized instance: %w", err)
			}
			result = outcome{instance: instance}
			return nil
		}
		if pattern.Exhausted {
			result = outcome{skipped: true}
			return nil
		}

		template, err := m.tasks.WithTx(tx).GetByID(ctx, pattern.TaskID)
		if err != nil {
			return fmt.Errorf("loading template task: %w", err)
		}

		next, err := recur.NextOccurrence(pattern, anchor)
		if errors.Is(err, recur.ErrEndOfSeries) {
			if err := patterns.MarkExhausted(ctx, pattern.ID, eventKey); err != nil {
				return fmt.Errorf("marking pattern exhausted: %w", err)
			}
			result = outcome{exhausted: true}
			return nil
		}
		if err != nil {
			return fmt.Errorf("computing next occurrence: %w", err)
		}

		instance, err := domain.NewInstanceFromTemplate(template, next)
		if err != nil {
			return fmt.Errorf("building instance: %w", err)
		}

		if err := m.tasks.WithTx(tx).Create(ctx, instance); err != nil {
			return fmt.Errorf("creating instance: %w", err)
		}

		if err := patterns.Advance(ctx, pattern.ID, pattern.CurrentOccurrence, eventKey, instance.ID); err != nil {
			return fmt.Errorf("advancing pattern: %w", err)
		}

		result = outcome{instance: instance}
		return nil
	})

	return result, err
}

// publishInstanceCreated announces the new instance. The template's reminder
// settings are carried over from the completion event so the scheduler arms
// a reminder for the instance under the same correlation ID.
func (m *Materializer) publishInstanceCreated(
	ctx context.Context,
	cause *events.Event,
	payload events.TaskPayload,
	instance *domain.Task,
) error {
	log := logger.FromContextOrDefault(ctx, m.logger)

	created, err := events.NewDerived(cause, domain.EventCreated, instance.ID, instance.UserID,
		events.TaskPayload{
			Title:                 instance.Title,
			DueAt:                 instance.DueAt,
			ReminderOffsetMinutes: payload.ReminderOffsetMinutes,
			Channel:               payload.Channel,
		})
	if err != nil {
		return fmt.Errorf("building created event: %w", err)
	}
	if err := m.publisher.Publish(ctx, events.TopicTaskEvents, created); err != nil {
		return fmt.Errorf("publishing created event: %w", err)
	}

	log.InfoContext(ctx, "next instance materialized",
		slog.String("instance_id", instance.ID.String()),
		slog.Time("due_at", derefTime(instance.DueAt)))
	return nil
}

func (m *Materializer) publishSeriesEnded(ctx context.Context, cause *events.Event) error {
	log := logger.FromContextOrDefault(ctx, m.logger)

	ended, err := events.NewDerived(cause, domain.EventUpdated, cause.TaskID, cause.UserID,
		events.TaskPayload{Error: "recurrence series ended"})
	if err != nil {
		return fmt.Errorf("building series-ended event: %w", err)
	}
	if err := m.publisher.Publish(ctx, events.TopicTaskEvents, ended); err != nil {
		return fmt.Errorf("publishing series-ended event: %w", err)
	}

	log.InfoContext(ctx, "recurrence series ended, pattern exhausted")
	return nil
}

// deadLetter surfaces an unprocessable event on the task-events topic for
// the audit trail, routes it to the dead letter topic, and acknowledges it.
// Failing to dead-letter is the one case where the event stays
// unacknowledged for redelivery.
func (m *Materializer) deadLetter(ctx context.Context, event *events.Event, cause error) error {
	log := logger.FromContextOrDefault(ctx, m.logger)

	log.ErrorContext(ctx, "materialization failed, routing to dead letter topic",
		slog.String("task_id", event.TaskID.String()),
		slog.String("error", cause.Error()))

	failure, err := events.NewDerived(event, domain.EventUpdated, event.TaskID, event.UserID,
		events.TaskPayload{Error: cause.Error()})
	if err != nil {
		log.ErrorContext(ctx, "failed to build materialization-failure event",
			slog.String("error", err.Error()))
	} else if err := m.publisher.Publish(ctx, events.TopicTaskEvents, failure); err != nil {
		log.ErrorContext(ctx, "failed to publish materialization-failure event",
			slog.String("error", err.Error()))
	}

	if err := m.publisher.Publish(ctx, events.TopicDeadLetter, event); err != nil {
		return fmt.Errorf("publishing to dead letter topic: %w", err)
	}
	return nil
}

// completionKey is the idempotency key for a completion event: the task and
// the completion time identify one completion regardless of redelivery.
func completionKey(event *events.Event, payload events.TaskPayload) string {
	completedAt := event.Timestamp
	if payload.CompletedAt != nil {
		completedAt = *payload.CompletedAt
	}
	return event.TaskID.String() + "|" + strconv.FormatInt(completedAt.UTC().UnixNano(), 10)
}

// completionAnchor picks the date the next occurrence is computed from: the
// completed instance's due date when known, otherwise its completion time.
func completionAnchor(event *events.Event, payload events.TaskPayload) time.Time {
	switch {
	case payload.DueAt != nil:
		return *payload.DueAt
	case payload.CompletedAt != nil:
		return *payload.CompletedAt
	default:
		return event.Timestamp
	}
}

// isRetryable classifies a materialization failure. Conflicts and unknown
// store failures are worth retrying; validation errors and missing rows are
// not.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, store.ErrDuplicate):
		return false
	default:
		return true
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
