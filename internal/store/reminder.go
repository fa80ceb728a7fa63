package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/avelinsk/taskmill/internal/domain"
)

// ReminderStore defines the interface for reminder persistence. All status
// transitions are conditional updates (old status -> new status) so retries
// and duplicate event deliveries are safe without distributed locks.
type ReminderStore interface {
	// Create saves a new reminder to the store.
	Create(ctx context.Context, reminder *domain.Reminder) error

	// GetByID retrieves a reminder by its unique ID.
	// Returns ErrReminderNotFound if the reminder does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Reminder, error)

	// CancelPendingForTask transitions all pending reminders for the task to
	// cancelled and returns how many rows changed. Zero is not an error:
	// cancellation fails softly when no pending reminders exist. Reminders
	// already claimed by a sweep are deliberately not matched; a claimed
	// dispatch is allowed to win the race and deliver once.
	CancelPendingForTask(ctx context.Context, taskID uuid.UUID) (int64, error)

	// ClaimDue atomically transitions up to limit pending reminders with
	// remind_at <= now to in_flight and returns them. Concurrent scheduler
	// instances never claim the same row.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.Reminder, error)

	// MarkSent transitions a claimed reminder to sent.
	// Returns ErrConflict if the reminder is no longer in_flight.
	MarkSent(ctx context.Context, id uuid.UUID) error

	// MarkFailed transitions a claimed reminder to failed with the given
	// error message. Returns ErrConflict if the reminder is no longer
	// in_flight.
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error

	// Requeue returns a claimed reminder to pending with an updated retry
	// count and a new remind_at computed from the backoff policy.
	// Returns ErrConflict if the reminder is no longer in_flight.
	Requeue(ctx context.Context, id uuid.UUID, remindAt time.Time, retryCount int) error

	// ReleaseStale returns in_flight reminders last touched before olderThan
	// to pending and reports how many rows changed. A claim whose worker
	// crashed before recording an outcome is picked up again by a later
	// sweep instead of staying in_flight forever.
	ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error)

	// WithTx returns a new ReminderStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ReminderStore
}
