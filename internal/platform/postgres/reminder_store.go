package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avelinsk/taskmill/internal/domain"
	"github.com/avelinsk/taskmill/internal/platform/logger"
	"github.com/avelinsk/taskmill/internal/store"
)

// PostgresReminderStore implements the store.ReminderStore interface
// using a PostgreSQL database as the storage backend.
type PostgresReminderStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresReminderStore creates a new PostgreSQL implementation of the ReminderStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresReminderStore(db store.DBTX, logger *slog.Logger) *PostgresReminderStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresReminderStore{
		db:     db,
		logger: logger.With(slog.String("component", "reminder_store")),
	}
}

// Ensure PostgresReminderStore implements store.ReminderStore interface
var _ store.ReminderStore = (*PostgresReminderStore)(nil)

const reminderColumns = `id, task_id, user_id, remind_at, notification_channel,
	delivery_status, retry_count, error_message, correlation_id, created_at, updated_at`

// Create implements store.ReminderStore.Create
func (s *PostgresReminderStore) Create(ctx context.Context, reminder *domain.Reminder) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := reminder.Validate(); err != nil {
		log.Warn("reminder validation failed during create",
			slog.String("error", err.Error()),
			slog.String("reminder_id", reminder.ID.String()))
		return err
	}

	query := `
		INSERT INTO reminders (` + reminderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		reminder.ID,
		reminder.TaskID,
		reminder.UserID,
		reminder.RemindAt,
		reminder.Channel,
		reminder.DeliveryStatus,
		reminder.RetryCount,
		reminder.ErrorMessage,
		reminder.CorrelationID,
		reminder.CreatedAt,
		reminder.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create reminder",
			slog.String("error", err.Error()),
			slog.String("reminder_id", reminder.ID.String()))
		return MapError(err)
	}

	log.Info("reminder created",
		slog.String("reminder_id", reminder.ID.String()),
		slog.String("task_id", reminder.TaskID.String()),
		slog.Time("remind_at", reminder.RemindAt),
		slog.String("status", string(reminder.DeliveryStatus)))
	return nil
}

// GetByID implements store.ReminderStore.GetByID
// Returns store.ErrReminderNotFound if the reminder does not exist.
func (s *PostgresReminderStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reminder, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1`

	reminder, err := scanReminder(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrReminderNotFound
		}
		log.Error("failed to get reminder",
			slog.String("error", err.Error()),
			slog.String("reminder_id", id.String()))
		return nil, MapError(err)
	}

	return reminder, nil
}

// CancelPendingForTask implements store.ReminderStore.CancelPendingForTask
// Only pending rows are matched: a reminder already claimed by a sweep keeps
// its claim and is delivered once.
func (s *PostgresReminderStore) CancelPendingForTask(ctx context.Context, taskID uuid.UUID) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE reminders
		SET delivery_status = $1, updated_at = $2
		WHERE task_id = $3 AND delivery_status = $4
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.DeliveryStatusCancelled,
		time.Now().UTC(),
		taskID,
		domain.DeliveryStatusPending,
	)
	if err != nil {
		log.Error("failed to cancel reminders for task",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return 0, MapError(err)
	}

	cancelled, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if cancelled > 0 {
		log.Info("cancelled pending reminders",
			slog.String("task_id", taskID.String()),
			slog.Int64("count", cancelled))
	}
	return cancelled, nil
}

// ClaimDue implements store.ReminderStore.ClaimDue
// The claim is a single conditional update over rows selected with
// SKIP LOCKED, so concurrent sweeps partition the due set between them
// instead of double-claiming.
func (s *PostgresReminderStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.Reminder, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE reminders
		SET delivery_status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM reminders
			WHERE delivery_status = $3 AND remind_at <= $4
			ORDER BY remind_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + reminderColumns

	rows, err := s.db.QueryContext(ctx, query,
		domain.DeliveryStatusInFlight,
		now.UTC(),
		domain.DeliveryStatusPending,
		now.UTC(),
		limit,
	)
	if err != nil {
		log.Error("failed to claim due reminders", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var claimed []*domain.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			log.Error("failed to scan claimed reminder", slog.String("error", err.Error()))
			return nil, MapError(err)
		}
		claimed = append(claimed, reminder)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating claimed reminders", slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	return claimed, nil
}

// MarkSent implements store.ReminderStore.MarkSent
func (s *PostgresReminderStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, domain.DeliveryStatusInFlight, domain.DeliveryStatusSent, "")
}

// MarkFailed implements store.ReminderStore.MarkFailed
func (s *PostgresReminderStore) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return s.transition(ctx, id, domain.DeliveryStatusInFlight, domain.DeliveryStatusFailed, errorMessage)
}

// transition performs one conditional status update.
func (s *PostgresReminderStore) transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.DeliveryStatus,
	errorMessage string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE reminders
		SET delivery_status = $1, error_message = $2, updated_at = $3
		WHERE id = $4 AND delivery_status = $5
	`
	result, err := s.db.ExecContext(ctx, query, to, errorMessage, time.Now().UTC(), id, from)
	if err != nil {
		log.Error("failed to transition reminder status",
			slog.String("error", err.Error()),
			slog.String("reminder_id", id.String()),
			slog.String("to_status", string(to)))
		return MapError(err)
	}

	return CheckConditionalUpdate(result)
}

// Requeue implements store.ReminderStore.Requeue
func (s *PostgresReminderStore) Requeue(ctx context.Context, id uuid.UUID, remindAt time.Time, retryCount int) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE reminders
		SET delivery_status = $1, remind_at = $2, retry_count = $3, updated_at = $4
		WHERE id = $5 AND delivery_status = $6
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.DeliveryStatusPending,
		remindAt.UTC(),
		retryCount,
		time.Now().UTC(),
		id,
		domain.DeliveryStatusInFlight,
	)
	if err != nil {
		log.Error("failed to requeue reminder",
			slog.String("error", err.Error()),
			slog.String("reminder_id", id.String()))
		return MapError(err)
	}

	return CheckConditionalUpdate(result)
}

// ReleaseStale implements store.ReminderStore.ReleaseStale
// Every transition stamps updated_at, so an in_flight row whose updated_at
// predates the cutoff belongs to a worker that died mid-dispatch.
func (s *PostgresReminderStore) ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE reminders
		SET delivery_status = $1, updated_at = $2
		WHERE delivery_status = $3 AND updated_at <= $4
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.DeliveryStatusPending,
		time.Now().UTC(),
		domain.DeliveryStatusInFlight,
		olderThan.UTC(),
	)
	if err != nil {
		log.Error("failed to release stale reminder claims", slog.String("error", err.Error()))
		return 0, MapError(err)
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if released > 0 {
		log.Warn("released stale reminder claims", slog.Int64("count", released))
	}
	return released, nil
}

// WithTx implements store.ReminderStore.WithTx
func (s *PostgresReminderStore) WithTx(tx *sql.Tx) store.ReminderStore {
	return &PostgresReminderStore{
		db:     tx,
		logger: s.logger,
	}
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*domain.Reminder, error) {
	var reminder domain.Reminder
	var errorMessage, correlationID sql.NullString

	err := row.Scan(
		&reminder.ID,
		&reminder.TaskID,
		&reminder.UserID,
		&reminder.RemindAt,
		&reminder.Channel,
		&reminder.DeliveryStatus,
		&reminder.RetryCount,
		&errorMessage,
		&correlationID,
		&reminder.CreatedAt,
		&reminder.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	reminder.ErrorMessage = errorMessage.String
	reminder.CorrelationID = correlationID.String
	return &reminder, nil
}
