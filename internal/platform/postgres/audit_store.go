package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avelinsk/taskmill/internal/domain"
	"github.com/avelinsk/taskmill/internal/platform/logger"
	"github.com/avelinsk/taskmill/internal/store"
)

// PostgresAuditStore implements the store.AuditStore interface
// using a PostgreSQL database as the storage backend. The table is
// append-only: there is deliberately no update method, and the only delete
// path is the retention sweep.
type PostgresAuditStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAuditStore creates a new PostgreSQL implementation of the AuditStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresAuditStore(db store.DBTX, logger *slog.Logger) *PostgresAuditStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresAuditStore{
		db:     db,
		logger: logger.With(slog.String("component", "audit_store")),
	}
}

// Ensure PostgresAuditStore implements store.AuditStore interface
var _ store.AuditStore = (*PostgresAuditStore)(nil)

// Append implements store.AuditStore.Append
// The monotonic ID is assigned by the database sequence and written back to
// the record.
func (s *PostgresAuditStore) Append(ctx context.Context, record *domain.AuditLog) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := record.Validate(); err != nil {
		log.Warn("audit record validation failed during append",
			slog.String("error", err.Error()),
			slog.String("correlation_id", record.CorrelationID))
		return err
	}

	query := `
		INSERT INTO audit_logs (event_type, task_id, user_id, event_data, correlation_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := s.db.QueryRowContext(
		ctx,
		query,
		record.EventType,
		record.TaskID,
		record.UserID,
		record.EventData,
		record.CorrelationID,
		record.Timestamp,
	).Scan(&record.ID)

	if err != nil {
		log.Error("failed to append audit record",
			slog.String("error", err.Error()),
			slog.String("event_type", string(record.EventType)),
			slog.String("correlation_id", record.CorrelationID))
		return MapError(err)
	}

	return nil
}

// ListByCorrelationID implements store.AuditStore.ListByCorrelationID
func (s *PostgresAuditStore) ListByCorrelationID(ctx context.Context, correlationID string) ([]*domain.AuditLog, error) {
	query := `
		SELECT id, event_type, task_id, user_id, event_data, correlation_id, timestamp
		FROM audit_logs
		WHERE correlation_id = $1
		ORDER BY id
	`
	return s.list(ctx, query, correlationID)
}

// ListByTaskID implements store.AuditStore.ListByTaskID
func (s *PostgresAuditStore) ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.AuditLog, error) {
	query := `
		SELECT id, event_type, task_id, user_id, event_data, correlation_id, timestamp
		FROM audit_logs
		WHERE task_id = $1
		ORDER BY id
	`
	return s.list(ctx, query, taskID)
}

func (s *PostgresAuditStore) list(ctx context.Context, query string, arg any) ([]*domain.AuditLog, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		log.Error("failed to query audit records", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.AuditLog
	for rows.Next() {
		var record domain.AuditLog
		if err := rows.Scan(
			&record.ID,
			&record.EventType,
			&record.TaskID,
			&record.UserID,
			&record.EventData,
			&record.CorrelationID,
			&record.Timestamp,
		); err != nil {
			log.Error("failed to scan audit record", slog.String("error", err.Error()))
			return nil, MapError(err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating audit records", slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	return records, nil
}

// DeleteOlderThan implements store.AuditStore.DeleteOlderThan
func (s *PostgresAuditStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `DELETE FROM audit_logs WHERE timestamp < $1`
	result, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		log.Error("failed to delete expired audit records",
			slog.String("error", err.Error()),
			slog.Time("cutoff", cutoff))
		return 0, MapError(err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		log.Info("retention sweep removed audit records",
			slog.Int64("count", deleted),
			slog.Time("cutoff", cutoff))
	}
	return deleted, nil
}
