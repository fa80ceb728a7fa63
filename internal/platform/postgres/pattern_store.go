package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avelinsk/taskmill/internal/domain"
	"github.com/avelinsk/taskmill/internal/platform/logger"
	"github.com/avelinsk/taskmill/internal/store"
)

// PostgresPatternStore implements the store.PatternStore interface
// using a PostgreSQL database as the storage backend.
type PostgresPatternStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresPatternStore creates a new PostgreSQL implementation of the PatternStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresPatternStore(db store.DBTX, logger *slog.Logger) *PostgresPatternStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresPatternStore{
		db:     db,
		logger: logger.With(slog.String("component", "pattern_store")),
	}
}

// Ensure PostgresPatternStore implements store.PatternStore interface
var _ store.PatternStore = (*PostgresPatternStore)(nil)

const patternColumns = `id, task_id, pattern_type, interval, days_of_week,
	day_of_month, end_condition, occurrence_count, current_occurrence,
	end_date, exhausted, last_event_key, last_instance_id, created_at, updated_at`

// Create implements store.PatternStore.Create
func (s *PostgresPatternStore) Create(ctx context.Context, pattern *domain.RecurrencePattern) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := pattern.Validate(); err != nil {
		log.Warn("pattern validation failed during create",
			slog.String("error", err.Error()),
			slog.String("pattern_id", pattern.ID.String()))
		return err
	}

	query := `
		INSERT INTO recurrence_patterns (` + patternColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		pattern.ID,
		pattern.TaskID,
		pattern.PatternType,
		pattern.Interval,
		encodeDays(pattern.DaysOfWeek),
		nullableInt(pattern.DayOfMonth),
		pattern.EndCondition,
		nullableInt(pattern.OccurrenceCount),
		pattern.CurrentOccurrence,
		pattern.EndDate,
		pattern.Exhausted,
		pattern.LastEventKey,
		pattern.LastInstanceID,
		pattern.CreatedAt,
		pattern.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create recurrence pattern",
			slog.String("error", err.Error()),
			slog.String("pattern_id", pattern.ID.String()))
		return MapError(err)
	}

	return nil
}

// GetByID implements store.PatternStore.GetByID
// Returns store.ErrPatternNotFound if the pattern does not exist.
func (s *PostgresPatternStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.RecurrencePattern, error) {
	query := `SELECT ` + patternColumns + ` FROM recurrence_patterns WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetByIDForUpdate implements store.PatternStore.GetByIDForUpdate
// It takes a row-level lock so materialization is serialized per template.
// Must be called on a transaction-scoped store (see WithTx).
func (s *PostgresPatternStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.RecurrencePattern, error) {
	query := `SELECT ` + patternColumns + ` FROM recurrence_patterns WHERE id = $1 FOR UPDATE`
	return s.getOne(ctx, query, id)
}

func (s *PostgresPatternStore) getOne(ctx context.Context, query string, id uuid.UUID) (*domain.RecurrencePattern, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var pattern domain.RecurrencePattern
	var days []byte
	var dayOfMonth, occurrenceCount sql.NullInt64
	var lastEventKey sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&pattern.ID,
		&pattern.TaskID,
		&pattern.PatternType,
		&pattern.Interval,
		&days,
		&dayOfMonth,
		&pattern.EndCondition,
		&occurrenceCount,
		&pattern.CurrentOccurrence,
		&pattern.EndDate,
		&pattern.Exhausted,
		&lastEventKey,
		&pattern.LastInstanceID,
		&pattern.CreatedAt,
		&pattern.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("recurrence pattern not found", slog.String("pattern_id", id.String()))
			return nil, store.ErrPatternNotFound
		}
		log.Error("failed to get recurrence pattern",
			slog.String("error", err.Error()),
			slog.String("pattern_id", id.String()))
		return nil, MapError(err)
	}

	pattern.DaysOfWeek = decodeDays(days)
	pattern.DayOfMonth = int(dayOfMonth.Int64)
	pattern.OccurrenceCount = int(occurrenceCount.Int64)
	pattern.LastEventKey = lastEventKey.String

	return &pattern, nil
}

// Advance implements store.PatternStore.Advance
// The occurrence counter doubles as an optimistic version: the update only
// matches when the counter still holds the value the caller read.
func (s *PostgresPatternStore) Advance(ctx context.Context, id uuid.UUID, expectedOccurrence int, eventKey string, instanceID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE recurrence_patterns
		SET current_occurrence = current_occurrence + 1,
			last_event_key = $1,
			last_instance_id = $2,
			updated_at = $3
		WHERE id = $4 AND current_occurrence = $5 AND NOT exhausted
	`
	result, err := s.db.ExecContext(ctx, query, eventKey, instanceID, time.Now().UTC(), id, expectedOccurrence)
	if err != nil {
		log.Error("failed to advance recurrence pattern",
			slog.String("error", err.Error()),
			slog.String("pattern_id", id.String()))
		return MapError(err)
	}

	if err := CheckConditionalUpdate(result); err != nil {
		log.Warn("recurrence pattern advanced concurrently",
			slog.String("pattern_id", id.String()),
			slog.Int("expected_occurrence", expectedOccurrence))
		return err
	}

	return nil
}

// MarkExhausted implements store.PatternStore.MarkExhausted
func (s *PostgresPatternStore) MarkExhausted(ctx context.Context, id uuid.UUID, eventKey string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE recurrence_patterns
		SET exhausted = TRUE,
			last_event_key = $1,
			updated_at = $2
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, eventKey, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to mark recurrence pattern exhausted",
			slog.String("error", err.Error()),
			slog.String("pattern_id", id.String()))
		return MapError(err)
	}

	return CheckRowsAffected(result, store.ErrPatternNotFound)
}

// WithTx implements store.PatternStore.WithTx
func (s *PostgresPatternStore) WithTx(tx *sql.Tx) store.PatternStore {
	return &PostgresPatternStore{
		db:     tx,
		logger: s.logger,
	}
}

// encodeDays stores the weekly day set as a comma-joined text value, empty
// when unset.
func encodeDays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	out := make([]byte, 0, len(days)*2)
	for i, d := range days {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, byte('0'+d))
	}
	return string(out)
}

func decodeDays(raw []byte) []int {
	if len(raw) == 0 {
		return nil
	}
	var days []int
	for _, b := range raw {
		if b >= '0' && b <= '6' {
			days = append(days, int(b-'0'))
		}
	}
	return days
}

// nullableInt maps the zero value to NULL so optional columns stay NULL when
// unset.
func nullableInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
