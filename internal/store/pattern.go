package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/avelinsk/taskmill/internal/domain"
)

// PatternStore defines the interface for recurrence pattern persistence.
// Patterns are owned by the instance materializer, which is the only writer
// after creation.
type PatternStore interface {
	// Create saves a new recurrence pattern to the store.
	Create(ctx context.Context, pattern *domain.RecurrencePattern) error

	// GetByID retrieves a pattern by its unique ID.
	// Returns ErrPatternNotFound if the pattern does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RecurrencePattern, error)

	// GetByIDForUpdate retrieves a pattern and takes a row-level lock on it
	// for the duration of the enclosing transaction. This serializes
	// materialization per template so concurrent duplicate completion events
	// cannot both create a next instance. Must be called within a
	// transaction (use WithTx).
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.RecurrencePattern, error)

	// Advance increments the pattern's occurrence counter and records the
	// idempotency key of the completion event that was materialized along
	// with the instance it produced. The update is conditional on
	// expectedOccurrence as an optimistic version check; ErrConflict is
	// returned when another worker advanced the pattern first.
	Advance(ctx context.Context, id uuid.UUID, expectedOccurrence int, eventKey string, instanceID uuid.UUID) error

	// MarkExhausted records that the pattern's end condition is met and no
	// further instances will be created. The event key is stored so a
	// redelivered completion event remains a no-op.
	MarkExhausted(ctx context.Context, id uuid.UUID, eventKey string) error

	// WithTx returns a new PatternStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) PatternStore
}
