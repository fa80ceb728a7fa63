package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/avelinsk/taskmill/internal/domain"
)

// TaskStore defines the interface for task persistence.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors if the task data is invalid and
	// ErrDuplicate if a task with the same ID already exists.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller,
	// typically via RunInTransaction, so task creation and pattern
	// advancement commit atomically.
	WithTx(tx *sql.Tx) TaskStore
}
