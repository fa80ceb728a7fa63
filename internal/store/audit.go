package store

import (
	"context"
	"time"

	"github.com/avelinsk/taskmill/internal/domain"

	"github.com/google/uuid"
)

// AuditStore defines the interface for the append-only audit log. Rows are
// never mutated; the only permitted deletion path is the retention sweep.
type AuditStore interface {
	// Append writes one audit record and populates its monotonic ID.
	Append(ctx context.Context, record *domain.AuditLog) error

	// ListByCorrelationID returns all records sharing a correlation ID in
	// append order, tracing one originating user action end to end.
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*domain.AuditLog, error)

	// ListByTaskID returns all records for a task in append order.
	ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.AuditLog, error)

	// DeleteOlderThan removes records whose timestamp precedes the cutoff
	// and returns how many rows were removed. Used only by the retention
	// sweep, outside the hot consumption path.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
