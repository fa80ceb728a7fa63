package audit

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelinsk/taskmill/internal/domain"
	"github.com/avelinsk/taskmill/internal/events"
)

type fakeAuditStore struct {
	mu      sync.Mutex
	records []*domain.AuditLog
	nextID  int64
}

func (f *fakeAuditStore) Append(_ context.Context, record *domain.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	record.ID = f.nextID
	clone := *record
	f.records = append(f.records, &clone)
	return nil
}

func (f *fakeAuditStore) ListByCorrelationID(_ context.Context, correlationID string) ([]*domain.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.AuditLog
	for _, r := range f.records {
		if r.CorrelationID == correlationID {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) ListByTaskID(_ context.Context, taskID uuid.UUID) ([]*domain.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.AuditLog
	for _, r := range f.records {
		if r.TaskID != nil && *r.TaskID == taskID {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*domain.AuditLog
	var deleted int64
	for _, r := range f.records {
		if r.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.records = kept
	return deleted, nil
}

func (f *fakeAuditStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestHandleEventAppendsRecord(t *testing.T) {
	t.Parallel()

	audits := &fakeAuditStore{}
	consumer := NewConsumer(audits, 10*time.Minute, slog.Default())
	taskID, userID := uuid.New(), uuid.New()

	event, err := events.New(domain.EventCompleted, taskID, userID, "corr-1",
		events.TaskPayload{Title: "file taxes"})
	require.NoError(t, err)

	require.NoError(t, consumer.HandleEvent(context.Background(), event))

	records, err := audits.ListByCorrelationID(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, int64(1), record.ID)
	assert.Equal(t, domain.EventCompleted, record.EventType)
	require.NotNil(t, record.TaskID)
	assert.Equal(t, taskID, *record.TaskID)
	assert.JSONEq(t, `{"title":"file taxes"}`, string(record.EventData))
	assert.Equal(t, event.Timestamp, record.Timestamp)
}

func TestHandleEventAbsorbsRedelivery(t *testing.T) {
	t.Parallel()

	audits := &fakeAuditStore{}
	consumer := NewConsumer(audits, 10*time.Minute, slog.Default())

	event, err := events.New(domain.EventCreated, uuid.New(), uuid.New(), "corr-1", nil)
	require.NoError(t, err)

	require.NoError(t, consumer.HandleEvent(context.Background(), event))
	require.NoError(t, consumer.HandleEvent(context.Background(), event))
	require.NoError(t, consumer.HandleEvent(context.Background(), event))

	assert.Equal(t, 1, audits.count())
}

func TestHandleEventDistinguishesDistinctEvents(t *testing.T) {
	t.Parallel()

	audits := &fakeAuditStore{}
	consumer := NewConsumer(audits, 10*time.Minute, slog.Default())
	taskID, userID := uuid.New(), uuid.New()

	// Same task and correlation, different types and timestamps: distinct
	// identities, both recorded.
	created, err := events.New(domain.EventCreated, taskID, userID, "corr-1", nil)
	require.NoError(t, err)
	completed, err := events.New(domain.EventCompleted, taskID, userID, "corr-1", nil)
	require.NoError(t, err)

	require.NoError(t, consumer.HandleEvent(context.Background(), created))
	require.NoError(t, consumer.HandleEvent(context.Background(), completed))

	records, err := audits.ListByTaskID(context.Background(), taskID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestHandleEventDropsInvalidEvent(t *testing.T) {
	t.Parallel()

	audits := &fakeAuditStore{}
	consumer := NewConsumer(audits, 10*time.Minute, slog.Default())

	// Missing correlation ID fails audit validation; the event is dropped,
	// not redelivered.
	event, err := events.New(domain.EventCreated, uuid.New(), uuid.New(), "", nil)
	require.NoError(t, err)

	require.NoError(t, consumer.HandleEvent(context.Background(), event))

	assert.Equal(t, 0, audits.count())
}

func TestDedupWindowExpiry(t *testing.T) {
	t.Parallel()

	dedup := newDedupWindow(time.Minute)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dedup.now = func() time.Time { return current }

	assert.False(t, dedup.observe("k1"))
	assert.True(t, dedup.observe("k1"))

	// Within the window the key is still known.
	current = current.Add(30 * time.Second)
	assert.True(t, dedup.observe("k1"))

	// Past the window the key is forgotten and recorded anew.
	current = current.Add(2 * time.Minute)
	assert.False(t, dedup.observe("k1"))
}

func TestRetentionSweepDeletesOldRecords(t *testing.T) {
	t.Parallel()

	audits := &fakeAuditStore{}
	taskID, userID := uuid.New(), uuid.New()

	old := &domain.AuditLog{
		EventType:     domain.EventCreated,
		TaskID:        &taskID,
		UserID:        &userID,
		CorrelationID: "corr-old",
		Timestamp:     time.Now().UTC().AddDate(0, 0, -120),
	}
	recent := &domain.AuditLog{
		EventType:     domain.EventCompleted,
		TaskID:        &taskID,
		UserID:        &userID,
		CorrelationID: "corr-recent",
		Timestamp:     time.Now().UTC().AddDate(0, 0, -5),
	}
	require.NoError(t, audits.Append(context.Background(), old))
	require.NoError(t, audits.Append(context.Background(), recent))

	retention := NewRetention(audits, 90, slog.Default())
	retention.Sweep(context.Background())

	assert.Equal(t, 1, audits.count())

	kept, err := audits.ListByCorrelationID(context.Background(), "corr-recent")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}
