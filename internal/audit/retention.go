package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avelinsk/taskmill/internal/store"
)

// retentionSchedule runs the sweep nightly, off the hot consumption path.
const retentionSchedule = "15 3 * * *"

// Retention deletes audit records older than the retention period on a
// nightly schedule.
type Retention struct {
	audits        store.AuditStore
	retentionDays int
	cron          *cron.Cron
	logger        *slog.Logger
}

// NewRetention creates a retention sweep keeping retentionDays of history.
func NewRetention(audits store.AuditStore, retentionDays int, log *slog.Logger) *Retention {
	if audits == nil {
		panic("audit.NewRetention: audit store cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retention{
		audits:        audits,
		retentionDays: retentionDays,
		cron:          cron.New(),
		logger:        log.With(slog.String("component", "audit_retention")),
	}
}

// Start schedules the nightly sweep. Call Stop to shut it down.
func (r *Retention) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(retentionSchedule, func() {
		r.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	r.logger.InfoContext(ctx, "audit retention sweep scheduled",
		slog.String("schedule", retentionSchedule),
		slog.Int("retention_days", r.retentionDays))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep deletes records older than the retention period once.
func (r *Retention) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)

	deleted, err := r.audits.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "audit retention sweep failed",
			slog.String("error", err.Error()))
		return
	}

	r.logger.InfoContext(ctx, "audit retention sweep complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", deleted))
}
