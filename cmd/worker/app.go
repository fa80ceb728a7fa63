package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avelinsk/taskmill/internal/audit"
	"github.com/avelinsk/taskmill/internal/config"
	"github.com/avelinsk/taskmill/internal/events"
	"github.com/avelinsk/taskmill/internal/health"
	"github.com/avelinsk/taskmill/internal/materializer"
	"github.com/avelinsk/taskmill/internal/notify"
	"github.com/avelinsk/taskmill/internal/platform/kafka"
	"github.com/avelinsk/taskmill/internal/platform/logger"
	"github.com/avelinsk/taskmill/internal/platform/postgres"
	"github.com/avelinsk/taskmill/internal/reminder"
)

// consumerRestartDelay spaces out restarts when a consumer exits on a
// handler failure, so a poisoned dependency does not spin the loop.
const consumerRestartDelay = 5 * time.Second

// app owns every long-lived component of the worker and their shutdown
// order.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	producer  *kafka.Producer
	consumers []*kafka.Consumer
	scheduler *reminder.Scheduler
	retention *audit.Retention
	health    *health.Server
}

// newApp wires stores, bus clients, and pipeline components from config.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	db, err := postgres.Open(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.Worker.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		log.Info("database migrations applied")
	}

	tasks := postgres.NewPostgresTaskStore(db, log)
	patterns := postgres.NewPostgresPatternStore(db, log)
	reminders := postgres.NewPostgresReminderStore(db, log)
	audits := postgres.NewPostgresAuditStore(db, log)

	brokers := cfg.Kafka.BrokerList()
	producer := kafka.NewProducer(brokers, log)

	dispatcher := reminder.NewDispatcher(reminders, tasks, notify.NewLogSender(log), producer,
		cfg.Worker.RetryCeiling, cfg.Worker.DispatchTimeout, log)
	scheduler := reminder.NewScheduler(reminders, producer, dispatcher,
		cfg.Worker.SweepInterval, cfg.Worker.ClaimBatchSize, cfg.Worker.StaleClaimAge, log)
	mat := materializer.New(db, tasks, patterns, producer, log)
	auditor := audit.NewConsumer(audits, cfg.Worker.DedupWindow, log)

	// Each component keeps its own consumer group so all of them see every
	// event; partitioning by task ID keeps per-task ordering within a group.
	consumers := []*kafka.Consumer{
		kafka.NewConsumer(brokers, events.TopicTaskEvents, cfg.Kafka.MaterializerGroup, mat, log),
		kafka.NewConsumer(brokers, events.TopicTaskEvents, cfg.Kafka.SchedulerGroup, scheduler, log),
		kafka.NewConsumer(brokers, events.TopicTaskUpdates, cfg.Kafka.SchedulerGroup, scheduler, log),
		kafka.NewConsumer(brokers, events.TopicTaskEvents, cfg.Kafka.AuditGroup, auditor, log),
		kafka.NewConsumer(brokers, events.TopicTaskUpdates, cfg.Kafka.AuditGroup, auditor, log),
	}

	return &app{
		cfg:       cfg,
		logger:    log,
		db:        db,
		producer:  producer,
		consumers: consumers,
		scheduler: scheduler,
		retention: audit.NewRetention(audits, cfg.Worker.RetentionDays, log),
		health:    health.NewServer(cfg.Worker.HealthPort, db, log),
	}, nil
}

// run starts every component and blocks until the context is cancelled,
// then shuts them down in reverse dependency order.
func (a *app) run(ctx context.Context) error {
	ctx = logger.WithLogger(ctx, a.logger)

	if err := a.retention.Start(ctx); err != nil {
		return fmt.Errorf("starting retention sweep: %w", err)
	}

	var wg sync.WaitGroup

	for _, c := range a.consumers {
		wg.Add(1)
		go func(c *kafka.Consumer) {
			defer wg.Done()
			a.superviseConsumer(ctx, c)
		}(c)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.scheduler.Run(ctx); err != nil {
			a.logger.Error("reminder sweep exited", slog.String("error", err.Error()))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.health.Start(); err != nil {
			a.logger.Error("health server exited", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.health.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("health server shutdown failed", slog.String("error", err.Error()))
	}

	wg.Wait()
	a.retention.Stop()

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("consumer close failed", slog.String("error", err.Error()))
		}
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("producer close failed", slog.String("error", err.Error()))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close failed", slog.String("error", err.Error()))
	}

	a.logger.Info("shutdown complete")
	return nil
}

// superviseConsumer restarts a consumer whose run loop exits on error, so a
// failed event is redelivered and retried rather than lost.
func (a *app) superviseConsumer(ctx context.Context, c *kafka.Consumer) {
	for {
		err := c.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.logger.Error("consumer exited, restarting",
				slog.Duration("delay", consumerRestartDelay),
				slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(consumerRestartDelay):
		}
	}
}
