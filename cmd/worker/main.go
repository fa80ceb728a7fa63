// Package main implements the taskmill worker: the recurring-task
// materializer, the reminder scheduler and dispatcher, and the audit
// consumer, all fed by the task event bus.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/avelinsk/taskmill/internal/config"
	"github.com/avelinsk/taskmill/internal/platform/logger"
)

func main() {
	// A local .env is optional; real deployments configure through the
	// environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger, err := logger.Setup(cfg.Worker)
	if err != nil {
		log.Fatalf("failed to set up logger: %v", err)
	}

	appLogger.Info("worker configuration loaded",
		slog.String("log_level", cfg.Worker.LogLevel),
		slog.Int("health_port", cfg.Worker.HealthPort),
		slog.String("brokers", cfg.Kafka.Brokers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize worker", slog.String("error", err.Error()))
		stop()
		log.Fatalf("failed to initialize worker: %v", err)
	}

	if err := a.run(ctx); err != nil {
		appLogger.Error("worker exited with error", slog.String("error", err.Error()))
		log.Fatalf("worker exited with error: %v", err)
	}
}
