package notify

import (
	"context"
	"log/slog"

	"github.com/avelinsk/taskmill/internal/domain"
	"github.com/avelinsk/taskmill/internal/platform/logger"
)

// LogSender writes reminders to the structured log instead of delivering
// them. It is the default sender in development and test environments.
type LogSender struct {
	logger *slog.Logger
}

var _ Sender = (*LogSender)(nil)

// NewLogSender creates a LogSender. A nil logger falls back to the default.
func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{logger: log.With(slog.String("component", "log_sender"))}
}

// Send logs the reminder and always succeeds.
func (s *LogSender) Send(ctx context.Context, channel domain.NotificationChannel, userID string, content string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	log.InfoContext(ctx, "reminder delivered",
		slog.String("channel", string(channel)),
		slog.String("user_id", userID),
		slog.String("content", content))
	return nil
}
