package config

import (
	"strings"
	"time"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Kafka    KafkaConfig    `mapstructure:"kafka" validate:"required"`
}

// WorkerConfig contains settings shared by the background worker processes.
type WorkerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// SweepInterval is how often the reminder sweep claims due reminders.
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required"`

	// ClaimBatchSize caps how many due reminders one sweep claims.
	ClaimBatchSize int `mapstructure:"claim_batch_size" validate:"required,gt=0"`

	// StaleClaimAge is how long a claimed reminder may sit in_flight before
	// the sweep assumes its worker died and returns it to pending.
	StaleClaimAge time.Duration `mapstructure:"stale_claim_age" validate:"required"`

	// RetryCeiling is the maximum number of transient delivery retries
	// before a reminder is marked failed.
	RetryCeiling int `mapstructure:"retry_ceiling" validate:"required,gt=0,lte=10"`

	// DispatchTimeout is the hard timeout on one notification sender call.
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout" validate:"required"`

	// DedupWindow is how long the audit consumer remembers event identities
	// to absorb at-least-once redelivery.
	DedupWindow time.Duration `mapstructure:"dedup_window" validate:"required"`

	// RetentionDays is how long audit records are kept before the retention
	// sweep removes them.
	RetentionDays int `mapstructure:"retention_days" validate:"required,gt=0"`

	HealthPort int `mapstructure:"health_port" validate:"required,gt=0,lt=65536"`

	// MigrateOnStart applies pending database migrations during startup.
	MigrateOnStart bool `mapstructure:"migrate_on_start"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// KafkaConfig contains the message bus settings. Brokers is a comma-separated
// list so it can be supplied through a single environment variable.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers" validate:"required"`

	MaterializerGroup string `mapstructure:"materializer_group" validate:"required"`
	SchedulerGroup    string `mapstructure:"scheduler_group" validate:"required"`
	AuditGroup        string `mapstructure:"audit_group" validate:"required"`
}

// BrokerList splits the configured broker string into addresses.
func (k KafkaConfig) BrokerList() []string {
	parts := strings.Split(k.Brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
