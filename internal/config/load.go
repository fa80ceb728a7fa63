package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TASKMILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// An optional config file supplements the environment for local runs.
	v.SetConfigName("taskmill")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers a default for every key so environment-only values
// are visible to Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.log_level", "info")
	v.SetDefault("worker.sweep_interval", 30*time.Second)
	v.SetDefault("worker.claim_batch_size", 100)
	v.SetDefault("worker.stale_claim_age", 5*time.Minute)
	v.SetDefault("worker.retry_ceiling", 10)
	v.SetDefault("worker.dispatch_timeout", 10*time.Second)
	v.SetDefault("worker.dedup_window", 10*time.Minute)
	v.SetDefault("worker.retention_days", 90)
	v.SetDefault("worker.health_port", 8090)
	v.SetDefault("worker.migrate_on_start", false)

	v.SetDefault("database.url", "")

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.materializer_group", "taskmill-materializer")
	v.SetDefault("kafka.scheduler_group", "taskmill-scheduler")
	v.SetDefault("kafka.audit_group", "taskmill-audit")
}
