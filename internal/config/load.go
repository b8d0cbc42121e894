package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every configuration environment variable,
// e.g. PM_SERVER_PORT or PM_DATABASE_URL.
const EnvPrefix = "PM"

// keys without a default must be bound explicitly so AutomaticEnv
// picks them up during Unmarshal.
var boundKeys = []string{
	"database.url",
	"redis.password",
	"auth.jwt_secret",
	"smtp.host",
	"smtp.username",
	"smtp.password",
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory, and environment variables, in increasing precedence.
// The result is validated before it is returned.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.op_timeout_ms", 250)

	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("job.backend", "postgres")
	v.SetDefault("job.worker_count", 2)
	v.SetDefault("job.queue_size", 100)
	v.SetDefault("job.max_attempts", 3)
	v.SetDefault("job.backoff_base_ms", 1000)
	v.SetDefault("job.stuck_job_age_minutes", 30)
	v.SetDefault("job.stuck_check_interval_minutes", 5)
	v.SetDefault("job.pending_poll_seconds", 10)

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.schedule", "@daily")
	v.SetDefault("archive.inactive_days", 30)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "noreply@example.com")

	v.SetDefault("rate_limit.requests_per_window", 100)
	v.SetDefault("rate_limit.window_seconds", 900)
	v.SetDefault("rate_limit.project_create_limit", 100)
	v.SetDefault("rate_limit.project_create_window_seconds", 60)
}
