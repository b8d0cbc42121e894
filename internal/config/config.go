package config

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis" validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Job       JobConfig       `mapstructure:"job" validate:"required"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
}

// ServerConfig contains HTTP server and logging settings.
type ServerConfig struct {
	Port      int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel  string `mapstructure:"log_level" validate:"required,oneof=debug info warn error fatal"`
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=json text"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	// AutoMigrate applies embedded migrations at startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RedisConfig contains connection settings for the cache and rate limiter.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// CacheConfig controls the project read cache.
type CacheConfig struct {
	TTLSeconds  int `mapstructure:"ttl_seconds" validate:"required,gt=0"`
	OpTimeoutMS int `mapstructure:"op_timeout_ms" validate:"required,gt=0"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	BCryptCost           int    `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
}

// JobConfig controls the background job queue.
type JobConfig struct {
	// Backend selects the job store: "postgres" for durable jobs or
	// "memory" for local development.
	Backend                   string `mapstructure:"backend" validate:"required,oneof=postgres memory"`
	WorkerCount               int    `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize                 int    `mapstructure:"queue_size" validate:"required,gt=0"`
	MaxAttempts               int    `mapstructure:"max_attempts" validate:"required,gt=0"`
	BackoffBaseMS             int    `mapstructure:"backoff_base_ms" validate:"required,gt=0"`
	StuckJobAgeMinutes        int    `mapstructure:"stuck_job_age_minutes" validate:"required,gt=0"`
	StuckCheckIntervalMinutes int    `mapstructure:"stuck_check_interval_minutes" validate:"required,gt=0"`
	PendingPollSeconds        int    `mapstructure:"pending_poll_seconds" validate:"required,gt=0"`
}

// ArchiveConfig controls the periodic sweep that archives inactive projects.
type ArchiveConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Schedule     string `mapstructure:"schedule" validate:"required_if=Enabled true"`
	InactiveDays int    `mapstructure:"inactive_days" validate:"gte=0"`
}

// SMTPConfig configures outgoing email. An empty Host disables delivery
// and notifications are only logged.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"omitempty,gt=0,lt=65536"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"omitempty,email"`
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	// RequestsPerWindow and WindowSeconds define the general per-client limit.
	RequestsPerWindow int `mapstructure:"requests_per_window" validate:"required,gt=0"`
	WindowSeconds     int `mapstructure:"window_seconds" validate:"required,gt=0"`
	// ProjectCreateLimit and ProjectCreateWindowSeconds define the
	// Redis-backed limit on project creation.
	ProjectCreateLimit         int `mapstructure:"project_create_limit" validate:"required,gt=0"`
	ProjectCreateWindowSeconds int `mapstructure:"project_create_window_seconds" validate:"required,gt=0"`
}
