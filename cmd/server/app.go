package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	apiMiddleware "github.com/phrazzld/pm-api/internal/api/middleware"
	"github.com/phrazzld/pm-api/internal/cache"
	"github.com/phrazzld/pm-api/internal/config"
	"github.com/phrazzld/pm-api/internal/events"
	"github.com/phrazzld/pm-api/internal/job"
	"github.com/phrazzld/pm-api/internal/metrics"
	"github.com/phrazzld/pm-api/internal/notify"
	"github.com/phrazzld/pm-api/internal/platform/postgres"
	"github.com/phrazzld/pm-api/internal/provisioning"
	"github.com/phrazzld/pm-api/internal/scheduler"
	"github.com/phrazzld/pm-api/internal/service"
	"github.com/phrazzld/pm-api/internal/service/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// application holds the shared dependencies and owns their shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client

	registry *prometheus.Registry
	metrics  *metrics.Collector
	cache    *cache.RedisCache

	jwtService     auth.JWTService
	projectService *service.ProjectService
	taskService    *service.TaskService
	userService    *service.UserService

	queue     *job.Queue
	scheduler *scheduler.Scheduler
	limiter   *apiMiddleware.RateLimiter
}

// newApplication wires stores, services and background workers. Nothing is
// started until Run.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB, rdb *redis.Client) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		redis:    rdb,
		registry: prometheus.NewRegistry(),
	}

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "postgres"),
	)
	app.metrics = metrics.NewCollector(app.registry)

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.cache = cache.NewRedisCache(rdb, time.Duration(cfg.Cache.OpTimeoutMS)*time.Millisecond, logger)

	userStore := postgres.NewPostgresUserStore(db, cfg.Auth.BCryptCost, logger)
	projectStore := postgres.NewPostgresProjectStore(db, logger)
	taskStore := postgres.NewPostgresTaskStore(db, logger)

	sender, err := newSender(cfg.SMTP, logger)
	if err != nil {
		return nil, err
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(events.NewAuditLogHandler(logger))

	app.queue = job.NewQueue(newJobStore(cfg.Job, db, logger), job.Config{
		WorkerCount:         cfg.Job.WorkerCount,
		QueueSize:           cfg.Job.QueueSize,
		MaxAttempts:         cfg.Job.MaxAttempts,
		BackoffBase:         time.Duration(cfg.Job.BackoffBaseMS) * time.Millisecond,
		StuckJobAge:         time.Duration(cfg.Job.StuckJobAgeMinutes) * time.Minute,
		StuckCheckInterval:  time.Duration(cfg.Job.StuckCheckIntervalMinutes) * time.Minute,
		PendingPollInterval: time.Duration(cfg.Job.PendingPollSeconds) * time.Second,
	}, app.metrics, logger)
	app.queue.Register(provisioning.JobType,
		provisioning.NewHandler(projectStore, taskStore, userStore, app.cache, sender, logger))
	app.queue.SetFailureHandler(provisioning.NewFailureHandler(emitter, logger))

	app.projectService, err = service.NewProjectService(service.ProjectDeps{
		DB:       db,
		Projects: projectStore,
		Tasks:    taskStore,
		Cache:    app.cache,
		Queue:    app.queue,
		Events:   emitter,
		Metrics:  app.metrics,
		CacheTTL: time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create project service: %w", err)
	}

	app.taskService, err = service.NewTaskService(service.TaskDeps{
		Projects: projectStore,
		Tasks:    taskStore,
		Users:    userStore,
		Cache:    app.cache,
		Sender:   sender,
		Metrics:  app.metrics,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	app.userService, err = service.NewUserService(userStore, auth.NewBcryptVerifier(cfg.Auth.BCryptCost), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create user service: %w", err)
	}

	if cfg.Archive.Enabled {
		app.scheduler, err = scheduler.New(cfg.Archive, app.projectService, logger)
		if err != nil {
			return nil, err
		}
	}

	app.limiter = apiMiddleware.NewRateLimiter(apiMiddleware.NewRateLimiterConfig(
		cfg.RateLimit.RequestsPerWindow,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
	))

	logger.Info("application initialized")
	return app, nil
}

func newSender(cfg config.SMTPConfig, logger *slog.Logger) (notify.Sender, error) {
	if cfg.Host == "" {
		logger.Info("smtp host not configured, notifications will only be logged")
		return notify.NewLogSender(logger), nil
	}
	sender, err := notify.NewSMTPSender(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp sender: %w", err)
	}
	return sender, nil
}

func newJobStore(cfg config.JobConfig, db *sql.DB, logger *slog.Logger) job.Store {
	if cfg.Backend == "memory" {
		logger.Warn("using in-memory job store, jobs will not survive a restart")
		return job.NewMemoryStore()
	}
	return postgres.NewPostgresJobStore(db, logger)
}

// Run starts the background workers and serves HTTP until ctx is done.
func (app *application) Run(ctx context.Context) error {
	if err := app.queue.Start(ctx); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	if app.scheduler != nil {
		app.scheduler.Start()
	}

	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup stops background work and closes connections.
func (app *application) cleanup() {
	if app.scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := app.scheduler.Stop(ctx); err != nil {
			app.logger.Warn("scheduler did not stop in time", slog.String("error", err.Error()))
		}
		cancel()
	}

	app.queue.Stop()
	app.limiter.Stop()

	if err := app.redis.Close(); err != nil {
		app.logger.Error("error closing redis client", slog.String("error", err.Error()))
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database connection", slog.String("error", err.Error()))
	}

	app.logger.Info("application shutdown completed")
}
