package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/metrics"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/sethvargo/go-retry"
)

// Config holds configuration for the job queue.
type Config struct {
	// WorkerCount determines how many jobs are processed concurrently.
	WorkerCount int

	// QueueSize is the buffer size of the in-memory dispatch channel.
	QueueSize int

	// MaxAttempts is the number of times a job handler is run before the
	// job is marked failed.
	MaxAttempts int

	// BackoffBase is the delay before the first retry. Each further retry
	// doubles it.
	BackoffBase time.Duration

	// StuckJobAge is how long a job may stay processing before it is reset.
	StuckJobAge time.Duration

	// StuckCheckInterval is how often stuck jobs are looked for.
	StuckCheckInterval time.Duration

	// PendingPollInterval is how often the store is scanned for pending
	// jobs that never made it into the dispatch channel.
	PendingPollInterval time.Duration
}

// DefaultConfig returns the production defaults: 3 attempts with a 1s,
// 2s backoff schedule.
func DefaultConfig() Config {
	return Config{
		WorkerCount:         2,
		QueueSize:           100,
		MaxAttempts:         3,
		BackoffBase:         time.Second,
		StuckJobAge:         30 * time.Minute,
		StuckCheckInterval:  5 * time.Minute,
		PendingPollInterval: 10 * time.Second,
	}
}

// FailureHandler is called once for every job that ends in the failed state.
type FailureHandler func(ctx context.Context, job *Job, err error)

// Queue dispatches persisted jobs to registered handlers on a pool of
// worker goroutines.
type Queue struct {
	store    Store
	jobs     chan *Job
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	config   Config
	logger   *slog.Logger
	recorder metrics.Recorder

	mu        sync.RWMutex
	handlers  map[string]Handler
	onFailure FailureHandler

	// inflight counts, per job ID, dispatches not yet finished by a worker.
	inflightMu sync.Mutex
	inflight   map[uuid.UUID]int
}

// NewQueue creates a Queue. Zero config values are replaced by defaults.
func NewQueue(store Store, config Config, recorder metrics.Recorder, logger *slog.Logger) *Queue {
	def := DefaultConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = def.WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.StuckJobAge <= 0 {
		config.StuckJobAge = def.StuckJobAge
	}
	if config.StuckCheckInterval <= 0 {
		config.StuckCheckInterval = def.StuckCheckInterval
	}
	if config.PendingPollInterval <= 0 {
		config.PendingPollInterval = def.PendingPollInterval
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:    store,
		jobs:     make(chan *Job, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		config:   config,
		logger:   logger.With(slog.String("component", "job_queue")),
		recorder: recorder,
		handlers: make(map[string]Handler),
		inflight: make(map[uuid.UUID]int),
	}
	q.onFailure = q.logFailure
	return q
}

// Register binds a handler to a job type, replacing any previous one.
func (q *Queue) Register(jobType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// SetFailureHandler replaces the hook invoked when a job fails for good.
// The default hook logs the failure.
func (q *Queue) SetFailureHandler(h FailureHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailure = h
}

// Enqueue persists a new job of jobType and hands it to a worker.
// On ErrQueueFull the job is already stored as pending and the pending
// poller dispatches it once the channel has room.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any) (*Job, error) {
	if q.ctx.Err() != nil {
		return nil, ErrQueueStopped
	}

	job, err := New(jobType, payload, q.config.MaxAttempts)
	if err != nil {
		return nil, err
	}

	// claimed before Save so the pending poller cannot dispatch it too
	q.track(job.ID)

	if err := q.store.Save(ctx, job); err != nil {
		q.release(job.ID)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case q.jobs <- job:
		logger.FromContextOrDefault(ctx, q.logger).Debug("job enqueued",
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", job.Type))
		return job, nil
	default:
		q.release(job.ID)
		return job, ErrQueueFull
	}
}

// Start recovers unfinished jobs, then starts the workers and the monitor
// that polls for pending and stuck jobs.
func (q *Queue) Start(ctx context.Context) error {
	if err := q.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < q.config.WorkerCount; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.wg.Add(1)
	go q.monitor()

	return nil
}

// Stop cancels in-flight retries and waits for the workers to exit.
// Jobs interrupted during a backoff are returned to pending.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}

// Recover requeues pending jobs and resets processing jobs left over from
// a previous run.
func (q *Queue) Recover(ctx context.Context) error {
	pending, err := q.store.GetPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending jobs: %w", err)
	}

	processing, err := q.store.GetProcessing(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing jobs: %w", err)
	}

	q.logger.Info("recovering unfinished jobs",
		slog.Int("pending_count", len(pending)),
		slog.Int("processing_count", len(processing)))

	for _, job := range pending {
		q.requeue(job, "pending")
	}

	for _, job := range processing {
		if err := q.store.UpdateStatus(ctx, job.ID, StatusPending, "reset after recovery"); err != nil {
			q.logger.Error("failed to reset processing job",
				slog.String("job_id", job.ID.String()),
				slog.String("job_type", job.Type),
				slog.String("error", err.Error()))
			continue
		}
		job.Status = StatusPending
		q.requeue(job, "processing")
	}

	return nil
}

func (q *Queue) requeue(job *Job, from string) {
	q.inflightMu.Lock()
	defer q.inflightMu.Unlock()

	select {
	case q.jobs <- job:
		q.inflight[job.ID]++
	default:
		q.logger.Warn("failed to requeue job, queue is full",
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", job.Type),
			slog.String("previous_status", from))
	}
}

func (q *Queue) track(id uuid.UUID) {
	q.inflightMu.Lock()
	defer q.inflightMu.Unlock()
	q.inflight[id]++
}

func (q *Queue) release(id uuid.UUID) {
	q.inflightMu.Lock()
	defer q.inflightMu.Unlock()
	if q.inflight[id] <= 1 {
		delete(q.inflight, id)
		return
	}
	q.inflight[id]--
}

// dispatchPending hands stored pending jobs that no worker holds to the
// channel. It stops at the first full channel and reports how many jobs
// were dispatched.
func (q *Queue) dispatchPending(ctx context.Context) int {
	// held across the read so a worker cannot finish and release a job
	// between the snapshot and the in-flight check
	q.inflightMu.Lock()
	defer q.inflightMu.Unlock()

	pending, err := q.store.GetPending(ctx)
	if err != nil {
		q.logger.Error("failed to poll pending jobs", slog.String("error", err.Error()))
		return 0
	}

	dispatched := 0
	for _, job := range pending {
		if q.inflight[job.ID] > 0 {
			continue
		}
		select {
		case q.jobs <- job:
			q.inflight[job.ID]++
			dispatched++
		default:
			q.logger.Debug("queue full, pending jobs left for next poll",
				slog.Int("dispatched", dispatched))
			return dispatched
		}
	}
	if dispatched > 0 {
		q.logger.Info("dispatched pending jobs", slog.Int("count", dispatched))
	}
	return dispatched
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	q.logger.Debug("starting worker", slog.Int("worker_id", id))

	for {
		select {
		case <-q.ctx.Done():
			q.logger.Debug("stopping worker", slog.Int("worker_id", id))
			return
		case job := <-q.jobs:
			q.process(job, id)
			q.release(job.ID)
		}
	}
}

func (q *Queue) handler(jobType string) (Handler, FailureHandler) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.handlers[jobType], q.onFailure
}

// process runs one job to completion, retrying failed attempts with
// exponential backoff.
func (q *Queue) process(job *Job, workerID int) {
	log := q.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.Type),
		slog.Int("worker_id", workerID),
	)
	ctx := logger.WithContext(q.ctx, log)
	// status writes must land even while the queue is shutting down
	storeCtx := context.WithoutCancel(ctx)

	h, onFailure := q.handler(job.Type)
	if h == nil {
		err := fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
		q.fail(storeCtx, log, job, err, onFailure)
		return
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.config.MaxAttempts
	}
	if job.Attempts >= maxAttempts {
		q.fail(storeCtx, log, job, fmt.Errorf("no attempts left: %s", job.LastError), onFailure)
		return
	}

	if err := q.store.UpdateStatus(storeCtx, job.ID, StatusProcessing, ""); err != nil {
		log.Error("failed to update job status to processing", slog.String("error", err.Error()))
		return
	}
	log.Info("processing job", slog.Int("attempts", job.Attempts))

	remaining := uint64(maxAttempts - job.Attempts - 1)
	backoff := retry.WithMaxRetries(remaining, retry.NewExponential(q.config.BackoffBase))

	var lastErr error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		lastErr = runHandler(ctx, h, job)
		if lastErr == nil {
			return nil
		}

		job.Attempts++
		job.LastError = lastErr.Error()
		if err := q.store.RecordAttempt(storeCtx, job.ID, job.Attempts, job.LastError); err != nil {
			log.Error("failed to record job attempt", slog.String("error", err.Error()))
		}

		if errors.Is(lastErr, ErrPermanent) || job.Attempts >= maxAttempts {
			return lastErr
		}

		log.Warn("job attempt failed, retrying",
			slog.Int("attempt", job.Attempts),
			slog.Int("max_attempts", maxAttempts),
			slog.String("error", lastErr.Error()))
		q.recorder.RecordJobRetry(job.Type)
		return retry.RetryableError(lastErr)
	})

	switch {
	case err == nil:
		if updateErr := q.store.UpdateStatus(storeCtx, job.ID, StatusCompleted, ""); updateErr != nil {
			log.Error("failed to update job status to completed", slog.String("error", updateErr.Error()))
		}
		q.recorder.RecordJobCompleted(job.Type)
		log.Info("job completed", slog.Int("attempts", job.Attempts+1))

	case q.ctx.Err() != nil && errors.Is(err, context.Canceled):
		// interrupted by Stop
		if updateErr := q.store.UpdateStatus(storeCtx, job.ID, StatusPending, job.LastError); updateErr != nil {
			log.Error("failed to return job to pending", slog.String("error", updateErr.Error()))
		}
		log.Info("job interrupted by shutdown", slog.Int("attempts", job.Attempts))

	default:
		if lastErr != nil {
			err = lastErr
		}
		q.fail(storeCtx, log, job, err, onFailure)
	}
}

func (q *Queue) fail(ctx context.Context, log *slog.Logger, job *Job, err error, onFailure FailureHandler) {
	job.Status = StatusFailed
	job.LastError = err.Error()
	if updateErr := q.store.UpdateStatus(ctx, job.ID, StatusFailed, job.LastError); updateErr != nil {
		log.Error("failed to update job status to failed", slog.String("error", updateErr.Error()))
	}
	q.recorder.RecordJobFailed(job.Type)
	if onFailure != nil {
		onFailure(ctx, job, err)
	}
}

func (q *Queue) logFailure(ctx context.Context, job *Job, err error) {
	logger.FromContextOrDefault(ctx, q.logger).Error("job failed",
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Type),
		slog.Int("attempts", job.Attempts),
		slog.String("error", err.Error()))
}

// runHandler converts handler panics into errors.
func runHandler(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()
	return h.Handle(ctx, job)
}

// monitor periodically dispatches pending jobs left out of the channel and
// resets jobs that have been processing for longer than StuckJobAge.
func (q *Queue) monitor() {
	defer q.wg.Done()

	stuck := time.NewTicker(q.config.StuckCheckInterval)
	defer stuck.Stop()
	pending := time.NewTicker(q.config.PendingPollInterval)
	defer pending.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-pending.C:
			q.dispatchPending(context.WithoutCancel(q.ctx))
		case <-stuck.C:
			q.resetStuckJobs(context.WithoutCancel(q.ctx))
		}
	}
}

func (q *Queue) resetStuckJobs(ctx context.Context) {
	stuck, err := q.store.GetProcessing(ctx, q.config.StuckJobAge)
	if err != nil {
		q.logger.Error("failed to check for stuck jobs", slog.String("error", err.Error()))
		return
	}
	if len(stuck) == 0 {
		return
	}

	q.logger.Info("found stuck jobs", slog.Int("count", len(stuck)))
	for _, job := range stuck {
		if err := q.store.UpdateStatus(ctx, job.ID, StatusPending, "reset after being stuck in processing"); err != nil {
			q.logger.Error("failed to reset stuck job",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		job.Status = StatusPending
		q.requeue(job, "stuck")
	}
}
