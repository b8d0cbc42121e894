// Package job runs background work with at-least-once delivery.
//
// Jobs are persisted before they are dispatched, retried with exponential
// backoff, and recovered from the store when the queue starts. Handlers must
// therefore be idempotent.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

// Possible job status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	// ErrQueueFull is returned by Enqueue when the job was persisted but the
	// in-memory queue had no room. The job stays pending until the queue's
	// pending poller dispatches it, at most PendingPollInterval after the
	// channel frees up.
	ErrQueueFull = errors.New("job queue is full")

	// ErrQueueStopped is returned by Enqueue after Stop.
	ErrQueueStopped = errors.New("job queue is stopped")

	// ErrUnknownJobType is recorded for jobs without a registered handler.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrPermanent marks a handler error that must not be retried.
	ErrPermanent = errors.New("permanent job failure")
)

// Job is a persisted unit of background work.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// New creates a pending job with a JSON-encoded payload.
func New(jobType string, payload any, maxAttempts int) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}

	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     data,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Decode unmarshals the job payload into dst.
func (j *Job) Decode(dst any) error {
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return fmt.Errorf("%w: invalid %s payload: %v", ErrPermanent, j.Type, err)
	}
	return nil
}

// Handler processes one job. A nil error completes the job; any other error
// is retried unless it wraps ErrPermanent.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

// Handle calls f(ctx, job).
func (f HandlerFunc) Handle(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Store persists jobs and their progress.
type Store interface {
	// Save inserts a new job.
	Save(ctx context.Context, job *Job) error

	// UpdateStatus sets the status and last error of a job.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error

	// RecordAttempt stores the attempt count and error of a failed attempt.
	RecordAttempt(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error

	// GetPending returns all pending jobs, oldest first.
	GetPending(ctx context.Context) ([]*Job, error)

	// GetProcessing returns processing jobs. A non-zero olderThan limits the
	// result to jobs that have not been updated for at least that long.
	GetProcessing(ctx context.Context, olderThan time.Duration) ([]*Job, error)
}
