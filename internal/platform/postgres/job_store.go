package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/job"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/phrazzld/pm-api/internal/store"
)

// PostgresJobStore implements job.Store on the jobs table.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ job.Store = (*PostgresJobStore)(nil)

// NewPostgresJobStore creates a job store on db.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Save implements job.Store.Save.
func (s *PostgresJobStore) Save(ctx context.Context, j *job.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, payload, status, attempts, max_attempts, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		j.ID,
		j.Type,
		[]byte(j.Payload),
		string(j.Status),
		j.Attempts,
		j.MaxAttempts,
		sql.NullString{String: j.LastError, Valid: j.LastError != ""},
		j.CreatedAt,
		j.UpdatedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to save job to database: %w", MapError(err))
	}
	return nil
}

// UpdateStatus implements job.Store.UpdateStatus.
func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status job.Status, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1`,
		id, string(status), sql.NullString{String: errMsg, Valid: errMsg != ""}, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrJobNotFound)
}

// RecordAttempt implements job.Store.RecordAttempt.
func (s *PostgresJobStore) RecordAttempt(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET attempts = $2, error_message = $3, updated_at = $4
		WHERE id = $1`,
		id, attempts, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record job attempt: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrJobNotFound)
}

// GetPending implements job.Store.GetPending.
func (s *PostgresJobStore) GetPending(ctx context.Context) ([]*job.Job, error) {
	return s.byStatus(ctx, job.StatusPending, 0)
}

// GetProcessing implements job.Store.GetProcessing.
func (s *PostgresJobStore) GetProcessing(ctx context.Context, olderThan time.Duration) ([]*job.Job, error) {
	return s.byStatus(ctx, job.StatusProcessing, olderThan)
}

func (s *PostgresJobStore) byStatus(ctx context.Context, status job.Status, olderThan time.Duration) ([]*job.Job, error) {
	query := `
		SELECT id, type, payload, status, attempts, max_attempts, error_message, created_at, updated_at
		FROM jobs
		WHERE status = $1`
	args := []any{string(status)}
	if olderThan > 0 {
		query += ` AND updated_at < $2`
		args = append(args, time.Now().UTC().Add(-olderThan))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*job.Job
	for rows.Next() {
		var (
			j         job.Job
			payload   []byte
			jobStatus string
			errMsg    sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.Type, &payload, &jobStatus, &j.Attempts, &j.MaxAttempts,
			&errMsg, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		j.Payload = payload
		j.Status = job.Status(jobStatus)
		j.LastError = errMsg.String
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}
