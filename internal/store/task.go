package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/domain"
)

// TaskStore defines the interface for project task persistence.
type TaskStore interface {
	// Create inserts a new task.
	// Returns ErrInvalidEntity if the project or assignee does not exist.
	Create(ctx context.Context, task *domain.Task) error

	// CreateDefaults inserts tasks that carry a DefaultKey, skipping any
	// whose (project, default key) pair already exists. It returns the
	// number of rows actually inserted.
	CreateDefaults(ctx context.Context, tasks []domain.Task) (int, error)

	// GetByID returns a task. Returns ErrTaskNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update writes the mutable task fields.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task. Returns ErrTaskNotFound if absent.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteByProject removes every task of a project and returns the count.
	DeleteByProject(ctx context.Context, projectID uuid.UUID) (int64, error)

	// ListByProject returns the tasks of a project ordered by created_at.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Task, error)

	// CountByProject returns the total and completed task counts.
	CountByProject(ctx context.Context, projectID uuid.UUID) (total int, completed int, err error)

	// WithTx returns a TaskStore bound to tx.
	WithTx(tx *sql.Tx) TaskStore
}
