package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/phrazzld/pm-api/internal/store"
)

const taskColumns = `t.id, t.title, t.description, t.status, t.priority, t.project_id, t.assignee_id, t.default_key, t.created_at, t.updated_at`

// PostgresTaskStore implements store.TaskStore.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a task store on db.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// WithTx implements store.TaskStore.WithTx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

const insertTask = `
	INSERT INTO tasks (id, title, description, status, priority, project_id, assignee_id, default_key, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func taskArgs(t *domain.Task) []any {
	return []any{
		t.ID,
		t.Title,
		nullString(t.Description),
		string(t.Status),
		string(t.Priority),
		t.ProjectID,
		nullUUID(t.AssigneeID),
		nullString(t.DefaultKey),
		t.CreatedAt,
		t.UpdatedAt,
	}
}

// Create implements store.TaskStore.Create.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, insertTask, taskArgs(task)...); err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: project or assignee not found", store.ErrInvalidEntity)
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create task",
			slog.String("task_id", task.ID.String()),
			slog.String("project_id", task.ProjectID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("task", "create", "failed to insert task", MapError(err))
	}
	return nil
}

// CreateDefaults implements store.TaskStore.CreateDefaults.
func (s *PostgresTaskStore) CreateDefaults(ctx context.Context, tasks []domain.Task) (int, error) {
	inserted := 0
	for i := range tasks {
		task := &tasks[i]
		if task.DefaultKey == nil {
			return inserted, fmt.Errorf("%w: default task %q has no key", store.ErrInvalidEntity, task.Title)
		}
		if err := task.Validate(); err != nil {
			return inserted, err
		}

		result, err := s.db.ExecContext(ctx,
			insertTask+` ON CONFLICT (project_id, default_key) DO NOTHING`,
			taskArgs(task)...)
		if err != nil {
			if IsForeignKeyViolation(err) {
				return inserted, fmt.Errorf("%w: project or assignee not found", store.ErrInvalidEntity)
			}
			return inserted, store.NewStoreError("task", "create", "failed to insert default task", MapError(err))
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, store.NewStoreError("task", "get", "failed to read task", MapError(err))
	}
	return task, nil
}

// Update implements store.TaskStore.Update.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, priority = $5, assignee_id = $6, updated_at = $7
		WHERE id = $1`,
		task.ID,
		task.Title,
		nullString(task.Description),
		string(task.Status),
		string(task.Priority),
		nullUUID(task.AssigneeID),
		task.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: assignee not found", store.ErrInvalidEntity)
		}
		return store.NewStoreError("task", "update", "failed to update task", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// Delete implements store.TaskStore.Delete.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return store.NewStoreError("task", "delete", "failed to delete task", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// DeleteByProject implements store.TaskStore.DeleteByProject.
func (s *PostgresTaskStore) DeleteByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, store.NewStoreError("task", "delete", "failed to delete project tasks", MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListByProject implements store.TaskStore.ListByProject.
func (s *PostgresTaskStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Task, error) {
	return listTasks(ctx, s.db, `WHERE t.project_id = $1`, projectID)
}

// CountByProject implements store.TaskStore.CountByProject.
func (s *PostgresTaskStore) CountByProject(ctx context.Context, projectID uuid.UUID) (int, int, error) {
	var total, completed int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'COMPLETED')
		FROM tasks
		WHERE project_id = $1`, projectID).Scan(&total, &completed)
	if err != nil {
		return 0, 0, store.NewStoreError("task", "count", "failed to count tasks", MapError(err))
	}
	return total, completed, nil
}

// listTasks returns tasks matching the given FROM-clause suffix, oldest first.
func listTasks(ctx context.Context, db store.DBTX, where string, args ...any) ([]domain.Task, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks t `+where+` ORDER BY t.created_at ASC, t.id ASC`, args...)
	if err != nil {
		return nil, store.NewStoreError("task", "list", "failed to query tasks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, store.NewStoreError("task", "list", "failed to scan task", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", "list", "failed to iterate tasks", err)
	}
	return tasks, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t           domain.Task
		description sql.NullString
		status      string
		priority    string
		assignee    uuid.NullUUID
		defaultKey  sql.NullString
	)
	if err := row.Scan(
		&t.ID, &t.Title, &description, &status, &priority, &t.ProjectID, &assignee, &defaultKey,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Description = stringPtr(description)
	t.Status = domain.TaskStatus(status)
	t.Priority = domain.TaskPriority(priority)
	t.AssigneeID = uuidPtr(assignee)
	t.DefaultKey = stringPtr(defaultKey)
	return &t, nil
}
