package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/phrazzld/pm-api/internal/store"
)

const projectColumns = `p.id, p.name, p.description, p.status, p.owner_id, p.provisioned_at, p.created_at, p.updated_at`

const ownerColumns = `u.id, u.email, u.name, u.role, u.created_at, u.updated_at`

// PostgresProjectStore implements store.ProjectStore.
type PostgresProjectStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.ProjectStore = (*PostgresProjectStore)(nil)

// NewPostgresProjectStore creates a project store on db, which may be a
// *sql.DB or a *sql.Tx.
func NewPostgresProjectStore(db store.DBTX, logger *slog.Logger) *PostgresProjectStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProjectStore{
		db:     db,
		logger: logger.With(slog.String("component", "project_store")),
	}
}

// WithTx implements store.ProjectStore.WithTx.
func (s *PostgresProjectStore) WithTx(tx *sql.Tx) store.ProjectStore {
	return &PostgresProjectStore{db: tx, logger: s.logger}
}

// Create implements store.ProjectStore.Create.
func (s *PostgresProjectStore) Create(ctx context.Context, project *domain.Project) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := project.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, status, owner_id, provisioned_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		project.ID,
		project.Name,
		nullString(project.Description),
		string(project.Status),
		project.OwnerID,
		nullTime(project.ProvisionedAt),
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("project owner does not exist",
				slog.String("project_id", project.ID.String()),
				slog.String("owner_id", project.OwnerID.String()))
			return fmt.Errorf("%w: owner %s not found", store.ErrInvalidEntity, project.OwnerID)
		}
		log.Error("failed to create project",
			slog.String("project_id", project.ID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("project", "create", "failed to insert project", MapError(err))
	}

	log.Debug("project created", slog.String("project_id", project.ID.String()))
	return nil
}

// GetByID implements store.ProjectStore.GetByID.
func (s *PostgresProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id)

	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProjectNotFound
		}
		return nil, store.NewStoreError("project", "get", "failed to read project", MapError(err))
	}
	return project, nil
}

// GetWithDetails implements store.ProjectStore.GetWithDetails.
func (s *PostgresProjectStore) GetWithDetails(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`, `+ownerColumns+`
		FROM projects p
		JOIN users u ON u.id = p.owner_id
		WHERE p.id = $1`, id)

	project, err := scanProjectWithOwner(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProjectNotFound
		}
		return nil, store.NewStoreError("project", "get", "failed to read project details", MapError(err))
	}

	tasks, err := listTasks(ctx, s.db, `WHERE t.project_id = $1`, id)
	if err != nil {
		return nil, err
	}
	project.Tasks = tasks

	return project, nil
}

// ListByOwner implements store.ProjectStore.ListByOwner.
func (s *PostgresProjectStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`, `+ownerColumns+`
		FROM projects p
		JOIN users u ON u.id = p.owner_id
		WHERE p.owner_id = $1
		ORDER BY p.created_at ASC, p.id ASC`, ownerID)
	if err != nil {
		return nil, store.NewStoreError("project", "list", "failed to query projects", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	projects := make([]*domain.Project, 0)
	byID := make(map[uuid.UUID]*domain.Project)
	for rows.Next() {
		project, err := scanProjectWithOwner(rows)
		if err != nil {
			return nil, store.NewStoreError("project", "list", "failed to scan project", err)
		}
		project.Tasks = []domain.Task{}
		projects = append(projects, project)
		byID[project.ID] = project
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("project", "list", "failed to iterate projects", err)
	}
	if len(projects) == 0 {
		return projects, nil
	}

	tasks, err := listTasks(ctx, s.db,
		`JOIN projects p ON p.id = t.project_id WHERE p.owner_id = $1`, ownerID)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if project, ok := byID[task.ProjectID]; ok {
			project.Tasks = append(project.Tasks, task)
		}
	}

	return projects, nil
}

// Update implements store.ProjectStore.Update.
func (s *PostgresProjectStore) Update(ctx context.Context, project *domain.Project) error {
	if err := project.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name = $2, description = $3, status = $4, updated_at = $5
		WHERE id = $1`,
		project.ID,
		project.Name,
		nullString(project.Description),
		string(project.Status),
		project.UpdatedAt,
	)
	if err != nil {
		return store.NewStoreError("project", "update", "failed to update project", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrProjectNotFound)
}

// Delete implements store.ProjectStore.Delete.
func (s *PostgresProjectStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return store.NewStoreError("project", "delete", "failed to delete project", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrProjectNotFound)
}

// ArchiveInactive implements store.ProjectStore.ArchiveInactive.
func (s *PostgresProjectStore) ArchiveInactive(ctx context.Context, cutoff, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE projects
		SET status = 'ARCHIVED', updated_at = $2
		WHERE status = 'ACTIVE' AND updated_at < $1
		RETURNING id`, cutoff, now)
	if err != nil {
		return nil, store.NewStoreError("project", "archive", "failed to archive projects", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, store.NewStoreError("project", "archive", "failed to scan archived id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("project", "archive", "failed to iterate archived ids", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("archived inactive projects",
		slog.Int("count", len(ids)),
		slog.Time("cutoff", cutoff))
	return ids, nil
}

// MarkProvisioned implements store.ProjectStore.MarkProvisioned.
func (s *PostgresProjectStore) MarkProvisioned(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET provisioned_at = $2
		WHERE id = $1 AND provisioned_at IS NULL`, id, at)
	if err != nil {
		return store.NewStoreError("project", "provision", "failed to mark project provisioned", MapError(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p             domain.Project
		description   sql.NullString
		status        string
		provisionedAt sql.NullTime
	)
	if err := row.Scan(
		&p.ID, &p.Name, &description, &status, &p.OwnerID, &provisionedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Description = stringPtr(description)
	p.Status = domain.ProjectStatus(status)
	p.ProvisionedAt = timePtr(provisionedAt)
	return &p, nil
}

func scanProjectWithOwner(row rowScanner) (*domain.Project, error) {
	var (
		p             domain.Project
		owner         domain.User
		description   sql.NullString
		status        string
		provisionedAt sql.NullTime
		role          string
	)
	if err := row.Scan(
		&p.ID, &p.Name, &description, &status, &p.OwnerID, &provisionedAt, &p.CreatedAt, &p.UpdatedAt,
		&owner.ID, &owner.Email, &owner.Name, &role, &owner.CreatedAt, &owner.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Description = stringPtr(description)
	p.Status = domain.ProjectStatus(status)
	p.ProvisionedAt = timePtr(provisionedAt)
	owner.Role = domain.Role(role)
	p.Owner = &owner
	return &p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
