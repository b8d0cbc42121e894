package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/domain"
)

// ProjectStore defines the interface for project persistence.
type ProjectStore interface {
	// Create inserts a new project.
	// Returns ErrInvalidEntity if the owner does not exist.
	Create(ctx context.Context, project *domain.Project) error

	// GetByID returns the project row without tasks or owner.
	// Returns ErrProjectNotFound if the project does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// GetWithDetails returns the project with its tasks (oldest first)
	// and its owner populated.
	GetWithDetails(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// ListByOwner returns all projects of an owner with details,
	// oldest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Project, error)

	// Update writes name, description, status and updated_at.
	// Returns ErrProjectNotFound if the project does not exist.
	Update(ctx context.Context, project *domain.Project) error

	// Delete removes the project row.
	// Returns ErrProjectNotFound if the project does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// ArchiveInactive moves every ACTIVE project last updated before cutoff
	// to ARCHIVED, sets updated_at to now, and returns the affected IDs.
	ArchiveInactive(ctx context.Context, cutoff, now time.Time) ([]uuid.UUID, error)

	// MarkProvisioned stamps provisioned_at if it is not already set.
	MarkProvisioned(ctx context.Context, id uuid.UUID, at time.Time) error

	// WithTx returns a ProjectStore bound to tx.
	WithTx(tx *sql.Tx) ProjectStore
}
