package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/service"
)

// ProjectService is the subset of *service.ProjectService the handlers use.
type ProjectService interface {
	Create(ctx context.Context, in service.CreateProjectInput) (*domain.Project, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Project, error)
	Update(ctx context.Context, id uuid.UUID, in service.UpdateProjectInput) (*domain.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetProjectMetrics(ctx context.Context, id uuid.UUID) (*domain.ProjectMetrics, error)
	GetProjectTimeline(ctx context.Context, id uuid.UUID) ([]domain.Task, error)
}

// TaskService is the subset of *service.TaskService the handlers use.
type TaskService interface {
	Create(ctx context.Context, projectID uuid.UUID, in service.CreateTaskInput) (*domain.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Update(ctx context.Context, id uuid.UUID, in service.UpdateTaskInput) (*domain.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserService is the subset of *service.UserService the handlers use.
type UserService interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

var (
	_ ProjectService = (*service.ProjectService)(nil)
	_ TaskService    = (*service.TaskService)(nil)
	_ UserService    = (*service.UserService)(nil)
)
