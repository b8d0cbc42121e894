package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/cache"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/metrics"
	"github.com/phrazzld/pm-api/internal/notify"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/phrazzld/pm-api/internal/store"
)

// CreateTaskInput holds the fields accepted when adding a task to a project.
type CreateTaskInput struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Description *string             `json:"description,omitempty"`
	Priority    domain.TaskPriority `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	AssigneeID  *uuid.UUID          `json:"assignee_id,omitempty"`
}

// UpdateTaskInput holds the optional fields of a task update.
type UpdateTaskInput struct {
	Title       *string              `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string              `json:"description,omitempty"`
	Status      *domain.TaskStatus   `json:"status,omitempty" validate:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED"`
	Priority    *domain.TaskPriority `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	AssigneeID  *uuid.UUID           `json:"assignee_id,omitempty"`
}

// TaskDeps are the collaborators of a TaskService.
type TaskDeps struct {
	Projects store.ProjectStore
	Tasks    store.TaskStore
	Users    store.UserStore
	Cache    cache.Cache
	Sender   notify.Sender
	Metrics  metrics.Recorder
	Logger   *slog.Logger
}

// TaskService manages tasks. Every write drops the cached snapshot of the
// owning project.
type TaskService struct {
	projects store.ProjectStore
	tasks    store.TaskStore
	users    store.UserStore
	cache    cache.Cache
	sender   notify.Sender
	metrics  metrics.Recorder
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(deps TaskDeps) (*TaskService, error) {
	switch {
	case deps.Projects == nil:
		return nil, errors.New("project store cannot be nil")
	case deps.Tasks == nil:
		return nil, errors.New("task store cannot be nil")
	case deps.Users == nil:
		return nil, errors.New("user store cannot be nil")
	case deps.Cache == nil:
		return nil, errors.New("cache cannot be nil")
	case deps.Sender == nil:
		return nil, errors.New("sender cannot be nil")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &TaskService{
		projects: deps.Projects,
		tasks:    deps.Tasks,
		users:    deps.Users,
		cache:    deps.Cache,
		sender:   deps.Sender,
		metrics:  deps.Metrics,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   deps.Logger.With(slog.String("component", "task_service")),
	}, nil
}

// Create adds a task to an existing project. When the task has an assignee
// they are notified after the insert.
func (s *TaskService) Create(ctx context.Context, projectID uuid.UUID, in CreateTaskInput) (*domain.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, NewServiceError("create_task", "failed to read project", err)
	}

	var assignee *domain.User
	if in.AssigneeID != nil {
		assignee, err = s.users.GetByID(ctx, *in.AssigneeID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				return nil, domain.ErrUnknownAssignee
			}
			return nil, NewServiceError("create_task", "failed to read assignee", err)
		}
	}

	task, err := domain.NewTask(projectID, in.Title, in.Description, in.Priority, in.AssigneeID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, NewServiceError("create_task", "failed to insert task", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("project_id", projectID.String()))

	s.invalidate(ctx, projectID)
	if assignee != nil {
		s.notifyAssignee(ctx, task, project, assignee)
	}
	return task, nil
}

// Get returns a task by id.
func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("get_task", "failed to read task", err)
	}
	return task, nil
}

// Update applies the non-nil fields of in. Reassigning the task notifies
// the new assignee.
func (s *TaskService) Update(ctx context.Context, id uuid.UUID, in UpdateTaskInput) (*domain.Task, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("update_task", "failed to read task", err)
	}

	if in.Title != nil {
		task.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		task.Description = in.Description
	}
	if in.Status != nil {
		task.Status = *in.Status
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}

	var assignee *domain.User
	if in.AssigneeID != nil && (task.AssigneeID == nil || *task.AssigneeID != *in.AssigneeID) {
		assignee, err = s.users.GetByID(ctx, *in.AssigneeID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				return nil, domain.ErrUnknownAssignee
			}
			return nil, NewServiceError("update_task", "failed to read assignee", err)
		}
		task.AssigneeID = in.AssigneeID
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	task.UpdatedAt = s.now()

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, NewServiceError("update_task", "failed to update task", err)
	}
	s.invalidate(ctx, task.ProjectID)

	if assignee != nil {
		project, err := s.projects.GetByID(ctx, task.ProjectID)
		if err != nil {
			logger.FromContextOrDefault(ctx, s.logger).Warn("skipping assignment notification",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
		} else {
			s.notifyAssignee(ctx, task, project, assignee)
		}
	}
	return task, nil
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, id uuid.UUID) error {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return NewServiceError("delete_task", "failed to read task", err)
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return NewServiceError("delete_task", "failed to delete task", err)
	}
	s.invalidate(ctx, task.ProjectID)
	return nil
}

func (s *TaskService) notifyAssignee(ctx context.Context, task *domain.Task, project *domain.Project, assignee *domain.User) {
	s.sender.SendTaskAssignment(ctx, assignee.Email, notify.AssignmentData{
		TaskTitle:    task.Title,
		ProjectName:  project.Name,
		AssigneeName: assignee.Name,
	})
}

func (s *TaskService) invalidate(ctx context.Context, projectID uuid.UUID) {
	invalidateProject(ctx, s.cache, s.metrics, logger.FromContextOrDefault(ctx, s.logger), projectID)
}
