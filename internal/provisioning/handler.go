// Package provisioning sets up newly created projects in the background.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/cache"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/events"
	"github.com/phrazzld/pm-api/internal/job"
	"github.com/phrazzld/pm-api/internal/notify"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/phrazzld/pm-api/internal/store"
	"golang.org/x/sync/errgroup"
)

// JobType is the job type consumed by Handler.
const JobType = "projectSetup"

// ErrPreconditionFailed is returned when the project or its owner cannot be
// loaded. The queue retries it like any other failure.
var ErrPreconditionFailed = errors.New("project or owner not found")

// Payload is the body of a projectSetup job.
type Payload struct {
	ProjectID uuid.UUID `json:"projectId"`
	OwnerID   uuid.UUID `json:"ownerId"`
}

type defaultTask struct {
	key         string
	title       string
	description string
}

var defaultTasks = []defaultTask{
	{key: "project-setup", title: "Project Setup", description: "Initial project setup and configuration"},
	{key: "project-planning", title: "Project Planning", description: "Create project timeline and milestones"},
}

// DefaultTasks builds the tasks every new project starts with, assigned to
// the owner.
func DefaultTasks(projectID, ownerID uuid.UUID, now time.Time) []domain.Task {
	tasks := make([]domain.Task, 0, len(defaultTasks))
	for i, d := range defaultTasks {
		key := d.key
		description := d.description
		assignee := ownerID
		// Offset creation times so the timeline keeps the default order.
		created := now.Add(time.Duration(i) * time.Microsecond)
		tasks = append(tasks, domain.Task{
			ID:          uuid.New(),
			Title:       d.title,
			Description: &description,
			Status:      domain.TaskStatusPending,
			Priority:    domain.TaskPriorityHigh,
			ProjectID:   projectID,
			AssigneeID:  &assignee,
			DefaultKey:  &key,
			CreatedAt:   created,
			UpdatedAt:   created,
		})
	}
	return tasks
}

// Handler processes projectSetup jobs. Running it more than once for the
// same project leaves exactly one copy of each default task.
type Handler struct {
	projects store.ProjectStore
	tasks    store.TaskStore
	users    store.UserStore
	cache    cache.Cache
	sender   notify.Sender
	now      func() time.Time
	logger   *slog.Logger
}

var _ job.Handler = (*Handler)(nil)

// NewHandler creates a provisioning Handler.
func NewHandler(
	projects store.ProjectStore,
	tasks store.TaskStore,
	users store.UserStore,
	c cache.Cache,
	sender notify.Sender,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		projects: projects,
		tasks:    tasks,
		users:    users,
		cache:    c,
		sender:   sender,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "provisioning")),
	}
}

// Handle implements job.Handler.
func (h *Handler) Handle(ctx context.Context, j *job.Job) error {
	var payload Payload
	if err := j.Decode(&payload); err != nil {
		return err
	}
	if payload.ProjectID == uuid.Nil || payload.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: payload is missing projectId or ownerId", job.ErrPermanent)
	}

	log := logger.FromContextOrDefault(ctx, h.logger).With(
		slog.String("job_id", j.ID.String()),
		slog.String("project_id", payload.ProjectID.String()))

	var (
		project *domain.Project
		owner   *domain.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		project, err = h.projects.GetByID(gctx, payload.ProjectID)
		return err
	})
	g.Go(func() error {
		var err error
		owner, err = h.users.GetByID(gctx, payload.OwnerID)
		return err
	})
	if err := g.Wait(); err != nil {
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: %v", ErrPreconditionFailed, err)
		}
		return fmt.Errorf("failed to load project setup inputs: %w", err)
	}

	if project.IsProvisioned() {
		log.Debug("project already provisioned, skipping")
		return nil
	}

	now := h.now()
	inserted, err := h.tasks.CreateDefaults(ctx, DefaultTasks(project.ID, owner.ID, now))
	if err != nil {
		return fmt.Errorf("failed to create default tasks: %w", err)
	}

	h.invalidate(ctx, log, project.ID)

	h.sender.SendProjectWelcome(ctx, owner.Email, notify.WelcomeData{
		ProjectName: project.Name,
		OwnerName:   owner.Name,
	})

	if err := h.projects.MarkProvisioned(ctx, project.ID, now); err != nil {
		return fmt.Errorf("failed to mark project provisioned: %w", err)
	}
	// a read between the first invalidation and MarkProvisioned may have
	// cached the project as unprovisioned
	h.invalidate(ctx, log, project.ID)

	log.Info("project setup completed", slog.Int("tasks_created", inserted))
	return nil
}

func (h *Handler) invalidate(ctx context.Context, log *slog.Logger, projectID uuid.UUID) {
	if err := h.cache.Delete(ctx, cache.ProjectKey(projectID)); err != nil {
		log.Warn("failed to invalidate project cache", slog.String("error", err.Error()))
	}
}

// NewFailureHandler returns a job.FailureHandler that logs the failure and
// emits project:setupFailed for jobs that exhausted their attempts.
func NewFailureHandler(emitter events.EventEmitter, base *slog.Logger) job.FailureHandler {
	return func(ctx context.Context, j *job.Job, err error) {
		log := logger.FromContextOrDefault(ctx, base)
		log.Error("job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Type),
			slog.Int("attempts", j.Attempts),
			slog.String("error", err.Error()))

		var payload Payload
		_ = j.Decode(&payload)

		event, evErr := events.NewEvent(events.ProjectSetupFailed, events.ProjectSetupFailedPayload{
			JobID:     j.ID,
			ProjectID: payload.ProjectID,
			Attempts:  j.Attempts,
			Error:     err.Error(),
		})
		if evErr == nil {
			evErr = emitter.EmitEvent(ctx, event)
		}
		if evErr != nil {
			log.Error("failed to emit project setup failure",
				slog.String("job_id", j.ID.String()),
				slog.String("error", evErr.Error()))
		}
	}
}
