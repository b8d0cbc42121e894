package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/cache"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/events"
	"github.com/phrazzld/pm-api/internal/job"
	"github.com/phrazzld/pm-api/internal/metrics"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/phrazzld/pm-api/internal/provisioning"
	"github.com/phrazzld/pm-api/internal/store"
)

// DefaultCacheTTL is how long a project snapshot stays cached.
const DefaultCacheTTL = time.Hour

// Enqueuer submits background jobs. *job.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any) (*job.Job, error)
}

// CreateProjectInput holds the fields accepted when creating a project.
type CreateProjectInput struct {
	Name        string    `json:"name" validate:"required,max=100"`
	Description *string   `json:"description,omitempty"`
	OwnerID     uuid.UUID `json:"-"`
}

// UpdateProjectInput holds the optional fields of a project update.
// Nil fields are left unchanged.
type UpdateProjectInput struct {
	Name        *string               `json:"name,omitempty" validate:"omitempty,max=100"`
	Description *string               `json:"description,omitempty"`
	Status      *domain.ProjectStatus `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE ARCHIVED"`
}

// ProjectDeps are the collaborators of a ProjectService.
type ProjectDeps struct {
	DB       store.TxBeginner
	Projects store.ProjectStore
	Tasks    store.TaskStore
	Cache    cache.Cache
	Queue    Enqueuer
	Events   events.EventEmitter
	Metrics  metrics.Recorder
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// ProjectService is the project repository: it reads through the cache,
// invalidates it on every write and triggers background provisioning.
type ProjectService struct {
	db       store.TxBeginner
	projects store.ProjectStore
	tasks    store.TaskStore
	cache    cache.Cache
	queue    Enqueuer
	events   events.EventEmitter
	metrics  metrics.Recorder
	ttl      time.Duration
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

// NewProjectService creates a ProjectService.
func NewProjectService(deps ProjectDeps) (*ProjectService, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("db cannot be nil")
	case deps.Projects == nil:
		return nil, errors.New("project store cannot be nil")
	case deps.Tasks == nil:
		return nil, errors.New("task store cannot be nil")
	case deps.Cache == nil:
		return nil, errors.New("cache cannot be nil")
	case deps.Queue == nil:
		return nil, errors.New("queue cannot be nil")
	case deps.Events == nil:
		return nil, errors.New("event emitter cannot be nil")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = DefaultCacheTTL
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &ProjectService{
		db:       deps.DB,
		projects: deps.Projects,
		tasks:    deps.Tasks,
		cache:    deps.Cache,
		queue:    deps.Queue,
		events:   deps.Events,
		metrics:  deps.Metrics,
		ttl:      deps.CacheTTL,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   deps.Logger.With(slog.String("component", "project_service")),
	}, nil
}

// Create inserts a new ACTIVE project. Once the insert has succeeded it
// emits project:created, caches the project and enqueues provisioning.
// None of those side effects can fail the call.
func (s *ProjectService) Create(ctx context.Context, in CreateProjectInput) (*domain.Project, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	project, err := domain.NewProject(in.OwnerID, in.Name, in.Description)
	if err != nil {
		return nil, err
	}
	now := s.now()
	project.CreatedAt = now
	project.UpdatedAt = now

	if err := s.projects.Create(ctx, project); err != nil {
		return nil, NewServiceError("create_project", "failed to insert project", err)
	}
	log = log.With(slog.String("project_id", project.ID.String()))
	log.Info("project created", slog.String("owner_id", project.OwnerID.String()))

	s.emit(ctx, events.ProjectCreated, project)
	s.store(ctx, project)

	payload := provisioning.Payload{ProjectID: project.ID, OwnerID: project.OwnerID}
	if _, err := s.queue.Enqueue(ctx, provisioning.JobType, payload); err != nil {
		s.metrics.RecordEnqueueFailure(provisioning.JobType)
		if errors.Is(err, job.ErrQueueFull) {
			log.Warn("project setup job stored but not dispatched, queue is full")
		} else {
			log.Error("failed to enqueue project setup", slog.String("error", err.Error()))
		}
	}

	return project, nil
}

// FindByID returns a project with its tasks and owner, serving it from the
// cache when possible. Cache failures fall back to the store.
func (s *ProjectService) FindByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	if project, ok := s.lookup(ctx, id); ok {
		return project, nil
	}

	project, err := s.projects.GetWithDetails(ctx, id)
	if err != nil {
		return nil, NewServiceError("find_project", "failed to read project", err)
	}

	s.store(ctx, project)
	return project, nil
}

// FindByOwner returns every project of an owner, oldest first, with tasks
// and owner loaded. It always reads the store.
func (s *ProjectService) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Project, error) {
	projects, err := s.projects.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, NewServiceError("list_projects", "failed to list projects", err)
	}
	return projects, nil
}

// Update applies the non-nil fields of in, drops the cached snapshot and
// emits project:updated. It returns the project as stored.
func (s *ProjectService) Update(ctx context.Context, id uuid.UUID, in UpdateProjectInput) (*domain.Project, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("update_project", "failed to read project", err)
	}

	if in.Name != nil {
		project.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		project.Description = in.Description
	}
	if in.Status != nil {
		if err := project.CanTransitionTo(*in.Status); err != nil {
			return nil, err
		}
		project.Status = *in.Status
	}
	project.UpdatedAt = s.now()

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, NewServiceError("update_project", "failed to update project", err)
	}

	s.invalidate(ctx, id)
	s.emit(ctx, events.ProjectUpdated, project)

	updated, err := s.projects.GetWithDetails(ctx, id)
	if err != nil {
		return nil, NewServiceError("update_project", "failed to read updated project", err)
	}
	return updated, nil
}

// Delete removes a project and all of its tasks in one transaction, then
// drops the cached snapshot and emits project:deleted.
func (s *ProjectService) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("project_id", id.String()))

	var removed int64
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		removed, err = s.tasks.WithTx(tx).DeleteByProject(ctx, id)
		if err != nil {
			return err
		}
		return s.projects.WithTx(tx).Delete(ctx, id)
	})
	if err != nil {
		return NewServiceError("delete_project", "failed to delete project", err)
	}
	log.Info("project deleted", slog.Int64("tasks_deleted", removed))

	s.invalidate(ctx, id)
	s.emit(ctx, events.ProjectDeleted, events.ProjectDeletedPayload{ProjectID: id})
	return nil
}

// GetProjectMetrics summarises task progress. An unknown project yields
// zero metrics.
func (s *ProjectService) GetProjectMetrics(ctx context.Context, id uuid.UUID) (*domain.ProjectMetrics, error) {
	total, completed, err := s.tasks.CountByProject(ctx, id)
	if err != nil {
		return nil, NewServiceError("project_metrics", "failed to count tasks", err)
	}
	m := domain.NewProjectMetrics(total, completed)
	return &m, nil
}

// ArchiveInactiveProjects archives every ACTIVE project not updated within
// the last days days and returns how many were archived.
func (s *ProjectService) ArchiveInactiveProjects(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, domain.ErrNegativeInactiveDays
	}

	now := s.now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	ids, err := s.projects.ArchiveInactive(ctx, cutoff, now)
	if err != nil {
		return 0, NewServiceError("archive_projects", "failed to archive inactive projects", err)
	}

	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = cache.ProjectKey(id)
		}
		if err := s.cache.Delete(ctx, keys...); err != nil {
			s.metrics.RecordCacheError("delete")
			logger.FromContextOrDefault(ctx, s.logger).Warn("failed to invalidate archived projects",
				slog.Int("count", len(ids)),
				slog.String("error", err.Error()))
		}
	}
	s.metrics.RecordProjectsArchived(len(ids))

	return len(ids), nil
}

// GetProjectTimeline returns the tasks of a project, oldest first.
func (s *ProjectService) GetProjectTimeline(ctx context.Context, id uuid.UUID) ([]domain.Task, error) {
	tasks, err := s.tasks.ListByProject(ctx, id)
	if err != nil {
		return nil, NewServiceError("project_timeline", "failed to list tasks", err)
	}
	return tasks, nil
}

// lookup returns the cached snapshot of a project. Entries that cannot be
// decoded or fail validation are deleted and reported as a miss.
func (s *ProjectService) lookup(ctx context.Context, id uuid.UUID) (*domain.Project, bool) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	key := cache.ProjectKey(id)

	var project domain.Project
	err := s.cache.Get(ctx, key, &project)
	switch {
	case err == nil:
		if verr := project.Validate(); verr != nil || project.ID != id {
			log.Warn("discarding invalid cached project", slog.String("key", key))
			s.invalidate(ctx, id)
			s.metrics.RecordCacheMiss()
			return nil, false
		}
		s.metrics.RecordCacheHit()
		return &project, true
	case errors.Is(err, cache.ErrMiss):
		s.metrics.RecordCacheMiss()
	case errors.Is(err, cache.ErrCorrupt):
		log.Warn("discarding undecodable cached project", slog.String("key", key))
		s.invalidate(ctx, id)
		s.metrics.RecordCacheMiss()
	default:
		s.metrics.RecordCacheError("get")
		log.Warn("cache read failed, using store", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil, false
}

func (s *ProjectService) store(ctx context.Context, project *domain.Project) {
	if err := s.cache.Set(ctx, cache.ProjectKey(project.ID), project, s.ttl); err != nil {
		s.metrics.RecordCacheError("set")
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to cache project",
			slog.String("project_id", project.ID.String()),
			slog.String("error", err.Error()))
	}
}

func (s *ProjectService) invalidate(ctx context.Context, id uuid.UUID) {
	invalidateProject(ctx, s.cache, s.metrics, logger.FromContextOrDefault(ctx, s.logger), id)
}

func (s *ProjectService) emit(ctx context.Context, eventType string, payload any) {
	emit(ctx, s.events, logger.FromContextOrDefault(ctx, s.logger), eventType, payload)
}

func invalidateProject(ctx context.Context, c cache.Cache, rec metrics.Recorder, log *slog.Logger, id uuid.UUID) {
	if err := c.Delete(ctx, cache.ProjectKey(id)); err != nil {
		rec.RecordCacheError("delete")
		log.Warn("failed to invalidate project cache",
			slog.String("project_id", id.String()),
			slog.String("error", err.Error()))
	}
}

// emit publishes a domain event. Failures are logged and never returned.
func emit(ctx context.Context, emitter events.EventEmitter, log *slog.Logger, eventType string, payload any) {
	event, err := events.NewEvent(eventType, payload)
	if err != nil {
		log.Error("failed to build event", slog.String("event_type", eventType), slog.String("error", err.Error()))
		return
	}
	if err := emitter.EmitEvent(ctx, event); err != nil {
		log.Warn("event handler failed", slog.String("event_type", eventType), slog.String("error", err.Error()))
	}
}
