package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/store"
)

// memoryData is the shared state behind the in-memory stores, so that
// projects see their tasks and owners like the real schema does.
type memoryData struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]domain.User
	projects map[uuid.UUID]domain.Project
	tasks    map[uuid.UUID]domain.Task
}

// Stores bundles in-memory implementations of the store interfaces that
// share one dataset.
type Stores struct {
	Projects *MockProjectStore
	Tasks    *MockTaskStore
	Users    *MockUserStore
}

// NewStores creates an empty in-memory dataset.
func NewStores() *Stores {
	data := &memoryData{
		users:    make(map[uuid.UUID]domain.User),
		projects: make(map[uuid.UUID]domain.Project),
		tasks:    make(map[uuid.UUID]domain.Task),
	}
	return &Stores{
		Projects: &MockProjectStore{data: data},
		Tasks:    &MockTaskStore{data: data},
		Users:    &MockUserStore{data: data},
	}
}

// MockProjectStore implements store.ProjectStore in memory.
type MockProjectStore struct {
	data *memoryData

	// Optional overrides
	CreateFn         func(ctx context.Context, project *domain.Project) error
	GetWithDetailsFn func(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	UpdateFn         func(ctx context.Context, project *domain.Project) error
	DeleteFn         func(ctx context.Context, id uuid.UUID) error

	mu                  sync.Mutex
	getWithDetailsCalls int
}

var _ store.ProjectStore = (*MockProjectStore)(nil)

// GetWithDetailsCalls reports how many detail reads reached the store.
func (m *MockProjectStore) GetWithDetailsCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getWithDetailsCalls
}

// Create implements store.ProjectStore.
func (m *MockProjectStore) Create(ctx context.Context, project *domain.Project) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, project)
	}
	if err := project.Validate(); err != nil {
		return err
	}

	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	if _, ok := m.data.users[project.OwnerID]; !ok {
		return fmt.Errorf("%w: owner %s not found", store.ErrInvalidEntity, project.OwnerID)
	}
	if _, ok := m.data.projects[project.ID]; ok {
		return store.ErrDuplicate
	}
	m.data.projects[project.ID] = bareProject(project)
	return nil
}

// GetByID implements store.ProjectStore.
func (m *MockProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	p, ok := m.data.projects[id]
	if !ok {
		return nil, store.ErrProjectNotFound
	}
	return &p, nil
}

// GetWithDetails implements store.ProjectStore.
func (m *MockProjectStore) GetWithDetails(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	m.mu.Lock()
	m.getWithDetailsCalls++
	m.mu.Unlock()

	if m.GetWithDetailsFn != nil {
		return m.GetWithDetailsFn(ctx, id)
	}

	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	p, ok := m.data.projects[id]
	if !ok {
		return nil, store.ErrProjectNotFound
	}
	return m.data.withDetails(p), nil
}

// ListByOwner implements store.ProjectStore.
func (m *MockProjectStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Project, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	out := make([]*domain.Project, 0)
	for _, p := range m.data.projects {
		if p.OwnerID == ownerID {
			out = append(out, m.data.withDetails(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Update implements store.ProjectStore.
func (m *MockProjectStore) Update(ctx context.Context, project *domain.Project) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, project)
	}
	if err := project.Validate(); err != nil {
		return err
	}

	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	existing, ok := m.data.projects[project.ID]
	if !ok {
		return store.ErrProjectNotFound
	}
	existing.Name = project.Name
	existing.Description = project.Description
	existing.Status = project.Status
	existing.UpdatedAt = project.UpdatedAt
	m.data.projects[project.ID] = existing
	return nil
}

// Delete implements store.ProjectStore. Tasks of the project are removed
// with it.
func (m *MockProjectStore) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}

	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	if _, ok := m.data.projects[id]; !ok {
		return store.ErrProjectNotFound
	}
	delete(m.data.projects, id)
	for taskID, t := range m.data.tasks {
		if t.ProjectID == id {
			delete(m.data.tasks, taskID)
		}
	}
	return nil
}

// ArchiveInactive implements store.ProjectStore.
func (m *MockProjectStore) ArchiveInactive(ctx context.Context, cutoff, now time.Time) ([]uuid.UUID, error) {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	var ids []uuid.UUID
	for id, p := range m.data.projects {
		if p.Status == domain.ProjectStatusActive && p.UpdatedAt.Before(cutoff) {
			p.Status = domain.ProjectStatusArchived
			p.UpdatedAt = now
			m.data.projects[id] = p
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// MarkProvisioned implements store.ProjectStore.
func (m *MockProjectStore) MarkProvisioned(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	p, ok := m.data.projects[id]
	if !ok || p.ProvisionedAt != nil {
		return nil
	}
	p.ProvisionedAt = &at
	m.data.projects[id] = p
	return nil
}

// WithTx implements store.ProjectStore.
func (m *MockProjectStore) WithTx(tx *sql.Tx) store.ProjectStore {
	return m
}

// SetUpdatedAt backdates a project for inactivity tests.
func (m *MockProjectStore) SetUpdatedAt(id uuid.UUID, at time.Time) {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if p, ok := m.data.projects[id]; ok {
		p.UpdatedAt = at
		m.data.projects[id] = p
	}
}

// MockTaskStore implements store.TaskStore in memory.
type MockTaskStore struct {
	data *memoryData

	// Optional overrides
	DeleteByProjectFn func(ctx context.Context, projectID uuid.UUID) (int64, error)
}

var _ store.TaskStore = (*MockTaskStore)(nil)

// Create implements store.TaskStore.
func (m *MockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	if err := m.data.checkTaskRefs(task); err != nil {
		return err
	}
	m.data.tasks[task.ID] = *task
	return nil
}

// CreateDefaults implements store.TaskStore, skipping tasks whose default
// key already exists in the project.
func (m *MockTaskStore) CreateDefaults(ctx context.Context, tasks []domain.Task) (int, error) {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	inserted := 0
	for _, task := range tasks {
		if task.DefaultKey == nil {
			return inserted, fmt.Errorf("%w: default task %q has no key", store.ErrInvalidEntity, task.Title)
		}
		if err := m.data.checkTaskRefs(&task); err != nil {
			return inserted, err
		}
		if m.data.hasDefaultKey(task.ProjectID, *task.DefaultKey) {
			continue
		}
		m.data.tasks[task.ID] = task
		inserted++
	}
	return inserted, nil
}

// GetByID implements store.TaskStore.
func (m *MockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	t, ok := m.data.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return &t, nil
}

// Update implements store.TaskStore.
func (m *MockTaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	if _, ok := m.data.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	if err := m.data.checkTaskRefs(task); err != nil {
		return err
	}
	m.data.tasks[task.ID] = *task
	return nil
}

// Delete implements store.TaskStore.
func (m *MockTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	if _, ok := m.data.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(m.data.tasks, id)
	return nil
}

// DeleteByProject implements store.TaskStore.
func (m *MockTaskStore) DeleteByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	if m.DeleteByProjectFn != nil {
		return m.DeleteByProjectFn(ctx, projectID)
	}

	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	var n int64
	for id, t := range m.data.tasks {
		if t.ProjectID == projectID {
			delete(m.data.tasks, id)
			n++
		}
	}
	return n, nil
}

// ListByProject implements store.TaskStore.
func (m *MockTaskStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Task, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return m.data.projectTasks(projectID), nil
}

// CountByProject implements store.TaskStore.
func (m *MockTaskStore) CountByProject(ctx context.Context, projectID uuid.UUID) (int, int, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	var total, completed int
	for _, t := range m.data.tasks {
		if t.ProjectID != projectID {
			continue
		}
		total++
		if t.Status == domain.TaskStatusCompleted {
			completed++
		}
	}
	return total, completed, nil
}

// WithTx implements store.TaskStore.
func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return m
}

func bareProject(p *domain.Project) domain.Project {
	out := *p
	out.Tasks = nil
	out.Owner = nil
	return out
}

// withDetails must be called with the read lock held.
func (d *memoryData) withDetails(p domain.Project) *domain.Project {
	p.Tasks = d.projectTasks(p.ID)
	if owner, ok := d.users[p.OwnerID]; ok {
		owner.Password = ""
		p.Owner = &owner
	}
	return &p
}

func (d *memoryData) projectTasks(projectID uuid.UUID) []domain.Task {
	out := make([]domain.Task, 0)
	for _, t := range d.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (d *memoryData) checkTaskRefs(task *domain.Task) error {
	if _, ok := d.projects[task.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s not found", store.ErrInvalidEntity, task.ProjectID)
	}
	if task.AssigneeID != nil {
		if _, ok := d.users[*task.AssigneeID]; !ok {
			return fmt.Errorf("%w: assignee %s not found", store.ErrInvalidEntity, *task.AssigneeID)
		}
	}
	return nil
}

func (d *memoryData) hasDefaultKey(projectID uuid.UUID, key string) bool {
	for _, t := range d.tasks {
		if t.ProjectID == projectID && t.DefaultKey != nil && *t.DefaultKey == key {
			return true
		}
	}
	return false
}
