package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/api/shared"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProjects implements ProjectService over a map.
type fakeProjects struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*domain.Project
	timeline map[uuid.UUID][]domain.Task
	err      error
	deleted  []uuid.UUID
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{
		projects: make(map[uuid.UUID]*domain.Project),
		timeline: make(map[uuid.UUID][]domain.Task),
	}
}

func (f *fakeProjects) add(ownerID uuid.UUID, name string) *domain.Project {
	p, err := domain.NewProject(ownerID, name, nil)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
	return p
}

func (f *fakeProjects) Create(ctx context.Context, in service.CreateProjectInput) (*domain.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, err := domain.NewProject(in.OwnerID, in.Name, in.Description)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeProjects) FindByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, service.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Project, 0)
	for _, p := range f.projects {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProjects) Update(ctx context.Context, id uuid.UUID, in service.UpdateProjectInput) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, service.ErrProjectNotFound
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Status != nil {
		if err := p.CanTransitionTo(*in.Status); err != nil {
			return nil, err
		}
		p.Status = *in.Status
	}
	return p, nil
}

func (f *fakeProjects) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return service.ErrProjectNotFound
	}
	delete(f.projects, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeProjects) GetProjectMetrics(ctx context.Context, id uuid.UUID) (*domain.ProjectMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total, completed := 0, 0
	for _, t := range f.timeline[id] {
		total++
		if t.Status == domain.TaskStatusCompleted {
			completed++
		}
	}
	m := domain.NewProjectMetrics(total, completed)
	return &m, nil
}

func (f *fakeProjects) GetProjectTimeline(ctx context.Context, id uuid.UUID) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Task{}, f.timeline[id]...), nil
}

// fakeTasks implements TaskService over a map.
type fakeTasks struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
	err   error
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (f *fakeTasks) Create(ctx context.Context, projectID uuid.UUID, in service.CreateTaskInput) (*domain.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, err := domain.NewTask(projectID, in.Title, in.Description, in.Priority, in.AssigneeID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeTasks) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, service.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasks) Update(ctx context.Context, id uuid.UUID, in service.UpdateTaskInput) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, service.ErrTaskNotFound
	}
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	return t, nil
}

func (f *fakeTasks) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return service.ErrTaskNotFound
	}
	delete(f.tasks, id)
	return nil
}

// fakeUsers implements UserService.
type fakeUsers struct {
	RegisterFn     func(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	AuthenticateFn func(ctx context.Context, email, password string) (*domain.User, error)
	GetUserFn      func(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

func (f *fakeUsers) Register(ctx context.Context, in service.RegisterInput) (*domain.User, error) {
	if f.RegisterFn != nil {
		return f.RegisterFn(ctx, in)
	}
	return &domain.User{ID: uuid.New(), Email: in.Email, Name: in.Name, Role: domain.RoleUser}, nil
}

func (f *fakeUsers) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	if f.AuthenticateFn != nil {
		return f.AuthenticateFn(ctx, email, password)
	}
	return &domain.User{ID: uuid.New(), Email: email, Role: domain.RoleUser}, nil
}

func (f *fakeUsers) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if f.GetUserFn != nil {
		return f.GetUserFn(ctx, id)
	}
	return &domain.User{ID: id, Email: "me@example.com", Role: domain.RoleUser}, nil
}

// newRequest builds a request with an optional JSON body, authenticated as
// userID unless it is uuid.Nil.
func newRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		req = req.WithContext(shared.WithUserID(req.Context(), userID))
	}
	return req
}
