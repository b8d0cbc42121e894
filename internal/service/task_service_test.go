package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/cache"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/mocks"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskFixture struct {
	svc      *TaskService
	stores   *mocks.Stores
	sender   *mocks.MockSender
	redis    *miniredis.Miniredis
	owner    *domain.User
	assignee *domain.User
	project  *domain.Project
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()

	logger := discardLogger()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := mocks.NewStores()
	owner := &domain.User{ID: uuid.New(), Email: "owner@example.com", Name: "Owner", Role: domain.RoleUser, HashedPassword: "x"}
	assignee := &domain.User{ID: uuid.New(), Email: "dev@example.com", Name: "Dev", Role: domain.RoleUser, HashedPassword: "x"}
	stores.Users.AddUser(owner)
	stores.Users.AddUser(assignee)

	project, err := domain.NewProject(owner.ID, "Atlas", nil)
	require.NoError(t, err)
	require.NoError(t, stores.Projects.Create(context.Background(), project))

	sender := &mocks.MockSender{}
	svc, err := NewTaskService(TaskDeps{
		Projects: stores.Projects,
		Tasks:    stores.Tasks,
		Users:    stores.Users,
		Cache:    cache.NewRedisCache(client, time.Second, logger),
		Sender:   sender,
		Logger:   logger,
	})
	require.NoError(t, err)

	return &taskFixture{
		svc:      svc,
		stores:   stores,
		sender:   sender,
		redis:    mr,
		owner:    owner,
		assignee: assignee,
		project:  project,
	}
}

func (f *taskFixture) primeCache(t *testing.T) string {
	t.Helper()
	key := cache.ProjectKey(f.project.ID)
	require.NoError(t, f.redis.Set(key, `{"primed":true}`))
	return key
}

func TestTaskService_Create(t *testing.T) {
	f := newTaskFixture(t)
	key := f.primeCache(t)

	task, err := f.svc.Create(context.Background(), f.project.ID, CreateTaskInput{
		Title:      " Wire harness ",
		Priority:   domain.TaskPriorityLow,
		AssigneeID: &f.assignee.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Wire harness", task.Title)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, domain.TaskPriorityLow, task.Priority)
	assert.False(t, f.redis.Exists(key), "task creation drops the project snapshot")

	assignments := f.sender.Assignments()
	require.Len(t, assignments, 1)
	assert.Equal(t, "dev@example.com", assignments[0].To)
	assert.Equal(t, "Wire harness", assignments[0].Data.TaskTitle)
	assert.Equal(t, "Atlas", assignments[0].Data.ProjectName)
	assert.Equal(t, "Dev", assignments[0].Data.AssigneeName)
}

func TestTaskService_Create_DefaultsAndErrors(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	task, err := f.svc.Create(ctx, f.project.ID, CreateTaskInput{Title: "Unassigned"})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPriorityMedium, task.Priority)
	assert.Empty(t, f.sender.Assignments())

	unknown := uuid.New()
	tests := []struct {
		name      string
		projectID uuid.UUID
		input     CreateTaskInput
		wantErr   error
	}{
		{"missing title", f.project.ID, CreateTaskInput{Title: "  "}, domain.ErrValidation},
		{"bad priority", f.project.ID, CreateTaskInput{Title: "x", Priority: "URGENT"}, domain.ErrValidation},
		{"unknown assignee", f.project.ID, CreateTaskInput{Title: "x", AssigneeID: &unknown}, domain.ErrUnknownAssignee},
		{"unknown project", uuid.New(), CreateTaskInput{Title: "x"}, ErrProjectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.projectID, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTaskService_Update(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	task, err := f.svc.Create(ctx, f.project.ID, CreateTaskInput{Title: "Review"})
	require.NoError(t, err)
	key := f.primeCache(t)

	status := domain.TaskStatusCompleted
	updated, err := f.svc.Update(ctx, task.ID, UpdateTaskInput{Status: &status, AssigneeID: &f.assignee.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, updated.Status)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, f.assignee.ID, *updated.AssigneeID)
	assert.False(t, f.redis.Exists(key))
	assert.Len(t, f.sender.Assignments(), 1)

	// Same assignee again does not notify twice.
	_, err = f.svc.Update(ctx, task.ID, UpdateTaskInput{AssigneeID: &f.assignee.ID})
	require.NoError(t, err)
	assert.Len(t, f.sender.Assignments(), 1)

	bad := domain.TaskStatus("DONE")
	_, err = f.svc.Update(ctx, task.ID, UpdateTaskInput{Status: &bad})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Update(ctx, uuid.New(), UpdateTaskInput{Status: &status})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskService_GetAndDelete(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	task, err := f.svc.Create(ctx, f.project.ID, CreateTaskInput{Title: "Cleanup"})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	key := f.primeCache(t)
	require.NoError(t, f.svc.Delete(ctx, task.ID))
	assert.False(t, f.redis.Exists(key))

	_, err = f.svc.Get(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, task.ID), ErrTaskNotFound)
}

func TestTaskService_CacheOutageDoesNotFailWrites(t *testing.T) {
	f := newTaskFixture(t)
	f.redis.SetError("LOADING")

	_, err := f.svc.Create(context.Background(), f.project.ID, CreateTaskInput{Title: "Resilient"})
	assert.NoError(t, err)
}
