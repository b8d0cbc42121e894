package provisioning_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/cache"
	"github.com/phrazzld/pm-api/internal/domain"
	"github.com/phrazzld/pm-api/internal/events"
	"github.com/phrazzld/pm-api/internal/job"
	"github.com/phrazzld/pm-api/internal/mocks"
	"github.com/phrazzld/pm-api/internal/notify"
	"github.com/phrazzld/pm-api/internal/provisioning"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	stores  *mocks.Stores
	sender  *mocks.MockSender
	redis   *miniredis.Miniredis
	handler *provisioning.Handler
	owner   *domain.User
	project *domain.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := mocks.NewStores()
	sender := &mocks.MockSender{}

	owner, err := domain.NewUser("owner@example.com", "Ada", "correct-horse-battery")
	require.NoError(t, err)
	require.NoError(t, stores.Users.Create(context.Background(), owner))

	project, err := domain.NewProject(owner.ID, "Apollo", nil)
	require.NoError(t, err)
	require.NoError(t, stores.Projects.Create(context.Background(), project))

	return &fixture{
		stores: stores,
		sender: sender,
		redis:  mr,
		handler: provisioning.NewHandler(stores.Projects, stores.Tasks, stores.Users,
			cache.NewRedisCache(client, time.Second, logger), sender, logger),
		owner:   owner,
		project: project,
	}
}

func (f *fixture) job(t *testing.T) *job.Job {
	t.Helper()
	j, err := job.New(provisioning.JobType, provisioning.Payload{
		ProjectID: f.project.ID,
		OwnerID:   f.owner.ID,
	}, 3)
	require.NoError(t, err)
	return j
}

func TestHandle_CreatesDefaultTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.redis.Set(cache.ProjectKey(f.project.ID), `{"stale":true}`)

	require.NoError(t, f.handler.Handle(ctx, f.job(t)))

	tasks, err := f.stores.Tasks.ListByProject(ctx, f.project.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Project Setup", tasks[0].Title)
	assert.Equal(t, "Project Planning", tasks[1].Title)
	for _, task := range tasks {
		assert.Equal(t, domain.TaskStatusPending, task.Status)
		assert.Equal(t, domain.TaskPriorityHigh, task.Priority)
		require.NotNil(t, task.AssigneeID)
		assert.Equal(t, f.owner.ID, *task.AssigneeID)
	}

	assert.False(t, f.redis.Exists(cache.ProjectKey(f.project.ID)), "cache entry should be invalidated")

	welcomes := f.sender.Welcomes()
	require.Len(t, welcomes, 1)
	assert.Equal(t, "owner@example.com", welcomes[0].To)
	assert.Equal(t, "Apollo", welcomes[0].Data.ProjectName)
	assert.Equal(t, "Ada", welcomes[0].Data.OwnerName)

	project, err := f.stores.Projects.GetByID(ctx, f.project.ID)
	require.NoError(t, err)
	assert.True(t, project.IsProvisioned())
}

func TestHandle_RedeliveryDoesNotDuplicateTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.handler.Handle(ctx, f.job(t)))
	require.NoError(t, f.handler.Handle(ctx, f.job(t)))

	total, _, err := f.stores.Tasks.CountByProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, f.sender.Welcomes(), 1, "already provisioned projects are skipped")
}

func TestHandle_ConcurrentDeliveriesDoNotDuplicateTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.handler.Handle(ctx, f.job(t)))
		}()
	}
	wg.Wait()

	total, _, err := f.stores.Tasks.CountByProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestHandle_MissingProject(t *testing.T) {
	f := newFixture(t)

	j, err := job.New(provisioning.JobType, provisioning.Payload{
		ProjectID: uuid.New(),
		OwnerID:   f.owner.ID,
	}, 3)
	require.NoError(t, err)

	err = f.handler.Handle(context.Background(), j)
	assert.ErrorIs(t, err, provisioning.ErrPreconditionFailed)
	assert.NotErrorIs(t, err, job.ErrPermanent)
	assert.Empty(t, f.sender.Welcomes())
}

func TestHandle_MissingOwner(t *testing.T) {
	f := newFixture(t)

	j, err := job.New(provisioning.JobType, provisioning.Payload{
		ProjectID: f.project.ID,
		OwnerID:   uuid.New(),
	}, 3)
	require.NoError(t, err)

	err = f.handler.Handle(context.Background(), j)
	assert.ErrorIs(t, err, provisioning.ErrPreconditionFailed)
}

func TestHandle_InvalidPayloadIsPermanent(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		payload any
	}{
		{"not an object", []int{1, 2}},
		{"missing ids", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := job.New(provisioning.JobType, tt.payload, 3)
			require.NoError(t, err)

			err = f.handler.Handle(context.Background(), j)
			assert.ErrorIs(t, err, job.ErrPermanent)
		})
	}
}

// cachingSender stores a snapshot of the project while the welcome is sent,
// the way a concurrent read-through lookup would.
type cachingSender struct {
	*mocks.MockSender
	redis *miniredis.Miniredis
	key   string
}

func (s cachingSender) SendProjectWelcome(ctx context.Context, to string, data notify.WelcomeData) {
	s.redis.Set(s.key, `{"provisionedAt":null}`)
	s.MockSender.SendProjectWelcome(ctx, to, data)
}

func TestHandle_InvalidatesSnapshotCachedDuringSetup(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := redis.NewClient(&redis.Options{Addr: f.redis.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	key := cache.ProjectKey(f.project.ID)
	sender := cachingSender{MockSender: f.sender, redis: f.redis, key: key}
	handler := provisioning.NewHandler(f.stores.Projects, f.stores.Tasks, f.stores.Users,
		cache.NewRedisCache(client, time.Second, logger), sender, logger)

	require.NoError(t, handler.Handle(context.Background(), f.job(t)))

	require.Len(t, f.sender.Welcomes(), 1)
	assert.False(t, f.redis.Exists(key), "snapshot cached before MarkProvisioned must not survive")
}

func TestHandle_CacheOutageDoesNotFailJob(t *testing.T) {
	f := newFixture(t)
	f.redis.SetError("LOADING")

	require.NoError(t, f.handler.Handle(context.Background(), f.job(t)))

	total, _, err := f.stores.Tasks.CountByProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestDefaultTasks(t *testing.T) {
	projectID, ownerID := uuid.New(), uuid.New()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tasks := provisioning.DefaultTasks(projectID, ownerID, now)

	require.Len(t, tasks, 2)
	assert.NotEqual(t, *tasks[0].DefaultKey, *tasks[1].DefaultKey)
	assert.True(t, tasks[0].CreatedAt.Before(tasks[1].CreatedAt))
	for _, task := range tasks {
		assert.NoError(t, task.Validate())
		assert.Equal(t, projectID, task.ProjectID)
	}
}

func TestFailureHandler_EmitsSetupFailed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	emitter := events.NewInMemoryEventEmitter(logger)

	var got []*events.Event
	emitter.RegisterHandler(events.EventHandlerFunc(func(ctx context.Context, e *events.Event) error {
		got = append(got, e)
		return nil
	}))

	projectID := uuid.New()
	j, err := job.New(provisioning.JobType, provisioning.Payload{ProjectID: projectID, OwnerID: uuid.New()}, 3)
	require.NoError(t, err)
	j.Attempts = 3

	provisioning.NewFailureHandler(emitter, logger)(context.Background(), j, errors.New("smtp down"))

	require.Len(t, got, 1)
	assert.Equal(t, events.ProjectSetupFailed, got[0].Type)

	var payload events.ProjectSetupFailedPayload
	require.NoError(t, got[0].UnmarshalPayload(&payload))
	assert.Equal(t, projectID, payload.ProjectID)
	assert.Equal(t, 3, payload.Attempts)
	assert.Equal(t, "smtp down", payload.Error)
}
