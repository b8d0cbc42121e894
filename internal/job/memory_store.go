package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/store"
)

// MemoryStore is a Store kept in process memory. Jobs do not survive a
// restart, so it is meant for tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[uuid.UUID]*Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Save(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	j.Status = status
	j.LastError = errMsg
	j.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) RecordAttempt(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	j.Attempts = attempts
	j.LastError = errMsg
	j.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetPending(ctx context.Context) ([]*Job, error) {
	return s.byStatus(StatusPending, 0), nil
}

func (s *MemoryStore) GetProcessing(ctx context.Context, olderThan time.Duration) ([]*Job, error) {
	return s.byStatus(StatusProcessing, olderThan), nil
}

// Get returns a copy of the job with id.
func (s *MemoryStore) Get(id uuid.UUID) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}

// All returns copies of every stored job, oldest first.
func (s *MemoryStore) All() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sortByCreated(out)
	return out
}

func (s *MemoryStore) byStatus(status Status, olderThan time.Duration) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	var out []*Job
	for _, j := range s.jobs {
		if j.Status != status {
			continue
		}
		if olderThan > 0 && !j.UpdatedAt.Before(cutoff) {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sortByCreated(out)
	return out
}

func sortByCreated(jobs []*Job) {
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}
