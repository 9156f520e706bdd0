package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ShagaDAO/gap/internal/domain/model"
)

const defaultRetention = 1000

// MemoryStore is an in-memory Store. Finished jobs beyond the retention cap
// are evicted oldest first.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*model.Job
	order     []string // creation order
	finished  int
	evicted   int
	retention int
	now       func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		jobs:      make(map[string]*model.Job),
		retention: defaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records a new job.
func (s *MemoryStore) Create(_ context.Context, job model.Job) error { //nolint:gocritic // stored by value
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, job.ID)
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = &job
	s.order = append(s.order, job.ID)
	if job.Status.Terminal() {
		s.finished++
		s.evict()
	}
	return nil
}

// Update applies fn to the stored job.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*model.Job)) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	wasTerminal := j.Status.Terminal()
	fn(j)
	j.ID = id
	j.UpdatedAt = s.now()

	out := *j
	switch {
	case !wasTerminal && j.Status.Terminal():
		s.finished++
		s.evict()
	case wasTerminal && !j.Status.Terminal():
		s.finished--
	}
	return out, nil
}

// Get returns a job by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *j, nil
}

// Stats returns job counts.
func (s *MemoryStore) Stats(context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.jobs), Evicted: s.evicted}
	for _, j := range s.jobs {
		switch j.Status {
		case model.JobPending:
			st.Pending++
		case model.JobRunning:
			st.Running++
		case model.JobDone:
			st.Done++
		case model.JobFailed:
			st.Failed++
		}
	}
	return st
}

// evict drops the oldest finished jobs until the cap holds. Callers hold
// the write lock.
func (s *MemoryStore) evict() {
	if s.finished <= s.retention {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		j := s.jobs[id]
		if s.finished > s.retention && j.Status.Terminal() {
			delete(s.jobs, id)
			s.finished--
			s.evicted++
			continue
		}
		kept = append(kept, id)
	}
	clear(s.order[len(kept):])
	s.order = kept
}
