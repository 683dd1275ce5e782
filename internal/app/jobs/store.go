package jobs

import (
	"context"
	"sync"

	apperrors "speaker-split/internal/app/errors"
	"speaker-split/internal/app/model"
)

// Store keeps job records keyed by job id. It is an explicit dependency of
// the relay and the gate so tests can instantiate isolated stores; there is
// no package-level job map.
type Store interface {
	// Create registers a new job. The id must not already exist.
	Create(ctx context.Context, job *model.Job) error
	// Get returns a snapshot of the job, or ErrJobNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)
	// Update applies fn to the stored job under the store's lock and returns
	// the resulting snapshot. fn returning an error leaves the job unchanged.
	Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error)
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewMemoryStore creates an empty job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.Job)}
}

func (s *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return apperrors.Newf("job already exists: %s", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.ErrJobNotFound
	}

	draft := job.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	s.jobs[id] = draft
	return draft.Clone(), nil
}
