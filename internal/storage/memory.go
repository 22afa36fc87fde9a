package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
)

type memoryEntry struct {
	mu  sync.Mutex
	job *domain.Job
}

// MemoryStore is an in-process JobStore. Jobs are deep-copied on every read
// and write so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*memoryEntry
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; ok {
		return ErrJobExists
	}
	s.jobs[job.JobID] = &memoryEntry{job: job.Clone()}
	return nil
}

func (s *MemoryStore) entry(jobID string) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return e, nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	e, err := s.entry(jobID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, jobID string, fn UpdateFunc) (*domain.Job, error) {
	e, err := s.entry(jobID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working := e.job.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	e.job = working.Clone()
	return working, nil
}

func (s *MemoryStore) List(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var jobs []*domain.Job
	for _, e := range entries {
		e.mu.Lock()
		job := e.job.Clone()
		e.mu.Unlock()

		if filter.CreatedBy != "" && job.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if !filter.Cursor.before(job) {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].JobID > jobs[b].JobID
		}
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})

	if filter.PageSize > 0 && len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}
	return jobs, nil
}
