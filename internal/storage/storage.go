// Package storage persists podcast job records.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
)

// ErrJobExists is returned by Create when the job id is already taken.
var ErrJobExists = errors.New("job already exists")

// UpdateFunc mutates a job in place. Returning an error aborts the update
// and leaves the stored record unchanged.
type UpdateFunc func(job *domain.Job) error

// JobStore reads and writes job records. Update is the serialized
// read-modify-write boundary for a single job: concurrent Update calls for
// the same job id never interleave.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	Update(ctx context.Context, jobID string, fn UpdateFunc) (*domain.Job, error)
	List(ctx context.Context, filter JobFilter) ([]*domain.Job, error)
}

// JobFilter narrows List results. Results are ordered newest first and
// PageSize+1 rows are returned so callers can detect another page.
type JobFilter struct {
	CreatedBy string
	Status    domain.JobStatus
	PageSize  int
	Cursor    *JobCursor
}

// JobCursor is the keyset position of the last job on the previous page.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// before reports whether job sorts after the cursor in newest-first order.
func (c *JobCursor) before(job *domain.Job) bool {
	if c == nil {
		return true
	}
	if job.CreatedAt.Equal(c.CreatedAt) {
		return job.JobID < c.JobID
	}
	return job.CreatedAt.Before(c.CreatedAt)
}
