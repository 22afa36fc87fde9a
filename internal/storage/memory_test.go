package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id string, createdAt time.Time) *domain.Job {
	return &domain.Job{
		JobID:         id,
		HostAvatarID:  "host",
		GuestAvatarID: "guest",
		Turns: []domain.Turn{
			{Index: 0, Speaker: domain.SpeakerHost, Text: "hello", Status: domain.TurnQueued},
		},
		Status:    domain.JobQueued,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	job := newJob("job-1", time.Now())

	require.NoError(t, store.Create(ctx, job))
	assert.ErrorIs(t, store.Create(ctx, job), ErrJobExists)

	// mutating the caller's copy must not leak into the store
	job.Turns[0].Text = "changed"

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Turns[0].Text)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		jobID    string
		fn       UpdateFunc
		wantErr  error
		wantText string
	}{
		{
			name:  "applies mutation",
			jobID: "job-1",
			fn: func(job *domain.Job) error {
				job.Turns[0].Text = "updated"
				return nil
			},
			wantText: "updated",
		},
		{
			name:  "error leaves record unchanged",
			jobID: "job-1",
			fn: func(job *domain.Job) error {
				job.Turns[0].Text = "discarded"
				return domain.ErrStitchInProgress
			},
			wantErr:  domain.ErrStitchInProgress,
			wantText: "hello",
		},
		{
			name:    "unknown job",
			jobID:   "missing",
			fn:      func(job *domain.Job) error { return nil },
			wantErr: domain.ErrJobNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.Create(ctx, newJob("job-1", time.Now())))

			_, err := store.Update(ctx, tt.jobID, tt.fn)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			if tt.wantText != "" {
				got, err := store.Get(ctx, "job-1")
				require.NoError(t, err)
				assert.Equal(t, tt.wantText, got.Turns[0].Text)
			}
		})
	}
}

func TestMemoryStore_UpdateIsSerialized(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newJob("job-1", time.Now())))

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "job-1", func(job *domain.Job) error {
				job.Turns = append(job.Turns, domain.Turn{Index: len(job.Turns)})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Len(t, got.Turns, writers+1, "no update was lost")
}

func TestMemoryStore_UpdateCanceledContext(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), newJob("job-1", time.Now())))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := store.Update(ctx, "job-1", func(job *domain.Job) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, called)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		job := newJob(fmt.Sprintf("job-%d", i), base.Add(time.Duration(i)*time.Minute))
		job.CreatedBy = "alice"
		if i%2 == 1 {
			job.CreatedBy = "bob"
			job.Status = domain.JobReady
		}
		require.NoError(t, store.Create(ctx, job))
	}

	tests := []struct {
		name     string
		filter   JobFilter
		expected []string
	}{
		{
			name:     "newest first",
			filter:   JobFilter{},
			expected: []string{"job-4", "job-3", "job-2", "job-1", "job-0"},
		},
		{
			name:     "by creator",
			filter:   JobFilter{CreatedBy: "bob"},
			expected: []string{"job-3", "job-1"},
		},
		{
			name:     "by status",
			filter:   JobFilter{Status: domain.JobQueued},
			expected: []string{"job-4", "job-2", "job-0"},
		},
		{
			name:     "page size returns one extra",
			filter:   JobFilter{PageSize: 2},
			expected: []string{"job-4", "job-3", "job-2"},
		},
		{
			name: "cursor continues after last job",
			filter: JobFilter{
				PageSize: 2,
				Cursor:   &JobCursor{CreatedAt: base.Add(3 * time.Minute), JobID: "job-3"},
			},
			expected: []string{"job-2", "job-1", "job-0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := store.List(ctx, tt.filter)
			require.NoError(t, err)

			ids := make([]string, len(jobs))
			for i, j := range jobs {
				ids[i] = j.JobID
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}
