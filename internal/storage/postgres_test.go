package storage

import (
	"testing"
	"time"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRow_Conversion(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("job without stitch stores NULL", func(t *testing.T) {
		job := newJob("8a0e7f57-6d1c-4a8e-9a55-0b0f3c1f3a11", created)
		job.Options = domain.JobOptions{VoiceIDHost: "v1", Resolution: "1080p"}

		row, err := newJobRow(job)
		require.NoError(t, err)
		assert.False(t, row.Stitch.Valid)

		value, err := row.Stitch.Value()
		require.NoError(t, err)
		assert.Nil(t, value)

		back, err := row.toJob()
		require.NoError(t, err)
		assert.Nil(t, back.Stitch)
		assert.Equal(t, job.Options, back.Options)
		assert.Equal(t, job.Turns, back.Turns)
	})

	t.Run("job with stitch keeps record", func(t *testing.T) {
		job := newJob("8a0e7f57-6d1c-4a8e-9a55-0b0f3c1f3a11", created)
		job.Stitch = &domain.StitchRecord{
			StitchID:    "s1",
			Status:      domain.StitchQueued,
			Refs:        []string{"a.mp4", "b.mp4"},
			OutputPath:  "outputs/podcasts/x/stitched.mp4",
			RequestedAt: created,
		}

		row, err := newJobRow(job)
		require.NoError(t, err)
		assert.True(t, row.Stitch.Valid)

		back, err := row.toJob()
		require.NoError(t, err)
		require.NotNil(t, back.Stitch)
		assert.Equal(t, []string{"a.mp4", "b.mp4"}, back.Stitch.Refs)
		assert.Equal(t, domain.StitchQueued, back.Stitch.Status)
	})

	t.Run("nil turns are stored as an empty array", func(t *testing.T) {
		job := newJob("8a0e7f57-6d1c-4a8e-9a55-0b0f3c1f3a11", created)
		job.Turns = nil

		row, err := newJobRow(job)
		require.NoError(t, err)
		assert.Equal(t, "[]", row.Turns.String())
	})
}
