package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/avatar-podcast/internal/storage"
)

func TestJobCursor_RoundTrip(t *testing.T) {
	in := &storage.JobCursor{
		CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC),
		JobID:     "5f0c6f7e-8a3b-4c1d-9e2f-0a1b2c3d4e5f",
	}

	encoded := EncodeJobCursor(in)
	out, err := DecodeJobCursor(encoded)
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.JobID, out.JobID)
}

func TestDecodeJobCursor(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name    string
		cursor  string
		wantNil bool
		wantErr bool
	}{
		{name: "empty is first page", cursor: "", wantNil: true},
		{name: "not base64", cursor: "***", wantErr: true},
		{name: "missing separator", cursor: enc("12345"), wantErr: true},
		{name: "non numeric time", cursor: enc("yesterday|5f0c6f7e-8a3b-4c1d-9e2f-0a1b2c3d4e5f"), wantErr: true},
		{name: "bad job id", cursor: enc("12345|job-1"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeJobCursor(tt.cursor)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
			}
		})
	}
}

func TestEncodeJobCursor_Nil(t *testing.T) {
	assert.Empty(t, EncodeJobCursor(nil))
}
