package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/avatar-podcast/internal/api/dto"
	"github.com/cuongbtq/avatar-podcast/internal/api/handler"
	"github.com/cuongbtq/avatar-podcast/internal/api/router"
	"github.com/cuongbtq/avatar-podcast/internal/avatar"
	"github.com/cuongbtq/avatar-podcast/internal/podcast"
	"github.com/cuongbtq/avatar-podcast/internal/storage"
	"github.com/cuongbtq/avatar-podcast/shared/logger"
)

type instantRender struct {
	seq atomic.Int64
}

func (r *instantRender) CreateClip(ctx context.Context, req avatar.ClipRequest) (*avatar.CreateResult, error) {
	n := r.seq.Add(1)
	return &avatar.CreateResult{
		RenderRef:         fmt.Sprintf("render-%d", n),
		ImmediateVideoRef: fmt.Sprintf("https://cdn.example.com/clip-%d.mp4", n),
	}, nil
}

func (r *instantRender) ClipStatus(ctx context.Context, ref string) avatar.StatusResult {
	return avatar.StatusResult{}
}

type discardPublisher struct{}

func (discardPublisher) PublishJSON(ctx context.Context, v any) error { return nil }

type fixedHealth struct{}

func (fixedHealth) HealthCheck(ctx context.Context) avatar.HealthReport {
	return avatar.HealthReport{
		OK:           true,
		APIKeySet:    true,
		APIKeyPrefix: "sk_V2_abcd...",
		BaseURL:      "https://api.example.com",
		Avatars:      []avatar.AvatarInfo{{ID: "av_host", Name: "Ada"}},
	}
}

func newTestServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service := podcast.NewService(storage.NewMemoryStore(), &instantRender{}, discardPublisher{}, podcast.Config{
		SubmitConcurrency: 2,
		OutputDir:         "/srv/podcasts",
	}, logger.NewNop())
	srv := httptest.NewServer(router.SetupRouter(&handler.Dependencies{
		Logger:  logger.NewNop(),
		Service: service,
		Avatars: fixedHealth{},
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func runCLI(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--api", apiURL}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestCreateShowAndStitch(t *testing.T) {
	apiURL := newTestServer(t)

	out, err := runCLI(t, apiURL, "--json", "create", "--host", "av_host", "--guest", "av_guest",
		"--turn", "host:Welcome to the show", "--turn", "guest:Happy to be here")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ready"`)

	page, err := newAPIClient(apiURL, 0).ListJobs(context.Background(), dto.ListJobsRequest{})
	require.NoError(t, err)
	require.Len(t, page.Jobs, 1)
	jobID := page.Jobs[0].JobID

	out, err = runCLI(t, apiURL, "show", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, jobID)
	assert.Contains(t, out, "Welcome to the show")
	assert.Contains(t, out, "cdn.example.com")

	out, err = runCLI(t, apiURL, "set-video", jobID, "1", "/clips/retake.mp4")
	require.NoError(t, err)
	assert.Contains(t, out, "Turn 1 is ready")

	out, err = runCLI(t, apiURL, "stitch", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "queued: 2 clips")

	_, err = runCLI(t, apiURL, "stitch", jobID)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.StatusCode)
}

func TestCreateFromScript(t *testing.T) {
	apiURL := newTestServer(t)
	path := filepath.Join(t.TempDir(), "episode.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host_avatar_id: av_host
guest_avatar_id: av_guest
user_id: ops
options:
  aspect_ratio: "9:16"
turns:
  - speaker: host
    text: First question
  - speaker: guest
    text: First answer
`), 0o644))

	out, err := runCLI(t, apiURL, "create", "--script", path)
	require.NoError(t, err)
	assert.Contains(t, out, "First question")

	out, err = runCLI(t, apiURL, "list", "--user", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "ops")
}

func TestCreateRejectsBadInput(t *testing.T) {
	apiURL := newTestServer(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no turns", args: []string{"create", "--host", "a", "--guest", "b"}},
		{name: "malformed turn", args: []string{"create", "--host", "a", "--guest", "b", "--turn", "nobody"}},
		{name: "unknown speaker", args: []string{"create", "--host", "a", "--guest", "b", "--turn", "narrator:hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, apiURL, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestHealth(t *testing.T) {
	apiURL := newTestServer(t)
	out, err := runCLI(t, apiURL, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "connected=yes")
	assert.Contains(t, out, "av_host")
}

func TestParseTurn(t *testing.T) {
	tests := []struct {
		raw     string
		speaker string
		text    string
		wantErr bool
	}{
		{raw: "host:Hello there", speaker: "host", text: "Hello there"},
		{raw: "Guest: time: 10:30", speaker: "guest", text: "time: 10:30"},
		{raw: "host:", wantErr: true},
		{raw: "hello", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			turn, err := parseTurn(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.speaker, turn.Speaker)
			assert.Equal(t, tt.text, turn.Text)
		})
	}
}
