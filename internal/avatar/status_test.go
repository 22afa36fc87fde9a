package avatar

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ClipStatus(t *testing.T) {
	t.Run("unresolved when every endpoint is missing", func(t *testing.T) {
		provider := &fakeProvider{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			http.NotFound(w, r)
		}}
		client := newTestClient(t, provider, nil)

		result := client.ClipStatus(context.Background(), "abc")

		assert.False(t, result.Resolved)
		assert.Equal(t, domain.TurnUnknown, result.Status)
		assert.Equal(t, []string{"/v2/video/abc", "/v2/video/status/abc", "/v2/video/status"}, provider.paths())
		assert.Equal(t, "video_id=abc", provider.requests[2].Query)
	})

	t.Run("slow endpoint is abandoned after its timeout", func(t *testing.T) {
		provider := &fakeProvider{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			if r.URL.Path == "/v2/video/abc" {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": "rendering"}})
		}}
		client := newTestClient(t, provider, func(c *Config) { c.StatusTimeout = 50 * time.Millisecond })

		start := time.Now()
		result := client.ClipStatus(context.Background(), "abc")

		assert.Less(t, time.Since(start), time.Second)
		assert.True(t, result.Resolved)
		assert.Equal(t, domain.TurnProcessing, result.Status)
		assert.Equal(t, "/v2/video/status/abc", result.Endpoint)
	})

	t.Run("non JSON answer is skipped", func(t *testing.T) {
		provider := &fakeProvider{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			if r.URL.Path == "/v2/video/abc" {
				_, _ = w.Write([]byte("<html>ok</html>"))
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"status":    "completed",
				"video_url": "https://cdn.example.com/abc.mp4",
			})
		}}
		client := newTestClient(t, provider, nil)

		result := client.ClipStatus(context.Background(), "abc")

		require.True(t, result.Resolved)
		assert.Equal(t, domain.TurnReady, result.Status)
		assert.Equal(t, "https://cdn.example.com/abc.mp4", result.VideoRef)
	})

	t.Run("failed status", func(t *testing.T) {
		provider := &fakeProvider{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": "error"}})
		}}
		client := newTestClient(t, provider, nil)

		result := client.ClipStatus(context.Background(), "abc")

		assert.True(t, result.Resolved)
		assert.Equal(t, domain.TurnFailed, result.Status)
		assert.Len(t, provider.requests, 1)
	})
}

func TestStatusPath(t *testing.T) {
	assert.Equal(t, "/v2/video/a%2Fb", statusPath("/v2/video/{id}", "a/b"))
	assert.Equal(t, "/v2/video/status?video_id=a%26b", statusPath("/v2/video/status?video_id={id}", "a&b"))
	assert.Equal(t, "/v2/video/list", statusPath("/v2/video/list", "x"))
}

func TestClient_HealthCheck(t *testing.T) {
	t.Run("lists avatars from the first working endpoint", func(t *testing.T) {
		provider := &fakeProvider{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			if r.URL.Path == "/v1/avatar.list" {
				http.NotFound(w, r)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"avatars": []any{
				map[string]any{"avatar_id": "a1", "avatar_name": "Host"},
				map[string]any{"id": "a2", "type": "talking_photo"},
			}}})
		}}
		client := newTestClient(t, provider, func(c *Config) { c.APIKey = "sk_V2_0123456789abcdef" })

		report := client.HealthCheck(context.Background())

		assert.True(t, report.OK)
		assert.True(t, report.APIKeySet)
		assert.Equal(t, "sk_V2_0123...", report.APIKeyPrefix)
		assert.Equal(t, "/v1/avatars", report.Endpoint)
		assert.Equal(t, []AvatarInfo{{ID: "a1", Name: "Host"}, {ID: "a2", Type: "talking_photo"}}, report.Avatars)
		assert.Empty(t, report.Error)
	})

	t.Run("connected without avatars", func(t *testing.T) {
		provider := &fakeProvider{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{}})
		}}
		client := newTestClient(t, provider, nil)

		report := client.HealthCheck(context.Background())

		assert.True(t, report.OK)
		assert.Contains(t, report.Error, "no avatars found")
	})

	t.Run("all endpoints failing", func(t *testing.T) {
		provider := &fakeProvider{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			w.WriteHeader(http.StatusInternalServerError)
		}}
		client := newTestClient(t, provider, nil)

		report := client.HealthCheck(context.Background())

		assert.False(t, report.OK)
		assert.Contains(t, report.Error, "HTTP 500")
		assert.Len(t, provider.requests, 3)
	})

	t.Run("no api key", func(t *testing.T) {
		provider := &fakeProvider{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {}}
		client := newTestClient(t, provider, func(c *Config) { c.APIKey = "" })

		report := client.HealthCheck(context.Background())

		assert.False(t, report.OK)
		assert.False(t, report.APIKeySet)
		assert.Empty(t, provider.requests)
	})
}
