// Package avatar talks to the third-party talking-avatar rendering service.
//
// The provider's request and response shapes are not standardized, so the
// client tries ordered lists of endpoints and payload variants and
// normalizes whatever comes back.
package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	apiKeyHeader   = "X-Api-Key"
	v2KeyPrefix    = "sk_V2_"
	maxBodyBytes   = 1 << 20
	maxErrorSample = 2048
)

// ErrNoAPIKey is returned when the client has no API key configured.
var ErrNoAPIKey = errors.New("avatar api key is not configured")

// Config configures the rendering service client.
type Config struct {
	BaseURL         string
	APIKey          string
	DefaultVoiceID  string
	CreateEndpoints []string
	// StatusEndpoints are path templates; {id} is replaced with the render ref.
	StatusEndpoints []string
	AvatarEndpoints []string
	CreateTimeout   time.Duration
	StatusTimeout   time.Duration
	HTTPClient      *http.Client
}

// Client is a stateless adapter over the create and status operations.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a client, filling unset fields with the provider defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.heygen.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.CreateEndpoints) == 0 {
		cfg.CreateEndpoints = []string{"/v2/video/generate", "/v1/video/generate"}
	}
	if len(cfg.StatusEndpoints) == 0 {
		cfg.StatusEndpoints = []string{
			"/v2/video/{id}",
			"/v2/video/status/{id}",
			"/v2/video/status?video_id={id}",
		}
	}
	if len(cfg.AvatarEndpoints) == 0 {
		cfg.AvatarEndpoints = []string{"/v1/avatar.list", "/v1/avatars", "/v2/avatars"}
	}
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = 30 * time.Second
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// resolvePath prefixes unversioned paths with /v2 for v2 API keys.
func (c *Client) resolvePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if strings.HasPrefix(c.cfg.APIKey, v2KeyPrefix) &&
		!strings.HasPrefix(path, "/v1/") && !strings.HasPrefix(path, "/v2/") {
		return "/v2" + path
	}
	return path
}

// response is one HTTP exchange with the provider.
type response struct {
	StatusCode int
	Body       []byte
}

func (r *response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// decode parses the body as JSON, keeping numbers as json.Number.
func (r *response) decode() (any, error) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, errors.New("empty response body")
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return v, nil
}

// do performs one request bounded by its own timeout.
func (c *Client) do(ctx context.Context, method, path string, body any, timeout time.Duration) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+c.resolvePath(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &response{StatusCode: resp.StatusCode, Body: data}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
