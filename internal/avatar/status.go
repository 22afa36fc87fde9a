package avatar

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
)

// StatusResult is optional evidence about a clip. Resolved is false when no
// status endpoint produced a usable answer, which is an expected outcome.
type StatusResult struct {
	Resolved bool
	Status   domain.TurnStatus
	VideoRef string
	Endpoint string
}

// NormalizeStatus maps the provider's status vocabulary onto turn states.
func NormalizeStatus(raw string) domain.TurnStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued":
		return domain.TurnQueued
	case "processing", "rendering", "waiting":
		return domain.TurnProcessing
	case "completed", "ready", "done", "success":
		return domain.TurnReady
	case "failed", "error":
		return domain.TurnFailed
	default:
		return domain.TurnUnknown
	}
}

// statusPath expands {id} in a status endpoint template, query-escaping it
// when it sits in the query string.
func statusPath(template, renderRef string) string {
	q := strings.Index(template, "?")
	i := strings.Index(template, "{id}")
	if i < 0 {
		return template
	}
	if q >= 0 && i > q {
		return strings.Replace(template, "{id}", url.QueryEscape(renderRef), 1)
	}
	return strings.Replace(template, "{id}", url.PathEscape(renderRef), 1)
}

// ClipStatus queries each status endpoint under its own short timeout and
// returns the first usable answer. Failures are logged at debug level only.
func (c *Client) ClipStatus(ctx context.Context, renderRef string) StatusResult {
	for _, template := range c.cfg.StatusEndpoints {
		if ctx.Err() != nil {
			break
		}
		endpoint := statusPath(template, renderRef)

		resp, err := c.do(ctx, http.MethodGet, endpoint, nil, c.cfg.StatusTimeout)
		if err != nil {
			c.logger.Debug("Status lookup failed",
				slog.String("endpoint", endpoint),
				slog.Any("error", err),
			)
			continue
		}
		if !resp.ok() {
			c.logger.Debug("Status endpoint not available",
				slog.String("endpoint", endpoint),
				slog.Int("status", resp.StatusCode),
			)
			continue
		}

		body, err := resp.decode()
		if err != nil {
			c.logger.Debug("Status endpoint returned non-JSON",
				slog.String("endpoint", endpoint),
			)
			continue
		}

		return StatusResult{
			Resolved: true,
			Status:   NormalizeStatus(firstString(body, statusFields...)),
			VideoRef: firstString(body, videoURLFields...),
			Endpoint: endpoint,
		}
	}

	return StatusResult{Status: domain.TurnUnknown}
}
