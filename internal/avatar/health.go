package avatar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// AvatarInfo is one avatar listed by the provider.
type AvatarInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// HealthReport summarizes provider connectivity.
type HealthReport struct {
	OK           bool         `json:"ok"`
	APIKeySet    bool         `json:"api_key_set"`
	APIKeyPrefix string       `json:"api_key_prefix,omitempty"`
	BaseURL      string       `json:"base_url"`
	Endpoint     string       `json:"endpoint,omitempty"`
	Avatars      []AvatarInfo `json:"avatars,omitempty"`
	Error        string       `json:"error,omitempty"`
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	n := 10
	if len(key) <= n {
		n = len(key) / 2
	}
	return key[:n] + "..."
}

// HealthCheck lists avatars through the first avatar endpoint that answers
// with JSON. A JSON answer without avatars still counts as connected.
func (c *Client) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{
		APIKeySet:    c.cfg.APIKey != "",
		APIKeyPrefix: maskKey(c.cfg.APIKey),
		BaseURL:      c.cfg.BaseURL,
	}
	if !report.APIKeySet {
		report.Error = ErrNoAPIKey.Error()
		return report
	}

	lastErr := "no avatar endpoints configured"
	for _, endpoint := range c.cfg.AvatarEndpoints {
		resp, err := c.do(ctx, http.MethodGet, endpoint, nil, c.cfg.CreateTimeout)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		if !resp.ok() {
			lastErr = fmt.Sprintf("HTTP %d from %s", resp.StatusCode, endpoint)
			continue
		}
		body, err := resp.decode()
		if err != nil {
			lastErr = err.Error()
			continue
		}

		report.OK = true
		report.Endpoint = endpoint
		for _, item := range firstArray(body, "data.avatars", "data.list", "avatars", "data", "") {
			info := AvatarInfo{
				ID:   firstString(item, "avatar_id", "id", "avatarId"),
				Name: firstString(item, "name", "avatar_name"),
				Type: firstString(item, "type", "avatar_type"),
			}
			if s, ok := item.(string); ok && info.ID == "" {
				info.ID = s
			}
			if info.ID != "" {
				report.Avatars = append(report.Avatars, info)
			}
		}
		if len(report.Avatars) == 0 {
			report.Error = "API connected but no avatars found in response from " + endpoint
		}

		c.logger.Info("Avatar service reachable",
			slog.String("endpoint", endpoint),
			slog.Int("avatars", len(report.Avatars)),
		)
		return report
	}

	report.Error = "all avatar endpoints failed: " + lastErr
	return report
}
