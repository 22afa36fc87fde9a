package avatar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
)

const (
	defaultAspectRatio = "16:9"
	defaultResolution  = "720p"
)

// ClipRequest is one single-speaker clip to render.
type ClipRequest struct {
	AvatarID    string
	Text        string
	VoiceID     string
	AspectRatio string
	Resolution  string
}

// CreateResult describes an accepted clip request.
type CreateResult struct {
	RenderRef string
	// ImmediateVideoRef is set when the provider rendered the clip synchronously.
	ImmediateVideoRef string
	// UpstreamStatus is the provider's normalized clip status, if it sent one.
	UpstreamStatus domain.TurnStatus
	Endpoint       string
}

// SubmissionError is returned when every endpoint and payload combination was rejected.
// StatusCode and Body come from the last response received, Err from the final
// attempt when it got no response at all.
type SubmissionError struct {
	StatusCode int
	Body       string
	Attempts   int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("avatar clip submission failed after %d attempts: %s", e.Attempts, e.Body)
	}
	msg := fmt.Sprintf("avatar clip submission failed after %d attempts (last status %d): %s",
		e.Attempts, e.StatusCode, e.Body)
	if e.Err != nil {
		msg += fmt.Sprintf("; final attempt: %v", e.Err)
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// dimension maps a resolution label to output pixels, defaulting to 720p.
func dimension(resolution string) (width, height int) {
	switch strings.ToLower(strings.TrimSpace(resolution)) {
	case "1080p", "1080":
		return 1920, 1080
	default:
		return 1280, 720
	}
}

// payloadVariants returns the request bodies to try, in order.
func payloadVariants(req ClipRequest, voiceID string) []map[string]any {
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = defaultAspectRatio
	}
	resolution := req.Resolution
	if resolution == "" {
		resolution = defaultResolution
	}
	width, height := dimension(resolution)

	return []map[string]any{
		{
			"video_inputs": []any{map[string]any{
				"character": map[string]any{"type": "talking_photo", "talking_photo_id": req.AvatarID},
				"voice":     map[string]any{"type": "text", "input_text": req.Text, "voice_id": voiceID},
			}},
			"background": "white",
			"dimension":  map[string]any{"width": width, "height": height},
		},
		{
			"video_inputs": []any{map[string]any{
				"character": map[string]any{"type": "avatar", "avatar_id": req.AvatarID},
				"voice": map[string]any{
					"type": "text",
					"text": map[string]any{"input_text": req.Text, "voice_id": voiceID},
				},
			}},
			"aspect_ratio": aspect,
			"resolution":   resolution,
		},
		{
			"video_inputs": []any{map[string]any{
				"character": map[string]any{"type": "avatar", "avatar_id": req.AvatarID},
				"voice":     map[string]any{"type": "text", "input_text": req.Text, "voice_id": voiceID},
			}},
			"aspect_ratio": aspect,
			"resolution":   resolution,
		},
		{
			"avatar_id":  req.AvatarID,
			"input_text": req.Text,
			"ratio":      aspect,
			"resolution": resolution,
		},
	}
}

// CreateClip submits one clip, trying every create endpoint with every payload
// variant until a response carries a render reference.
func (c *Client) CreateClip(ctx context.Context, req ClipRequest) (*CreateResult, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = c.cfg.DefaultVoiceID
	}

	lastErr := &SubmissionError{}
	for _, endpoint := range c.cfg.CreateEndpoints {
		for variant, payload := range payloadVariants(req, voiceID) {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("clip submission canceled: %w", err)
			}
			lastErr.Attempts++

			resp, err := c.do(ctx, http.MethodPost, endpoint, payload, c.cfg.CreateTimeout)
			if err != nil {
				lastErr.Err = err
				if lastErr.StatusCode == 0 {
					lastErr.Body = truncate(err.Error(), maxErrorSample)
				}
				c.logger.Debug("Clip create attempt failed",
					slog.String("endpoint", endpoint),
					slog.Int("variant", variant),
					slog.Any("error", err),
				)
				continue
			}

			lastErr.Err = nil
			lastErr.StatusCode = resp.StatusCode
			lastErr.Body = truncate(string(resp.Body), maxErrorSample)
			if !resp.ok() {
				c.logger.Debug("Clip create attempt rejected",
					slog.String("endpoint", endpoint),
					slog.Int("variant", variant),
					slog.Int("status", resp.StatusCode),
				)
				continue
			}

			body, err := resp.decode()
			if err != nil {
				continue
			}

			renderRef := firstString(body, renderRefFields...)
			if renderRef == "" {
				continue
			}

			result := &CreateResult{
				RenderRef:         renderRef,
				ImmediateVideoRef: firstString(body, videoURLFields...),
				UpstreamStatus:    NormalizeStatus(firstString(body, statusFields...)),
				Endpoint:          endpoint,
			}

			c.logger.Info("Clip submitted",
				slog.String("endpoint", endpoint),
				slog.Int("variant", variant),
				slog.String("render_ref", renderRef),
				slog.Bool("immediate_video", result.ImmediateVideoRef != ""),
			)
			return result, nil
		}
	}

	return nil, lastErr
}
