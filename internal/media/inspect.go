package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MediaInfo is the subset of ffprobe output used to validate a stitched file.
type MediaInfo struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// VideoStreams counts the video streams.
func (r MediaInfo) VideoStreams() int {
	n := 0
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			n++
		}
	}
	return n
}

// DurationSeconds returns the container duration, or 0 when unavailable.
func (r MediaInfo) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64)
	if err != nil {
		return 0
	}
	return d
}

func inspect(ctx context.Context, runner commandRunner, binary, path string) (MediaInfo, error) {
	args := []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
	res, err := runner.Run(ctx, binary, args...)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(tail(res.Stderr, maxStderrTail)))
	}

	var out MediaInfo
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return MediaInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return out, nil
}
