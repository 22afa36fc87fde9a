package avatar

import (
	"encoding/json"
	"strings"
)

// Known locations of the render reference in create responses, most specific first.
var renderRefFields = []string{
	"data.video_id",
	"data.task.id",
	"data.id",
	"task.id",
	"video_id",
	"id",
	"data.task_id",
	"task_id",
}

// Known locations of a finished video URL.
var videoURLFields = []string{
	"data.video_url",
	"data.videoUrl",
	"video_url",
}

var statusFields = []string{
	"data.status",
	"status",
}

// lookup walks a dotted path through decoded JSON objects.
func lookup(v any, path string) any {
	for _, key := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}

// firstString returns the first non-empty string or number found at paths.
func firstString(v any, paths ...string) string {
	for _, p := range paths {
		switch s := lookup(v, p).(type) {
		case string:
			if s != "" {
				return s
			}
		case json.Number:
			return s.String()
		}
	}
	return ""
}

// firstArray returns the first JSON array found at paths. An empty path
// matches v itself.
func firstArray(v any, paths ...string) []any {
	for _, p := range paths {
		target := v
		if p != "" {
			target = lookup(v, p)
		}
		if arr, ok := target.([]any); ok {
			return arr
		}
	}
	return nil
}
