package domain

import (
	"sort"
	"time"
)

// Turn is one attributed, single-speaker utterance rendered as one clip.
// FailureDetail carries the provider or transport error behind FailureReason when known.
// ArchivePath is the local copy of VideoRef kept under the job's output directory.
type Turn struct {
	Index         int           `json:"index"`
	Speaker       Speaker       `json:"speaker"`
	Text          string        `json:"text"`
	RenderRef     string        `json:"render_ref,omitempty"`
	Status        TurnStatus    `json:"status"`
	VideoRef      string        `json:"video_ref,omitempty"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	FailureDetail string        `json:"failure_detail,omitempty"`
	ArchivePath   string        `json:"archive_path,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Advance applies an automated status transition and reports whether the turn changed.
// Terminal turns never change, status never moves backward, and ready requires a video ref.
func (t *Turn) Advance(next TurnStatus, videoRef string, reason FailureReason, now time.Time) bool {
	if t.Status.IsTerminal() || !next.Valid() {
		return false
	}
	if next.rank() < t.Status.rank() || next == t.Status {
		return false
	}
	if next == TurnReady && videoRef == "" {
		return false
	}

	t.Status = next
	t.VideoRef = ""
	t.FailureReason = ""
	t.FailureDetail = ""
	t.ArchivePath = ""
	switch next {
	case TurnReady:
		t.VideoRef = videoRef
	case TurnFailed:
		t.FailureReason = reason
	}
	t.UpdatedAt = now
	return true
}

// OverrideVideo marks the turn ready with an operator supplied video location.
// Unlike Advance it accepts failed and ready turns.
func (t *Turn) OverrideVideo(videoRef string, now time.Time) {
	t.Status = TurnReady
	t.VideoRef = videoRef
	t.FailureReason = ""
	t.FailureDetail = ""
	t.ArchivePath = ""
	t.UpdatedAt = now
}

// JobOptions carries the optional per-job render overrides.
type JobOptions struct {
	VoiceIDHost  string `json:"voice_id_host,omitempty"`
	VoiceIDGuest string `json:"voice_id_guest,omitempty"`
	AspectRatio  string `json:"aspect_ratio,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
}

// StitchRecord is the outcome slot for a job's background stitching.
type StitchRecord struct {
	StitchID    string       `json:"stitch_id"`
	Status      StitchStatus `json:"status"`
	Refs        []string     `json:"refs"`
	OutputPath  string       `json:"output_path"`
	Strategy    string       `json:"strategy,omitempty"`
	Duration    float64      `json:"duration_seconds,omitempty"`
	Error       string       `json:"error,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Job is a multi-turn avatar rendering job.
type Job struct {
	JobID         string        `json:"job_id"`
	HostAvatarID  string        `json:"host_avatar_id"`
	GuestAvatarID string        `json:"guest_avatar_id"`
	Options       JobOptions    `json:"options"`
	Turns         []Turn        `json:"turns"`
	Status        JobStatus     `json:"status"`
	CreatedBy     string        `json:"created_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Stitch        *StitchRecord `json:"stitch,omitempty"`
}

// AvatarFor returns the avatar assigned to speaker.
func (j *Job) AvatarFor(s Speaker) string {
	if s == SpeakerGuest {
		return j.GuestAvatarID
	}
	return j.HostAvatarID
}

// VoiceFor returns the voice override for speaker, or "" for the provider default.
func (j *Job) VoiceFor(s Speaker) string {
	if s == SpeakerGuest {
		return j.Options.VoiceIDGuest
	}
	return j.Options.VoiceIDHost
}

// Recompute re-derives the job status from its turns and stamps UpdatedAt.
func (j *Job) Recompute(now time.Time) {
	j.Status = DeriveJobStatus(j.Turns)
	j.UpdatedAt = now
}

// ReadyVideoRefs returns the video refs of all ready turns in playback order.
func (j *Job) ReadyVideoRefs() []string {
	ready := make([]Turn, 0, len(j.Turns))
	for _, t := range j.Turns {
		if t.Status == TurnReady && t.VideoRef != "" {
			ready = append(ready, t)
		}
	}
	sort.SliceStable(ready, func(a, b int) bool { return ready[a].Index < ready[b].Index })

	refs := make([]string, len(ready))
	for i, t := range ready {
		refs[i] = t.VideoRef
	}
	return refs
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Turns = append([]Turn(nil), j.Turns...)
	if j.Stitch != nil {
		s := *j.Stitch
		s.Refs = append([]string(nil), j.Stitch.Refs...)
		if j.Stitch.StartedAt != nil {
			t := *j.Stitch.StartedAt
			s.StartedAt = &t
		}
		if j.Stitch.CompletedAt != nil {
			t := *j.Stitch.CompletedAt
			s.CompletedAt = &t
		}
		out.Stitch = &s
	}
	return &out
}
