package dto

import (
	"time"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
)

type TurnRequest struct {
	Speaker string `json:"speaker" binding:"required"`
	Text    string `json:"text" binding:"required"`
}

type JobOptionsRequest struct {
	VoiceIDHost  string `json:"voice_id_host"`
	VoiceIDGuest string `json:"voice_id_guest"`
	AspectRatio  string `json:"aspect_ratio"`
	Resolution   string `json:"resolution"`
}

type CreateJobRequest struct {
	HostAvatarID  string            `json:"host_avatar_id" binding:"required"`
	GuestAvatarID string            `json:"guest_avatar_id" binding:"required"`
	Turns         []TurnRequest     `json:"turns" binding:"required,min=1,dive"`
	Options       JobOptionsRequest `json:"options"`
	UserID        string            `json:"user_id"`
}

type UpdateTurnRequest struct {
	VideoURL string `json:"video_url" binding:"required"`
}

type StitchRequest struct {
	VideoURLs []string `json:"video_urls"`
}

type StitchResponse struct {
	JobID      string `json:"job_id"`
	StitchID   string `json:"stitch_id"`
	Status     string `json:"status"`
	OutputPath string `json:"output_path"`
	VideoCount int    `json:"video_count"`
}

type ListJobsRequest struct {
	UserID   string `form:"user_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type TurnDTO struct {
	Index         int    `json:"index"`
	Speaker       string `json:"speaker"`
	Text          string `json:"text"`
	Status        string `json:"status"`
	RenderRef     string `json:"render_ref,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`
	ArchivePath   string `json:"archive_path,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type StitchDTO struct {
	StitchID    string  `json:"stitch_id"`
	Status      string  `json:"status"`
	OutputPath  string  `json:"output_path"`
	VideoCount  int     `json:"video_count"`
	Strategy    string  `json:"strategy,omitempty"`
	Duration    float64 `json:"duration_seconds,omitempty"`
	Error       string  `json:"error,omitempty"`
	RequestedAt string  `json:"requested_at"`
	StartedAt   string  `json:"started_at,omitempty"`
	CompletedAt string  `json:"completed_at,omitempty"`
}

type JobDTO struct {
	JobID            string            `json:"job_id"`
	HostAvatarID     string            `json:"host_avatar_id"`
	GuestAvatarID    string            `json:"guest_avatar_id"`
	UserID           string            `json:"user_id,omitempty"`
	Options          domain.JobOptions `json:"options"`
	Status           string            `json:"status"`
	Turns            []TurnDTO         `json:"turns"`
	Stitch           *StitchDTO        `json:"stitch,omitempty"`
	ManualCheckTurns []int             `json:"manual_check_turns,omitempty"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
}

// UpdateTurnResponse is the overridden turn plus the job status it produced.
type UpdateTurnResponse struct {
	JobID     string  `json:"job_id"`
	JobStatus string  `json:"job_status"`
	Turn      TurnDTO `json:"turn"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// NewTurnDTO converts a domain turn to its response shape.
func NewTurnDTO(t domain.Turn) TurnDTO {
	return TurnDTO{
		Index:         t.Index,
		Speaker:       string(t.Speaker),
		Text:          t.Text,
		Status:        string(t.Status),
		RenderRef:     t.RenderRef,
		VideoURL:      t.VideoRef,
		FailureReason: string(t.FailureReason),
		FailureDetail: t.FailureDetail,
		ArchivePath:   t.ArchivePath,
		UpdatedAt:     formatTime(t.UpdatedAt),
	}
}

// NewStitchDTO converts a stitch record; nil stays nil.
func NewStitchDTO(s *domain.StitchRecord) *StitchDTO {
	if s == nil {
		return nil
	}
	return &StitchDTO{
		StitchID:    s.StitchID,
		Status:      string(s.Status),
		OutputPath:  s.OutputPath,
		VideoCount:  len(s.Refs),
		Strategy:    s.Strategy,
		Duration:    s.Duration,
		Error:       s.Error,
		RequestedAt: formatTime(s.RequestedAt),
		StartedAt:   formatTimePtr(s.StartedAt),
		CompletedAt: formatTimePtr(s.CompletedAt),
	}
}

// NewJobDTO converts a domain job. manualCheck lists turn indices an operator should verify.
func NewJobDTO(j *domain.Job, manualCheck []int) JobDTO {
	turns := make([]TurnDTO, len(j.Turns))
	for i, t := range j.Turns {
		turns[i] = NewTurnDTO(t)
	}
	return JobDTO{
		JobID:            j.JobID,
		HostAvatarID:     j.HostAvatarID,
		GuestAvatarID:    j.GuestAvatarID,
		UserID:           j.CreatedBy,
		Options:          j.Options,
		Status:           string(j.Status),
		Turns:            turns,
		Stitch:           NewStitchDTO(j.Stitch),
		ManualCheckTurns: manualCheck,
		CreatedAt:        formatTime(j.CreatedAt),
		UpdatedAt:        formatTime(j.UpdatedAt),
	}
}
