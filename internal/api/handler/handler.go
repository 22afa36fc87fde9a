package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/avatar-podcast/internal/avatar"
	"github.com/cuongbtq/avatar-podcast/internal/domain"
	"github.com/cuongbtq/avatar-podcast/internal/podcast"
)

// PodcastService is the job lifecycle the HTTP layer exposes.
type PodcastService interface {
	CreateJob(ctx context.Context, in podcast.CreateJobInput) (*domain.Job, error)
	RefreshJob(ctx context.Context, jobID string) (*podcast.Refreshed, error)
	ListJobs(ctx context.Context, in podcast.ListJobsInput) (*podcast.JobPage, error)
	UpdateTurnVideo(ctx context.Context, jobID string, index int, videoRef string) (*domain.Job, error)
	RequestStitch(ctx context.Context, jobID string, overrideRefs []string) (*domain.StitchRecord, error)
}

// AvatarHealth reports connectivity to the rendering provider.
type AvatarHealth interface {
	HealthCheck(ctx context.Context) avatar.HealthReport
}

// Readiness reports whether a backing store can serve requests.
type Readiness interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers.
// Database is optional; without it /health only reports liveness.
type Dependencies struct {
	Logger   *slog.Logger
	Service  PodcastService
	Avatars  AvatarHealth
	Database Readiness
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	service PodcastService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	useJSONFieldNames()
	return &JobHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}

// AvatarHandler serves provider diagnostics.
type AvatarHandler struct {
	logger  *slog.Logger
	avatars AvatarHealth
}

func NewAvatarHandler(deps *Dependencies) *AvatarHandler {
	return &AvatarHandler{
		logger:  deps.Logger,
		avatars: deps.Avatars,
	}
}
