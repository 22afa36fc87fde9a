// Package podcast orchestrates multi-turn avatar rendering jobs: clip
// submission, status refresh, operator overrides and stitch requests.
package podcast

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/avatar-podcast/internal/avatar"
	"github.com/cuongbtq/avatar-podcast/internal/domain"
	"github.com/cuongbtq/avatar-podcast/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// RenderClient creates clips and reports their status.
type RenderClient interface {
	StatusSource
	CreateClip(ctx context.Context, req avatar.ClipRequest) (*avatar.CreateResult, error)
}

// TaskPublisher hands stitch tasks to the background workers.
type TaskPublisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// Config holds orchestration settings.
type Config struct {
	Thresholds        Thresholds
	SubmitConcurrency int
	OutputDir         string
}

// Archiver keeps a local copy of a ready turn's video so a later stitch does
// not depend on short-lived provider links.
type Archiver interface {
	Archive(ctx context.Context, index int, ref, destDir string) (string, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the wall clock, used by tests to control elapsed time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithArchiver copies every turn that becomes ready into <OutputDir>/<job_id>/.
// Archiving is best effort: failures are logged and the turn stays ready.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// Service implements the job operations on top of a JobStore.
type Service struct {
	store     storage.JobStore
	render    RenderClient
	publisher TaskPublisher
	resolver  *Resolver
	archiver  Archiver
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. render may be nil for processes that never
// submit or refresh clips, publisher may be nil for processes that never
// request stitches.
func NewService(store storage.JobStore, render RenderClient, publisher TaskPublisher, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if cfg.SubmitConcurrency <= 0 {
		cfg.SubmitConcurrency = 1
	}
	s := &Service{
		store:     store,
		render:    render,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	if render != nil {
		s.resolver = NewResolver(render, cfg.Thresholds)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TurnInput is one requested utterance.
type TurnInput struct {
	Speaker domain.Speaker
	Text    string
}

// CreateJobInput is the request to create a job.
type CreateJobInput struct {
	HostAvatarID  string
	GuestAvatarID string
	Turns         []TurnInput
	Options       domain.JobOptions
	CreatedBy     string
}

func (in CreateJobInput) validate() error {
	if strings.TrimSpace(in.HostAvatarID) == "" {
		return domain.NewValidationError("host_avatar_id", "is required")
	}
	if strings.TrimSpace(in.GuestAvatarID) == "" {
		return domain.NewValidationError("guest_avatar_id", "is required")
	}
	if len(in.Turns) == 0 {
		return domain.NewValidationError("turns", "must contain at least one turn")
	}
	for i, t := range in.Turns {
		if !t.Speaker.Valid() {
			return domain.NewValidationError(fmt.Sprintf("turns[%d].speaker", i), "must be host or guest")
		}
		if strings.TrimSpace(t.Text) == "" {
			return domain.NewValidationError(fmt.Sprintf("turns[%d].text", i), "must not be empty")
		}
	}
	return nil
}

type submission struct {
	result *avatar.CreateResult
	err    error
}

// CreateJob validates the request, persists the job, submits one clip per
// turn and records every submission outcome.
func (s *Service) CreateJob(ctx context.Context, in CreateJobInput) (*domain.Job, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	job := &domain.Job{
		JobID:         uuid.NewString(),
		HostAvatarID:  strings.TrimSpace(in.HostAvatarID),
		GuestAvatarID: strings.TrimSpace(in.GuestAvatarID),
		Options:       in.Options,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
		Turns:         make([]domain.Turn, len(in.Turns)),
	}
	for i, t := range in.Turns {
		job.Turns[i] = domain.Turn{
			Index:     i,
			Speaker:   t.Speaker,
			Text:      strings.TrimSpace(t.Text),
			Status:    domain.TurnQueued,
			UpdatedAt: now,
		}
	}
	job.Recompute(now)

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.Int("turns", len(job.Turns)),
	)

	results := s.submitTurns(ctx, job)

	// The job already exists, so its submission outcome is recorded even if
	// the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	updated, err := s.store.Update(persistCtx, job.JobID, func(j *domain.Job) error {
		at := s.now()
		for i := range j.Turns {
			applySubmission(&j.Turns[i], results[i], at)
		}
		j.Recompute(at)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record clip submissions: %w", err)
	}

	s.logger.Info("Clips submitted",
		slog.String("job_id", updated.JobID),
		slog.String("status", string(updated.Status)),
	)

	var ready []int
	for _, t := range updated.Turns {
		if t.Status == domain.TurnReady {
			ready = append(ready, t.Index)
		}
	}
	return s.archiveTurns(persistCtx, updated, ready), nil
}

// submitTurns submits every turn with at most SubmitConcurrency requests in
// flight. Each goroutine writes only its own slot.
func (s *Service) submitTurns(ctx context.Context, job *domain.Job) []submission {
	results := make([]submission, len(job.Turns))

	var g errgroup.Group
	g.SetLimit(s.cfg.SubmitConcurrency)
	for i, turn := range job.Turns {
		g.Go(func() error {
			res, err := s.render.CreateClip(ctx, avatar.ClipRequest{
				AvatarID:    job.AvatarFor(turn.Speaker),
				Text:        turn.Text,
				VoiceID:     job.VoiceFor(turn.Speaker),
				AspectRatio: job.Options.AspectRatio,
				Resolution:  job.Options.Resolution,
			})
			if err != nil {
				s.logger.Warn("Clip submission failed",
					slog.String("job_id", job.JobID),
					slog.Int("turn", turn.Index),
					slog.Any("error", err),
				)
			}
			results[i] = submission{result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func applySubmission(turn *domain.Turn, sub submission, now time.Time) {
	if sub.err != nil || sub.result == nil {
		if turn.Advance(domain.TurnFailed, "", domain.FailureSubmission, now) && sub.err != nil {
			turn.FailureDetail = truncate(sub.err.Error(), maxFailureDetail)
		}
		return
	}

	turn.RenderRef = sub.result.RenderRef
	turn.UpdatedAt = now
	if sub.result.ImmediateVideoRef != "" {
		turn.Advance(domain.TurnReady, sub.result.ImmediateVideoRef, "", now)
		return
	}
	turn.Advance(domain.TurnProcessing, "", "", now)
}

// Refreshed is a job after a status refresh.
type Refreshed struct {
	Job *domain.Job
	// ManualCheck lists turns in the middle band that an operator may confirm.
	ManualCheck []int
}

// GetJob returns the stored job without asking the provider.
func (s *Service) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.store.Get(ctx, jobID)
}

// RefreshJob resolves every non-terminal turn and persists the transitions.
// Provider lookups happen outside the store's update so slow providers never
// hold the job; the merge inside the update only ever moves turns forward.
// Turns that became ready are archived afterwards.
func (s *Service) RefreshJob(ctx context.Context, jobID string) (*Refreshed, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resolutions := make(map[int]Resolution)
	var manual []int
	for _, turn := range job.Turns {
		if turn.Status.IsTerminal() {
			continue
		}
		res := s.resolver.Resolve(ctx, turn, job.CreatedAt, now)
		resolutions[turn.Index] = res
		if res.ManualCheck {
			manual = append(manual, turn.Index)
		}
	}
	if len(resolutions) == 0 {
		return &Refreshed{Job: job}, nil
	}

	var ready []int
	updated, err := s.store.Update(ctx, jobID, func(j *domain.Job) error {
		ready = ready[:0]
		changed := false
		for i := range j.Turns {
			res, ok := resolutions[j.Turns[i].Index]
			if !ok {
				continue
			}
			if j.Turns[i].Advance(res.Status, res.VideoRef, res.Reason, now) {
				changed = true
				if j.Turns[i].Status == domain.TurnReady {
					ready = append(ready, j.Turns[i].Index)
				}
			}
		}
		if changed {
			j.Recompute(now)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist refresh: %w", err)
	}

	return &Refreshed{Job: s.archiveTurns(ctx, updated, ready), ManualCheck: manual}, nil
}

// UpdateTurnVideo sets an operator supplied video location on one turn.
func (s *Service) UpdateTurnVideo(ctx context.Context, jobID string, index int, videoRef string) (*domain.Job, error) {
	videoRef = strings.TrimSpace(videoRef)
	if videoRef == "" {
		return nil, domain.NewValidationError("video_url", "is required")
	}

	job, err := s.store.Update(ctx, jobID, func(j *domain.Job) error {
		if index < 0 || index >= len(j.Turns) {
			return fmt.Errorf("%w: %d (job has %d turns)", domain.ErrInvalidTurnIndex, index, len(j.Turns))
		}
		now := s.now()
		j.Turns[index].OverrideVideo(videoRef, now)
		j.Recompute(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Turn video overridden",
		slog.String("job_id", jobID),
		slog.Int("turn", index),
	)
	return s.archiveTurns(ctx, job, []int{index}), nil
}

// archiveTurns copies the listed ready turns into the job's output directory
// and records the archive paths. It returns job unchanged when there is
// nothing to archive or the record cannot be saved.
func (s *Service) archiveTurns(ctx context.Context, job *domain.Job, indices []int) *domain.Job {
	if s.archiver == nil || len(indices) == 0 {
		return job
	}

	dir := filepath.Join(s.cfg.OutputDir, job.JobID)
	archived := make(map[int]domain.Turn)
	for _, idx := range indices {
		if idx < 0 || idx >= len(job.Turns) {
			continue
		}
		turn := job.Turns[idx]
		if turn.Status != domain.TurnReady || turn.VideoRef == "" {
			continue
		}
		path, err := s.archiver.Archive(ctx, turn.Index, turn.VideoRef, dir)
		if err != nil {
			s.logger.Warn("Failed to archive turn video",
				slog.String("job_id", job.JobID),
				slog.Int("turn", turn.Index),
				slog.Any("error", err),
			)
			continue
		}
		turn.ArchivePath = path
		archived[idx] = turn
	}
	if len(archived) == 0 {
		return job
	}

	updated, err := s.store.Update(ctx, job.JobID, func(j *domain.Job) error {
		for idx, a := range archived {
			if idx >= len(j.Turns) {
				continue
			}
			t := &j.Turns[idx]
			// A newer override replaced the video while it was being copied.
			if t.Status != domain.TurnReady || t.VideoRef != a.VideoRef {
				continue
			}
			t.ArchivePath = a.ArchivePath
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Failed to record archived turn videos",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		return job
	}

	s.logger.Info("Turn videos archived",
		slog.String("job_id", job.JobID),
		slog.Int("turns", len(archived)),
	)
	return updated
}

// RequestStitch records a queued stitch for the job and hands it to the
// workers. overrideRefs, when non-empty, replaces the job's ready clips.
func (s *Service) RequestStitch(ctx context.Context, jobID string, overrideRefs []string) (*domain.StitchRecord, error) {
	var override []string
	for _, ref := range overrideRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			override = append(override, ref)
		}
	}

	var record *domain.StitchRecord
	_, err := s.store.Update(ctx, jobID, func(j *domain.Job) error {
		if j.Stitch != nil && j.Stitch.Status.InProgress() {
			return domain.ErrStitchInProgress
		}
		refs := override
		if len(refs) == 0 {
			refs = j.ReadyVideoRefs()
		}
		if len(refs) == 0 {
			return domain.ErrNothingToStitch
		}

		now := s.now()
		j.Stitch = &domain.StitchRecord{
			StitchID:    uuid.NewString(),
			Status:      domain.StitchQueued,
			Refs:        refs,
			OutputPath:  OutputPath(s.cfg.OutputDir, j.JobID, now),
			RequestedAt: now,
		}
		j.UpdatedAt = now
		record = j.Stitch
		return nil
	})
	if err != nil {
		return nil, err
	}

	task := domain.StitchTask{JobID: jobID, StitchID: record.StitchID}
	if err := s.publisher.PublishJSON(ctx, task); err != nil {
		s.logger.Error("Failed to queue stitch",
			slog.String("job_id", jobID),
			slog.String("stitch_id", record.StitchID),
			slog.Any("error", err),
		)
		if ferr := s.FailStitch(context.WithoutCancel(ctx), jobID, record.StitchID, fmt.Errorf("failed to queue stitch: %w", err)); ferr != nil {
			s.logger.Error("Failed to record stitch queue failure",
				slog.String("job_id", jobID),
				slog.Any("error", ferr),
			)
		}
		return nil, fmt.Errorf("failed to queue stitch: %w", err)
	}

	s.logger.Info("Stitch queued",
		slog.String("job_id", jobID),
		slog.String("stitch_id", record.StitchID),
		slog.Int("clips", len(record.Refs)),
	)
	return record, nil
}

// OutputPath is where a stitch requested at t is written.
func OutputPath(outputDir, jobID string, t time.Time) string {
	return filepath.Join(outputDir, jobID, fmt.Sprintf("stitched_%s_%d.mp4", jobID, t.Unix()))
}

// StartStitch marks the job's pending stitch as running and returns the job.
// A redelivered task for a running stitch is accepted again so a crashed
// worker's stitch is not stranded.
func (s *Service) StartStitch(ctx context.Context, jobID, stitchID string) (*domain.Job, error) {
	return s.store.Update(ctx, jobID, func(j *domain.Job) error {
		if j.Stitch == nil || j.Stitch.StitchID != stitchID || !j.Stitch.Status.InProgress() {
			return domain.ErrStaleStitch
		}
		now := s.now()
		j.Stitch.Status = domain.StitchRunning
		j.Stitch.StartedAt = &now
		j.UpdatedAt = now
		return nil
	})
}

// StitchOutcome is a finished stitch.
type StitchOutcome struct {
	OutputPath string
	Strategy   string
	Duration   float64
}

// CompleteStitch records a successful stitch.
func (s *Service) CompleteStitch(ctx context.Context, jobID, stitchID string, out StitchOutcome) error {
	_, err := s.store.Update(ctx, jobID, func(j *domain.Job) error {
		if j.Stitch == nil || j.Stitch.StitchID != stitchID {
			return domain.ErrStaleStitch
		}
		now := s.now()
		j.Stitch.Status = domain.StitchCompleted
		j.Stitch.OutputPath = out.OutputPath
		j.Stitch.Strategy = out.Strategy
		j.Stitch.Duration = out.Duration
		j.Stitch.Error = ""
		j.Stitch.CompletedAt = &now
		j.UpdatedAt = now
		return nil
	})
	return err
}

// FailStitch records a failed stitch with its diagnostics.
func (s *Service) FailStitch(ctx context.Context, jobID, stitchID string, cause error) error {
	_, err := s.store.Update(ctx, jobID, func(j *domain.Job) error {
		if j.Stitch == nil || j.Stitch.StitchID != stitchID {
			return domain.ErrStaleStitch
		}
		now := s.now()
		j.Stitch.Status = domain.StitchFailed
		j.Stitch.Error = errorText(cause)
		j.Stitch.CompletedAt = &now
		j.UpdatedAt = now
		return nil
	})
	return err
}

const maxFailureDetail = 500

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// ListJobsInput filters and pages job listings.
type ListJobsInput struct {
	CreatedBy string
	Status    domain.JobStatus
	PageSize  int
	Cursor    *storage.JobCursor
}

// JobPage is one page of jobs, newest first.
type JobPage struct {
	Jobs       []*domain.Job
	NextCursor *storage.JobCursor
}

// ListJobs returns one page of stored jobs without refreshing them.
func (s *Service) ListJobs(ctx context.Context, in ListJobsInput) (*JobPage, error) {
	switch in.Status {
	case "", domain.JobQueued, domain.JobProcessing, domain.JobReady, domain.JobFailed:
	default:
		return nil, domain.NewValidationError("status", "must be one of queued, processing, ready, failed")
	}

	pageSize := in.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	jobs, err := s.store.List(ctx, storage.JobFilter{
		CreatedBy: in.CreatedBy,
		Status:    in.Status,
		PageSize:  pageSize,
		Cursor:    in.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	page := &JobPage{Jobs: jobs}
	if len(jobs) > pageSize {
		page.Jobs = jobs[:pageSize]
		last := page.Jobs[pageSize-1]
		page.NextCursor = &storage.JobCursor{CreatedAt: last.CreatedAt, JobID: last.JobID}
	}
	return page, nil
}
