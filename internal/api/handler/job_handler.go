package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/avatar-podcast/internal/api/dto"
	"github.com/cuongbtq/avatar-podcast/internal/domain"
	"github.com/cuongbtq/avatar-podcast/internal/podcast"
)

// jobIDParam reads and validates the :job_id path parameter, writing a 400 when it is not a UUID.
func (h *JobHandler) jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Warn("Invalid job_id format", slog.String("job_id", jobID))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

// CreateJob handles POST /api/v1/jobs
// Persists the job and submits one render per turn.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	turns := make([]podcast.TurnInput, len(req.Turns))
	for i, t := range req.Turns {
		turns[i] = podcast.TurnInput{Speaker: domain.Speaker(t.Speaker), Text: t.Text}
	}

	job, err := h.service.CreateJob(c.Request.Context(), podcast.CreateJobInput{
		HostAvatarID:  req.HostAvatarID,
		GuestAvatarID: req.GuestAvatarID,
		Turns:         turns,
		Options: domain.JobOptions{
			VoiceIDHost:  req.Options.VoiceIDHost,
			VoiceIDGuest: req.Options.VoiceIDGuest,
			AspectRatio:  req.Options.AspectRatio,
			Resolution:   req.Options.Resolution,
		},
		CreatedBy: req.UserID,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to create job", err)
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.Int("turns", len(job.Turns)),
		slog.String("status", string(job.Status)),
	)
	c.JSON(http.StatusCreated, dto.NewJobDTO(job, nil))
}

// GetJob handles GET /api/v1/jobs/:job_id
// Refreshes every unresolved turn before answering.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	refreshed, err := h.service.RefreshJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(refreshed.Job, refreshed.ManualCheck))
}

// ListJobs handles GET /api/v1/jobs
// Lists stored jobs newest first without refreshing them.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	page, err := h.service.ListJobs(c.Request.Context(), podcast.ListJobsInput{
		CreatedBy: req.UserID,
		Status:    domain.JobStatus(req.Status),
		PageSize:  req.PageSize,
		Cursor:    cursor,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to list jobs", err)
		return
	}

	jobs := make([]dto.JobDTO, len(page.Jobs))
	for i, job := range page.Jobs {
		jobs[i] = dto.NewJobDTO(job, nil)
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobs,
		NextCursor: EncodeJobCursor(page.NextCursor),
	})
}

// UpdateTurnVideo handles PATCH /api/v1/jobs/:job_id/turns/:turn_index
// Marks one turn ready with an operator supplied video.
func (h *JobHandler) UpdateTurnVideo(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("turn_index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "turn_index must be an integer",
		})
		return
	}

	var req dto.UpdateTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	job, err := h.service.UpdateTurnVideo(c.Request.Context(), jobID, index, req.VideoURL)
	if err != nil {
		respondError(c, h.logger, "Failed to update turn", err)
		return
	}

	h.logger.Info("Turn video overridden",
		slog.String("job_id", jobID),
		slog.Int("turn_index", index),
	)

	var turn domain.Turn
	for _, t := range job.Turns {
		if t.Index == index {
			turn = t
			break
		}
	}
	c.JSON(http.StatusOK, dto.UpdateTurnResponse{
		JobID:     job.JobID,
		JobStatus: string(job.Status),
		Turn:      dto.NewTurnDTO(turn),
	})
}

// RequestStitch handles POST /api/v1/jobs/:job_id/stitch
// Queues background stitching of the ready clips, or of the supplied list.
func (h *JobHandler) RequestStitch(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	var req dto.StitchRequest
	// an empty body stitches the job's ready turns
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBindError(c, h.logger, err)
		return
	}

	record, err := h.service.RequestStitch(c.Request.Context(), jobID, req.VideoURLs)
	if err != nil {
		respondError(c, h.logger, "Failed to request stitch", err)
		return
	}

	h.logger.Info("Stitch queued",
		slog.String("job_id", jobID),
		slog.String("stitch_id", record.StitchID),
		slog.Int("video_count", len(record.Refs)),
	)
	c.JSON(http.StatusAccepted, dto.StitchResponse{
		JobID:      jobID,
		StitchID:   record.StitchID,
		Status:     string(record.Status),
		OutputPath: record.OutputPath,
		VideoCount: len(record.Refs),
	})
}
