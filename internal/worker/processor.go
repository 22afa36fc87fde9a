package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
	"github.com/cuongbtq/avatar-podcast/internal/podcast"
	workerdomain "github.com/cuongbtq/avatar-podcast/internal/worker/domain"
)

// processStitch runs one stitch task. A nil return means the delivery can be
// acknowledged, including when the stitch failed and the failure was recorded.
func (w *Worker) processStitch(ctx context.Context, msg *workerdomain.StitchMessage) error {
	w.logger.Info("Processing stitch",
		slog.String("job_id", msg.JobID),
		slog.String("stitch_id", msg.StitchID),
		slog.String("worker_id", w.workerID),
	)

	job, err := w.service.StartStitch(ctx, msg.JobID, msg.StitchID)
	if err != nil {
		if errors.Is(err, domain.ErrStaleStitch) || errors.Is(err, domain.ErrJobNotFound) {
			w.logger.Warn("Skipping stale stitch task",
				slog.String("job_id", msg.JobID),
				slog.String("stitch_id", msg.StitchID),
				slog.Any("reason", err),
			)
			return nil
		}
		return workerdomain.NewRetryableError(fmt.Errorf("failed to start stitch: %w", err))
	}

	stitchCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, stitchErr := w.stitcher.Stitch(stitchCtx, job.Stitch.Refs, job.Stitch.OutputPath)
	if stitchErr != nil {
		if errors.Is(stitchCtx.Err(), context.DeadlineExceeded) {
			stitchErr = fmt.Errorf("stitch timed out after %s: %w", w.jobTimeout, stitchErr)
		}
		w.logger.Error("Stitch failed",
			slog.String("job_id", msg.JobID),
			slog.String("stitch_id", msg.StitchID),
			slog.Any("error", stitchErr),
		)
		if err := w.service.FailStitch(ctx, msg.JobID, msg.StitchID, stitchErr); err != nil && !errors.Is(err, domain.ErrStaleStitch) {
			return workerdomain.NewRetryableError(fmt.Errorf("failed to record stitch failure: %w", err))
		}
		return nil
	}

	err = w.service.CompleteStitch(ctx, msg.JobID, msg.StitchID, podcast.StitchOutcome{
		OutputPath: result.OutputPath,
		Strategy:   result.Strategy,
		Duration:   result.Duration,
	})
	if err != nil && !errors.Is(err, domain.ErrStaleStitch) {
		return workerdomain.NewRetryableError(fmt.Errorf("failed to record stitch result: %w", err))
	}

	w.logger.Info("Stitch completed",
		slog.String("job_id", msg.JobID),
		slog.String("output", result.OutputPath),
		slog.String("strategy", result.Strategy),
	)
	return nil
}
