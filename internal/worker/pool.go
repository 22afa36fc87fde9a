package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	workerdomain "github.com/cuongbtq/avatar-podcast/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop takes tasks until the worker stops. A task that has started is
// processed to completion even when ctx is canceled meanwhile.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	taskCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg := <-w.jobsChan:
			log := w.logger.With(
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.JobID),
				slog.String("stitch_id", msg.StitchID),
			)

			err := w.processStitch(taskCtx, msg)
			w.settle(log, msg, err)
		}
	}
}

// settle acknowledges the delivery for msg according to the processing result
func (w *Worker) settle(log *slog.Logger, msg *workerdomain.StitchMessage, err error) {
	if err == nil {
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			log.Error("Failed to ACK message", slog.Any("error", ackErr))
		}
		return
	}

	requeue := shouldRequeue(err)
	log.Error("Stitch task failed",
		slog.Any("error", err),
		slog.Bool("requeue", requeue),
	)
	if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
		log.Error("Failed to NACK message", slog.Any("error", nackErr))
	}
}

// shouldRequeue requeues only transient failures. Stitch failures themselves
// are recorded on the job and never retried automatically.
func shouldRequeue(err error) bool {
	var retryableErr *workerdomain.RetryableError
	return errors.As(err, &retryableErr)
}
