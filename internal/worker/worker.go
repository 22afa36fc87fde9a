package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
	"github.com/cuongbtq/avatar-podcast/internal/media"
	"github.com/cuongbtq/avatar-podcast/internal/podcast"
	workerdomain "github.com/cuongbtq/avatar-podcast/internal/worker/domain"
)

// Consumer delivers stitch tasks from the queue
type Consumer interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// StitchService records the lifecycle of a job's stitch
type StitchService interface {
	StartStitch(ctx context.Context, jobID, stitchID string) (*domain.Job, error)
	CompleteStitch(ctx context.Context, jobID, stitchID string, out podcast.StitchOutcome) error
	FailStitch(ctx context.Context, jobID, stitchID string, cause error) error
}

// Stitcher concatenates clips into one output file
type Stitcher interface {
	Stitch(ctx context.Context, refs []string, outputPath string) (*media.Result, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Consumer      Consumer
	Service       StitchService
	Stitcher      Stitcher
	WorkerID      string
	QueueName     string
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
}

// Worker consumes stitch tasks and runs them on a fixed pool of goroutines
type Worker struct {
	logger            *slog.Logger
	consumer          Consumer
	service           StitchService
	stitcher          Stitcher
	workerID          string
	rabbitMQQueueName string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	jobsChan          chan *workerdomain.StitchMessage
	wg                sync.WaitGroup
	stopChan          chan struct{}
	stopOnce          sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "stitch-worker-" + uuid.NewString()[:8]
	}

	return &Worker{
		logger:            cfg.Logger,
		consumer:          cfg.Consumer,
		service:           cfg.Service,
		stitcher:          cfg.Stitcher,
		workerID:          workerID,
		rabbitMQQueueName: cfg.QueueName,
		concurrency:       concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        jobTimeout,
		jobsChan:          make(chan *workerdomain.StitchMessage, concurrency),
		stopChan:          make(chan struct{}),
	}
}

// Start consumes tasks until ctx is canceled. Tasks already running when ctx
// is canceled finish on their own timeout; Stop waits for them.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	if closed := w.startMessageDispatcher(ctx, deliveries); closed {
		return errors.New("rabbitmq delivery channel closed")
	}

	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop signals the pool to exit and waits for in-flight tasks
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
