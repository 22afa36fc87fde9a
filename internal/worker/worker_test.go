package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
	"github.com/cuongbtq/avatar-podcast/internal/media"
	"github.com/cuongbtq/avatar-podcast/internal/podcast"
	"github.com/cuongbtq/avatar-podcast/internal/storage"
	workerdomain "github.com/cuongbtq/avatar-podcast/internal/worker/domain"
	"github.com/cuongbtq/avatar-podcast/shared/logger"
)

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	settled chan settlement
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.settled <- settlement{tag: tag, ack: true}
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.settled <- settlement{tag: tag, requeue: requeue}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeConsumer struct {
	deliveries chan amqp.Delivery
	prefetch   int
	tag        string
}

func (c *fakeConsumer) Qos(prefetchCount int) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeConsumer) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	c.tag = consumerTag
	return c.deliveries, nil
}

type fakeStitcher struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (s *fakeStitcher) Stitch(ctx context.Context, refs []string, outputPath string) (*media.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, refs)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &media.Result{OutputPath: outputPath, Strategy: media.StrategyCopy, Clips: len(refs), Duration: 9.5}, nil
}

func (s *fakeStitcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type capturePublisher struct {
	tasks []domain.StitchTask
}

func (p *capturePublisher) PublishJSON(ctx context.Context, v any) error {
	p.tasks = append(p.tasks, v.(domain.StitchTask))
	return nil
}

type harness struct {
	store     *storage.MemoryStore
	service   *podcast.Service
	publisher *capturePublisher
	stitcher  *fakeStitcher
	consumer  *fakeConsumer
	acks      *fakeAcknowledger
	worker    *Worker
	nextTag   uint64
}

func newHarness(t *testing.T, service StitchService) *harness {
	t.Helper()
	h := &harness{
		store:     storage.NewMemoryStore(),
		publisher: &capturePublisher{},
		stitcher:  &fakeStitcher{},
		consumer:  &fakeConsumer{deliveries: make(chan amqp.Delivery)},
		acks:      &fakeAcknowledger{settled: make(chan settlement, 4)},
	}
	h.service = podcast.NewService(h.store, nil, h.publisher, podcast.Config{OutputDir: "/srv/out"}, logger.NewNop())
	if service == nil {
		service = h.service
	}
	h.worker = NewWorker(&Config{
		Logger:      logger.NewNop(),
		Consumer:    h.consumer,
		Service:     service,
		Stitcher:    h.stitcher,
		WorkerID:    "test-worker",
		Concurrency: 2,
		JobTimeout:  time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		h.worker.Stop()
	})
	return h
}

func (h *harness) readyJob(t *testing.T) *domain.Job {
	t.Helper()
	now := time.Now()
	job := &domain.Job{
		JobID:     uuid.NewString(),
		CreatedAt: now,
		Turns: []domain.Turn{
			{Index: 0, Speaker: domain.SpeakerHost, Text: "a", Status: domain.TurnReady, VideoRef: "/clips/a.mp4"},
			{Index: 1, Speaker: domain.SpeakerGuest, Text: "b", Status: domain.TurnReady, VideoRef: "/clips/b.mp4"},
		},
	}
	job.Recompute(now)
	require.NoError(t, h.store.Create(context.Background(), job))
	return job
}

func (h *harness) deliver(t *testing.T, body []byte) settlement {
	t.Helper()
	h.nextTag++
	h.consumer.deliveries <- amqp.Delivery{Acknowledger: h.acks, DeliveryTag: h.nextTag, Body: body}

	select {
	case s := <-h.acks.settled:
		require.Equal(t, h.nextTag, s.tag)
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was never settled")
		return settlement{}
	}
}

func taskBody(t *testing.T, task domain.StitchTask) []byte {
	t.Helper()
	body, err := json.Marshal(task)
	require.NoError(t, err)
	return body
}

func TestWorker_CompletesStitch(t *testing.T) {
	h := newHarness(t, nil)
	job := h.readyJob(t)
	record, err := h.service.RequestStitch(context.Background(), job.JobID, nil)
	require.NoError(t, err)
	require.Len(t, h.publisher.tasks, 1)

	s := h.deliver(t, taskBody(t, h.publisher.tasks[0]))

	assert.True(t, s.ack)
	assert.Equal(t, 2, h.consumer.prefetch)
	assert.Equal(t, "test-worker", h.consumer.tag)

	stored, err := h.store.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StitchCompleted, stored.Stitch.Status)
	assert.Equal(t, record.OutputPath, stored.Stitch.OutputPath)
	assert.Equal(t, media.StrategyCopy, stored.Stitch.Strategy)
	assert.Equal(t, 9.5, stored.Stitch.Duration)
	assert.Equal(t, [][]string{{"/clips/a.mp4", "/clips/b.mp4"}}, h.stitcher.calls)
}

func TestWorker_RecordsStitchFailureWithoutRequeue(t *testing.T) {
	h := newHarness(t, nil)
	h.stitcher.err = &media.StitchError{Reencode: media.CommandLog{ExitCode: 1, Stderr: "moov atom not found"}}
	job := h.readyJob(t)
	_, err := h.service.RequestStitch(context.Background(), job.JobID, nil)
	require.NoError(t, err)

	s := h.deliver(t, taskBody(t, h.publisher.tasks[0]))

	assert.True(t, s.ack)
	stored, err := h.store.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StitchFailed, stored.Stitch.Status)
	assert.Contains(t, stored.Stitch.Error, "moov atom not found")
}

func TestWorker_SkipsStaleTask(t *testing.T) {
	h := newHarness(t, nil)
	job := h.readyJob(t)
	_, err := h.service.RequestStitch(context.Background(), job.JobID, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		task domain.StitchTask
	}{
		{name: "unknown stitch id", task: domain.StitchTask{JobID: job.JobID, StitchID: "old-stitch"}},
		{name: "unknown job", task: domain.StitchTask{JobID: uuid.NewString(), StitchID: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := h.deliver(t, taskBody(t, tt.task))
			assert.True(t, s.ack)
		})
	}
	assert.Zero(t, h.stitcher.callCount())
}

func TestWorker_RejectsMalformedMessages(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "stitch please"},
		{name: "job id not a uuid", body: `{"job_id":"42","stitch_id":"s"}`},
		{name: "missing stitch id", body: `{"job_id":"` + uuid.NewString() + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := h.deliver(t, []byte(tt.body))
			assert.False(t, s.ack)
			assert.False(t, s.requeue)
		})
	}
}

type unavailableService struct{}

func (unavailableService) StartStitch(ctx context.Context, jobID, stitchID string) (*domain.Job, error) {
	return nil, errors.New("connection refused")
}

func (unavailableService) CompleteStitch(ctx context.Context, jobID, stitchID string, out podcast.StitchOutcome) error {
	return nil
}

func (unavailableService) FailStitch(ctx context.Context, jobID, stitchID string, cause error) error {
	return nil
}

func TestWorker_RequeuesWhenStoreUnavailable(t *testing.T) {
	h := newHarness(t, unavailableService{})

	s := h.deliver(t, taskBody(t, domain.StitchTask{JobID: uuid.NewString(), StitchID: "s"}))

	assert.False(t, s.ack)
	assert.True(t, s.requeue)
	assert.Zero(t, h.stitcher.callCount())
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "retryable", err: workerdomain.NewRetryableError(errors.New("db down")), want: true},
		{name: "wrapped retryable", err: errors.Join(errors.New("ctx"), workerdomain.NewRetryableError(errors.New("x"))), want: true},
		{name: "invalid task", err: workerdomain.ErrInvalidTask, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err))
		})
	}
}
