package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/avatar-podcast/internal/bootstrap"
	"github.com/cuongbtq/avatar-podcast/internal/media"
	"github.com/cuongbtq/avatar-podcast/internal/podcast"
	"github.com/cuongbtq/avatar-podcast/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig("WORKER_SERVICE_CONFIG_PATH", "configs/worker-service/config.yaml")
	if err != nil {
		return err
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.Logger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := bootstrap.PostgreSQL(context.Background(), &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	rabbitClient, err := bootstrap.RabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	// the worker only records stitch outcomes, it never submits renders or publishes tasks
	service := podcast.NewService(
		bootstrap.JobStore(dbClient, appLogger.Logger),
		nil,
		nil,
		podcast.Config{OutputDir: cfg.Media.OutputDir},
		appLogger.Logger,
	)

	acquirer := bootstrap.Acquirer(&cfg.Media, bootstrap.AvatarClient(&cfg.Avatar, appLogger.Logger), appLogger.Logger)

	stitcher := media.NewStitcher(media.StitcherConfig{
		FFmpegPath:     cfg.Media.FFmpegPath,
		FFprobePath:    cfg.Media.FFprobePath,
		TempDir:        cfg.Media.TempDir,
		ReencodePreset: cfg.Media.ReencodePreset,
		ReencodeCRF:    cfg.Media.ReencodeCRF,
	}, acquirer, appLogger.Logger)

	if removed, err := stitcher.SweepStale(cfg.Worker.StaleTempAge); err != nil {
		appLogger.Warn("Failed to sweep stale stitch directories", slog.Any("error", err))
	} else if removed > 0 {
		appLogger.Info("Removed stale stitch directories", slog.Int("count", removed))
	}

	hostname, _ := os.Hostname()
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Consumer:      rabbitClient,
		Service:       service,
		Stitcher:      stitcher,
		WorkerID:      fmt.Sprintf("stitch-worker-%s-%d", hostname, os.Getpid()),
		QueueName:     cfg.RabbitMQ.Queue.Name,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:    cfg.Worker.JobTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit",
			slog.Duration("shutdown_timeout", cfg.Worker.ShutdownTimeout),
		)
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
