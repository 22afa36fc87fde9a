// Package bootstrap builds the shared clients both services start from.
package bootstrap

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/avatar-podcast/internal/avatar"
	"github.com/cuongbtq/avatar-podcast/internal/config"
	"github.com/cuongbtq/avatar-podcast/internal/media"
	"github.com/cuongbtq/avatar-podcast/internal/storage"
	"github.com/cuongbtq/avatar-podcast/migrations"
	"github.com/cuongbtq/avatar-podcast/shared/logger"
	"github.com/cuongbtq/avatar-podcast/shared/postgresql"
	"github.com/cuongbtq/avatar-podcast/shared/rabbitmq"
)

// LoadConfig reads .env, then the YAML file named by -config or by envVar.
func LoadConfig(envVar, fallbackPath string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv(envVar)
	if defaultConfigPath == "" {
		defaultConfigPath = fallbackPath
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Logger initializes the application logger
func Logger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// PostgreSQL connects to the database and applies the embedded migrations.
func PostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	client, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := client.Migrate(ctx, migrations.FS); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return client, nil
}

// JobStore wraps the database client in the job repository.
func JobStore(client *postgresql.Client, logger *slog.Logger) storage.JobStore {
	return storage.NewPostgresStore(client, logger)
}

// RabbitMQ connects to the broker and declares the stitch exchange and queue.
func RabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// AvatarClient builds the rendering service client.
func AvatarClient(cfg *config.AvatarConfig, logger *slog.Logger) *avatar.Client {
	return avatar.NewClient(avatar.Config{
		BaseURL:         cfg.BaseURL,
		APIKey:          cfg.APIKey,
		DefaultVoiceID:  cfg.DefaultVoiceID,
		CreateEndpoints: cfg.CreateEndpoints,
		StatusEndpoints: cfg.StatusEndpoints,
		AvatarEndpoints: cfg.AvatarEndpoints,
		CreateTimeout:   cfg.CreateTimeout,
		StatusTimeout:   cfg.StatusTimeout,
	}, logger)
}

// Acquirer builds the clip fetcher used for stitching and turn archives.
func Acquirer(cfg *config.MediaConfig, resolver media.RenderResolver, logger *slog.Logger) *media.Acquirer {
	return media.NewAcquirer(media.AcquirerConfig{
		BaseDir:         cfg.BaseDir,
		DownloadTimeout: cfg.DownloadTimeout,
		Resolver:        resolver,
	}, logger)
}
