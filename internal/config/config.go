package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Avatar   AvatarConfig   `yaml:"avatar"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Media    MediaConfig    `yaml:"media"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds stitch worker configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StaleTempAge    time.Duration `yaml:"stale_temp_age"`
}

// AvatarConfig holds the talking-avatar rendering service settings
type AvatarConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	DefaultVoiceID  string        `yaml:"default_voice_id"`
	CreateEndpoints []string      `yaml:"create_endpoints"`
	StatusEndpoints []string      `yaml:"status_endpoints"`
	AvatarEndpoints []string      `yaml:"avatar_endpoints"`
	CreateTimeout   time.Duration `yaml:"create_timeout"`
	StatusTimeout   time.Duration `yaml:"status_timeout"`
}

// PipelineConfig holds orchestration settings. The thresholds are empirical
// estimates of provider latency, not a documented SLA.
type PipelineConfig struct {
	FastThreshold     time.Duration `yaml:"fast_threshold"`
	LongTailThreshold time.Duration `yaml:"long_tail_threshold"`
	SubmitConcurrency int           `yaml:"submit_concurrency"`
}

// MediaConfig holds acquisition and stitching settings
type MediaConfig struct {
	FFmpegPath      string        `yaml:"ffmpeg_path"`
	FFprobePath     string        `yaml:"ffprobe_path"`
	BaseDir         string        `yaml:"base_dir"`
	TempDir         string        `yaml:"temp_dir"`
	OutputDir       string        `yaml:"output_dir"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	ReencodePreset  string        `yaml:"reencode_preset"`
	ReencodeCRF     int           `yaml:"reencode_crf"`
}

// Load reads and parses the configuration file, then applies
// environment overrides and defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyEnv(os.Getenv)
	config.ApplyDefaults()

	return &config, nil
}

// ApplyEnv overrides secrets from the environment so they can stay out of YAML files
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := getenv("RABBITMQ_PASSWORD"); v != "" {
		c.RabbitMQ.Password = v
	}
	if v := getenv("AVATAR_API_KEY"); v != "" {
		c.Avatar.APIKey = v
	}
	if v := getenv("AVATAR_BASE_URL"); v != "" {
		c.Avatar.BaseURL = v
	}
}

// ApplyDefaults fills zero values with working defaults
func (c *Config) ApplyDefaults() {
	if c.Avatar.BaseURL == "" {
		c.Avatar.BaseURL = "https://api.heygen.com"
	}
	if len(c.Avatar.CreateEndpoints) == 0 {
		c.Avatar.CreateEndpoints = []string{"/v2/video/generate", "/v1/video/generate"}
	}
	if len(c.Avatar.StatusEndpoints) == 0 {
		c.Avatar.StatusEndpoints = []string{
			"/v2/video/{id}",
			"/v2/video/status/{id}",
			"/v2/video/status?video_id={id}",
		}
	}
	if len(c.Avatar.AvatarEndpoints) == 0 {
		c.Avatar.AvatarEndpoints = []string{"/v1/avatar.list", "/v1/avatars", "/v2/avatars"}
	}
	if c.Avatar.CreateTimeout <= 0 {
		c.Avatar.CreateTimeout = 30 * time.Second
	}
	if c.Avatar.StatusTimeout <= 0 {
		c.Avatar.StatusTimeout = time.Second
	}

	if c.Pipeline.FastThreshold <= 0 {
		c.Pipeline.FastThreshold = 5 * time.Minute
	}
	if c.Pipeline.LongTailThreshold <= 0 {
		c.Pipeline.LongTailThreshold = 36 * time.Hour
	}
	if c.Pipeline.SubmitConcurrency <= 0 {
		c.Pipeline.SubmitConcurrency = 1
	}

	if c.Media.FFmpegPath == "" {
		c.Media.FFmpegPath = "ffmpeg"
	}
	if c.Media.BaseDir == "" {
		c.Media.BaseDir = "."
	}
	if c.Media.TempDir == "" {
		c.Media.TempDir = os.TempDir()
	}
	if c.Media.OutputDir == "" {
		c.Media.OutputDir = "outputs/podcasts"
	}
	if c.Media.DownloadTimeout <= 0 {
		c.Media.DownloadTimeout = 10 * time.Minute
	}
	if c.Media.ReencodePreset == "" {
		c.Media.ReencodePreset = "medium"
	}
	if c.Media.ReencodeCRF <= 0 {
		c.Media.ReencodeCRF = 23
	}

	if c.Worker.StaleTempAge <= 0 {
		c.Worker.StaleTempAge = 6 * time.Hour
	}
}

// Validate checks the settings shared by both services
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Pipeline.FastThreshold > 0 && c.Pipeline.LongTailThreshold > 0 &&
		c.Pipeline.FastThreshold >= c.Pipeline.LongTailThreshold {
		return fmt.Errorf("pipeline fast_threshold must be shorter than long_tail_threshold")
	}

	return nil
}

// ValidateAPIConfig checks the settings needed by the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.Validate(); err != nil {
		return err
	}

	if c.Avatar.BaseURL == "" {
		return fmt.Errorf("avatar base_url is required")
	}

	if c.Avatar.APIKey == "" {
		return fmt.Errorf("avatar api_key is required (set AVATAR_API_KEY)")
	}

	return nil
}

// ValidateWorkerConfig checks the settings needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Media.OutputDir == "" {
		return fmt.Errorf("media output_dir is required")
	}

	return nil
}
