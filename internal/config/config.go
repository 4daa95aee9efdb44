package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thumbforge/thumbforge/internal/job"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "THUMBFORGE_"
)

// Config represents the complete application configuration
type Config struct {
	Server            ServerConfig   `yaml:"server"`
	Database          DatabaseConfig `yaml:"database"`
	RabbitMQ          RabbitMQConfig `yaml:"rabbitmq"`
	Logging           LoggingConfig  `yaml:"logging"`
	App               AppConfig      `yaml:"app"`
	Worker            WorkerConfig   `yaml:"worker"`
	Storage           StorageConfig  `yaml:"storage"`
	DuplicateHandling string         `yaml:"duplicate_handling"`
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
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds orchestrator tuning. Fetch and transform concurrency
// are independent bounds.
type WorkerConfig struct {
	FetchConcurrency     int           `yaml:"fetch_concurrency"`
	TransformConcurrency int           `yaml:"transform_concurrency"`
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	MaxImageBytes        int64         `yaml:"max_image_bytes"`
	ThumbnailSize        int           `yaml:"thumbnail_size"`
	PopTimeout           time.Duration `yaml:"pop_timeout"`
	RetryBackoff         time.Duration `yaml:"retry_backoff"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig holds result store configuration
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads the configuration file and applies THUMBFORGE_* environment
// overrides on top.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(EnvPrefix + "DUPLICATE_HANDLING"); v != "" {
		c.DuplicateHandling = v
	}
	if v := os.Getenv(EnvPrefix + "STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_IMAGE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_IMAGE_BYTES: %w", EnvPrefix, err)
		}
		c.Worker.MaxImageBytes = n
	}
	if v := os.Getenv(EnvPrefix + "THUMBNAIL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sTHUMBNAIL_SIZE: %w", EnvPrefix, err)
		}
		c.Worker.ThumbnailSize = n
	}
	return nil
}

func (c *Config) validateShared() error {
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

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if !job.ValidDuplicateMode(c.DuplicateHandling) {
		return fmt.Errorf("invalid duplicate_handling: %q (must be allow-retry, reuse-completed, or reject-active)", c.DuplicateHandling)
	}
	return nil
}

// ValidateAPIConfig checks the configuration needed by the API service.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}
	return c.validateShared()
}

// ValidateWorkerConfig checks the configuration needed by the worker service.
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.FetchConcurrency <= 0 {
		return fmt.Errorf("worker fetch_concurrency must be greater than 0")
	}
	if c.Worker.TransformConcurrency <= 0 {
		return fmt.Errorf("worker transform_concurrency must be greater than 0")
	}
	if c.Worker.FetchTimeout <= 0 {
		return fmt.Errorf("worker fetch_timeout must be greater than 0")
	}
	if c.Worker.MaxImageBytes <= 0 {
		return fmt.Errorf("worker max_image_bytes must be greater than 0")
	}
	if c.Worker.ThumbnailSize < 16 {
		return fmt.Errorf("worker thumbnail_size must be at least 16")
	}
	if c.Worker.PopTimeout <= 0 {
		return fmt.Errorf("worker pop_timeout must be greater than 0")
	}
	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}
	return c.validateShared()
}

// DuplicateMode returns the configured duplicate-handling mode.
func (c *Config) DuplicateMode() job.DuplicateMode {
	return job.DuplicateMode(c.DuplicateHandling)
}
