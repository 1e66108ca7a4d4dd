package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Service struct {
		Name     string `yaml:"name"`
		Sender   string `yaml:"sender"` // identity stamped on outbound envelopes
		HTTPPort int    `yaml:"http_port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"service"`

	Storage string `yaml:"storage"` // postgres | memory

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
	} `yaml:"database"`

	RabbitMQ struct {
		Host              string `yaml:"host"`
		Port              int    `yaml:"port"`
		User              string `yaml:"user"`
		Password          string `yaml:"password"`
		Prefetch          int    `yaml:"prefetch"`
		ConsumersPerQueue int    `yaml:"consumers_per_queue"`
		EventsExchange    string `yaml:"events_exchange"`
		DeadLetter        string `yaml:"dead_letter_exchange"`
	} `yaml:"rabbitmq"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		DedupTTL time.Duration `yaml:"dedup_ttl"`
	} `yaml:"redis"`

	JWT struct {
		SecretKey string        `yaml:"secret_key"`
		AccessTTL time.Duration `yaml:"access_ttl"`
	} `yaml:"jwt"`

	Dispatch struct {
		DeploymentID string `yaml:"deployment_id"`
		ProcessID    string `yaml:"process_id"`
		// how long a ride may wait in REQUESTED before the saga expires it
		AssignDriverExpire time.Duration `yaml:"assign_driver_expire_duration"`
		SymmetricGuards    bool          `yaml:"symmetric_guards"`
		TimerPollInterval  time.Duration `yaml:"timer_poll_interval"`
		TimerBatchSize     int           `yaml:"timer_batch_size"`
	} `yaml:"dispatch"`

	Listener struct {
		// category alias -> queue name
		Destinations map[string]string `yaml:"destinations"`
	} `yaml:"listener"`

	Sender struct {
		// destination alias -> exchange name
		Destinations map[string]string `yaml:"destinations"`
	} `yaml:"sender"`
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults and env overrides, and validates.
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return Parse(raw)
}

// Parse is LoadFromFile without the file.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ProcessKey is the process id registered with the engine, qualified by deployment.
func (c *Config) ProcessKey() string {
	if c.Dispatch.DeploymentID == "" {
		return c.Dispatch.ProcessID
	}
	return c.Dispatch.DeploymentID + ":" + c.Dispatch.ProcessID
}

// AMQPURL builds the broker URL from the rabbitmq section.
func (c *Config) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DISPATCH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DISPATCH_RABBITMQ_PASSWORD"); v != "" {
		cfg.RabbitMQ.Password = v
	}
	if v := os.Getenv("DISPATCH_JWT_SECRET"); v != "" {
		cfg.JWT.SecretKey = v
	}
	if v := os.Getenv("DISPATCH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Service
	if cfg.Service.Name == "" {
		cfg.Service.Name = "dispatch-service"
	}
	if cfg.Service.Sender == "" {
		cfg.Service.Sender = "DispatchService"
	}
	if cfg.Service.HTTPPort == 0 {
		cfg.Service.HTTPPort = 3005
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "info"
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	if cfg.Storage == "" {
		cfg.Storage = StoragePostgres
	}

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.Prefetch == 0 {
		cfg.RabbitMQ.Prefetch = 10
	}
	if cfg.RabbitMQ.ConsumersPerQueue == 0 {
		cfg.RabbitMQ.ConsumersPerQueue = 2
	}
	if cfg.RabbitMQ.EventsExchange == "" {
		cfg.RabbitMQ.EventsExchange = "ride_events"
	}
	if cfg.RabbitMQ.DeadLetter == "" {
		cfg.RabbitMQ.DeadLetter = "dispatch_dlx"
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.DedupTTL == 0 {
		cfg.Redis.DedupTTL = 24 * time.Hour
	}

	// Dispatch
	if cfg.Dispatch.ProcessID == "" {
		cfg.Dispatch.ProcessID = "ride-dispatch"
	}
	if cfg.Dispatch.AssignDriverExpire == 0 {
		cfg.Dispatch.AssignDriverExpire = 5 * time.Minute
	}
	if cfg.Dispatch.TimerPollInterval == 0 {
		cfg.Dispatch.TimerPollInterval = 5 * time.Second
	}
	if cfg.Dispatch.TimerBatchSize == 0 {
		cfg.Dispatch.TimerBatchSize = 50
	}

	if cfg.Listener.Destinations == nil {
		cfg.Listener.Destinations = map[string]string{}
	}
	for alias, queue := range defaultListeners {
		if cfg.Listener.Destinations[alias] == "" {
			cfg.Listener.Destinations[alias] = queue
		}
	}
	// sender destinations have no defaults; an unresolved alias fails the dispatch step

	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = 12 * time.Hour
	}
	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

var defaultListeners = map[string]string{
	"ride-requested-event":     "dispatch.ride_requested",
	"driver-assigned-event":    "dispatch.driver_assigned",
	"ride-started-event":       "dispatch.ride_started",
	"ride-ended-event":         "dispatch.ride_ended",
	"passenger-canceled-event": "dispatch.passenger_canceled",
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	if c.Service.HTTPPort <= 0 || c.Service.HTTPPort > 65535 {
		problems = append(problems, "service.http_port must be in 1..65535")
	}

	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			problems = append(problems, "database.port must be in 1..65535")
		}
		if c.Database.User == "" {
			problems = append(problems, "database.user is required")
		}
		if c.Database.Password == "" {
			problems = append(problems, "database.password is required")
		}
		if c.Database.Name == "" {
			problems = append(problems, "database.database is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage must be %q or %q", StoragePostgres, StorageMemory))
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}
	if c.RabbitMQ.Prefetch < 0 || c.RabbitMQ.ConsumersPerQueue < 0 {
		problems = append(problems, "rabbitmq.prefetch and rabbitmq.consumers_per_queue must not be negative")
	}

	// Dispatch
	if c.Dispatch.AssignDriverExpire < 0 {
		problems = append(problems, "dispatch.assign_driver_expire_duration must be positive")
	}
	if c.Dispatch.TimerPollInterval < 0 || c.Dispatch.TimerBatchSize < 0 {
		problems = append(problems, "dispatch.timer_poll_interval and dispatch.timer_batch_size must be positive")
	}
	for alias, queue := range c.Listener.Destinations {
		if strings.TrimSpace(queue) == "" {
			problems = append(problems, fmt.Sprintf("listener.destinations.%s must not be empty", alias))
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis.enabled")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
