package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"ImpactRank/pkg/logger"
)

type Config struct {
	Environment string          `yaml:"environment" default:"development" validate:"required"`
	Server      ServerConfig    `yaml:"server"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Logging     LoggingConfig   `yaml:"logging"`
	Engine      EngineConfig    `yaml:"engine"`
	History     HistoryConfig   `yaml:"history"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	ClickHouse  ClickHouse      `yaml:"clickhouse"`
	Redis       RedisConfig     `yaml:"redis"`
	Queue       QueueConfig     `yaml:"queue"`
	Cache       CacheConfig     `yaml:"cache"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	BodyLimit       string        `yaml:"body_limit" default:"4M"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
	CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	RateLimit       struct {
		Requests int           `yaml:"requests" default:"120" validate:"gte=0"`
		Window   time.Duration `yaml:"window" default:"1m"`
	} `yaml:"rate_limit"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type LoggingConfig struct {
	logger.Config `yaml:",inline"`
	Collect       struct {
		Enabled   bool          `yaml:"enabled"`
		Topic     string        `yaml:"topic" default:"impactrank-logs"`
		Interval  time.Duration `yaml:"interval" default:"30s"`
		Threshold int           `yaml:"threshold" default:"100"`
	} `yaml:"collect"`
}

// EngineConfig holds the ranking defaults; requests may override them.
type EngineConfig struct {
	DecayBase       float64 `yaml:"decay_base" default:"0.99" validate:"gt=0,lt=1"`
	HalfLifeHours   float64 `yaml:"half_life_hours" validate:"gte=0"`
	MaxAgeHours     float64 `yaml:"max_age_hours" default:"48" validate:"gt=0,lte=87600"`
	PropagateScopes bool    `yaml:"propagate_scopes"`
	TopN            int     `yaml:"top_n" validate:"gte=0"`
}

type HistoryConfig struct {
	Source   string        `yaml:"source" default:"clickhouse" validate:"oneof=none clickhouse http"`
	URL      string        `yaml:"url" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" default:"3s"`
	Attempts int           `yaml:"attempts" default:"3" validate:"gte=1"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled" default:"true"`
	Brokers     []string `yaml:"brokers" default:"[\"localhost:9092\"]" validate:"required_if=Enabled true"`
	EventsTopic string   `yaml:"events_topic" default:"impact-events"`
	OutputTopic string   `yaml:"output_topic" default:"recommendations"`
	Compression string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer    struct {
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"20ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"impactrank"`
		Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"impact-events-dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		SlowAfter  time.Duration `yaml:"slow_after" default:"2s"`
	} `yaml:"consumer"`
}

type ClickHouse struct {
	Enabled          bool          `yaml:"enabled" default:"true"`
	Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"impactrank"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	Compression      string        `yaml:"compression" default:"lz4" validate:"oneof=none lz4 zstd"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	ConnectAttempts  int           `yaml:"connect_attempts" default:"5"`
	RetentionDays    int           `yaml:"retention_days" default:"30"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
}

type QueueConfig struct {
	Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
	MaxPending int           `yaml:"max_pending" default:"1000"`
	RetryLimit int           `yaml:"retry_limit" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
}

type CacheConfig struct {
	LatestTTL     time.Duration `yaml:"latest_ttl" default:"10m"`
	RankTTL       time.Duration `yaml:"rank_ttl" default:"1m"`
	MemoryMaxSize int           `yaml:"memory_max_size" default:"1000"`
	MemoryTTL     time.Duration `yaml:"memory_ttl" default:"30s"`
}

type WebSocketConfig struct {
	Enabled      bool          `yaml:"enabled" default:"true"`
	Path         string        `yaml:"path" default:"/ws/recommendations"`
	PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	SendBuffer   int           `yaml:"send_buffer" default:"16"`
}

var validate = validator.New()

// Default returns a config with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Parse decodes YAML on top of defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv in
// production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("ENVIRONMENT"); ok {
		c.Environment = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := get("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := get("EVENTS_TOPIC"); ok {
		c.Kafka.EventsTopic = v
	}
	if v, ok := get("CLICKHOUSE_HOST"); ok {
		c.ClickHouse.Host = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := get("HISTORY_SOURCE"); ok {
		c.History.Source = v
	}
	if v, ok := get("DECAY_BASE"); ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("DECAY_BASE: %w", err)
		}
		c.Engine.DecayBase = f
	}
	if v, ok := get("MAX_AGE_HOURS"); ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("MAX_AGE_HOURS: %w", err)
		}
		c.Engine.MaxAgeHours = f
	}
	if v, ok := get("SERVER_PORT"); ok {
		p, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = p
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.History.Source == "http" && c.History.URL == "" {
		return fmt.Errorf("history.url is required for history.source http")
	}
	if c.History.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("history.source clickhouse requires clickhouse.enabled")
	}
	return nil
}
