// Package config loads the agent configuration: struct defaults, then the
// YAML file, then .env and process environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	applogger "PriceAgent/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         applogger.Config `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Agent       AgentConfig      `yaml:"agent"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
	Model       ModelConfig      `yaml:"model"`
	Source      SourceConfig     `yaml:"source"`
	Retry       RetryConfig      `yaml:"retry"`
	Cache       CacheConfig      `yaml:"cache"`
	Store       StoreConfig      `yaml:"store"`
	Kafka       KafkaConfig      `yaml:"kafka"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	CORS            bool          `yaml:"cors" default:"true"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
}

type AgentConfig struct {
	ID               string        `yaml:"id" default:"bitcoin_predictor" validate:"required"`
	AssetID          string        `yaml:"asset_id" default:"bitcoin" validate:"required"`
	TrainingInterval time.Duration `yaml:"training_interval" default:"6h" validate:"gt=0"`
	PollInterval     time.Duration `yaml:"poll_interval" default:"5m" validate:"gt=0"`
	LookbackDays     int           `yaml:"lookback_days" default:"730" validate:"gte=1"`
}

type PipelineConfig struct {
	Window          int     `yaml:"window" default:"30" validate:"gte=1"`
	Horizon         int     `yaml:"horizon" default:"7" validate:"gte=1"`
	Epochs          int     `yaml:"epochs" default:"50" validate:"gte=1"`
	BatchSize       int     `yaml:"batch_size" default:"32" validate:"gte=1"`
	ValidationSplit float64 `yaml:"validation_split" default:"0.2" validate:"gte=0,lt=1"`
	Split           string  `yaml:"split" default:"tail" validate:"oneof=tail random"`
	Features        string  `yaml:"features" default:"price" validate:"oneof=price price_indicators"`
	Seed            int64   `yaml:"seed" default:"42"`
}

type ModelConfig struct {
	Type         string        `yaml:"type" default:"linear" validate:"oneof=linear remote"`
	LearningRate float64       `yaml:"learning_rate" default:"0.01" validate:"gt=0"`
	L2           float64       `yaml:"l2" default:"0.0001" validate:"gte=0"`
	RemoteURL    string        `yaml:"remote_url" validate:"required_if=Type remote,omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" default:"5m"`
}

type SourceConfig struct {
	BaseURL       string        `yaml:"base_url" default:"https://api.coingecko.com/api/v3" validate:"url"`
	APIKey        string        `yaml:"api_key"`
	VsCurrency    string        `yaml:"vs_currency" default:"usd"`
	Timeout       time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	RatePerMinute int           `yaml:"rate_per_minute" default:"30" validate:"gte=1"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"3" validate:"gte=1"`
	InitialDelay time.Duration `yaml:"initial_delay" default:"1s"`
	Multiplier   float64       `yaml:"multiplier" default:"2" validate:"gte=1"`
	MaxDelay     time.Duration `yaml:"max_delay" default:"30s"`
}

type CacheConfig struct {
	LatestPriceTTL time.Duration `yaml:"latest_price_ttl" default:"5m" validate:"gt=0"`
	MemorySize     int           `yaml:"memory_size" default:"1000" validate:"gte=1"`
	Redis          RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"6379"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size" default:"10" validate:"gte=1"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s" validate:"gt=0"`
	Prefix       string        `yaml:"prefix" default:"priceagent"`
	L1MaxTTL     time.Duration `yaml:"l1_max_ttl" default:"1m"`
}

type StoreConfig struct {
	Type       string           `yaml:"type" default:"memory" validate:"oneof=memory postgres mongo clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Mongo      MongoConfig      `yaml:"mongo"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	Database string `yaml:"database" default:"priceagent"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
	MaxOpen  int    `yaml:"max_open" default:"10"`
	MaxIdle  int    `yaml:"max_idle" default:"5"`
	LogLevel string `yaml:"log_level" default:"warn"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri" default:"mongodb://localhost:27017"`
	Database       string        `yaml:"database" default:"priceagent"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	MinPool        uint64        `yaml:"min_pool" default:"1"`
	MaxPool        uint64        `yaml:"max_pool" default:"20" validate:"gtefield=MinPool"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"priceagent"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers" default:"[\"localhost:9092\"]" validate:"required_if=Enabled true"`
	EventsTopic   string        `yaml:"events_topic" default:"priceagent.events"`
	CommandsTopic string        `yaml:"commands_topic" default:"priceagent.commands"`
	GroupID       string        `yaml:"group_id" default:"priceagent"`
	DLQTopic      string        `yaml:"dlq_topic" default:"priceagent.commands.dlq"`
	StartOffset   string        `yaml:"start_offset" default:"latest" validate:"oneof=earliest latest"`
	MinBytes      int           `yaml:"min_bytes" default:"1"`
	MaxBytes      int           `yaml:"max_bytes" default:"1048576" validate:"gtefield=MinBytes"`
	Compression   string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	RequiredAcks  int           `yaml:"required_acks" default:"-1"`
	RetryMax      int           `yaml:"retry_max" default:"3"`
	BackoffMin    time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax    time.Duration `yaml:"backoff_max" default:"5s"`
}

// envOverrides are the process environment keys that win over the file.
// Fields are pointers or empty-checked so unset variables keep file values.
type envOverrides struct {
	Environment    string   `envconfig:"APP_ENV"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
	Port           int      `envconfig:"PORT"`
	AssetID        string   `envconfig:"ASSET_ID"`
	StoreType      string   `envconfig:"STORE_TYPE"`
	PostgresDSN    string   `envconfig:"POSTGRES_DSN"`
	MongoURI       string   `envconfig:"MONGO_URI"`
	ClickHouseHost string   `envconfig:"CLICKHOUSE_HOST"`
	RedisHost      string   `envconfig:"REDIS_HOST"`
	RedisPassword  string   `envconfig:"REDIS_PASSWORD"`
	RedisEnabled   *bool    `envconfig:"REDIS_ENABLED"`
	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS"`
	KafkaEnabled   *bool    `envconfig:"KAFKA_ENABLED"`
	SourceBaseURL  string   `envconfig:"PRICE_SOURCE_URL"`
	SourceAPIKey   string   `envconfig:"PRICE_SOURCE_API_KEY"`
	ModelType      string   `envconfig:"MODEL_TYPE"`
	ModelURL       string   `envconfig:"MODEL_SERVICE_URL"`
}

var validate = validator.New()

// Load reads path (optional when empty or missing), applies overrides and
// validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env into the process environment (when present), then
// the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	setString(&c.Environment, env.Environment)
	setString(&c.Log.Level, env.LogLevel)
	if env.Port > 0 {
		c.Server.Port = env.Port
	}
	setString(&c.Agent.AssetID, env.AssetID)
	setString(&c.Store.Type, env.StoreType)
	setString(&c.Store.Postgres.DSN, env.PostgresDSN)
	setString(&c.Store.Mongo.URI, env.MongoURI)
	setString(&c.Store.ClickHouse.Host, env.ClickHouseHost)
	setString(&c.Cache.Redis.Host, env.RedisHost)
	setString(&c.Cache.Redis.Password, env.RedisPassword)
	if env.RedisEnabled != nil {
		c.Cache.Redis.Enabled = *env.RedisEnabled
	}
	if len(env.KafkaBrokers) > 0 {
		c.Kafka.Brokers = env.KafkaBrokers
	}
	if env.KafkaEnabled != nil {
		c.Kafka.Enabled = *env.KafkaEnabled
	}
	setString(&c.Source.BaseURL, env.SourceBaseURL)
	setString(&c.Source.APIKey, env.SourceAPIKey)
	setString(&c.Model.Type, env.ModelType)
	setString(&c.Model.RemoteURL, env.ModelURL)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Agent.LookbackDays < c.Pipeline.Window+c.Pipeline.Horizon+1 {
		return fmt.Errorf("agent.lookback_days must cover window+horizon+1 (%d)", c.Pipeline.Window+c.Pipeline.Horizon+1)
	}
	if c.Agent.PollInterval > c.Agent.TrainingInterval {
		return fmt.Errorf("agent.poll_interval must not exceed agent.training_interval")
	}
	return nil
}
