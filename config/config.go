package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Session    SessionConfig    `mapstructure:"session"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

type ServerConfig struct {
	Port          int    `mapstructure:"port"`
	Mode          string `mapstructure:"mode"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// DatabaseConfig selects the gorm driver. Driver is "postgres" or "sqlite";
// for sqlite only DSN (a file path) is used.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Brokers  []string       `mapstructure:"brokers"`
	GroupID  string         `mapstructure:"group_id"`
	Topics   TopicsConfig   `mapstructure:"topics"`
	Producer ProducerConfig `mapstructure:"producer"`
}

type TopicsConfig struct {
	Inbound  string `mapstructure:"inbound"`
	Outbound string `mapstructure:"outbound"`
}

type ProducerConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

// LoggingConfig level is one of debug, info, warn, error, fatal; format is
// json or console; output is stdout or file.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// SessionConfig store is "memory" or "redis".
type SessionConfig struct {
	Store string        `mapstructure:"store"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// NotifyConfig sink is "websocket" or "kafka".
type NotifyConfig struct {
	Sink        string        `mapstructure:"sink"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
	Backoff     time.Duration `mapstructure:"backoff"`
	Concurrency int           `mapstructure:"concurrency"`
}

// WorkerPoolConfig sizes the keyed pool that serializes events per user:
// Size lanes, each queueing up to QueueSize events.
type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

type RateLimitConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	EventsPerMinute int  `mapstructure:"events_per_minute"`
	FailOpen        bool `mapstructure:"fail_open"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// AuthConfig lists the API clients allowed to request tokens. SecretHash is a
// bcrypt hash of the client secret.
type AuthConfig struct {
	Clients []ClientConfig `mapstructure:"clients"`
}

type ClientConfig struct {
	Name       string `mapstructure:"name"`
	Role       string `mapstructure:"role"`
	SecretHash string `mapstructure:"secret_hash"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_concurrent", 256)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.dbname", "santa")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("kafka.group_id", "santa")
	v.SetDefault("kafka.topics.inbound", "santa.events")
	v.SetDefault("kafka.topics.outbound", "santa.notifications")
	v.SetDefault("kafka.producer.max_retries", 3)
	v.SetDefault("kafka.producer.retry_backoff_ms", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", 30*time.Minute)

	v.SetDefault("notify.sink", "websocket")
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.retries", 1)
	v.SetDefault("notify.backoff", 200*time.Millisecond)
	v.SetDefault("notify.concurrency", 8)

	v.SetDefault("worker_pool.size", 16)
	v.SetDefault("worker_pool.queue_size", 1024)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.events_per_minute", 60)
	v.SetDefault("ratelimit.fail_open", true)

	v.SetDefault("jwt.expire_hours", 24)
}

// LoadConfig reads the file at path. Any key can be overridden from the
// environment as SANTA_<SECTION>_<KEY>, e.g. SANTA_DATABASE_DSN.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("santa")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Session.Store {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("session store redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("unsupported session store %q", c.Session.Store)
	}
	switch c.Notify.Sink {
	case "websocket":
	case "kafka":
		if !c.Kafka.Enabled {
			return fmt.Errorf("notify sink kafka requires kafka.enabled")
		}
	default:
		return fmt.Errorf("unsupported notify sink %q", c.Notify.Sink)
	}
	if c.RateLimit.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("ratelimit requires redis.enabled")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret must be set")
	}
	return nil
}
