package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"costguard/pkg/errors"
)

type Config struct {
	App           AppConfig
	API           APIConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	Bridge        BridgeConfig
	Scan          ScanConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"costguard"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type APIConfig struct {
	Port   int    `envconfig:"API_PORT" default:"8080"`
	APIKey string `envconfig:"API_KEY"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"costguard"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" required:"true"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"costguard"`
}

type TelegramConfig struct {
	BotToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	AlertChatID int64  `envconfig:"TELEGRAM_ALERT_CHAT_ID"`
}

// BridgeConfig configures the external workflow bridge.
// The 45s timeout matches the latency of the agent on the other side.
type BridgeConfig struct {
	URL      string        `envconfig:"BRIDGE_URL"`
	APIToken string        `envconfig:"BRIDGE_API_TOKEN"`
	Timeout  time.Duration `envconfig:"BRIDGE_TIMEOUT" default:"45s"`
	LogSize  int           `envconfig:"BRIDGE_LOG_SIZE" default:"50"`
}

type ScanConfig struct {
	BaselineDays     int           `envconfig:"SCAN_BASELINE_DAYS" default:"7"`
	AutoExecuteDelay time.Duration `envconfig:"SCAN_AUTO_EXECUTE_DELAY" default:"2s"`
	NotifyTimeout    time.Duration `envconfig:"SCAN_NOTIFY_TIMEOUT" default:"10s"`
	LockTTL          time.Duration `envconfig:"SCAN_LOCK_TTL" default:"2m"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	// Periodic anomaly scan; disabled by default because scans are
	// normally triggered by an external scheduler via the API
	ScanInterval time.Duration `envconfig:"WORKER_SCAN_INTERVAL" default:"5m"`
	ScanEnabled  bool          `envconfig:"WORKER_SCAN_ENABLED" default:"false"`

	// Auto-executor worker pool for approved low-risk actions
	ExecutorWorkers int `envconfig:"WORKER_EXECUTOR_WORKERS" default:"2"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
