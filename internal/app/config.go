package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/autosales/internal/service/saga"
)

// EnvPrefix — префикс переменных окружения сервиса.
const EnvPrefix = "autosales"

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	ExecutionStoreMemory = "memory"
	ExecutionStoreRedis  = "redis"

	EventBrokerNone  = "none"
	EventBrokerKafka = "kafka"
	EventBrokerNATS  = "nats"
)

// Config содержит настройки запуска, читается из AUTOSALES_*.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr    string `envconfig:"GRPC_ADDR" default:":50051"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER" default:"memory"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE" default:"true"`

	ExecutionStore string        `envconfig:"EXECUTION_STORE" default:"memory"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	ExecutionTTL   time.Duration `envconfig:"EXECUTION_TTL" default:"24h"`

	EventBroker         string   `envconfig:"EVENT_BROKER" default:"none"`
	KafkaBrokers        []string `envconfig:"KAFKA_BROKERS"`
	KafkaEventsTopic    string   `envconfig:"KAFKA_EVENTS_TOPIC"`
	KafkaCallbacksTopic string   `envconfig:"KAFKA_CALLBACKS_TOPIC"`
	KafkaConsumerGroup  string   `envconfig:"KAFKA_CONSUMER_GROUP" default:"autosales-payments"`
	NATSURL             string   `envconfig:"NATS_URL"`

	ReservationTTLMinutes int           `envconfig:"RESERVATION_TTL_MINUTES" default:"15"`
	MaxPaymentChecks      int           `envconfig:"MAX_PAYMENT_CHECKS" default:"6"`
	PaymentPollInterval   time.Duration `envconfig:"PAYMENT_POLL_INTERVAL" default:"10s"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"3"`
	// Отправленные и проваленные записи старше OutboxRetention удаляются.
	OutboxRetention       time.Duration `envconfig:"OUTBOX_RETENTION" default:"72h"`
	OutboxCleanupInterval time.Duration `envconfig:"OUTBOX_CLEANUP_INTERVAL" default:"10m"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DefaultConfig возвращает настройки по умолчанию без чтения окружения.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:              ":8080",
		GRPCAddr:              ":50051",
		MetricsAddr:           ":9090",
		LogLevel:              "info",
		StorageDriver:         StorageDriverMemory,
		PostgresAutoMigrate:   true,
		ExecutionStore:        ExecutionStoreMemory,
		RedisAddr:             "localhost:6379",
		ExecutionTTL:          24 * time.Hour,
		EventBroker:           EventBrokerNone,
		KafkaConsumerGroup:    "autosales-payments",
		ReservationTTLMinutes: 15,
		MaxPaymentChecks:      saga.DefaultMaxPaymentChecks,
		PaymentPollInterval:   saga.DefaultPaymentPollInterval,
		OutboxPollInterval:    time.Second,
		OutboxBatchSize:       100,
		OutboxMaxAttempts:     3,
		OutboxRetention:       72 * time.Hour,
		OutboxCleanupInterval: 10 * time.Minute,
		ShutdownTimeout:       30 * time.Second,
	}
}

// LoadConfig читает окружение и проверяет результат.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность драйверов и их параметров.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres storage requires AUTOSALES_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.ExecutionStore {
	case ExecutionStoreMemory, ExecutionStoreRedis:
	default:
		return fmt.Errorf("unsupported execution store %q", c.ExecutionStore)
	}

	switch c.EventBroker {
	case EventBrokerNone:
	case EventBrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka broker requires AUTOSALES_KAFKA_BROKERS")
		}
	case EventBrokerNATS:
		if strings.TrimSpace(c.NATSURL) == "" {
			return fmt.Errorf("nats broker requires AUTOSALES_NATS_URL")
		}
	default:
		return fmt.Errorf("unsupported event broker %q", c.EventBroker)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// SagaConfig переносит параметры саги в конфигурацию шагов.
func (c Config) SagaConfig() saga.Config {
	cfg := saga.DefaultConfig()
	cfg.ReservationTTLMinutes = c.ReservationTTLMinutes
	cfg.MaxPaymentChecks = c.MaxPaymentChecks
	cfg.PaymentPollInterval = c.PaymentPollInterval
	return cfg
}

func (c Config) eventsTopic() string {
	if c.KafkaEventsTopic != "" {
		return c.KafkaEventsTopic
	}
	return kafka.TopicSaleEvents
}

func (c Config) callbacksTopic() string {
	if c.KafkaCallbacksTopic != "" {
		return c.KafkaCallbacksTopic
	}
	return kafka.TopicPaymentCallbacks
}

// NewLogger настраивает logrus по уровню из конфигурации.
func NewLogger(level string) *log.Logger {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if parsed, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	}
	return logger
}
