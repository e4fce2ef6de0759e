package app

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config описывает настройки приложения. Значения читаются из переменных
// окружения с префиксом MARKET; локально их удобно держать в .env файле.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR"    default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	LogLevel    string `envconfig:"LOG_LEVEL"    default:"info"`

	// Пустой DatabaseURL переключает приложение на хранилище в памяти.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	KafkaBrokers     []string `envconfig:"KAFKA_BROKERS"`
	OrderEventsTopic string   `envconfig:"ORDER_EVENTS_TOPIC" default:"marketplace.order.events"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"    default:"100"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// LoadConfig загружает конфигурацию из .env (если он есть) и окружения.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("market", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment config: %w", err)
	}
	return cfg, nil
}
