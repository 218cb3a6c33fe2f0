// Package config предоставляет загрузку конфигурации из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config содержит полную конфигурацию приложения.
// Каждый сервис использует свою часть; лишние секции просто игнорируются.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	API      APIConfig
	Services ServicesConfig
	Payment  PaymentConfig
	Jaeger   JaegerConfig
	Metrics  MetricsConfig
}

// AppConfig содержит общие настройки приложения.
type AppConfig struct {
	Name      string `env:"SERVICE_NAME" envDefault:"order-saga"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// PostgresConfig содержит настройки подключения к PostgreSQL.
type PostgresConfig struct {
	Host            string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port            int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User            string        `env:"POSTGRES_USER" envDefault:"postgres"`
	Password        string        `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Database        string        `env:"POSTGRES_DB" envDefault:"order_saga"`
	MinConnections  int           `env:"POSTGRES_MIN_CONNECTIONS" envDefault:"2"`
	MaxConnections  int           `env:"POSTGRES_MAX_CONNECTIONS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN возвращает строку подключения к PostgreSQL.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig содержит настройки подключения к Kafka.
// ConsumerGroup переопределяется каждым сервисом (разные группы — разные подписки).
type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"order-saga"`
}

// APIConfig содержит настройки HTTP сервера сервиса.
type APIConfig struct {
	Host  string `env:"API_HOST" envDefault:"0.0.0.0"`
	Port  int    `env:"API_PORT" envDefault:"8000"`
	Debug bool   `env:"API_DEBUG" envDefault:"false"`
}

// Addr возвращает адрес для HTTP сервера.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServicesConfig содержит базовые URL сервисов для API Gateway.
type ServicesConfig struct {
	OrderURL     string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8001"`
	PaymentURL   string `env:"PAYMENT_SERVICE_URL" envDefault:"http://localhost:8002"`
	InventoryURL string `env:"INVENTORY_SERVICE_URL" envDefault:"http://localhost:8003"`
}

// PaymentConfig содержит настройки Payment Service.
type PaymentConfig struct {
	// GatewayTimeout — ограничение на вызов платёжного шлюза.
	// По истечении таймаута платёж считается неуспешным.
	GatewayTimeout time.Duration `env:"PAYMENT_GATEWAY_TIMEOUT" envDefault:"5s"`
}

// JaegerConfig содержит настройки трассировки Jaeger.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"false"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"`
}

// OTLPEndpoint возвращает OTLP gRPC endpoint для Jaeger.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig содержит настройки Prometheus метрик.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load загружает конфигурацию из переменных окружения.
// Опционально загружает .env файл, если он существует.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// IsDevelopment возвращает true в development режиме.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true в production режиме.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
