package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. SLOTCART_HTTP_ADDRESS.
const EnvPrefix = "SLOTCART"

const (
	defaultLockTTL        = 2 * time.Minute
	defaultSagaStaleAfter = 15 * time.Minute
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http" envconfig:"HTTP"`
	Database   DatabaseConfig   `yaml:"database" envconfig:"DATABASE"`
	Redis      RedisConfig      `yaml:"redis" envconfig:"REDIS"`
	Kafka      KafkaConfig      `yaml:"kafka" envconfig:"KAFKA"`
	Scheduling SchedulingConfig `yaml:"scheduling" envconfig:"SCHEDULING"`
	Coupons    CouponsConfig    `yaml:"coupons" envconfig:"COUPONS"`
	Payment    PaymentConfig    `yaml:"payment" envconfig:"PAYMENT"`
	Checkout   CheckoutConfig   `yaml:"checkout" envconfig:"CHECKOUT"`
	Worker     WorkerConfig     `yaml:"worker" envconfig:"WORKER"`
	Auth       AuthConfig       `yaml:"auth" envconfig:"AUTH"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
}

type HTTPConfig struct {
	Address string `yaml:"address" envconfig:"ADDRESS"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT"`
	User     string `yaml:"user" envconfig:"USER"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	Name     string `yaml:"name" envconfig:"NAME"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"SSL_MODE"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
}

type KafkaConfig struct {
	Brokers             []string `yaml:"brokers" envconfig:"BROKERS"`
	CheckoutEventsTopic string   `yaml:"checkout_events_topic" envconfig:"CHECKOUT_EVENTS_TOPIC"`
	NotificationsTopic  string   `yaml:"notifications_topic" envconfig:"NOTIFICATIONS_TOPIC"`
	GroupID             string   `yaml:"group_id" envconfig:"GROUP_ID"`
}

type SchedulingConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"BASE_URL"`
	APIKey         string `yaml:"api_key" envconfig:"API_KEY"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
}

type CouponsConfig struct {
	BaseURL         string `yaml:"base_url" envconfig:"BASE_URL"`
	APIKey          string `yaml:"api_key" envconfig:"API_KEY"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" envconfig:"CACHE_TTL_SECONDS"`
}

type PaymentConfig struct {
	PublicKey string `yaml:"public_key" envconfig:"PUBLIC_KEY"`
	SecretKey string `yaml:"secret_key" envconfig:"SECRET_KEY"`
	Currency  string `yaml:"currency" envconfig:"CURRENCY"`
}

type CheckoutConfig struct {
	TaxRate            string `yaml:"tax_rate" envconfig:"TAX_RATE"`
	LockTTLSeconds     int    `yaml:"lock_ttl_seconds" envconfig:"LOCK_TTL_SECONDS"`
	BookingConcurrency int    `yaml:"booking_concurrency" envconfig:"BOOKING_CONCURRENCY"`
}

// Tax parses TaxRate, falling back to 13% when unset.
func (c CheckoutConfig) Tax() (decimal.Decimal, error) {
	if c.TaxRate == "" {
		return decimal.RequireFromString("0.13"), nil
	}
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax rate %q: %w", c.TaxRate, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid tax rate %q: must not be negative", c.TaxRate)
	}
	return rate, nil
}

// LockTTL falls back to two minutes when unset.
func (c CheckoutConfig) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return defaultLockTTL
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

type WorkerConfig struct {
	ReconcileSweepMinutes int `yaml:"reconcile_sweep_minutes" envconfig:"RECONCILE_SWEEP_MINUTES"`
	SagaStaleMinutes      int `yaml:"saga_stale_minutes" envconfig:"SAGA_STALE_MINUTES"`
}

// SagaStaleAfter falls back to fifteen minutes when unset.
func (w WorkerConfig) SagaStaleAfter() time.Duration {
	if w.SagaStaleMinutes <= 0 {
		return defaultSagaStaleAfter
	}
	return time.Duration(w.SagaStaleMinutes) * time.Minute
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
}

type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	OTLPEndpoint string `yaml:"otlp_endpoint" envconfig:"OTLP_ENDPOINT"`
}

// LoadConfig reads the YAML file at path and applies SLOTCART_* environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	if _, err := cfg.Checkout.Tax(); err != nil {
		return nil, err
	}
	if stale, ttl := cfg.Worker.SagaStaleAfter(), cfg.Checkout.LockTTL(); stale <= ttl {
		return nil, fmt.Errorf("invalid saga stale window %s: must exceed the checkout lock ttl %s", stale, ttl)
	}

	return &cfg, nil
}
