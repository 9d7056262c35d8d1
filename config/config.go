package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Engine     EngineConfig     `yaml:"engine"`
	Identity   IdentityConfig   `yaml:"identity"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Payment    PaymentConfig    `yaml:"payment"`
	Lock       LockConfig       `yaml:"lock"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port" validate:"gt=0,lte=65535"`
	OperatorHeader  string  `yaml:"operator_header" validate:"required"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" validate:"gte=0"`
	RateLimitBurst  int     `yaml:"rate_limit_burst" validate:"gte=0"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" validate:"oneof=postgres sqlite"`
	DSN                    string `yaml:"dsn" validate:"required"`
	MaxOpenConns           int    `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns           int    `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" validate:"gte=0"`
	LogLevel               string `yaml:"log_level" validate:"omitempty,oneof=silent error warn info"`
}

// EngineConfig is the stay lifecycle policy.
type EngineConfig struct {
	TaxRate                    *float64 `yaml:"tax_rate" validate:"omitempty,gte=0,lte=1"`
	CurrencyPlaces             int32    `yaml:"currency_places" validate:"gte=0,lte=4"`
	InventoryTimeoutMs         int      `yaml:"inventory_timeout_ms" validate:"gte=0"`
	PaymentTimeoutMs           int      `yaml:"payment_timeout_ms" validate:"gte=0"`
	AllowIdentityOverride      bool     `yaml:"allow_identity_override"`
	UpgradeMinimumExtraDeposit string   `yaml:"upgrade_minimum_extra_deposit" validate:"omitempty,numeric"`
	ReservationCacheTTLSeconds int      `yaml:"reservation_cache_ttl_seconds" validate:"gte=0"`

	InventoryTimeout    time.Duration `yaml:"-"`
	PaymentTimeout      time.Duration `yaml:"-"`
	ReservationCacheTTL time.Duration `yaml:"-"`
}

// IdentityConfig holds the document rules and the face match threshold.
type IdentityConfig struct {
	DocumentPatterns map[string]string `yaml:"document_patterns"`
	MatchThreshold   *float64          `yaml:"match_threshold" validate:"omitempty,gte=0,lte=100"`
	TimeoutMs        int               `yaml:"timeout_ms" validate:"gte=0"`
	Timeout          time.Duration     `yaml:"-"`
}

// OracleConfig describes the identity oracle endpoint.
type OracleConfig struct {
	URL       string            `yaml:"url" validate:"required,url"`
	Headers   map[string]string `yaml:"headers"`
	HTTPProxy string            `yaml:"http_proxy" validate:"omitempty,url"`
}

// PaymentConfig identifies the desk terminal recording payments.
type PaymentConfig struct {
	TerminalID string `yaml:"terminal_id" validate:"required"`
}

// LockConfig selects the per-stay lock implementation.
type LockConfig struct {
	Driver        string        `yaml:"driver" validate:"oneof=local redis"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
	TTLSeconds    int           `yaml:"ttl_seconds" validate:"gte=0"`
	TTL           time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// Load reads the configuration from the given path, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.OperatorHeader == "" {
		cfg.Server.OperatorHeader = "X-Operator-ID"
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 10
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Engine.TaxRate == nil {
		rate := 0.08
		cfg.Engine.TaxRate = &rate
	}
	if cfg.Engine.InventoryTimeoutMs <= 0 {
		cfg.Engine.InventoryTimeoutMs = 3000
	}
	if cfg.Engine.PaymentTimeoutMs <= 0 {
		cfg.Engine.PaymentTimeoutMs = 10000
	}
	if cfg.Engine.ReservationCacheTTLSeconds <= 0 {
		cfg.Engine.ReservationCacheTTLSeconds = 60
	}
	cfg.Engine.InventoryTimeout = time.Duration(cfg.Engine.InventoryTimeoutMs) * time.Millisecond
	cfg.Engine.PaymentTimeout = time.Duration(cfg.Engine.PaymentTimeoutMs) * time.Millisecond
	cfg.Engine.ReservationCacheTTL = time.Duration(cfg.Engine.ReservationCacheTTLSeconds) * time.Second

	if cfg.Identity.MatchThreshold == nil {
		threshold := 80.0
		cfg.Identity.MatchThreshold = &threshold
	}
	if cfg.Identity.TimeoutMs <= 0 {
		cfg.Identity.TimeoutMs = 5000
	}
	cfg.Identity.Timeout = time.Duration(cfg.Identity.TimeoutMs) * time.Millisecond

	if cfg.Lock.Driver == "" {
		cfg.Lock.Driver = "local"
	}
	if cfg.Lock.TTLSeconds <= 0 {
		cfg.Lock.TTLSeconds = 30
	}
	cfg.Lock.TTL = time.Duration(cfg.Lock.TTLSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		logrus.Warn("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks field constraints.
func (cfg *Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Rate returns the tax rate as a decimal.
func (e EngineConfig) Rate() decimal.Decimal {
	if e.TaxRate == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*e.TaxRate)
}

// MinimumExtraDeposit returns the upgrade deposit floor, zero when unset.
func (e EngineConfig) MinimumExtraDeposit() decimal.Decimal {
	if e.UpgradeMinimumExtraDeposit == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(e.UpgradeMinimumExtraDeposit)
}
