// Package config loads and validates the service configuration. Values come
// from config.yaml plus LEDGER_-prefixed environment variables; a local .env
// file is folded into the environment when present.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Nats       NatsConfig       `mapstructure:"nats" validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Settlement SettlementConfig `mapstructure:"settlement" validate:"required"`
	Refund     RefundConfig     `mapstructure:"refund" validate:"required"`
	Ledger     LedgerConfig     `mapstructure:"ledger" validate:"required"`
	Jobs       JobsConfig       `mapstructure:"jobs" validate:"required"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig covers the observability HTTP listener.
type ServerConfig struct {
	MetricsAddr     string        `mapstructure:"metrics_addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig covers PostgreSQL.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	Name            string        `mapstructure:"name" validate:"required"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`
	MaxConns        int32         `mapstructure:"max_conns" validate:"gt=0"`
	MinConns        int32         `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" validate:"gt=0"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time" validate:"gt=0"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
}

// NatsConfig covers the event broker.
type NatsConfig struct {
	URL           string        `mapstructure:"url" validate:"required"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" validate:"gt=0"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// RedisConfig covers the balance cache. Disabled when Addr is empty.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// Enabled reports whether the cache should be wired.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// SettlementConfig covers payout pricing and the refund reserve.
type SettlementConfig struct {
	CommissionRate  float64 `mapstructure:"commission_rate" validate:"gte=0,lte=1"`
	MinAmount       int64   `mapstructure:"min_amount" validate:"gte=0"`
	ReserveRate     float64 `mapstructure:"reserve_rate" validate:"gte=0,lte=1"`
	ReserveHoldDays int     `mapstructure:"reserve_hold_days" validate:"gte=0"`
	ReserveSource   string  `mapstructure:"reserve_source" validate:"oneof=merchant escrow"`
}

// RefundConfig covers refund windows.
type RefundConfig struct {
	WindowDays          int `mapstructure:"window_days" validate:"gt=0"`
	PendingFundsTTLDays int `mapstructure:"pending_funds_ttl_days" validate:"gt=0"`
}

// LedgerConfig covers hold ageing and tier rotation.
type LedgerConfig struct {
	HoldAgeDays      int `mapstructure:"hold_age_days" validate:"gt=0"`
	ArchiveAfterDays int `mapstructure:"archive_after_days" validate:"gt=0"`
	SweepBatchSize   int `mapstructure:"sweep_batch_size" validate:"gt=0"`
	SnapshotWallets  int `mapstructure:"snapshot_wallets" validate:"gt=0"`
	SnapshotEntries  int `mapstructure:"snapshot_entries" validate:"gt=0"`
}

// JobsConfig holds the cron expressions for the background sweeps.
type JobsConfig struct {
	StaleGroupSpec     string `mapstructure:"stale_group_spec" validate:"required"`
	PendingFundsSpec   string `mapstructure:"pending_funds_spec" validate:"required"`
	RefundExpirySpec   string `mapstructure:"refund_expiry_spec" validate:"required"`
	ReserveReleaseSpec string `mapstructure:"reserve_release_spec" validate:"required"`
	SnapshotSpec       string `mapstructure:"snapshot_spec" validate:"required"`
	ArchiveSpec        string `mapstructure:"archive_spec" validate:"required"`
	ReconcileSpec      string `mapstructure:"reconcile_spec" validate:"required"`
	OutboxRelaySpec    string `mapstructure:"outbox_relay_spec" validate:"required"`
	OutboxBatchSize    int    `mapstructure:"outbox_batch_size" validate:"gt=0"`
}

// LoggingConfig covers slog.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// Load reads the configuration from path (a directory holding config.yaml)
// and the environment.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env just means the environment is already set.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Defaults plus environment are enough to run.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "ledgercore")
	v.SetDefault("database.user", "ledgercore")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "15m")
	v.SetDefault("database.connect_timeout", "5s")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "ledgercore")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")

	v.SetDefault("redis.db", 0)

	v.SetDefault("settlement.commission_rate", 0.03)
	v.SetDefault("settlement.min_amount", 1000)
	v.SetDefault("settlement.reserve_rate", 0.05)
	v.SetDefault("settlement.reserve_hold_days", 90)
	v.SetDefault("settlement.reserve_source", "merchant")

	v.SetDefault("refund.window_days", 180)
	v.SetDefault("refund.pending_funds_ttl_days", 30)

	v.SetDefault("ledger.hold_age_days", 7)
	v.SetDefault("ledger.archive_after_days", 365)
	v.SetDefault("ledger.sweep_batch_size", 100)
	v.SetDefault("ledger.snapshot_wallets", 50)
	v.SetDefault("ledger.snapshot_entries", 1000)

	v.SetDefault("jobs.stale_group_spec", "0 * * * *")
	v.SetDefault("jobs.pending_funds_spec", "*/15 * * * *")
	v.SetDefault("jobs.refund_expiry_spec", "30 0 * * *")
	v.SetDefault("jobs.reserve_release_spec", "0 1 * * *")
	v.SetDefault("jobs.snapshot_spec", "0 2 * * *")
	v.SetDefault("jobs.archive_spec", "0 3 * * 0")
	v.SetDefault("jobs.reconcile_spec", "0 4 * * *")
	v.SetDefault("jobs.outbox_relay_spec", "@every 5s")
	v.SetDefault("jobs.outbox_batch_size", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
