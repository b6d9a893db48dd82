// Package config loads service configuration from an optional yaml file with
// environment-variable overrides, so deployments can run file-less.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Rules    RulesConfig    `mapstructure:"rules"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes the PostgreSQL connection. Empty URL means the
// server runs on in-memory stores (development mode).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig describes the criteria-cache connection. Empty URL disables the
// cache.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	CriteriaTTL  time.Duration `mapstructure:"criteria_ttl"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig describes the audit relay. Empty brokers disables shipping; the
// outbox still accumulates.
type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// AuthConfig holds the shared key used to validate session-provider tokens.
type AuthConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
}

// LedgerConfig tunes decision ledger behavior.
type LedgerConfig struct {
	// RecentLimit caps recency listings.
	RecentLimit int `mapstructure:"recent_limit"`
}

// RulesConfig tunes the composite rule engine.
type RulesConfig struct {
	// LegacyVacuousFields restores the pre-registry behavior where a
	// condition on an unresolvable field evaluates to true. Off by default.
	LegacyVacuousFields bool `mapstructure:"legacy_vacuous_fields"`
}

// Load builds the configuration, merging file values and environment
// variables. CUSTOS_SERVER_ADDR overrides server.addr, and so on.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("custos")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No file is fine; env and defaults cover development.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.max_conns", 25)

	v.SetDefault("redis.criteria_ttl", 5*time.Minute)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.flush_interval", time.Second)

	// Development-only default; override in any real deployment.
	v.SetDefault("auth.jwt_signing_key", "dev-secret-key-change-in-production")

	v.SetDefault("ledger.recent_limit", 100)
	v.SetDefault("rules.legacy_vacuous_fields", false)
}
