// Package config loads deployctl settings from a config file, a .env file
// and DEPLOYCTL_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "DEPLOYCTL"

// Config holds all configuration for deployctl.
type Config struct {
	Network   NetworkConfig   `mapstructure:"network"`
	Deployer  DeployerConfig  `mapstructure:"deployer"`
	Gas       GasConfig       `mapstructure:"gas"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Plan      PlanConfig      `mapstructure:"plan"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// NetworkConfig selects the chain to deploy to.
type NetworkConfig struct {
	Name   string `mapstructure:"name" validate:"required"`
	RPCURL string `mapstructure:"rpc_url" validate:"required,url"`
	// ChainID of zero is read from the node.
	ChainID int64 `mapstructure:"chain_id" validate:"gte=0"`
}

// DeployerConfig holds the deploying account.
type DeployerConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// GasConfig holds gas pricing settings.
type GasConfig struct {
	PriceBoostPercent  uint64 `mapstructure:"price_boost_percent" validate:"lte=1000"`
	MinPriceWei        uint64 `mapstructure:"min_price_wei"`
	LimitBufferPercent uint64 `mapstructure:"limit_buffer_percent" validate:"lte=1000"`
	FallbackLimit      uint64 `mapstructure:"fallback_limit" validate:"gt=0"`
	MaxLimit           uint64 `mapstructure:"max_limit"`
}

// ArtifactsConfig locates compiled artifacts.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// PlanConfig locates the deployment plan. An empty file selects the
// built-in plan.
type PlanConfig struct {
	File string `mapstructure:"file"`
}

// AuditConfig holds size audit settings.
type AuditConfig struct {
	ThresholdBytes int    `mapstructure:"threshold_bytes" validate:"gt=0"`
	OnMalformed    string `mapstructure:"on_malformed" validate:"oneof=abort skip"`
	Concurrency    int    `mapstructure:"concurrency" validate:"gte=0"`
}

// DatabaseConfig selects where deployment history is kept.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=none file postgres"`
	Path   string `mapstructure:"path" validate:"required_if=Driver file"`
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
}

// RedisConfig enables cross-process deployment locks when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// MetricsConfig enables pushing session metrics when PushgatewayURL is set.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"`
	Job            string `mapstructure:"job" validate:"required"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

var validate = validator.New()

// Load reads configuration into v and decodes it. Flags bound to v take
// precedence over environment variables, which take precedence over the
// config file. A .env file in the working directory is loaded first; it
// never overrides variables already set. configFile may be empty to search
// for deployctl.yaml in the usual places.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("deployctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Network defaults (local Ganache)
	v.SetDefault("network.name", "development")
	v.SetDefault("network.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("network.chain_id", 0)

	v.SetDefault("deployer.private_key", "")

	// Gas defaults
	v.SetDefault("gas.price_boost_percent", 50)
	v.SetDefault("gas.min_price_wei", 2_000_000_000)
	v.SetDefault("gas.limit_buffer_percent", 20)
	v.SetDefault("gas.fallback_limit", 10_000_000)
	v.SetDefault("gas.max_limit", 15_000_000)

	v.SetDefault("artifacts.dir", "build/contracts")
	v.SetDefault("plan.file", "")

	// Audit defaults
	v.SetDefault("audit.threshold_bytes", 24000)
	v.SetDefault("audit.on_malformed", "abort")
	v.SetDefault("audit.concurrency", 8)

	// History defaults
	v.SetDefault("database.driver", "file")
	v.SetDefault("database.path", ".deployctl/ledger.json")
	v.SetDefault("database.dsn", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10m")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "deployctl")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
