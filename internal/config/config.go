// Package config loads and validates the processing engine's runtime
// configuration (spec §6.3). It keeps the teacher's viper-based load/validate
// shape (pkg/config.Load → unmarshal → validateConfig) but replaces the
// benchmark-tool schema with the engine's own options, and adds struct-tag
// validation via go-playground/validator the way the rest of the pack does
// it (ternarybob-quaero's config layer).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// OutputTarget selects which destinations the Batch Adapter writes.
type OutputTarget string

const (
	OutputStaging   OutputTarget = "staging"
	OutputProcessed OutputTarget = "processed"
	OutputBoth      OutputTarget = "both"
)

// DatabaseConfig holds Postgres connection settings (spec §6.3 Postgres options).
type DatabaseConfig struct {
	Host              string        `mapstructure:"host" validate:"required"`
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	DB                string        `mapstructure:"db" validate:"required"`
	User              string        `mapstructure:"user" validate:"required"`
	Password          string        `mapstructure:"password"`
	SSL               string        `mapstructure:"ssl" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	PoolSize          int           `mapstructure:"pool_size" validate:"min=1"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
}

// WebhookConfig holds the Webhook Dispatcher's outbound settings (spec §4.6).
type WebhookConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"min=0"`
}

// Config is the engine's complete runtime configuration.
type Config struct {
	OutputTarget     OutputTarget  `mapstructure:"output_target" validate:"required,oneof=staging processed both"`
	BatchSize        int           `mapstructure:"batch_size" validate:"required,min=1,max=10000"`
	SchemaVersion    string        `mapstructure:"schema_version" validate:"required"`
	EnforceStructure bool          `mapstructure:"enforce_structure"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	ListenAddr       string        `mapstructure:"listen_addr"`
	LogLevel         string        `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogRedactRaw     bool          `mapstructure:"log_redact_raw"`
	CheckpointDir    string        `mapstructure:"checkpoint_dir"`

	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
}

var knownShopTypes = map[string]bool{
	"ah": true, "jumbo": true, "aldi": true, "plus": true, "kruidvat": true,
}

// ValidShopType reports whether shopType is one of the five recognized shops.
func ValidShopType(shopType string) bool {
	return knownShopTypes[shopType]
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("output_target", string(OutputBoth))
	v.SetDefault("batch_size", 100)
	v.SetDefault("schema_version", "1.0.0")
	v.SetDefault("enforce_structure", false)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_redact_raw", false)
	v.SetDefault("checkpoint_dir", "")

	v.SetDefault("webhook.timeout", 5*time.Second)
	v.SetDefault("webhook.retry_attempts", 3)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl", "disable")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connection_timeout", 10*time.Second)
	v.SetDefault("database.idle_timeout", 5*time.Minute)
}

// envBindings maps spec §6.3's flat environment variable names onto the
// nested config keys. No env prefix is set, so the names are read exactly
// as listed here.
var envBindings = map[string]string{
	"OUTPUT_TARGET":          "output_target",
	"BATCH_SIZE":             "batch_size",
	"SCHEMA_VERSION":         "schema_version",
	"ENFORCE_STRUCTURE":      "enforce_structure",
	"REQUEST_TIMEOUT":        "request_timeout",
	"LISTEN_ADDR":            "listen_addr",
	"WEBHOOK_BASE_URL":       "webhook.base_url",
	"WEBHOOK_TIMEOUT":        "webhook.timeout",
	"WEBHOOK_RETRY_ATTEMPTS": "webhook.retry_attempts",
	"LOG_LEVEL":              "log_level",
	"LOG_REDACT_RAW":         "log_redact_raw",
	"CHECKPOINT_DIR":         "checkpoint_dir",
	"POSTGRES_HOST":          "database.host",
	"POSTGRES_PORT":          "database.port",
	"POSTGRES_DB":            "database.db",
	"POSTGRES_USER":          "database.user",
	"POSTGRES_PASSWORD":      "database.password",
	"POSTGRES_SSL":           "database.ssl",
	"POSTGRES_POOL_SIZE":     "database.pool_size",
	"POSTGRES_CONNECTION_TIMEOUT": "database.connection_timeout",
	"POSTGRES_IDLE_TIMEOUT":       "database.idle_timeout",
}

// Load reads configuration from an optional file plus environment variables
// (spec §6.3) and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	for env, key := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", env, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New()

// validateConfig runs struct-tag validation and the cross-field checks tags
// alone cannot express.
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Webhook.BaseURL != "" && cfg.Webhook.Timeout <= 0 {
		return fmt.Errorf("webhook.timeout must be positive when webhook.base_url is set")
	}
	return nil
}
