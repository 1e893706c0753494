// Package config loads and validates webhook service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crawl-webhooks/internal/security"
)

// Audit queue and store providers.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"

	StorePostgres = "postgres"
	StoreGCS      = "gcs"
	StoreLog      = "log"
	StoreMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Redis   RedisConfig   `mapstructure:"redis"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// WebhookConfig holds delivery and resolution settings.
type WebhookConfig struct {
	UseDBAuthentication  bool          `mapstructure:"use_db_authentication"`
	SelfHostedURL        string        `mapstructure:"self_hosted_url"`
	SelfHostedHMACSecret string        `mapstructure:"self_hosted_hmac_secret"`
	V1Timeout            time.Duration `mapstructure:"v1_timeout"`
	V2Timeout            time.Duration `mapstructure:"v2_timeout"`
	AllowedPrivateCIDRs  []string      `mapstructure:"allowed_private_cidrs"`
	PerHostRPS           float64       `mapstructure:"per_host_rps"`
	PerHostBurst         int           `mapstructure:"per_host_burst"`
}

// AuditConfig selects the audit queue and store.
type AuditConfig struct {
	Queue          string        `mapstructure:"queue"`
	Store          string        `mapstructure:"store"`
	BatchSize      int           `mapstructure:"batch_size"`
	DrainInterval  time.Duration `mapstructure:"drain_interval"`
	MemoryCapacity int           `mapstructure:"memory_capacity"`
}

// RedisConfig addresses the shared audit list.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	QueueKey string `mapstructure:"queue_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	LogsTable       string        `mapstructure:"logs_table"`
}

// StorageConfig sets the bucket used to archive audit batches.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds the job event subscription.
type PubSubConfig struct {
	ProjectID              string `mapstructure:"project_id"`
	SubscriptionID         string `mapstructure:"subscription_id"`
	TopicID                string `mapstructure:"topic_id"`
	MaxOutstandingMessages int    `mapstructure:"max_outstanding_messages"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// legacyEnv maps keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"webhook.use_db_authentication":   "USE_DB_AUTHENTICATION",
	"webhook.self_hosted_url":         "SELF_HOSTED_WEBHOOK_URL",
	"webhook.self_hosted_hmac_secret": "SELF_HOSTED_WEBHOOK_HMAC_SECRET",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBHOOKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "WEBHOOKS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 35*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("webhook.use_db_authentication", false)
	v.SetDefault("webhook.v1_timeout", 10*time.Second)
	v.SetDefault("webhook.v2_timeout", 30*time.Second)
	v.SetDefault("webhook.allowed_private_cidrs", []string{})
	v.SetDefault("webhook.per_host_rps", 0)
	v.SetDefault("webhook.per_host_burst", 1)
	v.SetDefault("audit.queue", QueueMemory)
	v.SetDefault("audit.store", StoreLog)
	v.SetDefault("audit.batch_size", 1000)
	v.SetDefault("audit.drain_interval", time.Second)
	v.SetDefault("audit.memory_capacity", 0)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue_key", "webhook-insert-queue")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("db.logs_table", "webhook_logs")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "webhook-logs")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.subscription_id", "")
	v.SetDefault("pubsub.topic_id", "")
	v.SetDefault("pubsub.max_outstanding_messages", 100)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Webhook.V1Timeout <= 0 || c.Webhook.V2Timeout <= 0 {
		return fmt.Errorf("webhook.v1_timeout and webhook.v2_timeout must be > 0")
	}
	if _, err := security.ParsePrefixes(c.Webhook.AllowedPrivateCIDRs); err != nil {
		return fmt.Errorf("webhook.allowed_private_cidrs: %w", err)
	}
	if c.Audit.BatchSize <= 0 {
		return fmt.Errorf("audit.batch_size must be > 0")
	}
	if c.Audit.DrainInterval <= 0 {
		return fmt.Errorf("audit.drain_interval must be > 0")
	}
	switch c.Audit.Queue {
	case QueueMemory:
	case QueueRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set when audit.queue is redis")
		}
	default:
		return fmt.Errorf("audit.queue must be one of memory, redis; got %q", c.Audit.Queue)
	}
	switch c.Audit.Store {
	case StoreLog, StoreMemory:
	case StorePostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when audit.store is postgres")
		}
	case StoreGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when audit.store is gcs")
		}
	default:
		return fmt.Errorf("audit.store must be one of postgres, gcs, log, memory; got %q", c.Audit.Store)
	}
	if c.Webhook.UseDBAuthentication && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when webhook.use_db_authentication is enabled")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.PubSub.SubscriptionID != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.subscription_id is set")
	}
	return nil
}
