package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLoadDefaults produces a runnable local configuration.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 10*time.Second, cfg.Webhook.V1Timeout)
	require.Equal(t, 30*time.Second, cfg.Webhook.V2Timeout)
	require.Equal(t, QueueMemory, cfg.Audit.Queue)
	require.Equal(t, StoreLog, cfg.Audit.Store)
	require.Equal(t, 1000, cfg.Audit.BatchSize)
	require.Equal(t, time.Second, cfg.Audit.DrainInterval)
	require.Equal(t, "webhook-insert-queue", cfg.Redis.QueueKey)
	require.Equal(t, "webhook_logs", cfg.DB.LogsTable)
	require.False(t, cfg.Webhook.UseDBAuthentication)
	require.False(t, cfg.Tracing.Enabled)
	require.InDelta(t, 1.0, cfg.Tracing.SampleRatio, 0.0001)
}

// TestLoadWithFileOverrides reads a YAML file.
func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
webhook:
  use_db_authentication: true
  self_hosted_url: https://hooks.internal/{{JOB_ID}}
  v1_timeout: 5s
  allowed_private_cidrs: ["10.0.0.0/8"]
  per_host_rps: 20
audit:
  queue: redis
  store: postgres
  batch_size: 500
  drain_interval: 2s
redis:
  addr: redis:6379
db:
  dsn: postgres://user:pass@db:5432/app
  max_conns: 8
storage:
  gcs_bucket: audit
pubsub:
  project_id: proj
  subscription_id: job-events-webhooks
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.False(t, cfg.Logging.Development)
	require.True(t, cfg.Webhook.UseDBAuthentication)
	require.Equal(t, "https://hooks.internal/{{JOB_ID}}", cfg.Webhook.SelfHostedURL)
	require.Equal(t, 5*time.Second, cfg.Webhook.V1Timeout)
	require.Equal(t, 30*time.Second, cfg.Webhook.V2Timeout)
	require.Equal(t, []string{"10.0.0.0/8"}, cfg.Webhook.AllowedPrivateCIDRs)
	require.InDelta(t, 20, cfg.Webhook.PerHostRPS, 0.001)
	require.Equal(t, QueueRedis, cfg.Audit.Queue)
	require.Equal(t, StorePostgres, cfg.Audit.Store)
	require.Equal(t, 500, cfg.Audit.BatchSize)
	require.Equal(t, 2*time.Second, cfg.Audit.DrainInterval)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.EqualValues(t, 8, cfg.DB.MaxConns)
	require.Equal(t, "job-events-webhooks", cfg.PubSub.SubscriptionID)
}

// TestLoadLegacyEnvironment honors the unprefixed operator variables.
func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("USE_DB_AUTHENTICATION", "true")
	t.Setenv("SELF_HOSTED_WEBHOOK_URL", "https://self/{{JOB_ID}}")
	t.Setenv("SELF_HOSTED_WEBHOOK_HMAC_SECRET", "legacy-secret")
	t.Setenv("WEBHOOKS_DB_DSN", "postgres://localhost/app")

	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.Webhook.UseDBAuthentication)
	require.Equal(t, "https://self/{{JOB_ID}}", cfg.Webhook.SelfHostedURL)
	require.Equal(t, "legacy-secret", cfg.Webhook.SelfHostedHMACSecret)
}

// TestLoadPrefixedEnvironmentWins prefers the namespaced variable.
func TestLoadPrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("SELF_HOSTED_WEBHOOK_HMAC_SECRET", "legacy")
	t.Setenv("WEBHOOKS_WEBHOOK_SELF_HOSTED_HMAC_SECRET", "prefixed")
	t.Setenv("WEBHOOKS_AUDIT_BATCH_SIZE", "250")
	t.Setenv("WEBHOOKS_WEBHOOK_V2_TIMEOUT", "45s")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "prefixed", cfg.Webhook.SelfHostedHMACSecret)
	require.Equal(t, 250, cfg.Audit.BatchSize)
	require.Equal(t, 45*time.Second, cfg.Webhook.V2Timeout)
}

// TestLoadMissingFile surfaces read errors.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// TestConfigValidateErrors names the offending key.
func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Webhook: WebhookConfig{V1Timeout: time.Second, V2Timeout: time.Second},
		Audit:   AuditConfig{Queue: QueueMemory, Store: StoreLog, BatchSize: 1000, DrainInterval: time.Second},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"zero timeout", func(c *Config) { c.Webhook.V1Timeout = 0 }, "webhook.v1_timeout"},
		{"bad cidr", func(c *Config) { c.Webhook.AllowedPrivateCIDRs = []string{"nope"} }, "allowed_private_cidrs"},
		{"zero batch", func(c *Config) { c.Audit.BatchSize = 0 }, "audit.batch_size"},
		{"zero interval", func(c *Config) { c.Audit.DrainInterval = 0 }, "audit.drain_interval"},
		{"unknown queue", func(c *Config) { c.Audit.Queue = "kafka" }, "audit.queue"},
		{"redis without addr", func(c *Config) { c.Audit.Queue = QueueRedis }, "redis.addr"},
		{"unknown store", func(c *Config) { c.Audit.Store = "s3" }, "audit.store"},
		{"postgres without dsn", func(c *Config) { c.Audit.Store = StorePostgres }, "db.dsn"},
		{"gcs without bucket", func(c *Config) { c.Audit.Store = StoreGCS }, "storage.gcs_bucket"},
		{"db auth without dsn", func(c *Config) { c.Webhook.UseDBAuthentication = true }, "db.dsn"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "tracing.sample_ratio"},
		{"subscription without project", func(c *Config) { c.PubSub.SubscriptionID = "s" }, "pubsub.project_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tc.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
