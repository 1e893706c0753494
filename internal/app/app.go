// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/api"
	"github.com/JakeFAU/crawl-webhooks/internal/audit"
	"github.com/JakeFAU/crawl-webhooks/internal/config"
	ingestpubsub "github.com/JakeFAU/crawl-webhooks/internal/ingest/pubsub"
	"github.com/JakeFAU/crawl-webhooks/internal/metrics"
	"github.com/JakeFAU/crawl-webhooks/internal/notify"
	"github.com/JakeFAU/crawl-webhooks/internal/policy/ratelimit"
	publisherpubsub "github.com/JakeFAU/crawl-webhooks/internal/publisher/pubsub"
	memoryqueue "github.com/JakeFAU/crawl-webhooks/internal/queue/memory"
	redisqueue "github.com/JakeFAU/crawl-webhooks/internal/queue/redis"
	"github.com/JakeFAU/crawl-webhooks/internal/security"
	"github.com/JakeFAU/crawl-webhooks/internal/storage/gcs"
	memorystore "github.com/JakeFAU/crawl-webhooks/internal/storage/memory"
	"github.com/JakeFAU/crawl-webhooks/internal/storage/postgres"
	"github.com/JakeFAU/crawl-webhooks/internal/store"
	"github.com/JakeFAU/crawl-webhooks/internal/telemetry"
	"github.com/JakeFAU/crawl-webhooks/internal/webhook"
)

// ErrPubSubDisabled is returned when a Pub/Sub feature is requested without a project.
var ErrPubSubDisabled = errors.New("pubsub.project_id is not configured")

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and handed to the CLI commands.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	queue      audit.Queue
	store      audit.Store
	factory    *webhook.Factory
	notifier   *notify.Notifier
	drainer    *audit.Drainer
	server     *api.Server
	subscriber *ingestpubsub.Subscriber
	pubsub     *pubsub.Client
	handler    http.Handler
	closers    []func() error
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetConfig returns the configuration the app was built from.
func (a *App) GetConfig() config.Config { return a.cfg }

// GetHandler returns the HTTP handler serving the API.
func (a *App) GetHandler() http.Handler { return a.handler }

// GetDrainer returns the audit queue drainer.
func (a *App) GetDrainer() *audit.Drainer { return a.drainer }

// GetFactory returns the sender factory, used to wait for in-flight sends.
func (a *App) GetFactory() *webhook.Factory { return a.factory }

// GetNotifier returns the job event handler.
func (a *App) GetNotifier() *notify.Notifier { return a.notifier }

// GetSubscriber returns the Pub/Sub job event subscriber, or nil when
// pubsub.subscription_id is unset.
func (a *App) GetSubscriber() *ingestpubsub.Subscriber { return a.subscriber }

// NewPublisher returns a publisher bound to topicID on the configured project.
func (a *App) NewPublisher(topicID string) (*publisherpubsub.Publisher, error) {
	if a.pubsub == nil {
		return nil, ErrPubSubDisabled
	}
	if topicID == "" {
		return nil, fmt.Errorf("topic id is required")
	}
	return publisherpubsub.New(a.pubsub.Topic(topicID)), nil
}

// New builds every service from cfg. It fails fast if any configured
// backend cannot be initialized and releases whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger.Info("initializing application services")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if a.metrics, err = metrics.New(reg); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, "crawl-webhooks", telemetry.Config{
			ProjectID:   cfg.Tracing.ProjectID,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })
	}

	if a.queue, err = a.buildQueue(ctx); err != nil {
		return nil, err
	}

	var pg *postgres.WebhookStore
	if cfg.Audit.Store == config.StorePostgres || cfg.Webhook.UseDBAuthentication {
		logger.Info("connecting to postgres")
		pg, err = postgres.NewWebhookStore(ctx, postgres.WebhookStoreConfig{
			DSN:             cfg.DB.DSN,
			LogsTable:       cfg.DB.LogsTable,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
	}

	if a.store, err = a.buildStore(ctx, pg); err != nil {
		return nil, err
	}

	var repo store.WebhookRepository
	if cfg.Webhook.UseDBAuthentication {
		repo = pg
	}

	prefixes, err := security.ParsePrefixes(cfg.Webhook.AllowedPrivateCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse allowed private cidrs: %w", err)
	}
	gate := security.NewGate(prefixes...)

	recorder := audit.NewRecorder(a.queue, a.metrics, logger.Named("audit"))
	executor := webhook.NewExecutor(gate, recorder,
		webhook.ExecutorConfig{V1Timeout: cfg.Webhook.V1Timeout, V2Timeout: cfg.Webhook.V2Timeout},
		webhook.WithLimiter(ratelimit.New(ratelimit.Config{
			PerHostRPS:   cfg.Webhook.PerHostRPS,
			PerHostBurst: cfg.Webhook.PerHostBurst,
		})),
		webhook.WithMetrics(a.metrics),
		webhook.WithLogger(logger.Named("webhook")),
	)
	resolver := webhook.NewResolver(webhook.ResolverConfig{
		UseDBAuthentication: cfg.Webhook.UseDBAuthentication,
		SelfHostedURL:       cfg.Webhook.SelfHostedURL,
		SelfHostedSecret:    cfg.Webhook.SelfHostedHMACSecret,
	}, repo, logger.Named("resolver"))
	a.factory = webhook.NewFactory(resolver, executor, logger.Named("webhook"))
	a.notifier = notify.New(a.factory, logger.Named("notify"))
	a.drainer = audit.NewDrainer(a.queue, a.store, audit.DrainerConfig{
		BatchSize: cfg.Audit.BatchSize,
		Interval:  cfg.Audit.DrainInterval,
	}, a.metrics, logger.Named("drainer"))

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	a.server = api.NewServer(a.notifier, a.queue, a.metrics, api.Options{
		APIKey:         apiKey,
		RequestTimeout: cfg.Server.RequestTimeout,
		Ready:          []api.ReadinessCheck{queueReady(a.queue)},
	}, logger.Named("api"))
	a.handler = a.server.Handler()
	if cfg.Tracing.Enabled {
		a.handler = otelhttp.NewHandler(a.handler, "crawl-webhooks-api")
	}

	if cfg.PubSub.ProjectID != "" {
		logger.Info("connecting to pubsub", zap.String("project", cfg.PubSub.ProjectID))
		a.pubsub, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		a.closers = append(a.closers, a.pubsub.Close)
		if cfg.PubSub.SubscriptionID != "" {
			a.subscriber = ingestpubsub.New(
				a.pubsub.Subscription(cfg.PubSub.SubscriptionID),
				a.notifier,
				ingestpubsub.Config{MaxOutstandingMessages: cfg.PubSub.MaxOutstandingMessages},
				logger.Named("subscriber"),
			)
		}
	}

	logger.Info("application services initialized",
		zap.String("audit_queue", cfg.Audit.Queue),
		zap.String("audit_store", cfg.Audit.Store),
		zap.Bool("db_authentication", cfg.Webhook.UseDBAuthentication),
	)
	return a, nil
}

func (a *App) buildQueue(ctx context.Context) (audit.Queue, error) {
	switch a.cfg.Audit.Queue {
	case config.QueueMemory, "":
		a.logger.Info("using in-memory audit queue")
		q := memoryqueue.NewQueue(a.cfg.Audit.MemoryCapacity)
		a.closers = append(a.closers, func() error { q.Close(); return nil })
		return q, nil
	case config.QueueRedis:
		a.logger.Info("using redis audit queue", zap.String("addr", a.cfg.Redis.Addr))
		q, err := redisqueue.New(ctx, redisqueue.Config{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			Key:      a.cfg.Redis.QueueKey,
		}, a.logger.Named("queue"))
		if err != nil {
			return nil, fmt.Errorf("init redis queue: %w", err)
		}
		a.closers = append(a.closers, q.Close)
		return q, nil
	default:
		return nil, fmt.Errorf("unknown audit queue: %s", a.cfg.Audit.Queue)
	}
}

func (a *App) buildStore(ctx context.Context, pg *postgres.WebhookStore) (audit.Store, error) {
	switch a.cfg.Audit.Store {
	case config.StoreLog, "":
		a.logger.Info("using log audit store; delivery logs are not persisted")
		return audit.NewLogStore(a.logger.Named("audit")), nil
	case config.StoreMemory:
		a.logger.Info("using in-memory audit store; delivery logs are lost on exit")
		return memorystore.NewWebhookStore(), nil
	case config.StorePostgres:
		return pg, nil
	case config.StoreGCS:
		a.logger.Info("using gcs audit archive", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		archive, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return archive, nil
	default:
		return nil, fmt.Errorf("unknown audit store: %s", a.cfg.Audit.Store)
	}
}

func queueReady(q audit.Queue) api.ReadinessCheck {
	return func(ctx context.Context) error {
		if _, err := q.Len(ctx); err != nil {
			return fmt.Errorf("audit queue: %w", err)
		}
		return nil
	}
}

// Close shuts down every opened backend in reverse order of creation.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
