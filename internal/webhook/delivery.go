package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
	"github.com/JakeFAU/crawl-webhooks/internal/clock/system"
	"github.com/JakeFAU/crawl-webhooks/internal/metrics"
	"github.com/JakeFAU/crawl-webhooks/internal/policy/ratelimit"
	"github.com/JakeFAU/crawl-webhooks/internal/security"
)

// Failure messages for requests rejected before any network call.
const (
	ErrMsgInvalidURL = "Invalid webhook URL"
	ErrMsgPrivateIP  = "Private IP address not allowed"
)

// Default per-version request timeouts.
const (
	DefaultV1Timeout = 10 * time.Second
	DefaultV2Timeout = 30 * time.Second
)

const (
	maxDrainBytes = 64 << 10
	tracerName    = "github.com/JakeFAU/crawl-webhooks/internal/webhook"
)

// Recorder receives exactly one audit record per delivery.
type Recorder interface {
	Record(ctx context.Context, r audit.Record)
}

// ExecutorConfig holds delivery timeouts. Zero values use the defaults.
type ExecutorConfig struct {
	V1Timeout time.Duration
	V2Timeout time.Duration
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithHTTPClient replaces the gate-guarded client. Tests use it to reach
// loopback servers.
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = c }
}

// WithClock sets the clock stamping audit records.
func WithClock(c Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// WithLimiter throttles requests per target host.
func WithLimiter(l *ratelimit.Limiter) ExecutorOption {
	return func(e *Executor) { e.limiter = l }
}

// WithMetrics records delivery counters.
func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithTracerProvider sets the provider for delivery spans. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(e *Executor) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Executor performs signed webhook POSTs. It implements Deliverer.
type Executor struct {
	gate     *security.Gate
	client   *http.Client
	recorder Recorder
	clock    Clock
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *zap.Logger
	cfg      ExecutorConfig
}

var _ Deliverer = (*Executor)(nil)

// NewExecutor builds an executor that checks targets against gate and
// records outcomes through recorder.
func NewExecutor(gate *security.Gate, recorder Recorder, cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	if cfg.V1Timeout <= 0 {
		cfg.V1Timeout = DefaultV1Timeout
	}
	if cfg.V2Timeout <= 0 {
		cfg.V2Timeout = DefaultV2Timeout
	}
	if gate == nil {
		gate = security.NewGate()
	}
	e := &Executor{
		gate:     gate,
		recorder: recorder,
		clock:    system.New(),
		tracer:   otel.Tracer(tracerName),
		logger:   zap.NewNop(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = gate.NewHTTPClient()
	}
	return e
}

// Timeout returns the request deadline for the given API version.
func (e *Executor) Timeout(v1 bool) time.Duration {
	if v1 {
		return e.cfg.V1Timeout
	}
	return e.cfg.V2Timeout
}

// Deliver posts payload to cfg.URL. It never panics on network faults and
// never returns an error; every outcome is in the Result and in exactly one
// audit record.
func (e *Executor) Deliver(ctx context.Context, cfg Config, secret string, payload Payload, wctx Context) Result {
	event := payload.Type()
	ctx, span := e.tracer.Start(ctx, "webhook.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("webhook.event", string(event)),
			attribute.String("webhook.team_id", wctx.TeamID),
			attribute.String("webhook.crawl_id", wctx.CrawlID),
			attribute.Bool("webhook.v1", wctx.V1),
		),
	)
	defer span.End()

	log := e.logger.With(
		zap.String("team_id", wctx.TeamID),
		zap.String("crawl_id", wctx.CrawlID),
		zap.String("webhook_url", cfg.URL),
		zap.String("event", string(event)),
	)
	if wctx.ScrapeID != "" {
		log = log.With(zap.String("scrape_id", wctx.ScrapeID))
	}

	target, err := url.Parse(cfg.URL)
	if err != nil || !target.IsAbs() || target.Hostname() == "" ||
		(target.Scheme != "http" && target.Scheme != "https") {
		log.Error("invalid webhook URL", zap.Error(err))
		return e.finish(ctx, cfg, wctx, event, metrics.ResultInvalid, 0, Result{Error: ErrMsgInvalidURL})
	}

	timeout := e.Timeout(wctx.V1)
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if e.gate.IsPrivateTarget(reqCtx, target.Hostname()) {
		log.Warn("aborting webhook call to private address")
		return e.finish(ctx, cfg, wctx, event, metrics.ResultBlocked, 0, Result{Error: ErrMsgPrivateIP})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("webhook delivery failed", zap.Error(err))
		return e.finish(ctx, cfg, wctx, event, metrics.ResultFailure, 0, Result{Error: err.Error()})
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		log.Error("invalid webhook URL", zap.Error(err))
		return e.finish(ctx, cfg, wctx, event, metrics.ResultInvalid, 0, Result{Error: ErrMsgInvalidURL})
	}
	applyHeaders(req.Header, cfg.Headers, body, secret)

	log.Debug("sending webhook request",
		zap.Strings("headers", slices.Sorted(maps.Keys(req.Header))),
		zap.Int("payload_bytes", len(body)),
		zap.Duration("timeout", timeout),
	)

	start := time.Now()
	if err := e.limiter.Wait(reqCtx, target.Hostname()); err != nil {
		return e.transportFailure(ctx, log, cfg, wctx, event, err, time.Since(start))
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return e.transportFailure(ctx, log, cfg, wctx, event, err, time.Since(start))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, statusReason(resp))
		log.Warn("webhook request failed", zap.Int("status_code", resp.StatusCode), zap.String("error", msg))
		return e.finish(ctx, cfg, wctx, event, metrics.ResultFailure, elapsed,
			Result{StatusCode: resp.StatusCode, Error: msg})
	}

	log.Info("webhook delivered", zap.Int("status_code", resp.StatusCode), zap.Duration("elapsed", elapsed))
	return e.finish(ctx, cfg, wctx, event, metrics.ResultSuccess, elapsed,
		Result{Success: true, StatusCode: resp.StatusCode})
}

func (e *Executor) transportFailure(
	ctx context.Context,
	log *zap.Logger,
	cfg Config,
	wctx Context,
	event EventType,
	err error,
	elapsed time.Duration,
) Result {
	res := Result{Error: err.Error()}
	label := metrics.ResultFailure
	if errors.Is(err, context.DeadlineExceeded) {
		res.TimedOut = true
		label = metrics.ResultTimeout
	}
	if errors.Is(err, security.ErrPrivateAddress) {
		res.Error = ErrMsgPrivateIP
		label = metrics.ResultBlocked
	}
	log.Error("webhook delivery failed", zap.Error(err), zap.Bool("timed_out", res.TimedOut))
	return e.finish(ctx, cfg, wctx, event, label, elapsed, res)
}

// finish emits the single audit record and metric for a delivery.
func (e *Executor) finish(
	ctx context.Context,
	cfg Config,
	wctx Context,
	event EventType,
	label string,
	elapsed time.Duration,
	res Result,
) Result {
	e.metrics.ObserveDelivery(string(event), label, elapsed)
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("webhook.result", label),
		attribute.Int("http.response.status_code", res.StatusCode),
	)
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	if e.recorder != nil {
		e.recorder.Record(ctx, audit.Record{
			Success:    res.Success,
			Error:      audit.StringPtr(res.Error),
			TeamID:     wctx.TeamID,
			CrawlID:    wctx.CrawlID,
			ScrapeID:   audit.StringPtr(wctx.ScrapeID),
			URL:        cfg.URL,
			StatusCode: audit.IntPtr(res.StatusCode),
			Event:      string(event),
			CreatedAt:  e.clock.Now().UTC(),
		})
	}
	return res
}

// applyHeaders merges caller headers under a fixed Content-Type and sets the
// signature last so neither can be overridden.
func applyHeaders(h http.Header, custom map[string]string, body []byte, secret string) {
	for k, v := range custom {
		canonical := http.CanonicalHeaderKey(k)
		if canonical == "Content-Type" || canonical == SignatureHeader {
			continue
		}
		h.Set(canonical, v)
	}
	h.Set("Content-Type", "application/json")
	if secret != "" {
		h.Set(SignatureHeader, SignatureValue(body, secret))
	}
}

func statusReason(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}
