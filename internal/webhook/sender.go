package webhook

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// SendOptions adjusts a single send.
type SendOptions struct {
	// AwaitWebhook blocks the caller until delivery finishes.
	AwaitWebhook bool
	// ScrapeID is attached to this delivery's audit record.
	ScrapeID string
}

// Factory builds per-job senders and tracks their in-flight deliveries.
type Factory struct {
	resolver  *Resolver
	deliverer Deliverer
	logger    *zap.Logger
	inflight  sync.WaitGroup
}

// NewFactory wires a factory.
func NewFactory(resolver *Resolver, deliverer Deliverer, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{resolver: resolver, deliverer: deliverer, logger: logger}
}

// Create resolves the job's webhook once. It returns nil when no webhook
// applies; callers treat nil as "nothing to do".
func (f *Factory) Create(ctx context.Context, wctx Context) *Sender {
	cfg, secret := f.resolver.Resolve(ctx, wctx.TeamID, wctx.CrawlID, wctx.Webhook)
	if cfg == nil {
		return nil
	}
	wctx.ScrapeID = ""
	return &Sender{factory: f, cfg: *cfg, secret: secret, wctx: wctx}
}

// Wait blocks until every detached delivery has finished or ctx ends.
func (f *Factory) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for webhook deliveries: %w", ctx.Err())
	}
}

// Sender delivers events for one job. It is safe for concurrent use.
type Sender struct {
	factory *Factory
	cfg     Config
	secret  string
	wctx    Context
}

// Config returns the resolved webhook config.
func (s *Sender) Config() Config {
	return s.cfg
}

// Accepts reports whether events of type t pass the job's filter.
func (s *Sender) Accepts(t EventType) bool {
	return s != nil && ShouldSend(&s.cfg, t)
}

// Send filters, shapes and delivers payload. Without await it returns
// immediately with ok=false and the delivery runs on its own; with await it
// returns the delivery result. Filtered events return a zero Result and
// ok=false without producing an audit record.
func (s *Sender) Send(ctx context.Context, payload Payload, opts SendOptions) (Result, bool) {
	if !s.Accepts(payload.Type()) {
		return Result{}, false
	}
	if s.wctx.V1 {
		payload = toV1(payload)
	}
	wctx := s.wctx
	wctx.ScrapeID = opts.ScrapeID

	done := s.dispatch(ctx, payload, wctx)
	if !opts.AwaitWebhook && !s.wctx.AwaitWebhook {
		return Result{}, false
	}
	select {
	case res := <-done:
		return res, true
	case <-ctx.Done():
		return Result{}, false
	}
}

// dispatch starts the delivery goroutine. The channel receives exactly one
// result and is never closed without a value.
func (s *Sender) dispatch(ctx context.Context, payload Payload, wctx Context) <-chan Result {
	f := s.factory
	out := make(chan Result, 1)
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("webhook delivery panicked",
					zap.Any("panic", r),
					zap.String("team_id", wctx.TeamID),
					zap.String("crawl_id", wctx.CrawlID),
					zap.String("event", string(payload.Type())),
				)
				out <- Result{Error: fmt.Sprintf("panic: %v", r)}
			}
		}()
		out <- f.deliverer.Deliver(context.WithoutCancel(ctx), s.cfg, s.secret, payload, wctx)
	}()
	return out
}

// toV1 moves jobId into id for version-1 subscribers.
func toV1(p Payload) Payload {
	env := p.envelope()
	if env.JobID == "" {
		return p
	}
	env.ID = env.JobID
	env.JobID = ""
	return p.withEnvelope(env)
}
