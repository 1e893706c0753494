package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
	"github.com/JakeFAU/crawl-webhooks/internal/store"
)

type fakeRepo struct {
	mu        sync.Mutex
	urls      map[string]string
	secrets   map[string]string
	urlErr    error
	secretErr error
	urlCalls  int
}

func (f *fakeRepo) WebhookURL(_ context.Context, teamID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urlCalls++
	if f.urlErr != nil {
		return "", f.urlErr
	}
	u, ok := f.urls[teamID]
	if !ok {
		return "", store.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) HMACSecret(_ context.Context, teamID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.secretErr != nil {
		return "", f.secretErr
	}
	s, ok := f.secrets[teamID]
	if !ok {
		return "", store.ErrNotFound
	}
	return s, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (f *fakeRecorder) Record(_ context.Context, r audit.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
}

func (f *fakeRecorder) all() []audit.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audit.Record, len(f.records))
	copy(out, f.records)
	return out
}

type delivery struct {
	cfg     Config
	secret  string
	payload Payload
	wctx    Context
}

type fakeDeliverer struct {
	mu      sync.Mutex
	calls   []delivery
	result  Result
	delay   time.Duration
	panicky bool
}

func newFakeDeliverer(res Result) *fakeDeliverer {
	return &fakeDeliverer{result: res}
}

func (f *fakeDeliverer) Deliver(_ context.Context, cfg Config, secret string, payload Payload, wctx Context) Result {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls = append(f.calls, delivery{cfg: cfg, secret: secret, payload: payload, wctx: wctx})
	f.mu.Unlock()
	if f.panicky {
		panic("boom")
	}
	return f.result
}

func (f *fakeDeliverer) deliveries() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]delivery, len(f.calls))
	copy(out, f.calls)
	return out
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
