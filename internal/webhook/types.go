// Package webhook defines core types shared across the notification subsystem.
package webhook

import (
	"context"
	"time"
)

// EventType is the dotted "<domain>.<subtype>" tag carried by every payload.
type EventType string

// Supported job lifecycle events.
const (
	EventCrawlStarted         EventType = "crawl.started"
	EventCrawlPage            EventType = "crawl.page"
	EventCrawlCompleted       EventType = "crawl.completed"
	EventCrawlFailed          EventType = "crawl.failed"
	EventBatchScrapeStarted   EventType = "batch_scrape.started"
	EventBatchScrapePage      EventType = "batch_scrape.page"
	EventBatchScrapeCompleted EventType = "batch_scrape.completed"
	EventExtractStarted       EventType = "extract.started"
	EventExtractCompleted     EventType = "extract.completed"
	EventExtractFailed        EventType = "extract.failed"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventCrawlStarted, EventCrawlPage, EventCrawlCompleted, EventCrawlFailed,
		EventBatchScrapeStarted, EventBatchScrapePage, EventBatchScrapeCompleted,
		EventExtractStarted, EventExtractCompleted, EventExtractFailed:
		return true
	default:
		return false
	}
}

// Config is the resolved delivery target for a job.
type Config struct {
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// Events lists accepted subtypes ("started", "page", ...). Empty accepts all.
	Events []string `json:"events,omitempty"`
}

// Context carries per-job identity and delivery policy.
type Context struct {
	TeamID  string
	CrawlID string
	// ScrapeID is set per delivery, never per job.
	ScrapeID     string
	V1           bool
	Webhook      *Config
	AwaitWebhook bool
}

// Result describes the outcome of one delivery attempt.
type Result struct {
	Success    bool
	StatusCode int
	Error      string
	TimedOut   bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Deliverer performs a single signed delivery. Implementations never fail
// loudly; every outcome is reported through Result.
type Deliverer interface {
	Deliver(ctx context.Context, cfg Config, secret string, payload Payload, wctx Context) Result
}
