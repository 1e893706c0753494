// Package audit buffers webhook delivery outcomes and drains them in bounded
// batches to a persistent store, off the delivery hot path.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultBatchSize bounds how many records one drain pass writes.
const DefaultBatchSize = 1000

// Record describes one delivery attempt. It is never mutated once enqueued.
type Record struct {
	Success    bool      `json:"success"`
	Error      *string   `json:"error"`
	TeamID     string    `json:"team_id"`
	CrawlID    string    `json:"crawl_id"`
	ScrapeID   *string   `json:"scrape_id"`
	URL        string    `json:"url"`
	StatusCode *int      `json:"status_code"`
	Event      string    `json:"event"`
	CreatedAt  time.Time `json:"created_at"`
}

// Encode returns the queue wire form of r.
func Encode(r Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	return b, nil
}

// Decode parses a queue entry.
func Decode(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, fmt.Errorf("decode audit record: %w", err)
	}
	return r, nil
}

// Queue is a shared FIFO of audit records. DrainBatch must remove its records
// atomically so concurrent drains see disjoint batches.
type Queue interface {
	Enqueue(ctx context.Context, r Record) error
	DrainBatch(ctx context.Context, limit int) ([]Record, error)
	Len(ctx context.Context) (int64, error)
}

// Store persists drained batches.
type Store interface {
	InsertWebhookLogs(ctx context.Context, records []Record) error
}

// StringPtr returns nil for "" and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr returns nil for 0 and &n otherwise.
func IntPtr(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
