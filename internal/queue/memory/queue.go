// Package memory provides an in-process audit queue for local development
// and single-instance deployments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
)

var (
	// ErrQueueFull is returned when a bounded queue is at capacity.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("queue closed")
)

// Queue is a mutex-guarded FIFO. A capacity of zero means unbounded.
type Queue struct {
	mu       sync.Mutex
	items    []audit.Record
	capacity int
	closed   bool
}

var _ audit.Queue = (*Queue)(nil)

// NewQueue constructs a queue holding at most capacity records.
func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Enqueue appends r to the tail.
func (q *Queue) Enqueue(ctx context.Context, r audit.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, r)
	return nil
}

// DrainBatch removes up to limit records from the head.
func (q *Queue) DrainBatch(ctx context.Context, limit int) ([]audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("drain canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n := min(limit, len(q.items))
	if n <= 0 {
		return []audit.Record{}, nil
	}
	batch := make([]audit.Record, n)
	copy(batch, q.items[:n])
	clear(q.items[:n])
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return batch, nil
}

// Len reports the number of queued records.
func (q *Queue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// Close rejects further enqueues. Queued records remain drainable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
