// Package redis implements the audit queue on a Redis list shared by every
// service instance.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
)

// DefaultKey is the list holding pending audit records.
const DefaultKey = "webhook-insert-queue"

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Queue pushes to the list tail and pops from its head.
type Queue struct {
	client goredis.UniversalClient
	key    string
	logger *zap.Logger
	owned  bool
}

var _ audit.Queue = (*Queue)(nil)

// New dials Redis and verifies the connection.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	q := NewWithClient(client, cfg.Key, logger)
	q.owned = true
	return q, nil
}

// NewWithClient wraps an existing client. An empty key uses DefaultKey.
func NewWithClient(client goredis.UniversalClient, key string, logger *zap.Logger) *Queue {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, key: key, logger: logger}
}

// Enqueue implements audit.Queue.
func (q *Queue) Enqueue(ctx context.Context, r audit.Record) error {
	b, err := audit.Encode(r)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.key, b).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", q.key, err)
	}
	return nil
}

// DrainBatch implements audit.Queue. LPOP with a count is atomic, so
// concurrent drainers never share a record. Entries that fail to decode are
// logged and skipped.
func (q *Queue) DrainBatch(ctx context.Context, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		return []audit.Record{}, nil
	}
	raw, err := q.client.LPopCount(ctx, q.key, limit).Result()
	if errors.Is(err, goredis.Nil) {
		return []audit.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lpop %s: %w", q.key, err)
	}
	out := make([]audit.Record, 0, len(raw))
	for _, entry := range raw {
		r, err := audit.Decode([]byte(entry))
		if err != nil {
			q.logger.Error("dropping malformed webhook log entry", zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Len implements audit.Queue.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.key, err)
	}
	return n, nil
}

// Close releases the client when New created it.
func (q *Queue) Close() error {
	if !q.owned {
		return nil
	}
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
