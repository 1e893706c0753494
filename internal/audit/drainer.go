package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/metrics"
)

const finalDrainTimeout = 30 * time.Second

// DrainerConfig controls the drain cadence.
type DrainerConfig struct {
	BatchSize int
	Interval  time.Duration
}

// Drainer moves records from the queue to the store one batch at a time.
// Failed inserts are logged and dropped, never re-enqueued.
type Drainer struct {
	queue   Queue
	store   Store
	cfg     DrainerConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewDrainer builds a drainer with defaults for zero config values.
func NewDrainer(q Queue, s Store, cfg DrainerConfig, m *metrics.Metrics, logger *zap.Logger) *Drainer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drainer{queue: q, store: s, cfg: cfg, metrics: m, logger: logger}
}

// DrainOnce pops one batch and writes it. It returns the number of records
// popped; the error reports a queue or store failure after logging it.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	batch, err := d.queue.DrainBatch(ctx, d.cfg.BatchSize)
	if err != nil {
		d.logger.Error("error draining webhook log queue", zap.Error(err))
		return 0, fmt.Errorf("drain audit queue: %w", err)
	}
	d.publishLength(ctx)
	if len(batch) == 0 {
		return 0, nil
	}
	d.logger.Info("webhook inserter found jobs to insert", zap.Int("job_count", len(batch)))
	if err := d.store.InsertWebhookLogs(ctx, batch); err != nil {
		d.metrics.ObserveAuditBatch(len(batch), false)
		d.logger.Error("webhook inserter failed to insert jobs, batch lost",
			zap.Error(err),
			zap.Int("job_count", len(batch)),
		)
		return len(batch), fmt.Errorf("insert audit batch: %w", err)
	}
	d.metrics.ObserveAuditBatch(len(batch), true)
	d.logger.Info("webhook inserter inserted jobs", zap.Int("job_count", len(batch)))
	return len(batch), nil
}

// DrainAll repeats DrainOnce until a pass returns fewer than a full batch.
// Store failures do not stop the loop but the last one is returned; queue
// failures stop it.
func (d *Drainer) DrainAll(ctx context.Context) (int, error) {
	total := 0
	var insertErr error
	for {
		if err := ctx.Err(); err != nil {
			return total, errors.Join(fmt.Errorf("drain all: %w", err), insertErr)
		}
		n, err := d.DrainOnce(ctx)
		total += n
		if err != nil {
			if n == 0 {
				return total, errors.Join(err, insertErr)
			}
			insertErr = err
		}
		if n < d.cfg.BatchSize {
			return total, insertErr
		}
	}
}

// Run drains on every tick until ctx is canceled, then flushes what remains
// using a detached context.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalDrainTimeout)
			if _, err := d.DrainAll(flushCtx); err != nil {
				d.logger.Warn("final webhook log drain incomplete", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			_, _ = d.DrainOnce(ctx)
		}
	}
}

func (d *Drainer) publishLength(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	n, err := d.queue.Len(ctx)
	if err != nil {
		return
	}
	d.metrics.SetQueueLength(n)
}
