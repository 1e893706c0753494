package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/metrics"
)

// Recorder enqueues records on behalf of the delivery path. It never
// returns an error; failures are logged and counted.
type Recorder struct {
	queue   Queue
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewRecorder wraps q. m may be nil.
func NewRecorder(q Queue, m *metrics.Metrics, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{queue: q, metrics: m, logger: logger}
}

// Record enqueues r, swallowing any failure.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if r == nil || r.queue == nil {
		return
	}
	if err := r.queue.Enqueue(context.WithoutCancel(ctx), rec); err != nil {
		r.metrics.IncEnqueueFailure()
		r.logger.Error("error logging webhook",
			zap.Error(err),
			zap.String("team_id", rec.TeamID),
			zap.String("crawl_id", rec.CrawlID),
			zap.String("event", rec.Event),
		)
	}
}
