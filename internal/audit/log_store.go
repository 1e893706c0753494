package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogStore writes batches to the structured log. It backs deployments
// without a database.
type LogStore struct {
	logger *zap.Logger
}

// NewLogStore returns a store that logs every record at info level.
func NewLogStore(logger *zap.Logger) *LogStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogStore{logger: logger}
}

// InsertWebhookLogs implements Store.
func (s *LogStore) InsertWebhookLogs(_ context.Context, records []Record) error {
	for _, r := range records {
		fields := []zap.Field{
			zap.Bool("success", r.Success),
			zap.String("team_id", r.TeamID),
			zap.String("crawl_id", r.CrawlID),
			zap.String("webhook_url", r.URL),
			zap.String("event", r.Event),
			zap.Time("created_at", r.CreatedAt),
		}
		if r.ScrapeID != nil {
			fields = append(fields, zap.String("scrape_id", *r.ScrapeID))
		}
		if r.StatusCode != nil {
			fields = append(fields, zap.Int("status_code", *r.StatusCode))
		}
		if r.Error != nil {
			fields = append(fields, zap.String("error", *r.Error))
		}
		s.logger.Info("webhook log", fields...)
	}
	return nil
}
