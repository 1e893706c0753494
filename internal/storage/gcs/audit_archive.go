// Package gcs archives webhook delivery logs to Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// AuditArchive writes each drained batch as one NDJSON object.
type AuditArchive struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
}

var _ audit.Store = (*AuditArchive)(nil)

// New creates a GCS-backed audit archive.
func New(client *storage.Client, cfg Config) (*AuditArchive, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &AuditArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    time.Now,
	}, nil
}

// ObjectName builds prefix/YYYY/MM/DD/<unix-nanos>-<uuid>.ndjson.
func (a *AuditArchive) ObjectName(at time.Time) string {
	at = at.UTC()
	name := fmt.Sprintf("%s/%d-%s.ndjson", at.Format("2006/01/02"), at.UnixNano(), uuid.NewString())
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// InsertWebhookLogs implements audit.Store.
func (a *AuditArchive) InsertWebhookLogs(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	name := a.ObjectName(a.now())
	writer := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/x-ndjson"
	enc := json.NewEncoder(writer)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			closeErr := writer.Close()
			if closeErr != nil {
				return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
			}
			return fmt.Errorf("write object: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
