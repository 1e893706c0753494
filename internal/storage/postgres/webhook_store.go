// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
	"github.com/JakeFAU/crawl-webhooks/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultLogsTable = "webhook_logs"

var logColumns = []string{
	"success",
	"error",
	"team_id",
	"crawl_id",
	"scrape_id",
	"url",
	"status_code",
	"event",
	"created_at",
}

// WebhookStoreConfig controls the Postgres connection pool.
type WebhookStoreConfig struct {
	DSN             string
	LogsTable       string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Close()
}

// WebhookStore reads team webhook settings and bulk-inserts delivery logs.
type WebhookStore struct {
	pool  pgxPool
	table string
}

var (
	_ store.WebhookRepository = (*WebhookStore)(nil)
	_ audit.Store             = (*WebhookStore)(nil)
)

// NewWebhookStore connects to Postgres using the provided config.
func NewWebhookStore(ctx context.Context, cfg WebhookStoreConfig) (*WebhookStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWebhookStoreWithPool(pool, cfg.LogsTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWebhookStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewWebhookStoreWithPool(pool pgxPool, table string) (*WebhookStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultLogsTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &WebhookStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *WebhookStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// WebhookURL returns the first webhook registered for the team.
func (s *WebhookStore) WebhookURL(ctx context.Context, teamID string) (string, error) {
	var url string
	err := s.pool.QueryRow(ctx, `SELECT url FROM webhooks WHERE team_id = $1 LIMIT 1`, teamID).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query team webhook: %w", err)
	}
	return url, nil
}

// HMACSecret returns the team's signing secret. A NULL column reads as "".
func (s *WebhookStore) HMACSecret(ctx context.Context, teamID string) (string, error) {
	var secret string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(hmac_secret, '') FROM teams WHERE id = $1 LIMIT 1`, teamID).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query team secret: %w", err)
	}
	return secret, nil
}

// InsertWebhookLogs copies the batch into the logs table in one round trip.
func (s *WebhookStore) InsertWebhookLogs(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.Success,
			r.Error,
			r.TeamID,
			r.CrawlID,
			r.ScrapeID,
			r.URL,
			r.StatusCode,
			r.Event,
			r.CreatedAt,
		})
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.table}, logColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy webhook logs: %w", err)
	}
	if n != int64(len(records)) {
		return fmt.Errorf("copy webhook logs: wrote %d of %d rows", n, len(records))
	}
	return nil
}
