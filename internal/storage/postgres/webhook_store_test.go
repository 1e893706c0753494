package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
	"github.com/JakeFAU/crawl-webhooks/internal/store"
)

func newMockStore(t *testing.T) (*WebhookStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewWebhookStoreWithPool(mock, "")
	require.NoError(t, err)
	return s, mock
}

// TestWebhookURLReturnsFirstRow reads the team's webhook.
func TestWebhookURLReturnsFirstRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT url FROM webhooks").
		WithArgs("team-1").
		WillReturnRows(pgxmock.NewRows([]string{"url"}).AddRow("https://hooks.example.com/a"))

	url, err := s.WebhookURL(context.Background(), "team-1")
	require.NoError(t, err)
	require.Equal(t, "https://hooks.example.com/a", url)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestWebhookURLMissingRow maps no rows to ErrNotFound.
func TestWebhookURLMissingRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT url FROM webhooks").
		WithArgs("team-2").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.WebhookURL(context.Background(), "team-2")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestHMACSecretQueryErrors wraps driver failures.
func TestHMACSecretQueryErrors(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COALESCE\\(hmac_secret, ''\\) FROM teams").
		WithArgs("team-1").
		WillReturnRows(pgxmock.NewRows([]string{"hmac_secret"}).AddRow("team-secret"))
	mock.ExpectQuery("FROM teams").
		WithArgs("team-2").
		WillReturnError(errors.New("conn reset"))

	secret, err := s.HMACSecret(context.Background(), "team-1")
	require.NoError(t, err)
	require.Equal(t, "team-secret", secret)

	_, err = s.HMACSecret(context.Background(), "team-2")
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestInsertWebhookLogsCopiesBatch bulk-loads the batch.
func TestInsertWebhookLogsCopiesBatch(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectCopyFrom(pgx.Identifier{"webhook_logs"}, logColumns).WillReturnResult(2)

	now := time.Unix(1700000000, 0).UTC()
	err := s.InsertWebhookLogs(context.Background(), []audit.Record{
		{Success: true, TeamID: "t", CrawlID: "a", URL: "https://x", StatusCode: audit.IntPtr(200), Event: "crawl.page", CreatedAt: now},
		{Error: audit.StringPtr("boom"), TeamID: "t", CrawlID: "b", URL: "https://x", Event: "crawl.failed", CreatedAt: now},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestInsertWebhookLogsFailures covers copy errors and short writes.
func TestInsertWebhookLogsFailures(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectCopyFrom(pgx.Identifier{"webhook_logs"}, logColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectCopyFrom(pgx.Identifier{"webhook_logs"}, logColumns).WillReturnResult(1)

	batch := []audit.Record{{CrawlID: "a"}, {CrawlID: "b"}}
	require.Error(t, s.InsertWebhookLogs(context.Background(), batch))
	require.Error(t, s.InsertWebhookLogs(context.Background(), batch))
	require.NoError(t, s.InsertWebhookLogs(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestNewWebhookStoreValidation rejects bad inputs before connecting.
func TestNewWebhookStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWebhookStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWebhookStoreWithPool(mock, "logs; DROP TABLE teams")
	require.Error(t, err)

	_, err = NewWebhookStore(context.Background(), WebhookStoreConfig{})
	require.Error(t, err)
	_, err = NewWebhookStore(context.Background(), WebhookStoreConfig{DSN: "://bad"})
	require.Error(t, err)
}
