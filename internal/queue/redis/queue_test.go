package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, "", nil), mr
}

// TestQueueRoundTripsWireForm checks the snake_case list entries.
func TestQueueRoundTripsWireForm(t *testing.T) {
	t.Parallel()

	q, mr := newTestQueue(t)
	ctx := context.Background()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	errMsg := "HTTP 500: Internal Server Error"
	code := 500
	require.NoError(t, q.Enqueue(ctx, audit.Record{
		Success:    false,
		Error:      &errMsg,
		TeamID:     "team-1",
		CrawlID:    "job-1",
		URL:        "https://example.com/hook",
		StatusCode: &code,
		Event:      "crawl.completed",
		CreatedAt:  created,
	}))

	entries, err := mr.List(DefaultKey)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.JSONEq(t, `{
		"success": false,
		"error": "HTTP 500: Internal Server Error",
		"team_id": "team-1",
		"crawl_id": "job-1",
		"scrape_id": null,
		"url": "https://example.com/hook",
		"status_code": 500,
		"event": "crawl.completed",
		"created_at": "2025-01-02T03:04:05Z"
	}`, entries[0])

	batch, err := q.DrainBatch(ctx, audit.DefaultBatchSize)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, "job-1", batch[0].CrawlID)
	require.Nil(t, batch[0].ScrapeID)
	require.Equal(t, 500, *batch[0].StatusCode)
}

// TestQueueDrainBatchesInFIFOOrder drains 2500 records in 1000/1000/500 batches.
func TestQueueDrainBatchesInFIFOOrder(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()
	for i := range 2500 {
		require.NoError(t, q.Enqueue(ctx, audit.Record{CrawlID: fmt.Sprintf("job-%d", i)}))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2500, n)

	next := 0
	for _, want := range []int{1000, 1000, 500} {
		batch, err := q.DrainBatch(ctx, audit.DefaultBatchSize)
		require.NoError(t, err)
		require.Len(t, batch, want)
		for _, r := range batch {
			require.Equal(t, fmt.Sprintf("job-%d", next), r.CrawlID)
			next++
		}
	}

	batch, err := q.DrainBatch(ctx, audit.DefaultBatchSize)
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Empty(t, batch)
}

// TestQueueSkipsMalformedEntries ensures a bad entry does not poison a batch.
func TestQueueSkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	q, mr := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, audit.Record{CrawlID: "good-1"}))
	_, err := mr.Push(DefaultKey, "{not json")
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, audit.Record{CrawlID: "good-2"}))

	batch, err := q.DrainBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, "good-1", batch[0].CrawlID)
	require.Equal(t, "good-2", batch[1].CrawlID)
}

// TestQueueReportsConnectionErrors surfaces failures once Redis is gone.
func TestQueueReportsConnectionErrors(t *testing.T) {
	t.Parallel()

	q, mr := newTestQueue(t)
	mr.Close()
	ctx := context.Background()
	require.Error(t, q.Enqueue(ctx, audit.Record{CrawlID: "job"}))
	_, err := q.DrainBatch(ctx, 10)
	require.Error(t, err)
	_, err = q.Len(ctx)
	require.Error(t, err)
}

// TestNewPingsServer verifies New fails fast on an unreachable address.
func TestNewPingsServer(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	q, err := New(context.Background(), Config{Addr: addr, Key: "custom"}, nil)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), audit.Record{CrawlID: "x"}))
	require.True(t, mr.Exists("custom"))
	require.NoError(t, q.Close())

	mr.Close()
	_, err = New(context.Background(), Config{Addr: addr}, nil)
	require.Error(t, err)
}
