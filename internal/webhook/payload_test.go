package webhook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPayloadWireShapes checks the data field of each variant family.
func TestPayloadWireShapes(t *testing.T) {
	t.Parallel()

	env := Envelope{Success: true, JobID: "job-1"}
	doc := Document{Content: "hello", Markdown: "# hello", Metadata: map[string]any{"sourceURL": "https://example.com"}}

	cases := []struct {
		name    string
		payload Payload
		want    string
	}{
		{
			name:    "started",
			payload: CrawlStarted{Envelope: env},
			want:    `{"success":true,"type":"crawl.started","jobId":"job-1","data":[]}`,
		},
		{
			name:    "page",
			payload: CrawlPage{Envelope: env, Data: []Document{doc}},
			want: `{"success":true,"type":"crawl.page","jobId":"job-1","data":[
				{"content":"hello","markdown":"# hello","metadata":{"sourceURL":"https://example.com"}}]}`,
		},
		{
			name:    "page with nil data",
			payload: BatchScrapePage{Envelope: env, Error: "blocked"},
			want:    `{"success":true,"type":"batch_scrape.page","jobId":"job-1","data":[],"error":"blocked"}`,
		},
		{
			name:    "completed links",
			payload: CrawlCompleted{Envelope: env, Data: []DocumentLink{{Content: doc, Source: "https://example.com"}}},
			want: `{"success":true,"type":"crawl.completed","jobId":"job-1","data":[
				{"content":{"content":"hello","markdown":"# hello","metadata":{"sourceURL":"https://example.com"}},
				"source":"https://example.com"}]}`,
		},
		{
			name:    "completed v1 documents",
			payload: BatchScrapeCompletedV1{Envelope: env, Data: []Document{{Content: "x", Metadata: map[string]any{}}}},
			want:    `{"success":true,"type":"batch_scrape.completed","jobId":"job-1","data":[{"content":"x","metadata":{}}]}`,
		},
		{
			name:    "failed",
			payload: ExtractFailed{Envelope: Envelope{JobID: "job-1"}, Error: "quota exceeded"},
			want:    `{"success":false,"type":"extract.failed","jobId":"job-1","data":[],"error":"quota exceeded"}`,
		},
		{
			name: "extract completed with metadata",
			payload: ExtractCompleted{
				Envelope: Envelope{Success: true, JobID: "job-1", Metadata: map[string]string{"k": "v"}},
				Data:     json.RawMessage(`{"price":1.5}`),
			},
			want: `{"success":true,"type":"extract.completed","jobId":"job-1","data":{"price":1.5},"metadata":{"k":"v"}}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := json.Marshal(tc.payload)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(got))
		})
	}
}

// TestDecodePayloadPicksVariant verifies ingress decoding per event type.
func TestDecodePayloadPicksVariant(t *testing.T) {
	t.Parallel()

	env := Envelope{Success: true, JobID: "job-1"}

	p, err := DecodePayload(EventCrawlStarted, env, nil, "")
	require.NoError(t, err)
	require.IsType(t, CrawlStarted{}, p)

	p, err = DecodePayload(EventCrawlPage, env, json.RawMessage(`[{"content":"a","metadata":{}}]`), "")
	require.NoError(t, err)
	page, ok := p.(CrawlPage)
	require.True(t, ok)
	require.Len(t, page.Data, 1)
	require.Equal(t, "a", page.Data[0].Content)

	p, err = DecodePayload(EventCrawlCompleted, env,
		json.RawMessage(`[{"content":{"content":"a","metadata":{}},"source":"https://a"}]`), "")
	require.NoError(t, err)
	require.IsType(t, CrawlCompleted{}, p)

	p, err = DecodePayload(EventBatchScrapeCompleted, env, json.RawMessage(`[{"content":"a","metadata":{}}]`), "")
	require.NoError(t, err)
	require.IsType(t, BatchScrapeCompletedV1{}, p)

	p, err = DecodePayload(EventCrawlFailed, Envelope{JobID: "job-1"}, nil, "boom")
	require.NoError(t, err)
	failed, ok := p.(CrawlFailed)
	require.True(t, ok)
	require.Equal(t, "boom", failed.Error)

	_, err = DecodePayload(EventBatchScrapePage, env, json.RawMessage(`{"not":"a list"}`), "")
	require.Error(t, err)

	_, err = DecodePayload(EventType("crawl.paused"), env, nil, "")
	require.Error(t, err)
}

// TestToV1MovesJobID checks the version-1 rewrite leaves the input untouched.
func TestToV1MovesJobID(t *testing.T) {
	t.Parallel()

	orig := CrawlPage{Envelope: Envelope{Success: true, JobID: "job-1"}}
	got := toV1(orig)

	b, err := json.Marshal(got)
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"type":"crawl.page","id":"job-1","data":[]}`, string(b))
	require.Equal(t, "job-1", orig.JobID)
	require.Equal(t, EventCrawlPage, got.Type())
}

// TestEventTypeValid covers known and unknown tags.
func TestEventTypeValid(t *testing.T) {
	t.Parallel()

	require.True(t, EventBatchScrapeStarted.Valid())
	require.True(t, EventExtractFailed.Valid())
	require.False(t, EventType("batch_scrape.failed").Valid())
	require.False(t, EventType("").Valid())
}
