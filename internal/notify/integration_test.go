package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
	"github.com/JakeFAU/crawl-webhooks/internal/notify"
	memoryqueue "github.com/JakeFAU/crawl-webhooks/internal/queue/memory"
	"github.com/JakeFAU/crawl-webhooks/internal/security"
	"github.com/JakeFAU/crawl-webhooks/internal/storage/memory"
	"github.com/JakeFAU/crawl-webhooks/internal/webhook"
)

// TestStoredTeamWebhookEndToEnd resolves the team's stored webhook and
// secret, delivers a signed request, and drains the audit record.
func TestStoredTeamWebhookEndToEnd(t *testing.T) {
	t.Parallel()

	type received struct {
		body      []byte
		signature string
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{body: body, signature: r.Header.Get(webhook.SignatureHeader)}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	db := memory.NewWebhookStore()
	db.SetWebhook("team-1", srv.URL+"/hook")
	db.SetSecret("team-1", "team-secret")

	q := memoryqueue.NewQueue(0)
	gate := security.NewGate(netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128"))
	executor := webhook.NewExecutor(gate, audit.NewRecorder(q, nil, nil), webhook.ExecutorConfig{})
	resolver := webhook.NewResolver(webhook.ResolverConfig{
		UseDBAuthentication: true,
		SelfHostedSecret:    "operator-secret",
	}, db, nil)
	n := notify.New(webhook.NewFactory(resolver, executor, nil), nil)

	out, err := n.Handle(context.Background(), notify.JobEvent{
		TeamID:       "team-1",
		JobID:        "job-1",
		AwaitWebhook: true,
		Type:         webhook.EventCrawlStarted,
		Success:      true,
	})
	require.NoError(t, err)
	require.True(t, out.Awaited)
	require.True(t, out.Result.Success)

	req := <-got
	require.True(t, webhook.Verify(req.body, req.signature, "team-secret"))
	require.JSONEq(t, `{"success":true,"type":"crawl.started","jobId":"job-1","data":[]}`, string(req.body))

	drainer := audit.NewDrainer(q, db, audit.DrainerConfig{}, nil, nil)
	drained, err := drainer.DrainAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, drained)

	logs := db.Logs()
	require.Len(t, logs, 1)
	require.True(t, logs[0].Success)
	require.Equal(t, "team-1", logs[0].TeamID)
	require.Equal(t, "job-1", logs[0].CrawlID)
	require.Equal(t, srv.URL+"/hook", logs[0].URL)
	require.Equal(t, "crawl.started", logs[0].Event)
	require.Equal(t, http.StatusOK, *logs[0].StatusCode)
}

// TestNoStoredWebhookSkips treats a team without a webhook as a no-op.
func TestNoStoredWebhookSkips(t *testing.T) {
	t.Parallel()

	db := memory.NewWebhookStore()
	resolver := webhook.NewResolver(webhook.ResolverConfig{UseDBAuthentication: true}, db, nil)
	n := notify.New(webhook.NewFactory(resolver, webhook.NewExecutor(nil, nil, webhook.ExecutorConfig{}), nil), nil)

	out, err := n.Handle(context.Background(), notify.JobEvent{
		TeamID: "team-2",
		JobID:  "job-2",
		Type:   webhook.EventCrawlCompleted,
	})
	require.NoError(t, err)
	require.True(t, out.Skipped)
}
