// Package main hosts the webhook service entrypoint.
//
// Architecture overview:
//   - Ingress: job events arrive over HTTP (POST /v1/jobs/{job_id}/events) or from a Pub/Sub subscription. Both
//     paths hand the event to internal/notify, which resolves the job's webhook and builds a sender.
//   - Resolution: internal/webhook.Resolver prefers the per-job webhook, then the self-hosted URL template, then the
//     team's stored webhook when database authentication is on. The signing secret follows the same precedence.
//   - Delivery: the executor rejects malformed and private-network targets, signs the body with HMAC-SHA256 in the
//     X-Firecrawl-Signature header, and posts it with a v1 (10s) or v2 (30s) timeout. Sends are fire-and-forget
//     unless the job asked to await them.
//   - Audit: every attempt enqueues one record (memory or Redis list). The drainer moves batches of up to 1000
//     records to Postgres, a GCS NDJSON archive, or the log.
//
// Operational notes:
//   - Run locally: go run . serve --config config.yaml (or rely on WEBHOOKS_* env overrides).
//   - SIGTERM stops the HTTP server, waits for in-flight deliveries, and flushes the audit queue before exit.
//   - crawl-webhooks drain flushes a Redis audit list left behind by a crashed instance.
package main
