// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs/{job_id}/events for orchestrator job events.
//   - GET /v1/webhooks/queue for the audit backlog.
package api
