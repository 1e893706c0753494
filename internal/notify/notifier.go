// Package notify turns job events from the orchestrator into webhook sends.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/webhook"
)

// ErrInvalidEvent marks events rejected before any delivery is attempted.
var ErrInvalidEvent = errors.New("invalid job event")

// JobEvent is the wire form the orchestrator publishes for each lifecycle step.
type JobEvent struct {
	TeamID       string            `json:"team_id"`
	JobID        string            `json:"job_id"`
	V1           bool              `json:"v1"`
	Webhook      *webhook.Config   `json:"webhook,omitempty"`
	AwaitWebhook bool              `json:"await_webhook"`
	ScrapeID     string            `json:"scrape_id,omitempty"`
	Type         webhook.EventType `json:"type"`
	Success      bool              `json:"success"`
	Data         json.RawMessage   `json:"data,omitempty"`
	Error        string            `json:"error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fields every event needs.
func (e JobEvent) Validate() error {
	switch {
	case e.TeamID == "":
		return fmt.Errorf("%w: team_id is required", ErrInvalidEvent)
	case e.JobID == "":
		return fmt.Errorf("%w: job_id is required", ErrInvalidEvent)
	case !e.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

// Outcome reports what Handle did with an event.
type Outcome struct {
	// Skipped is true when the job has no webhook or the event was filtered.
	Skipped bool
	// Awaited is true when Result holds a finished delivery.
	Awaited bool
	Result  webhook.Result
}

// Notifier builds a sender per event and delivers it.
type Notifier struct {
	factory *webhook.Factory
	logger  *zap.Logger
}

// New wires a notifier.
func New(factory *webhook.Factory, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{factory: factory, logger: logger}
}

// Handle validates ev, decodes its payload and sends it. Only malformed
// events produce an error; delivery failures are in the Outcome.
func (n *Notifier) Handle(ctx context.Context, ev JobEvent) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return Outcome{}, err
	}
	metadata := ev.Metadata
	if len(metadata) == 0 && ev.Webhook != nil {
		metadata = ev.Webhook.Metadata
	}
	payload, err := webhook.DecodePayload(ev.Type, webhook.Envelope{
		Success:  ev.Success,
		JobID:    ev.JobID,
		Metadata: metadata,
	}, ev.Data, ev.Error)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	sender := n.factory.Create(ctx, webhook.Context{
		TeamID:       ev.TeamID,
		CrawlID:      ev.JobID,
		V1:           ev.V1,
		Webhook:      ev.Webhook,
		AwaitWebhook: ev.AwaitWebhook,
	})
	if sender == nil {
		n.logger.Debug("no webhook configured",
			zap.String("team_id", ev.TeamID),
			zap.String("crawl_id", ev.JobID),
			zap.String("event", string(ev.Type)),
		)
		return Outcome{Skipped: true}, nil
	}
	if !sender.Accepts(ev.Type) {
		return Outcome{Skipped: true}, nil
	}
	res, awaited := sender.Send(ctx, payload, webhook.SendOptions{ScrapeID: ev.ScrapeID})
	return Outcome{Awaited: awaited, Result: res}, nil
}
