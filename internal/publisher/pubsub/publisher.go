// Package pubsub publishes job events to Google Cloud Pub/Sub so the webhook
// service can replay or inject them.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/crawl-webhooks/internal/notify"
)

// Attribute keys set on every published event.
const (
	AttrEventType = "event_type"
	AttrTeamID    = "team_id"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals ev to JSON, publishes it and waits for the server id.
func (p *Publisher) Publish(ctx context.Context, ev notify.JobEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal job event: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttrEventType: string(ev.Type),
			AttrTeamID:    ev.TeamID,
		},
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes pending publishes.
func (p *Publisher) Stop() {
	if p == nil || p.topic == nil {
		return
	}
	p.topic.Stop()
}
