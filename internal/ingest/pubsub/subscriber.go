// Package pubsub receives orchestrator job events from a Pub/Sub
// subscription and hands them to the notifier.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/notify"
)

// EventHandler processes one job event.
type EventHandler interface {
	Handle(ctx context.Context, ev notify.JobEvent) (notify.Outcome, error)
}

// Config tunes message flow control.
type Config struct {
	MaxOutstandingMessages int
	NumGoroutines          int
}

// Subscriber pulls job events. Every message is acked: delivery outcomes
// live in the audit log and redelivery would duplicate notifications.
type Subscriber struct {
	sub     *pubsub.Subscription
	handler EventHandler
	logger  *zap.Logger
}

// New wraps sub. Zero config values keep the client defaults.
func New(sub *pubsub.Subscription, handler EventHandler, cfg Config, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	}
	if cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines
	}
	return &Subscriber{sub: sub, handler: handler, logger: logger}
}

// Run blocks receiving messages until ctx is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	s.logger.Info("job event subscriber started", zap.String("subscription", s.sub.ID()))
	err := s.sub.Receive(ctx, s.handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive job events: %w", err)
	}
	return nil
}

func (s *Subscriber) handle(ctx context.Context, msg *pubsub.Message) {
	defer msg.Ack()
	var ev notify.JobEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.logger.Warn("dropping undecodable job event", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if _, err := s.handler.Handle(ctx, ev); err != nil {
		s.logger.Warn("dropping job event",
			zap.String("message_id", msg.ID),
			zap.String("team_id", ev.TeamID),
			zap.String("crawl_id", ev.JobID),
			zap.String("event", string(ev.Type)),
			zap.Error(err),
		)
	}
}
