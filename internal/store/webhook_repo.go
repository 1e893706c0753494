package store

import (
	"context"
	"errors"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// WebhookRepository reads team-level webhook settings.
type WebhookRepository interface {
	// WebhookURL returns the first stored webhook URL for the team or ErrNotFound.
	WebhookURL(ctx context.Context, teamID string) (string, error)
	// HMACSecret returns the team's signing secret or ErrNotFound when unset.
	HMACSecret(ctx context.Context, teamID string) (string, error)
}
