// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/JakeFAU/crawl-webhooks/internal/audit"
	"github.com/JakeFAU/crawl-webhooks/internal/store"
)

// WebhookStore keeps team webhooks, secrets and delivery logs in memory.
type WebhookStore struct {
	mu      sync.RWMutex
	urls    map[string]string
	secrets map[string]string
	logs    []audit.Record
}

var (
	_ store.WebhookRepository = (*WebhookStore)(nil)
	_ audit.Store             = (*WebhookStore)(nil)
)

// NewWebhookStore constructs an empty store.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		urls:    make(map[string]string),
		secrets: make(map[string]string),
	}
}

// SetWebhook registers url for the team.
func (s *WebhookStore) SetWebhook(teamID, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[teamID] = url
}

// SetSecret registers the team's signing secret.
func (s *WebhookStore) SetSecret(teamID, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[teamID] = secret
}

// WebhookURL implements store.WebhookRepository.
func (s *WebhookStore) WebhookURL(_ context.Context, teamID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.urls[teamID]
	if !ok {
		return "", store.ErrNotFound
	}
	return url, nil
}

// HMACSecret implements store.WebhookRepository.
func (s *WebhookStore) HMACSecret(_ context.Context, teamID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[teamID]
	if !ok {
		return "", store.ErrNotFound
	}
	return secret, nil
}

// InsertWebhookLogs implements audit.Store.
func (s *WebhookStore) InsertWebhookLogs(_ context.Context, records []audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, records...)
	return nil
}

// Logs returns a copy of every inserted record.
func (s *WebhookStore) Logs() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.logs)
}
