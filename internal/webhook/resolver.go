package webhook

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/store"
)

// JobIDPlaceholder is replaced with the job id in the self-hosted URL template.
const JobIDPlaceholder = "{{JOB_ID}}"

// ResolverConfig holds operator-level webhook settings.
type ResolverConfig struct {
	UseDBAuthentication bool
	SelfHostedURL       string
	SelfHostedSecret    string
}

// configSource yields a config for a job, or false to defer to the next source.
type configSource func(ctx context.Context, teamID, crawlID string, explicit *Config) (*Config, bool)

// Resolver picks the effective webhook target and signing secret for a job.
type Resolver struct {
	cfg     ResolverConfig
	repo    store.WebhookRepository
	logger  *zap.Logger
	sources []configSource
}

// NewResolver wires a resolver. repo may be nil when database lookups are off.
func NewResolver(cfg ResolverConfig, repo store.WebhookRepository, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{cfg: cfg, repo: repo, logger: logger}
	r.sources = []configSource{r.explicitSource, r.selfHostedSource, r.storedSource}
	return r
}

// Resolve returns the delivery config (nil when none applies) and the secret
// ("" when unsigned). Lookup failures are logged and never returned.
func (r *Resolver) Resolve(ctx context.Context, teamID, crawlID string, explicit *Config) (*Config, string) {
	var cfg *Config
	for _, source := range r.sources {
		if c, ok := source(ctx, teamID, crawlID, explicit); ok {
			cfg = c
			break
		}
	}
	return cfg, r.secret(ctx, teamID)
}

func (r *Resolver) explicitSource(_ context.Context, _, _ string, explicit *Config) (*Config, bool) {
	if explicit == nil {
		return nil, false
	}
	return explicit, true
}

func (r *Resolver) selfHostedSource(_ context.Context, _, crawlID string, _ *Config) (*Config, bool) {
	if r.cfg.SelfHostedURL == "" {
		return nil, false
	}
	return &Config{URL: strings.ReplaceAll(r.cfg.SelfHostedURL, JobIDPlaceholder, crawlID)}, true
}

// storedSource is terminal when database lookups are enabled: a miss yields no
// webhook rather than falling through.
func (r *Resolver) storedSource(ctx context.Context, teamID, _ string, _ *Config) (*Config, bool) {
	if !r.cfg.UseDBAuthentication || r.repo == nil {
		return nil, false
	}
	url, err := r.repo.WebhookURL(ctx, teamID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Error("error fetching webhook config", zap.String("team_id", teamID), zap.Error(err))
		}
		return nil, true
	}
	if url == "" {
		return nil, true
	}
	return &Config{URL: url}, true
}

func (r *Resolver) secret(ctx context.Context, teamID string) string {
	secret := r.cfg.SelfHostedSecret
	if !r.cfg.UseDBAuthentication || r.repo == nil {
		return secret
	}
	stored, err := r.repo.HMACSecret(ctx, teamID)
	switch {
	case err == nil && stored != "":
		return stored
	case err != nil && !errors.Is(err, store.ErrNotFound):
		r.logger.Error("error fetching team HMAC secret", zap.String("team_id", teamID), zap.Error(err))
	}
	return secret
}
