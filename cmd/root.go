// Package cmd defines and implements the CLI commands for the crawl-webhooks executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/app"
	"github.com/JakeFAU/crawl-webhooks/internal/config"
	"github.com/JakeFAU/crawl-webhooks/internal/logging"
	"github.com/JakeFAU/crawl-webhooks/internal/notify"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Drainer moves queued audit records to the store.
type Drainer interface {
	Run(ctx context.Context)
	DrainAll(ctx context.Context) (int, error)
}

// Waiter blocks until in-flight deliveries finish.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Runner is a long-running background loop.
type Runner interface {
	Run(ctx context.Context) error
}

// EventHandler delivers one job event in-process.
type EventHandler interface {
	Handle(ctx context.Context, ev notify.JobEvent) (notify.Outcome, error)
}

// Publisher sends job events to the broker.
type Publisher interface {
	Publish(ctx context.Context, ev notify.JobEvent) (string, error)
	Stop()
}

// App defines the application interface that commands use.
// This allows a fake app to be injected during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetHandler() http.Handler
	GetDrainer() Drainer
	GetFactory() Waiter
	GetNotifier() EventHandler
	// GetSubscriber returns nil when no subscription is configured.
	GetSubscriber() Runner
	NewPublisher(topicID string) (Publisher, error)
}

// appAdapter narrows *app.App to the command-facing interfaces.
type appAdapter struct {
	*app.App
}

func (a appAdapter) GetDrainer() Drainer       { return a.App.GetDrainer() }
func (a appAdapter) GetFactory() Waiter        { return a.App.GetFactory() }
func (a appAdapter) GetNotifier() EventHandler { return a.App.GetNotifier() }

func (a appAdapter) GetSubscriber() Runner {
	if sub := a.App.GetSubscriber(); sub != nil {
		return sub
	}
	return nil
}

func (a appAdapter) NewPublisher(topicID string) (Publisher, error) {
	pub, err := a.App.NewPublisher(topicID)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// newApp is the application factory. It's a variable so tests can
// replace it with a fake.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return appAdapter{a}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "crawl-webhooks",
		Short: "Signed webhook notifications for crawl, batch scrape and extract jobs.",
		Long: `crawl-webhooks delivers job lifecycle events to customer webhook endpoints.
Each delivery is HMAC-signed, checked against private network targets, and
recorded in an audit log that is drained in batches to durable storage.`,
		SilenceUsage: true,

		// Build and inject the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env vars use the WEBHOOKS_ prefix)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDrainCmd())
	cmd.AddCommand(newEmitCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "command execution failed:", err)
		os.Exit(1)
	}
}
