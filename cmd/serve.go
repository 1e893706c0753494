package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultShutdownTimeout = 35 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the webhook HTTP API, audit drainer and job event subscriber",
		Long: `Starts the HTTP API accepting job events, the background drainer that
moves delivery logs to the configured store, and the Pub/Sub subscriber when
one is configured. On SIGINT or SIGTERM the server stops accepting requests,
waits for in-flight deliveries, and flushes the audit queue.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           appInstance.GetHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// The drainer outlives ctx so it can flush records from deliveries
	// that finish during shutdown.
	drainCtx, stopDrain := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDrain()
	var wg sync.WaitGroup
	wg.Go(func() {
		logger.Info("webhook log drainer started")
		appInstance.GetDrainer().Run(drainCtx)
	})

	errCh := make(chan error, 2)
	subCtx, stopSub := context.WithCancel(ctx)
	defer stopSub()
	subDone := make(chan struct{})
	if sub := appInstance.GetSubscriber(); sub != nil {
		go func() {
			defer close(subDone)
			if err := sub.Run(subCtx); err != nil {
				errCh <- err
			}
		}()
	} else {
		close(subDone)
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("service failed", zap.Error(runErr))
	}
	logger.Info("shutdown initiated")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	// No new sends may start once the factory wait begins.
	stopSub()
	select {
	case <-subDone:
	case <-shutdownCtx.Done():
		logger.Warn("job event subscriber did not stop before shutdown timeout")
	}
	if err := appInstance.GetFactory().Wait(shutdownCtx); err != nil {
		logger.Warn("in-flight webhook deliveries abandoned", zap.Error(err))
	}
	stopDrain()
	wg.Wait()
	logger.Info("shutdown complete")
	return runErr
}
