package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Flushes the audit queue to the configured store and exits",
		Long: `Moves every pending webhook delivery log from the audit queue to the
configured store in batches. Useful after a crash when the shared Redis list
still holds records no running instance will drain.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := appInstance.GetDrainer().DrainAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("drain audit queue: %w", err)
			}
			appInstance.GetLogger().Info("audit queue drained", zap.Int("records", n))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "drained %d webhook log records\n", n)
			return err
		},
	}
}
