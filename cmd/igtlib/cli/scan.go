package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/erroralex/Image-Generation-Toolbox-sub000/internal/reconcile"
)

func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <root>",
		Short: "Reconcile the library against a directory tree",
		Long:  "Walks the given directory, tracks new images and repairs identities whose files were moved or renamed outside the application.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLibrary()
			if err != nil {
				return err
			}
			defer env.Close()

			// Interruptible: every committed batch is a safe checkpoint
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reconciler := reconcile.New(env.lib, env.logger.Named("reconcile"))
			stats, err := reconciler.Run(ctx, args[0], &reconcile.Config{
				Extensions: env.cfg.Library.Extensions,
				BatchSize:  env.cfg.Library.ScanBatchSize,
			})
			if err != nil {
				return err
			}

			fmt.Printf("scanned %d, repaired %d, created %d, skipped %d, failed %d (%s)\n",
				stats.Scanned, stats.Repaired, stats.Created, stats.Skipped, stats.Failed, stats.Duration)
			return nil
		},
	}

	return cmd
}
