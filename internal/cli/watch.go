package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DollhouseMCP/contentguard/internal/revalidator"
	"github.com/DollhouseMCP/contentguard/internal/trust"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the background revalidation loop until interrupted",
	Long: `Keep the process alive and periodically re-examine FLAGGED entries
with per-entry exponential backoff. Entries that pass on a later look are
promoted to VALIDATED; entries that escalate are quarantined. Stop with
Ctrl-C.`,
	RunE: watchCommand,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func watchCommand(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	rev := revalidator.New(app.pipe.Validate, app.ledger, app.cfg.Revalidator, app.log)
	app.pipe.OnFlagged(rev.Enqueue)

	ctx := cmd.Context()
	rev.Start(ctx)
	defer rev.Stop()

	flagged := app.pipe.ListByTrustLevel(trust.Flagged, -1)
	fmt.Printf("watching %d flagged entries (interval %s, batch %d)\n",
		len(flagged), app.cfg.Revalidator.Interval, app.cfg.Revalidator.BatchSize)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		app.log.Info("shutting down", zap.String("signal", s.String()))
	case <-ctx.Done():
	}
	return nil
}
