package worker

// reconcile_cron.go
// Background goroutine that periodically recomputes every aggregate stock
// row and reports bulk rows whose quantity disagrees with the ledger.

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StartReconcileCron ticks every interval and runs ReconcileAll. It respects
// the context for graceful shutdown.
func StartReconcileCron(ctx context.Context, interval time.Duration, stock StockJobs) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("reconcile_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("reconcile_cron: shutting down")
				return
			case <-ticker.C:
				runReconcile(ctx, stock)
			}
		}
	}()
}

func runReconcile(ctx context.Context, stock StockJobs) {
	start := time.Now()
	report, err := stock.ReconcileAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconcile_cron: pass failed")
		return
	}
	ev := log.Info()
	if len(report.Drift) > 0 {
		ev = log.Warn().Strs("drift", report.Drift)
	}
	ev.Int("checked", report.Checked).
		Int("synced", report.Synced).
		Dur("took", time.Since(start)).
		Msg("reconcile_cron: pass finished")
}
