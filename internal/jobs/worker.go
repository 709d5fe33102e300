// Package jobs schedules the background sweeps: stale-hold cancellation,
// pending-funds retries, refund expiry, reserve release, tier rotation,
// reconciliation and the outbox relay.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/application/usecases/reconciliation"
	"github.com/fintrellis/ledgercore/internal/application/usecases/refund"
	"github.com/fintrellis/ledgercore/internal/application/usecases/settlement"
	"github.com/fintrellis/ledgercore/internal/application/usecases/snapshot"
	"github.com/fintrellis/ledgercore/internal/infrastructure/events"
	"github.com/fintrellis/ledgercore/internal/infrastructure/telemetry"
)

// Schedules holds the cron expressions and batch sizes of the sweeps.
type Schedules struct {
	StaleGroupSpec     string
	PendingFundsSpec   string
	RefundExpirySpec   string
	ReserveReleaseSpec string
	SnapshotSpec       string
	ArchiveSpec        string
	ReconcileSpec      string
	OutboxRelaySpec    string

	HoldAge          time.Duration
	ArchiveAfter     time.Duration
	SweepBatchSize   int
	SnapshotWallets  int
	SnapshotEntries  int
	OutboxBatchSize  int
	ReconcileReports int
}

// Worker owns the cron scheduler and the sweep use cases.
type Worker struct {
	cron      *cron.Cron
	schedules Schedules

	cancelStale    *group.CancelStaleGroupsUseCase
	pendingFunds   *refund.ProcessPendingFundsUseCase
	expireRefunds  *refund.ExpirePendingFundsUseCase
	releaseReserve *settlement.ReleaseExpiredReservesUseCase
	runSnapshot    *snapshot.RunSnapshotUseCase
	runArchive     *snapshot.RunArchiveUseCase
	reconcile      *reconciliation.ReconcileUseCase
	relay          *events.Relay

	metrics *telemetry.Metrics
	log     *slog.Logger
}

// NewWorker wires the sweeps into a scheduler. Nothing runs until Start.
func NewWorker(
	schedules Schedules,
	cancelStale *group.CancelStaleGroupsUseCase,
	pendingFunds *refund.ProcessPendingFundsUseCase,
	expireRefunds *refund.ExpirePendingFundsUseCase,
	releaseReserve *settlement.ReleaseExpiredReservesUseCase,
	runSnapshot *snapshot.RunSnapshotUseCase,
	runArchive *snapshot.RunArchiveUseCase,
	reconcile *reconciliation.ReconcileUseCase,
	relay *events.Relay,
	metrics *telemetry.Metrics,
	log *slog.Logger,
) *Worker {
	return &Worker{
		cron:           cron.New(),
		schedules:      schedules,
		cancelStale:    cancelStale,
		pendingFunds:   pendingFunds,
		expireRefunds:  expireRefunds,
		releaseReserve: releaseReserve,
		runSnapshot:    runSnapshot,
		runArchive:     runArchive,
		reconcile:      reconcile,
		relay:          relay,
		metrics:        metrics,
		log:            log,
	}
}

// Start registers and launches every sweep.
func (w *Worker) Start(ctx context.Context) error {
	s := w.schedules
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"cancel_stale_groups", s.StaleGroupSpec, func(ctx context.Context) error {
			n, err := w.cancelStale.Execute(ctx, s.HoldAge, s.SweepBatchSize)
			w.logSweep("cancel_stale_groups", n, err)
			return err
		}},
		{"process_pending_funds", s.PendingFundsSpec, func(ctx context.Context) error {
			n, err := w.pendingFunds.Execute(ctx, s.SweepBatchSize)
			w.logSweep("process_pending_funds", n, err)
			return err
		}},
		{"expire_refunds", s.RefundExpirySpec, func(ctx context.Context) error {
			n, err := w.expireRefunds.Execute(ctx, s.SweepBatchSize)
			w.logSweep("expire_refunds", n, err)
			return err
		}},
		{"release_reserves", s.ReserveReleaseSpec, func(ctx context.Context) error {
			n, err := w.releaseReserve.Execute(ctx, s.SweepBatchSize)
			w.logSweep("release_reserves", n, err)
			return err
		}},
		{"snapshot", s.SnapshotSpec, func(ctx context.Context) error {
			n, err := w.runSnapshot.Execute(ctx, s.SnapshotWallets, s.SnapshotEntries)
			w.logSweep("snapshot", n, err)
			return err
		}},
		{"archive", s.ArchiveSpec, func(ctx context.Context) error {
			cutoff := time.Now().UTC().Add(-s.ArchiveAfter)
			n, err := w.runArchive.Execute(ctx, cutoff, s.SnapshotWallets, s.SnapshotEntries)
			w.logSweep("archive", n, err)
			return err
		}},
		{"reconcile", s.ReconcileSpec, func(ctx context.Context) error {
			report, err := w.reconcile.Execute(ctx, s.ReconcileReports)
			if err != nil {
				return err
			}
			if w.metrics != nil {
				w.metrics.ReconcileTotal.Set(float64(report.GrandTotal))
				if report.Balanced {
					w.metrics.ReconcileBalanced.Set(1)
				} else {
					w.metrics.ReconcileBalanced.Set(0)
				}
			}
			return nil
		}},
		{"outbox_relay", s.OutboxRelaySpec, func(ctx context.Context) error {
			n, err := w.relay.Drain(ctx, s.OutboxBatchSize)
			if w.metrics != nil && n > 0 {
				w.metrics.OutboxPublished.Add(float64(n))
			}
			return err
		}},
	}

	for _, job := range jobs {
		job := job
		_, err := w.cron.AddFunc(job.spec, func() {
			if err := job.run(ctx); err != nil {
				if w.metrics != nil {
					w.metrics.JobRunsTotal.WithLabelValues(job.name, "error").Inc()
				}
				w.log.Error("job failed", slog.String("job", job.name), slog.String("error", err.Error()))
				return
			}
			if w.metrics != nil {
				w.metrics.JobRunsTotal.WithLabelValues(job.name, "ok").Inc()
			}
		})
		if err != nil {
			return err
		}
	}

	w.cron.Start()
	w.log.Info("background worker started", slog.Int("jobs", len(jobs)))
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (w *Worker) Stop() {
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.log.Info("background worker stopped")
}

func (w *Worker) logSweep(name string, processed int, err error) {
	if err != nil {
		return
	}
	if processed > 0 {
		w.log.Info("sweep processed items", slog.String("job", name), slog.Int("count", processed))
	}
}
