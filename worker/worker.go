// Package worker runs the background maintenance loop. There is exactly
// one worker per deployment; it is the only component that executes
// analyses, so a run claimed from the queue is executed at most once.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dife-bioinformatics/mekewe/config"
	"github.com/dife-bioinformatics/mekewe/engine"
	"github.com/dife-bioinformatics/mekewe/log"
	"github.com/dife-bioinformatics/mekewe/metrics"
	"github.com/dife-bioinformatics/mekewe/state"
	"github.com/dife-bioinformatics/mekewe/types"
)

// Worker drives the maintenance tick: claim and execute the next queued
// run, then sweep expired, deletable and abandoned records and prune
// aged statistic points.
type Worker struct {
	mgr       *state.Manager
	adapter   *engine.Adapter
	cfg       *config.Config
	logger    *log.Logger
	collector *metrics.Collector

	stop     chan struct{}
	done     chan struct{}
	lastTick atomic.Int64
}

// New creates a worker over the state manager and an engine adapter.
// collector may be nil.
func New(mgr *state.Manager, adapter *engine.Adapter, cfg *config.Config, logger *log.Logger, collector *metrics.Collector) *Worker {
	return &Worker{
		mgr:       mgr,
		adapter:   adapter,
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start recovers stranded runs, then loops ticks until Stop or context
// cancellation. It returns when the consecutive-failure budget is
// exhausted, so a deployment under a supervisor restarts cleanly.
func (w *Worker) Start(ctx context.Context) error {
	defer close(w.done)
	defer func() {
		snap := w.collector.Snapshot()
		w.logger.Info("maintenance worker stopped", map[string]any{
			"ticks":             snap.Ticks,
			"tick_failures":     snap.TickFailures,
			"runs_processed":    snap.RunsProcessed,
			"runs_failed":       snap.RunsFailed,
			"runs_expired":      snap.RunsExpired,
			"records_deleted":   snap.RecordsDeleted,
			"runs_abandoned":    snap.RunsAbandoned,
			"stats_pruned":      snap.StatsPruned,
			"stranded_recover":  snap.StrandedRecover,
			"zombie_dirs_swept": snap.ZombieDirsSwept,
		})
	}()

	recovered, err := w.mgr.RecoverStrandedRuns(ctx)
	if err != nil {
		return fmt.Errorf("recover stranded runs: %w", err)
	}
	for i := 0; i < recovered; i++ {
		w.collector.IncStrandedRecovered()
	}
	w.logger.Info("maintenance worker started", map[string]any{
		"tick_pause":       w.cfg.WorkerTickPause.String(),
		"recovered_runs":   recovered,
		"exception_budget": w.cfg.WorkerRestartBudget,
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-time.After(w.cfg.WorkerTickPause.Duration):
		}

		if err := w.Tick(ctx); err != nil {
			w.collector.IncTickFailure()
			w.logger.Error("maintenance tick failed", map[string]any{
				"error": err.Error(),
			})
			exhausted, countErr := w.bumpExceptionCount(ctx)
			if countErr != nil {
				w.logger.Error("failed to track worker exception count", map[string]any{
					"error": countErr.Error(),
				})
				continue
			}
			if exhausted {
				return fmt.Errorf("worker exception budget exhausted after %d consecutive failures: %w",
					w.cfg.WorkerRestartBudget, err)
			}
			continue
		}
		if err := w.mgr.Store().CounterSet(ctx, state.KeyWorkerExceptionCount, 0); err != nil {
			w.logger.Warn("failed to reset worker exception count", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// Stop signals the loop to exit and waits for the current tick.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// Healthy reports whether the worker ticked recently. The window is
// generous because a tick blocks for the whole duration of an analysis.
func (w *Worker) Healthy() bool {
	last := w.lastTick.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) < 10*time.Minute
}

// bumpExceptionCount increments the persistent consecutive-failure
// counter and reports whether the budget is exhausted. The counter
// lives in the store so the budget survives process restarts.
func (w *Worker) bumpExceptionCount(ctx context.Context) (bool, error) {
	count, err := w.mgr.Store().CounterIncr(ctx, state.KeyWorkerExceptionCount)
	if err != nil {
		return false, err
	}
	return count > int64(w.cfg.WorkerRestartBudget), nil
}

// Tick runs one full maintenance pass. Exported so tests can drive the
// worker without the loop.
func (w *Worker) Tick(ctx context.Context) error {
	w.lastTick.Store(time.Now().UnixNano())
	defer w.collector.IncTick()

	if err := w.sweepZombieDirectories(ctx); err != nil {
		return err
	}
	if err := w.sweepZombieQueueEntries(ctx); err != nil {
		return err
	}
	if err := w.processNextQueuedRun(ctx); err != nil {
		return err
	}
	if err := w.sweepExpiredRuns(ctx); err != nil {
		return err
	}
	if err := w.sweepDeletableRecords(ctx); err != nil {
		return err
	}
	if err := w.sweepAbandonedRuns(ctx); err != nil {
		return err
	}
	pruned, err := w.mgr.RemoveExpiredStatisticPoints(ctx)
	if err != nil {
		return err
	}
	w.collector.AddStatsPruned(int64(pruned))
	return nil
}

// sweepZombieDirectories removes cache directories whose ticket has no
// record, so crashed or deleted runs cannot leak disk. Directories that
// are not ticket-named are left alone; something else owns them.
func (w *Worker) sweepZombieDirectories(ctx context.Context) error {
	entries, err := os.ReadDir(w.mgr.CacheDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache dir: %w", err)
	}
	var known map[string]bool
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !types.IsTicketHex(name) {
			w.logger.Warn("foreign directory in cache dir, leaving it", map[string]any{
				"dir": name,
			})
			continue
		}
		if known == nil {
			if known, err = w.mgr.KnownTicketSet(ctx); err != nil {
				return err
			}
		}
		if known[name] {
			continue
		}
		w.logger.Warn("removing zombie cache directory", map[string]any{
			"ticket": name,
		})
		if err := os.RemoveAll(filepath.Join(w.mgr.CacheDir(), name)); err != nil {
			return fmt.Errorf("remove zombie dir %s: %w", name, err)
		}
		w.collector.IncZombieDirSwept()
	}
	return nil
}

// sweepZombieQueueEntries drops queue tickets whose record no longer
// exists, so a deleted run cannot come back to life on dequeue.
func (w *Worker) sweepZombieQueueEntries(ctx context.Context) error {
	st := w.mgr.Store()
	entries, err := st.ListRange(ctx, state.KeyPipelineQueue, 0, -1)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	known, err := w.mgr.KnownTicketSet(ctx)
	if err != nil {
		return err
	}
	for _, hex := range entries {
		if known[hex] {
			continue
		}
		w.logger.Warn("dropping zombie queue entry", map[string]any{
			"ticket": hex,
		})
		if _, err := st.ListRemove(ctx, state.KeyPipelineQueue, 0, hex); err != nil {
			return err
		}
	}
	return nil
}

// processNextQueuedRun claims the oldest queued run and executes it.
// The finish flip happens in every case so a failed analysis still
// lands in failed with its error recorded.
func (w *Worker) processNextQueuedRun(ctx context.Context) error {
	run, err := w.mgr.GetNextPipelineRunFromQueue(ctx, true)
	if err != nil {
		return err
	}
	if run == nil {
		return nil
	}
	w.collector.IncRunProcessed()
	logger := w.logger.WithTicket(run.Ticket.Hex())

	if runErr := w.adapter.Execute(ctx, run); runErr != nil {
		logger.Error("analysis run failed", map[string]any{
			"error": runErr.Error(),
		})
	}
	finished, err := w.mgr.SetPipelineStateAsFinished(ctx, run.Ticket)
	if err != nil {
		return err
	}
	if finished.State == types.StateFailed {
		w.collector.IncRunFailed()
	}
	logger.Info("pipeline-run finished", map[string]any{
		"state": string(finished.State),
	})
	return nil
}

func (w *Worker) sweepExpiredRuns(ctx context.Context) error {
	for {
		run, err := w.mgr.GetNextPipelineThatIsExpired(ctx, true)
		if err != nil {
			return err
		}
		if run == nil {
			return nil
		}
		w.collector.IncRunExpired()
		w.logger.Info("pipeline-run expired, files wiped", map[string]any{
			"ticket": run.Ticket.Hex(),
		})
	}
}

func (w *Worker) sweepDeletableRecords(ctx context.Context) error {
	for {
		run, err := w.mgr.GetNextPipelineThatIsDeletable(ctx)
		if err != nil {
			return err
		}
		if run == nil {
			return nil
		}
		if err := w.mgr.DeletePipelineStatus(ctx, run.Ticket); err != nil {
			return err
		}
		w.collector.IncRecordDeleted()
		w.logger.Info("pipeline-run record deleted", map[string]any{
			"ticket": run.Ticket.Hex(),
		})
	}
}

// sweepAbandonedRuns wipes and deletes records that were created but
// never committed to the queue.
func (w *Worker) sweepAbandonedRuns(ctx context.Context) error {
	for {
		run, err := w.mgr.GetNextPipelineThatIsAbandoned(ctx)
		if err != nil {
			return err
		}
		if run == nil {
			return nil
		}
		if _, err := w.mgr.WipePipelineRun(ctx, run.Ticket); err != nil {
			return err
		}
		if err := w.mgr.DeletePipelineStatus(ctx, run.Ticket); err != nil {
			return err
		}
		w.collector.IncRunAbandoned()
		w.logger.Info("abandoned pipeline-run dropped", map[string]any{
			"ticket": run.Ticket.Hex(),
		})
	}
}
