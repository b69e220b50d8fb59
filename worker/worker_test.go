package worker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dife-bioinformatics/mekewe/config"
	"github.com/dife-bioinformatics/mekewe/engine"
	"github.com/dife-bioinformatics/mekewe/engine/enginetest"
	"github.com/dife-bioinformatics/mekewe/log"
	"github.com/dife-bioinformatics/mekewe/metrics"
	"github.com/dife-bioinformatics/mekewe/params"
	"github.com/dife-bioinformatics/mekewe/state"
	"github.com/dife-bioinformatics/mekewe/store/memstore"
	"github.com/dife-bioinformatics/mekewe/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestWorker(t *testing.T) (*Worker, *state.Manager, *fakeClock, *enginetest.Fake, *metrics.Collector) {
	t.Helper()
	cfg := config.Default()
	cfg.PipelineRunsCacheDir = t.TempDir()
	clock := newFakeClock()
	mgr := state.NewManager(memstore.New(), cfg, log.NewLogger("test")).WithClock(clock.Now)
	eng := &enginetest.Fake{}
	adapter := engine.NewAdapter(mgr, eng, log.NewLogger("test"))
	collector := metrics.NewCollector()
	return New(mgr, adapter, cfg, log.NewLogger("test"), collector), mgr, clock, eng, collector
}

func commitRun(t *testing.T, mgr *state.Manager, method string) types.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := mgr.InitNewPipelineRun(ctx, types.PipelineParams{})
	if err != nil {
		t.Fatalf("InitNewPipelineRun() error = %v", err)
	}
	if _, err := mgr.AttachPipelineRunInputFile(ctx, ticket, params.InputFileParam,
		"genes.xlsx", strings.NewReader("data")); err != nil {
		t.Fatalf("AttachPipelineRunInputFile() error = %v", err)
	}
	if _, err := mgr.SetPipelineRunAsQueued(ctx, ticket, method); err != nil {
		t.Fatalf("SetPipelineRunAsQueued() error = %v", err)
	}
	return ticket
}

func TestWorker_TickExecutesQueuedRun(t *testing.T) {
	w, mgr, _, eng, collector := newTestWorker(t)
	ctx := context.Background()
	ticket := commitRun(t, mgr, "single_input_genes")

	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	run, err := mgr.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		t.Fatalf("GetPipelineRunDefinition() error = %v", err)
	}
	if run.State != types.StateSuccess {
		t.Errorf("State = %s, want success", run.State)
	}
	if run.PipelineOutputZipFileName == nil {
		t.Error("successful run recorded no output zip")
	}
	if got := eng.Invocations(); len(got) != 1 || got[0].Method != "single_input_genes" {
		t.Errorf("invocations = %v, want one single_input_genes call", got)
	}

	snap := collector.Snapshot()
	if snap.Ticks != 1 || snap.RunsProcessed != 1 || snap.RunsFailed != 0 {
		t.Errorf("snapshot = %+v, want one clean tick with one processed run", snap)
	}
}

func TestWorker_TickFinishesFailedRunAsFailed(t *testing.T) {
	w, mgr, _, eng, collector := newTestWorker(t)
	ctx := context.Background()
	eng.Err = errors.New("KeyError: missing column")
	ticket := commitRun(t, mgr, "single_input_genes")

	// An engine failure is a run outcome, not a tick failure.
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	run, _ := mgr.GetPipelineRunDefinition(ctx, ticket)
	if run.State != types.StateFailed {
		t.Errorf("State = %s, want failed", run.State)
	}
	if run.Error == nil || !strings.Contains(*run.Error, "missing column") {
		t.Errorf("Error = %v, want the engine error", run.Error)
	}
	if snap := collector.Snapshot(); snap.RunsFailed != 1 {
		t.Errorf("RunsFailed = %d, want 1", snap.RunsFailed)
	}
}

func TestWorker_TickProcessesOneRunPerPass(t *testing.T) {
	w, mgr, _, eng, _ := newTestWorker(t)
	ctx := context.Background()
	t1 := commitRun(t, mgr, "single_input_genes")
	t2 := commitRun(t, mgr, "single_input_genes")

	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	first, _ := mgr.GetPipelineRunDefinition(ctx, t1)
	second, _ := mgr.GetPipelineRunDefinition(ctx, t2)
	if first.State != types.StateSuccess {
		t.Errorf("oldest run = %s, want success after first tick", first.State)
	}
	if second.State != types.StateQueued {
		t.Errorf("newer run = %s, want still queued after first tick", second.State)
	}

	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	second, _ = mgr.GetPipelineRunDefinition(ctx, t2)
	if second.State != types.StateSuccess {
		t.Errorf("newer run = %s, want success after second tick", second.State)
	}
	if len(eng.Invocations()) != 2 {
		t.Errorf("invocations = %d, want 2", len(eng.Invocations()))
	}
}

func TestWorker_TickSweepsZombieQueueEntries(t *testing.T) {
	w, mgr, _, eng, _ := newTestWorker(t)
	ctx := context.Background()

	// A queue entry without a backing record must never be executed.
	if err := mgr.Store().ListPushLeft(ctx, state.KeyPipelineQueue, types.NewTicket().Hex()); err != nil {
		t.Fatalf("ListPushLeft() error = %v", err)
	}
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	entries, _ := mgr.Store().ListRange(ctx, state.KeyPipelineQueue, 0, -1)
	if len(entries) != 0 {
		t.Errorf("queue still holds zombie entries: %v", entries)
	}
	if len(eng.Invocations()) != 0 {
		t.Error("zombie entry reached the engine")
	}
}

func TestWorker_TickSweepsZombieDirectories(t *testing.T) {
	w, mgr, _, _, collector := newTestWorker(t)
	ctx := context.Background()

	live := commitRun(t, mgr, "single_input_genes")

	// A ticket-named directory with no record is an orphan and goes;
	// anything else under the cache dir is not ours to touch.
	orphan := filepath.Join(mgr.CacheDir(), types.NewTicket().Hex())
	if err := os.MkdirAll(filepath.Join(orphan, "input", "x"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	foreign := filepath.Join(mgr.CacheDir(), "lost+found")
	if err := os.MkdirAll(foreign, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("orphan directory still present, stat err = %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign directory was touched: %v", err)
	}
	if _, err := os.Stat(filepath.Join(mgr.CacheDir(), live.Hex())); err != nil {
		t.Errorf("live run directory was touched: %v", err)
	}
	if got := collector.Snapshot().ZombieDirsSwept; got != 1 {
		t.Errorf("ZombieDirsSwept = %d, want 1", got)
	}
}

func TestWorker_TickLifecycleSweeps(t *testing.T) {
	w, mgr, clock, _, collector := newTestWorker(t)
	ctx := context.Background()

	finished := commitRun(t, mgr, "single_input_genes")
	abandoned, _ := mgr.InitNewPipelineRun(ctx, types.PipelineParams{})
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	// Past the expiry window the finished run flips to expired and its
	// files are wiped; the record survives the deletion grace.
	clock.Advance(w.cfg.ExpiredAfter() + time.Minute)
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	run, err := mgr.GetPipelineRunDefinition(ctx, finished)
	if err != nil {
		t.Fatalf("GetPipelineRunDefinition() error = %v", err)
	}
	if run.State != types.StateExpired {
		t.Errorf("State = %s, want expired", run.State)
	}

	// The uncommitted record outlived its abandonment window in the same
	// pass and is gone entirely.
	if _, err := mgr.GetPipelineRunDefinition(ctx, abandoned); !errors.Is(err, state.ErrRecordNotFound) {
		t.Errorf("abandoned record error = %v, want ErrRecordNotFound", err)
	}

	// Past the grace the expired record is deleted too.
	clock.Advance(w.cfg.DeletedAfter() + time.Minute)
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if _, err := mgr.GetPipelineRunDefinition(ctx, finished); !errors.Is(err, state.ErrRecordNotFound) {
		t.Errorf("expired record error = %v, want ErrRecordNotFound", err)
	}

	snap := collector.Snapshot()
	if snap.RunsExpired != 1 || snap.RecordsDeleted != 1 || snap.RunsAbandoned != 1 {
		t.Errorf("snapshot = %+v, want one expired, one deleted, one abandoned", snap)
	}
}

func TestWorker_TickPrunesAgedStatistics(t *testing.T) {
	w, mgr, clock, _, collector := newTestWorker(t)
	ctx := context.Background()

	commitRun(t, mgr, "single_input_genes")
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	points, _ := mgr.Store().ListRange(ctx, state.KeyPipelineStatistics, 0, -1)
	if len(points) != 1 {
		t.Fatalf("statistics after run = %d points, want 1", len(points))
	}

	clock.Advance(time.Duration(w.cfg.MaxStatisticsAgeDays+1) * 24 * time.Hour)
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	points, _ = mgr.Store().ListRange(ctx, state.KeyPipelineStatistics, 0, -1)
	if len(points) != 0 {
		t.Errorf("statistics after prune = %d points, want 0", len(points))
	}
	if snap := collector.Snapshot(); snap.StatsPruned != 1 {
		t.Errorf("StatsPruned = %d, want 1", snap.StatsPruned)
	}
}

func TestWorker_ExceptionBudget(t *testing.T) {
	w, mgr, _, _, _ := newTestWorker(t)
	ctx := context.Background()

	for i := 0; i < w.cfg.WorkerRestartBudget; i++ {
		exhausted, err := w.bumpExceptionCount(ctx)
		if err != nil {
			t.Fatalf("bumpExceptionCount() error = %v", err)
		}
		if exhausted {
			t.Fatalf("budget exhausted after %d failures, want %d tolerated", i+1, w.cfg.WorkerRestartBudget)
		}
	}
	exhausted, err := w.bumpExceptionCount(ctx)
	if err != nil {
		t.Fatalf("bumpExceptionCount() error = %v", err)
	}
	if !exhausted {
		t.Errorf("budget not exhausted after %d failures", w.cfg.WorkerRestartBudget+1)
	}

	// The counter is persistent; a reset restores the full budget.
	if err := mgr.Store().CounterSet(ctx, state.KeyWorkerExceptionCount, 0); err != nil {
		t.Fatalf("CounterSet() error = %v", err)
	}
	if exhausted, _ := w.bumpExceptionCount(ctx); exhausted {
		t.Error("budget exhausted right after reset")
	}
}

func TestWorker_StartRecoversAndStops(t *testing.T) {
	w, mgr, _, _, collector := newTestWorker(t)
	ctx := context.Background()

	// A run left in running from a previous process fails on startup.
	stranded := commitRun(t, mgr, "single_input_genes")
	if _, err := mgr.GetNextPipelineRunFromQueue(ctx, true); err != nil {
		t.Fatalf("GetNextPipelineRunFromQueue() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	deadline := time.After(5 * time.Second)
	for !w.Healthy() {
		select {
		case <-deadline:
			t.Fatal("worker never ticked")
		case <-time.After(10 * time.Millisecond):
		}
	}
	w.Stop()
	if err := <-errCh; err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	run, _ := mgr.GetPipelineRunDefinition(ctx, stranded)
	if run.State != types.StateFailed {
		t.Errorf("stranded run = %s, want failed", run.State)
	}
	if run.Error == nil || !strings.Contains(*run.Error, "worker restarted") {
		t.Errorf("stranded run error = %v, want worker restarted", run.Error)
	}
	if snap := collector.Snapshot(); snap.StrandedRecover != 1 {
		t.Errorf("StrandedRecover = %d, want 1", snap.StrandedRecover)
	}
}

func TestWorker_StopLogsMetricsSnapshot(t *testing.T) {
	cfg := config.Default()
	cfg.PipelineRunsCacheDir = t.TempDir()
	cfg.WorkerTickPause = config.Duration{Duration: 5 * time.Millisecond}
	mgr := state.NewManager(memstore.New(), cfg, log.NewLogger("test"))
	adapter := engine.NewAdapter(mgr, &enginetest.Fake{}, log.NewLogger("test"))

	var buf bytes.Buffer
	w := New(mgr, adapter, cfg, log.NewLogger("worker").WithOutput(&buf), metrics.NewCollector())

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background()) }()
	deadline := time.After(5 * time.Second)
	for !w.Healthy() {
		select {
		case <-deadline:
			t.Fatal("worker never ticked")
		case <-time.After(10 * time.Millisecond):
		}
	}
	w.Stop()
	if err := <-errCh; err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "maintenance worker stopped") {
		t.Fatalf("no stop entry in log output: %s", out)
	}
	if !strings.Contains(out, `"ticks"`) || !strings.Contains(out, `"runs_processed"`) {
		t.Errorf("stop entry lacks counter fields: %s", out)
	}
}

func TestWorker_HealthyBeforeFirstTick(t *testing.T) {
	w, _, _, _, _ := newTestWorker(t)
	if w.Healthy() {
		t.Error("worker healthy before it ever ticked")
	}
	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if !w.Healthy() {
		t.Error("worker unhealthy right after a tick")
	}
}
