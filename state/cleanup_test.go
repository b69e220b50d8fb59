package state

import (
	"context"
	"testing"
	"time"

	"github.com/dife-bioinformatics/mekewe/types"
)

func finishRun(t *testing.T, m *Manager, ticket types.Ticket) {
	t.Helper()
	ctx := context.Background()
	if _, err := m.SetPipelineRunAsQueued(ctx, ticket, "single_input_genes"); err != nil {
		t.Fatalf("SetPipelineRunAsQueued() error = %v", err)
	}
	if _, err := m.GetNextPipelineRunFromQueue(ctx, true); err != nil {
		t.Fatalf("GetNextPipelineRunFromQueue() error = %v", err)
	}
	if _, err := m.SetPipelineStateAsFinished(ctx, ticket); err != nil {
		t.Fatalf("SetPipelineStateAsFinished() error = %v", err)
	}
}

func TestManager_ExpirySweep(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})
	finishRun(t, m, ticket)

	// Within the window nothing expires.
	if run, _ := m.GetNextPipelineThatIsExpired(ctx, true); run != nil {
		t.Fatalf("run expired inside the window: %v", run.Ticket.Hex())
	}

	clock.Advance(m.cfg.ExpiredAfter() + time.Minute)
	run, err := m.GetNextPipelineThatIsExpired(ctx, true)
	if err != nil {
		t.Fatalf("GetNextPipelineThatIsExpired() error = %v", err)
	}
	if run == nil || run.State != types.StateExpired {
		t.Fatalf("run = %+v, want expired", run)
	}

	// Idempotent: an already-expired run is not reported again.
	if again, _ := m.GetNextPipelineThatIsExpired(ctx, true); again != nil {
		t.Error("expired run reported twice")
	}
}

func TestManager_DeletableAfterGrace(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})
	finishRun(t, m, ticket)
	clock.Advance(m.cfg.ExpiredAfter() + time.Minute)
	_, _ = m.GetNextPipelineThatIsExpired(ctx, true)

	// Expired but still inside the deletion grace.
	if run, _ := m.GetNextPipelineThatIsDeletable(ctx); run != nil {
		t.Fatal("run deletable before the grace elapsed")
	}

	clock.Advance(m.cfg.DeletedAfter() + time.Minute)
	run, err := m.GetNextPipelineThatIsDeletable(ctx)
	if err != nil {
		t.Fatalf("GetNextPipelineThatIsDeletable() error = %v", err)
	}
	if run == nil || run.Ticket != ticket {
		t.Fatalf("deletable run = %v, want %s", run, ticket.Hex())
	}
}

func TestManager_AbandonedSweep(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})

	if run, _ := m.GetNextPipelineThatIsAbandoned(ctx); run != nil {
		t.Fatal("fresh record reported as abandoned")
	}

	clock.Advance(m.cfg.AbandonedAfter() + time.Minute)
	run, err := m.GetNextPipelineThatIsAbandoned(ctx)
	if err != nil {
		t.Fatalf("GetNextPipelineThatIsAbandoned() error = %v", err)
	}
	if run == nil || run.Ticket != ticket {
		t.Fatalf("abandoned run = %v, want %s", run, ticket.Hex())
	}

	// A committed run never counts as abandoned, however old.
	t2, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})
	finishRun(t, m, t2)
	clock.Advance(m.cfg.AbandonedAfter() * 10)
	_, _ = m.WipePipelineRun(ctx, ticket)
	_ = m.DeletePipelineStatus(ctx, ticket)
	if run, _ := m.GetNextPipelineThatIsAbandoned(ctx); run != nil {
		t.Errorf("finished run %s reported as abandoned", run.Ticket.Hex())
	}
}
