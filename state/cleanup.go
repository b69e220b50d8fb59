package state

import (
	"context"

	"github.com/dife-bioinformatics/mekewe/types"
)

// Lifecycle predicates. All windows are measured against the manager's
// clock so tests can advance time.

func (m *Manager) isExpired(run *types.PipelineRun) bool {
	if run.State != types.StateSuccess && run.State != types.StateFailed {
		return false
	}
	if run.FinishedAt == nil {
		return false
	}
	return m.now().Sub(*run.FinishedAt) > m.cfg.ExpiredAfter()
}

func (m *Manager) isDeletable(run *types.PipelineRun) bool {
	if run.State != types.StateExpired {
		return false
	}
	if run.FinishedAt == nil {
		return true
	}
	return m.now().Sub(*run.FinishedAt) > m.cfg.ExpiredAfter()+m.cfg.DeletedAfter()
}

func (m *Manager) isAbandoned(run *types.PipelineRun) bool {
	if run.State != types.StateInitialized {
		return false
	}
	return m.now().Sub(run.CreatedAt) > m.cfg.AbandonedAfter()
}

// GetNextPipelineThatIsExpired returns one finished run past its expiry
// window, or nil if none. When setExpired is true the run is wiped:
// files removed, state flipped to expired, file names cleared.
func (m *Manager) GetNextPipelineThatIsExpired(ctx context.Context, setExpired bool) (*types.PipelineRun, error) {
	runs, err := m.AllPipelineRunDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if !m.isExpired(run) {
			continue
		}
		if setExpired {
			return m.WipePipelineRun(ctx, run.Ticket)
		}
		return run, nil
	}
	return nil, nil
}

// GetNextPipelineThatIsDeletable returns one expired run past its
// deletion grace, or nil if none. The caller deletes the record.
func (m *Manager) GetNextPipelineThatIsDeletable(ctx context.Context) (*types.PipelineRun, error) {
	runs, err := m.AllPipelineRunDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if m.isDeletable(run) {
			return run, nil
		}
	}
	return nil, nil
}

// GetNextPipelineThatIsAbandoned returns one uncommitted run past the
// abandonment window, or nil if none.
func (m *Manager) GetNextPipelineThatIsAbandoned(ctx context.Context) (*types.PipelineRun, error) {
	runs, err := m.AllPipelineRunDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if m.isAbandoned(run) {
			return run, nil
		}
	}
	return nil, nil
}
