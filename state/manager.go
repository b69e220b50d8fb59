package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dife-bioinformatics/mekewe/config"
	"github.com/dife-bioinformatics/mekewe/log"
	"github.com/dife-bioinformatics/mekewe/params"
	"github.com/dife-bioinformatics/mekewe/store"
	"github.com/dife-bioinformatics/mekewe/types"
)

// Store keys used by the core.
const (
	KeyPipelineStates       = "pipeline_states"
	KeyPipelineQueue        = "pipeline_queue"
	KeyPipelineStatistics   = "pipeline_statistics"
	KeyWorkerExceptionCount = "METAKEGG_WORKER_EXCEPTION_COUNT"
)

// Manager owns every mutation of pipeline-run records. The HTTP surface
// and the maintenance worker both go through it; they share no state
// besides the store and the cache directory.
type Manager struct {
	store  store.Store
	cfg    *config.Config
	logger *log.Logger

	// now is injectable for lifecycle tests with a simulated clock.
	now func() time.Time
}

// NewManager creates a state manager over the given store.
func NewManager(st store.Store, cfg *config.Config, logger *log.Logger) *Manager {
	return &Manager{
		store:  st,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the manager's clock. For tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Store exposes the underlying store for health checks and the worker's
// exception counter.
func (m *Manager) Store() store.Store { return m.store }

// CacheDir returns the cache root for per-ticket files.
func (m *Manager) CacheDir() string { return m.cfg.PipelineRunsCacheDir }

// InitNewPipelineRun creates a record with a fresh ticket in state
// initialized and persists it. Partial params are stored as provided.
func (m *Manager) InitNewPipelineRun(ctx context.Context, p types.PipelineParams) (types.Ticket, error) {
	if p.GlobalParams == nil {
		p.GlobalParams = map[string]any{}
	}
	if p.MethodSpecificParams == nil {
		p.MethodSpecificParams = map[string]any{}
	}
	run := &types.PipelineRun{
		Ticket:         types.NewTicket(),
		State:          types.StateInitialized,
		PipelineParams: p,
		CreatedAt:      m.now(),
	}
	if err := m.SetPipelineRunDefinition(ctx, run); err != nil {
		return types.Ticket{}, err
	}
	return run.Ticket, nil
}

// GetPipelineRunDefinition loads a record. When the run is queued, the
// live queue position is folded into PlaceInQueue (one-based).
func (m *Manager) GetPipelineRunDefinition(ctx context.Context, ticket types.Ticket) (*types.PipelineRun, error) {
	raw, ok, err := m.store.HashGet(ctx, KeyPipelineStates, ticket.Hex())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(ErrRecordNotFound, "get_pipeline_run_definition", ticket.Hex(), nil)
	}
	var run types.PipelineRun
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, fmt.Errorf("decode run record %s: %w", ticket.Hex(), err)
	}
	if run.State == types.StateQueued {
		pos, found, err := m.store.ListPosition(ctx, KeyPipelineQueue, ticket.Hex())
		if err != nil {
			return nil, err
		}
		if found {
			// Tickets are pushed at the head and popped from the tail, so
			// the place counts from the tail: the next run to be claimed
			// is place 1.
			length, err := m.store.ListLength(ctx, KeyPipelineQueue)
			if err != nil {
				return nil, err
			}
			place := int(length - pos)
			run.PlaceInQueue = &place
		}
	}
	return &run, nil
}

// SetPipelineRunDefinition overwrites the stored record for its ticket.
func (m *Manager) SetPipelineRunDefinition(ctx context.Context, run *types.PipelineRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run record %s: %w", run.Ticket.Hex(), err)
	}
	return m.store.HashSet(ctx, KeyPipelineStates, run.Ticket.Hex(), string(data))
}

// AllPipelineRunDefinitions returns every stored record, in no
// particular order.
func (m *Manager) AllPipelineRunDefinitions(ctx context.Context) ([]*types.PipelineRun, error) {
	all, err := m.store.HashGetAll(ctx, KeyPipelineStates)
	if err != nil {
		return nil, err
	}
	runs := make([]*types.PipelineRun, 0, len(all))
	for hex, raw := range all {
		var run types.PipelineRun
		if err := json.Unmarshal([]byte(raw), &run); err != nil {
			return nil, fmt.Errorf("decode run record %s: %w", hex, err)
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// KnownTicketSet returns the set of ticket hex ids with stored records.
// Used by the worker's zombie sweep.
func (m *Manager) KnownTicketSet(ctx context.Context) (map[string]bool, error) {
	all, err := m.store.HashGetAll(ctx, KeyPipelineStates)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(all))
	for hex := range all {
		known[hex] = true
	}
	return known, nil
}

// UpdatePipelineRunParams merges non-file parameters into the record
// (PATCH semantics). Allowed only while the run is editable: not
// queued, running, or expired.
func (m *Manager) UpdatePipelineRunParams(ctx context.Context, ticket types.Ticket, patch types.PipelineParams) (*types.PipelineRun, error) {
	run, err := m.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		return nil, err
	}
	switch run.State {
	case types.StateQueued, types.StateRunning, types.StateExpired:
		return nil, newError(ErrBadState, "update_pipeline_run_params", ticket.Hex(), nil)
	}

	// Only the supplied keys are validated and merged; defaults are
	// filled at invocation time, not here, so a patch never disturbs
	// values from earlier requests.
	globals, err := params.GlobalValidator(params.ScopeNonFiles).ValidateSupplied(patch.GlobalParams)
	if err != nil {
		return nil, newError(ErrBadParameter, "update_pipeline_run_params", ticket.Hex(), err)
	}
	for name, val := range globals {
		run.PipelineParams.GlobalParams[name] = val
	}
	for name, val := range patch.MethodSpecificParams {
		d := params.Find(name)
		if d == nil {
			return nil, newError(ErrBadParameter, "update_pipeline_run_params", ticket.Hex(),
				fmt.Errorf("unrecognized parameter %q", name))
		}
		if d.Type == params.TypeFile {
			return nil, newError(ErrBadParameter, "update_pipeline_run_params", ticket.Hex(),
				fmt.Errorf("parameter %q is file-typed, use the upload endpoint", name))
		}
		coerced, err := d.Coerce(val)
		if err != nil {
			return nil, newError(ErrBadParameter, "update_pipeline_run_params", ticket.Hex(), err)
		}
		run.PipelineParams.MethodSpecificParams[name] = coerced
	}

	if err := m.SetPipelineRunDefinition(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// SetPipelineRunAsQueued commits the run to the named analysis method
// and pushes its ticket onto the dispatch queue. Error fields, the
// output log and any previous result zip are reset so a failed run can
// be re-committed cleanly.
func (m *Manager) SetPipelineRunAsQueued(ctx context.Context, ticket types.Ticket, methodName string) (*types.PipelineRun, error) {
	method := params.FindMethod(methodName)
	if method == nil {
		return nil, newError(ErrBadParameter, "set_pipeline_run_as_queued", ticket.Hex(),
			fmt.Errorf("unknown analysis method %q", methodName))
	}
	run, err := m.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		return nil, err
	}
	switch run.State {
	case types.StateQueued, types.StateRunning, types.StateExpired:
		return nil, newError(ErrBadState, "set_pipeline_run_as_queued", ticket.Hex(), nil)
	}

	// Reset leftovers from a previous run.
	run.Error = nil
	run.ErrorTraceback = nil
	run.OutputLog = nil
	run.FinishedAt = nil
	if zipPath := run.OutputZipFilePath(m.cfg.PipelineRunsCacheDir); zipPath != "" {
		if err := os.Remove(zipPath); err != nil && !os.IsNotExist(err) {
			return nil, newError(ErrFilesystem, "set_pipeline_run_as_queued", ticket.Hex(), err)
		}
		run.PipelineOutputZipFileName = nil
	}

	now := m.now()
	run.State = types.StateQueued
	run.QueuedAt = &now
	methodCopy := method.AnalysisMethod
	run.PipelineAnalysesMethod = &methodCopy

	// Queue length is read pre-push so the caller sees its place.
	length, err := m.store.ListLength(ctx, KeyPipelineQueue)
	if err != nil {
		return nil, err
	}
	if err := m.SetPipelineRunDefinition(ctx, run); err != nil {
		return nil, err
	}
	if err := m.store.ListPushLeft(ctx, KeyPipelineQueue, ticket.Hex()); err != nil {
		return nil, err
	}
	place := int(length) + 1
	run.PlaceInQueue = &place

	m.logger.Info("pipeline-run added to queue", map[string]any{
		"ticket": ticket.Hex(),
		"method": methodName,
		"place":  place,
	})
	return run, nil
}

// SetPipelineStateAsRunning flips the run to running and stamps
// started_at.
func (m *Manager) SetPipelineStateAsRunning(ctx context.Context, ticket types.Ticket) (*types.PipelineRun, error) {
	run, err := m.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		return nil, err
	}
	now := m.now()
	run.State = types.StateRunning
	run.StartedAt = &now
	if err := m.SetPipelineRunDefinition(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// SetPipelineStateAsFinished flips the run to failed when an error was
// recorded, success otherwise, stamps finished_at, and appends a
// statistic point.
func (m *Manager) SetPipelineStateAsFinished(ctx context.Context, ticket types.Ticket) (*types.PipelineRun, error) {
	run, err := m.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if run.Error != nil {
		run.State = types.StateFailed
	} else {
		run.State = types.StateSuccess
	}
	now := m.now()
	run.FinishedAt = &now
	if err := m.SetPipelineRunDefinition(ctx, run); err != nil {
		return nil, err
	}
	if err := m.CreatePipelineRunStatisticPoint(ctx, run); err != nil {
		m.logger.Warn("failed to append statistic point", map[string]any{
			"ticket": ticket.Hex(),
			"error":  err.Error(),
		})
	}
	return run, nil
}

// WipePipelineRun recursively deletes the run's cache directory, flips
// it to expired, and clears the file-name map and the output zip name.
func (m *Manager) WipePipelineRun(ctx context.Context, ticket types.Ticket) (*types.PipelineRun, error) {
	run, err := m.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		return nil, err
	}
	baseDir := run.FilesBaseDir(m.cfg.PipelineRunsCacheDir)
	if err := os.RemoveAll(baseDir); err != nil {
		return nil, newError(ErrFilesystem, "wipe_pipeline_run", ticket.Hex(), err)
	}
	run.State = types.StateExpired
	run.PipelineInputFileNames = nil
	run.PipelineOutputZipFileName = nil
	if err := m.SetPipelineRunDefinition(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// DeletePipelineStatus removes the record from the store. Files must
// already have been wiped; statistics stay.
func (m *Manager) DeletePipelineStatus(ctx context.Context, ticket types.Ticket) error {
	return m.store.HashDelete(ctx, KeyPipelineStates, ticket.Hex())
}

// GetNextPipelineRunFromQueue pops the oldest queued ticket. When
// setRunning is true the popped run is flipped to running in the same
// call, which is how the worker claims a run.
func (m *Manager) GetNextPipelineRunFromQueue(ctx context.Context, setRunning bool) (*types.PipelineRun, error) {
	hex, ok, err := m.store.ListPopRight(ctx, KeyPipelineQueue)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	ticket, err := types.ParseTicketHex(hex)
	if err != nil {
		return nil, err
	}
	m.logger.Info("picked up next pipeline-run from queue", map[string]any{
		"ticket": hex,
	})
	run, err := m.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if setRunning {
		return m.SetPipelineStateAsRunning(ctx, ticket)
	}
	return run, nil
}

// RecoverStrandedRuns marks every record left in running as failed and
// returns how many it touched. Called once on worker boot: with a
// single worker, a running record without an active worker means the
// previous process died mid-run.
func (m *Manager) RecoverStrandedRuns(ctx context.Context) (int, error) {
	runs, err := m.AllPipelineRunDefinitions(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, run := range runs {
		if run.State != types.StateRunning {
			continue
		}
		m.logger.Warn("recovering stranded pipeline-run", map[string]any{
			"ticket": run.Ticket.Hex(),
		})
		// Persist the error first: the finish flip reloads the record
		// and derives failed from the stored error field.
		run.SetError("worker restarted", "")
		if err := m.SetPipelineRunDefinition(ctx, run); err != nil {
			return recovered, err
		}
		if _, err := m.SetPipelineStateAsFinished(ctx, run.Ticket); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}
