package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dife-bioinformatics/mekewe/iox"
	"github.com/dife-bioinformatics/mekewe/log"
	"github.com/dife-bioinformatics/mekewe/params"
	"github.com/dife-bioinformatics/mekewe/state"
	"github.com/dife-bioinformatics/mekewe/types"
)

// Adapter drives one analysis run end to end: parameter resolution,
// engine execution with live log capture, and result archiving. A
// failure never escapes as a panic; it lands on the run record so the
// finish flip derives the failed state.
type Adapter struct {
	mgr    *state.Manager
	engine Engine
	logger *log.Logger
}

// NewAdapter wires an adapter over the state manager and an engine.
func NewAdapter(mgr *state.Manager, eng Engine, logger *log.Logger) *Adapter {
	return &Adapter{mgr: mgr, engine: eng, logger: logger}
}

// Execute runs the committed analysis method for a claimed run. On
// engine failure the error is recorded on the run and returned; the
// caller still flips the run to finished either way.
func (a *Adapter) Execute(ctx context.Context, run *types.PipelineRun) error {
	inv, err := a.buildInvocation(run)
	if err != nil {
		return a.recordFailure(ctx, run, err)
	}
	if err := os.MkdirAll(inv.OutputDir, 0o755); err != nil {
		return a.recordFailure(ctx, run, fmt.Errorf("create output dir: %w", err))
	}

	logger := a.logger.WithTicket(run.Ticket.Hex())
	out := newLineWriter(func(line string) {
		run.AppendOutputLine(line)
		// Persist per line so polling clients can follow progress.
		if err := a.mgr.SetPipelineRunDefinition(ctx, run); err != nil {
			logger.Warn("failed to persist output log line", map[string]any{
				"error": err.Error(),
			})
		}
	})
	runErr := a.engine.Run(ctx, inv, out)
	out.Flush()
	if runErr != nil {
		return a.recordFailure(ctx, run, runErr)
	}

	zipName := run.GenerateOutputZipFileName(time.Now())
	zipPath := filepath.Join(inv.OutputDir, zipName)
	if err := iox.ZipDirectory(inv.OutputDir, zipPath); err != nil {
		return a.recordFailure(ctx, run, fmt.Errorf("archive outputs: %w", err))
	}
	run.PipelineOutputZipFileName = &zipName
	if err := a.mgr.SetPipelineRunDefinition(ctx, run); err != nil {
		return err
	}
	logger.Info("analysis finished", map[string]any{
		"zip": zipName,
	})
	return nil
}

// buildInvocation resolves and validates every parameter of the run.
// File parameters are replaced by the on-disk paths of their attached
// files; a non-list file parameter collapses to its single path.
func (a *Adapter) buildInvocation(run *types.PipelineRun) (*Invocation, error) {
	if run.PipelineAnalysesMethod == nil {
		return nil, fmt.Errorf("run has no committed analysis method")
	}
	methodName := run.PipelineAnalysesMethod.Name

	globals := make(map[string]any, len(run.PipelineParams.GlobalParams))
	for name, val := range run.PipelineParams.GlobalParams {
		globals[name] = val
	}
	methodParams := make(map[string]any, len(run.PipelineParams.MethodSpecificParams))
	for name, val := range run.PipelineParams.MethodSpecificParams {
		methodParams[name] = val
	}
	a.substituteFilePaths(run, params.GlobalDescriptors(), globals)
	a.substituteFilePaths(run, params.MethodDescriptors(methodName), methodParams)

	globals, err := params.GlobalValidator(params.ScopeAll).Validate(globals)
	if err != nil {
		return nil, err
	}
	mv, err := params.MethodValidator(methodName, params.ScopeAll)
	if err != nil {
		return nil, err
	}
	methodParams, err = mv.Validate(methodParams)
	if err != nil {
		return nil, err
	}

	return &Invocation{
		Method:       methodName,
		GlobalParams: globals,
		MethodParams: methodParams,
		OutputDir:    run.OutputFilesDir(a.mgr.CacheDir()),
	}, nil
}

func (a *Adapter) substituteFilePaths(run *types.PipelineRun, descriptors []params.Descriptor, values map[string]any) {
	for _, d := range descriptors {
		if d.Type != params.TypeFile {
			continue
		}
		paths := run.InputFilePaths(a.mgr.CacheDir(), d.Name)
		switch {
		case len(paths) == 0:
			delete(values, d.Name)
		case d.IsList:
			vals := make([]any, len(paths))
			for i, p := range paths {
				vals[i] = p
			}
			values[d.Name] = vals
		default:
			values[d.Name] = paths[0]
		}
	}
}

// recordFailure persists err onto the run so the finish flip lands in
// failed, then returns it for the caller's log.
func (a *Adapter) recordFailure(ctx context.Context, run *types.PipelineRun, failure error) error {
	run.SetError(failure.Error(), "")
	if err := a.mgr.SetPipelineRunDefinition(ctx, run); err != nil {
		return fmt.Errorf("persist run failure: %w (original: %v)", err, failure)
	}
	return failure
}
