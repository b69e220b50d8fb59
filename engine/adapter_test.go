package engine

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/dife-bioinformatics/mekewe/config"
	"github.com/dife-bioinformatics/mekewe/log"
	"github.com/dife-bioinformatics/mekewe/params"
	"github.com/dife-bioinformatics/mekewe/state"
	"github.com/dife-bioinformatics/mekewe/store/memstore"
	"github.com/dife-bioinformatics/mekewe/types"
)

// fakeEngine is a minimal in-package engine double; the enginetest
// package provides the exported one for other packages.
type fakeEngine struct {
	run func(ctx context.Context, inv *Invocation, out io.Writer) error
}

func (f *fakeEngine) Run(ctx context.Context, inv *Invocation, out io.Writer) error {
	return f.run(ctx, inv, out)
}

func newTestAdapter(t *testing.T, eng Engine) (*Adapter, *state.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.PipelineRunsCacheDir = t.TempDir()
	mgr := state.NewManager(memstore.New(), cfg, log.NewLogger("test"))
	return NewAdapter(mgr, eng, log.NewLogger("test")), mgr
}

func claimRun(t *testing.T, mgr *state.Manager, method string) *types.PipelineRun {
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
	run, err := mgr.GetNextPipelineRunFromQueue(ctx, true)
	if err != nil || run == nil {
		t.Fatalf("GetNextPipelineRunFromQueue() = %v, %v", run, err)
	}
	return run
}

func TestAdapter_ExecuteSuccess(t *testing.T) {
	var got *Invocation
	eng := &fakeEngine{run: func(_ context.Context, inv *Invocation, out io.Writer) error {
		got = inv
		fmt.Fprintln(out, "pathway analysis started")
		fmt.Fprintln(out, "pathway analysis done")
		return os.WriteFile(inv.OutputDir+"/result.pdf", []byte("pdf"), 0o644)
	}}
	adapter, mgr := newTestAdapter(t, eng)
	run := claimRun(t, mgr, "single_input_genes")

	if err := adapter.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got.Method != "single_input_genes" {
		t.Errorf("invocation method = %q", got.Method)
	}
	// The file parameter arrives as on-disk paths, not client names.
	paths, ok := got.GlobalParams[params.InputFileParam].([]any)
	if !ok || len(paths) != 1 || !strings.HasSuffix(paths[0].(string), "genes.xlsx") {
		t.Errorf("input_file_path = %#v, want one resolved path", got.GlobalParams[params.InputFileParam])
	}

	stored, _ := mgr.GetPipelineRunDefinition(context.Background(), run.Ticket)
	if stored.OutputLog == nil || !strings.Contains(*stored.OutputLog, "pathway analysis done") {
		t.Errorf("output log = %v", stored.OutputLog)
	}
	if stored.PipelineOutputZipFileName == nil {
		t.Fatal("no output zip recorded")
	}
	if !strings.HasPrefix(*stored.PipelineOutputZipFileName, "output-metakegg-single_input_genes_") {
		t.Errorf("zip name = %q", *stored.PipelineOutputZipFileName)
	}

	// The zip holds the produced file; the loose original is archived away.
	zr, err := zip.OpenReader(stored.OutputZipFilePath(mgr.CacheDir()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Name != "result.pdf" {
		t.Errorf("zip contents = %v", zr.File)
	}
	if _, err := os.Stat(run.OutputFilesDir(mgr.CacheDir()) + "/result.pdf"); !os.IsNotExist(err) {
		t.Error("loose output file left beside the zip")
	}
}

func TestAdapter_ExecuteEngineFailureRecorded(t *testing.T) {
	eng := &fakeEngine{run: func(context.Context, *Invocation, io.Writer) error {
		return errors.New("KeyError: missing column")
	}}
	adapter, mgr := newTestAdapter(t, eng)
	run := claimRun(t, mgr, "single_input_genes")

	err := adapter.Execute(context.Background(), run)
	if err == nil {
		t.Fatal("Execute() returned nil for a failing engine")
	}
	stored, _ := mgr.GetPipelineRunDefinition(context.Background(), run.Ticket)
	if stored.Error == nil || !strings.Contains(*stored.Error, "missing column") {
		t.Errorf("stored error = %v", stored.Error)
	}
	if stored.PipelineOutputZipFileName != nil {
		t.Error("failed run recorded an output zip")
	}
}

func TestAdapter_ExecuteMissingRequiredParam(t *testing.T) {
	eng := &fakeEngine{run: func(context.Context, *Invocation, io.Writer) error {
		t.Fatal("engine must not run when validation fails")
		return nil
	}}
	adapter, mgr := newTestAdapter(t, eng)

	// Commit a methylation run without its required methylation_path file.
	run := claimRun(t, mgr, "single_input_with_methylation")
	if err := adapter.Execute(context.Background(), run); err == nil {
		t.Fatal("Execute() accepted a run missing a required file parameter")
	}
	stored, _ := mgr.GetPipelineRunDefinition(context.Background(), run.Ticket)
	if stored.Error == nil {
		t.Error("validation failure not recorded on the run")
	}
}
