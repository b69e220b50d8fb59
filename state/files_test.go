package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dife-bioinformatics/mekewe/params"
	"github.com/dife-bioinformatics/mekewe/types"
)

func TestManager_AttachInputFile(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})

	run, err := m.AttachPipelineRunInputFile(ctx, ticket, params.InputFileParam,
		"genes.xlsx", strings.NewReader("xlsx-bytes"))
	if err != nil {
		t.Fatalf("AttachPipelineRunInputFile() error = %v", err)
	}
	names := run.PipelineInputFileNames[params.InputFileParam]
	if len(names) != 1 || names[0] != "genes.xlsx" {
		t.Fatalf("file names = %v, want [genes.xlsx]", names)
	}
	path := run.InputFilePath(m.CacheDir(), params.InputFileParam, "genes.xlsx")
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "xlsx-bytes" {
		t.Errorf("stored file = %q, %v", data, err)
	}
}

func TestManager_AttachSanitizesFilename(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})

	run, err := m.AttachPipelineRunInputFile(ctx, ticket, params.InputFileParam,
		"../weird name!.xlsx", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("AttachPipelineRunInputFile() error = %v", err)
	}
	names := run.PipelineInputFileNames[params.InputFileParam]
	if len(names) != 1 || names[0] != "..weirdname.xlsx" {
		t.Errorf("file names = %v, want [..weirdname.xlsx]", names)
	}
}

func TestManager_AttachReuploadNoDuplicate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})

	_, _ = m.AttachPipelineRunInputFile(ctx, ticket, params.InputFileParam, "a.xlsx", strings.NewReader("v1"))
	run, err := m.AttachPipelineRunInputFile(ctx, ticket, params.InputFileParam, "a.xlsx", strings.NewReader("v2"))
	if err != nil {
		t.Fatalf("re-upload error = %v", err)
	}
	names := run.PipelineInputFileNames[params.InputFileParam]
	if len(names) != 1 {
		t.Fatalf("file names = %v, want single entry", names)
	}
	data, _ := os.ReadFile(run.InputFilePath(m.CacheDir(), params.InputFileParam, "a.xlsx"))
	if string(data) != "v2" {
		t.Errorf("content = %q, want v2 (overwrite)", data)
	}
}

func TestManager_AttachSingleFileParamCascades(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})

	// methylation_path is a non-list file parameter.
	_, _ = m.AttachPipelineRunInputFile(ctx, ticket, "methylation_path", "old.csv", strings.NewReader("old"))
	run, err := m.AttachPipelineRunInputFile(ctx, ticket, "methylation_path", "new.csv", strings.NewReader("new"))
	if err != nil {
		t.Fatalf("AttachPipelineRunInputFile() error = %v", err)
	}
	names := run.PipelineInputFileNames["methylation_path"]
	if len(names) != 1 || names[0] != "new.csv" {
		t.Fatalf("file names = %v, want [new.csv]", names)
	}
	oldPath := filepath.Join(run.InputFileDir(m.CacheDir(), "methylation_path"), "old.csv")
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("previous single-param file still on disk")
	}
}

func TestManager_AttachRejectsNonFileParam(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})

	_, err := m.AttachPipelineRunInputFile(ctx, ticket, "count_threshold", "x.xlsx", strings.NewReader("x"))
	if !errors.Is(err, ErrBadParameter) {
		t.Errorf("non-file param error = %v, want ErrBadParameter", err)
	}
	_, err = m.AttachPipelineRunInputFile(ctx, ticket, "no_such", "x.xlsx", strings.NewReader("x"))
	if !errors.Is(err, ErrBadParameter) {
		t.Errorf("unknown param error = %v, want ErrBadParameter", err)
	}
}

func TestManager_AttachWhileQueuedRejected(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})
	_, _ = m.SetPipelineRunAsQueued(ctx, ticket, "single_input_genes")

	_, err := m.AttachPipelineRunInputFile(ctx, ticket, params.InputFileParam, "x.xlsx", strings.NewReader("x"))
	if !errors.Is(err, ErrBadState) {
		t.Errorf("error = %v, want ErrBadState", err)
	}
}

func TestManager_AttachZeroByteFile(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})

	run, err := m.AttachPipelineRunInputFile(ctx, ticket, params.InputFileParam, "empty.xlsx", strings.NewReader(""))
	if err != nil {
		t.Fatalf("zero-byte upload error = %v", err)
	}
	if len(run.PipelineInputFileNames[params.InputFileParam]) != 1 {
		t.Error("zero-byte upload not recorded")
	}
}

func TestManager_AttachCacheCapExceeded(t *testing.T) {
	m, _ := newTestManager(t)
	m.cfg.MaxCacheSizeBytes = 8
	ctx := context.Background()
	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})

	_, err := m.AttachPipelineRunInputFile(ctx, ticket, params.InputFileParam,
		"big.xlsx", strings.NewReader("way more than eight bytes"))
	if !errors.Is(err, ErrOutOfStorage) {
		t.Fatalf("error = %v, want ErrOutOfStorage", err)
	}

	// The partial write is removed and the name is not recorded.
	run, _ := m.GetPipelineRunDefinition(ctx, ticket)
	if len(run.PipelineInputFileNames[params.InputFileParam]) != 0 {
		t.Errorf("file names = %v, want empty", run.PipelineInputFileNames)
	}
	usage, _ := m.CacheUsageSizeBytes()
	if usage != 0 {
		t.Errorf("cache usage = %d, want 0 after rejected upload", usage)
	}
}

func TestManager_RemoveInputFile(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})

	_, _ = m.AttachPipelineRunInputFile(ctx, ticket, params.InputFileParam, "a.xlsx", strings.NewReader("a"))
	run, err := m.RemovePipelineRunInputFile(ctx, ticket, params.InputFileParam, "a.xlsx")
	if err != nil {
		t.Fatalf("RemovePipelineRunInputFile() error = %v", err)
	}
	if len(run.PipelineInputFileNames[params.InputFileParam]) != 0 {
		t.Errorf("file names = %v, want empty", run.PipelineInputFileNames)
	}

	// Removing an unattached file is logged, not an error.
	if _, err := m.RemovePipelineRunInputFile(ctx, ticket, params.InputFileParam, "ghost.xlsx"); err != nil {
		t.Errorf("remove of unattached file error = %v, want nil", err)
	}
}

func TestManager_WipeClearsEverything(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	ticket, _ := m.InitNewPipelineRun(ctx, types.PipelineParams{})
	_, _ = m.AttachPipelineRunInputFile(ctx, ticket, params.InputFileParam, "a.xlsx", strings.NewReader("a"))

	run, err := m.WipePipelineRun(ctx, ticket)
	if err != nil {
		t.Fatalf("WipePipelineRun() error = %v", err)
	}
	if run.State != types.StateExpired {
		t.Errorf("State = %s, want expired", run.State)
	}
	if run.PipelineInputFileNames != nil || run.PipelineOutputZipFileName != nil {
		t.Error("wipe kept file names or zip name")
	}
	if _, err := os.Stat(run.FilesBaseDir(m.CacheDir())); !os.IsNotExist(err) {
		t.Error("wipe left the ticket directory on disk")
	}
}
