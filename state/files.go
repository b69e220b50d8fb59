package state

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/dife-bioinformatics/mekewe/iox"
	"github.com/dife-bioinformatics/mekewe/params"
	"github.com/dife-bioinformatics/mekewe/types"
)

// AttachPipelineRunInputFile stores an uploaded file under the run's
// input directory for the given file parameter and records it in the
// file-name map. A re-upload of the same name overwrites without
// duplicating the entry; a non-list parameter keeps at most one file.
func (m *Manager) AttachPipelineRunInputFile(ctx context.Context, ticket types.Ticket, paramName, filename string, content io.Reader) (*types.PipelineRun, error) {
	const op = "attach_pipeline_run_input_file"

	desc := params.Find(paramName)
	if desc == nil || desc.Type != params.TypeFile {
		return nil, newError(ErrBadParameter, op, ticket.Hex(),
			fmt.Errorf("no file parameter named %q", paramName))
	}

	run, err := m.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		return nil, err
	}
	switch run.State {
	case types.StateQueued, types.StateRunning, types.StateExpired:
		return nil, newError(ErrBadState, op, ticket.Hex(), nil)
	}

	cleanName := iox.SanitizeFilename(filename)
	if cleanName == "" {
		// Nameless uploads get a generated name.
		cleanName = uuid.New().String()
	}

	if run.PipelineInputFileNames == nil {
		run.PipelineInputFileNames = map[string][]string{}
	}

	// A single-file parameter cascades: the previous file goes first.
	if !desc.IsList {
		if existing := run.PipelineInputFileNames[paramName]; len(existing) > 0 && existing[0] != cleanName {
			run, err = m.RemovePipelineRunInputFile(ctx, ticket, paramName, existing[0])
			if err != nil {
				return nil, err
			}
			if run.PipelineInputFileNames == nil {
				run.PipelineInputFileNames = map[string][]string{}
			}
		}
	}

	dir := run.InputFileDir(m.cfg.PipelineRunsCacheDir, paramName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newError(ErrFilesystem, op, ticket.Hex(), err)
	}
	target := filepath.Join(dir, cleanName)
	f, err := os.Create(target)
	if err != nil {
		return nil, newError(ErrFilesystem, op, ticket.Hex(), err)
	}
	if _, err := io.Copy(f, content); err != nil {
		iox.DiscardClose(f)
		_ = os.Remove(target)
		return nil, newError(ErrFilesystem, op, ticket.Hex(), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(target)
		return nil, newError(ErrFilesystem, op, ticket.Hex(), err)
	}

	// Enforce the global cache cap after the write; the partial write
	// is removed so a rejected upload leaves no trace.
	if m.cfg.MaxCacheSizeBytes > 0 {
		usage, err := m.CacheUsageSizeBytes()
		if err != nil {
			_ = os.Remove(target)
			return nil, newError(ErrFilesystem, op, ticket.Hex(), err)
		}
		if usage > m.cfg.MaxCacheSizeBytes {
			_ = os.Remove(target)
			return nil, newError(ErrOutOfStorage, op, ticket.Hex(),
				fmt.Errorf("cache usage %d exceeds cap %d", usage, m.cfg.MaxCacheSizeBytes))
		}
		m.logger.Info("stored upload", map[string]any{
			"ticket": ticket.Hex(),
			"param":  paramName,
			"file":   cleanName,
			"usage":  usage,
			"cap":    m.cfg.MaxCacheSizeBytes,
		})
	}

	if !slices.Contains(run.PipelineInputFileNames[paramName], cleanName) {
		run.PipelineInputFileNames[paramName] = append(run.PipelineInputFileNames[paramName], cleanName)
	}
	if err := m.SetPipelineRunDefinition(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// RemovePipelineRunInputFile deletes one attached file from disk and
// from the file-name map. A missing file is logged, not an error.
func (m *Manager) RemovePipelineRunInputFile(ctx context.Context, ticket types.Ticket, paramName, filename string) (*types.PipelineRun, error) {
	run, err := m.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		return nil, err
	}
	switch run.State {
	case types.StateQueued, types.StateRunning:
		return nil, newError(ErrBadState, "remove_pipeline_run_input_file", ticket.Hex(), nil)
	}

	path := run.InputFilePath(m.cfg.PipelineRunsCacheDir, paramName, filename)
	if path == "" {
		m.logger.Warn("tried to delete unattached file", map[string]any{
			"ticket": ticket.Hex(),
			"param":  paramName,
			"file":   filename,
		})
		return run, nil
	}

	names := run.PipelineInputFileNames[paramName]
	if i := slices.Index(names, filename); i >= 0 {
		run.PipelineInputFileNames[paramName] = slices.Delete(names, i, i+1)
	}
	if err := m.SetPipelineRunDefinition(ctx, run); err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, newError(ErrFilesystem, "remove_pipeline_run_input_file", ticket.Hex(), err)
	}
	return run, nil
}

// CacheUsageSizeBytes sums the size of the whole cache directory.
func (m *Manager) CacheUsageSizeBytes() (int64, error) {
	return iox.DirSizeBytes(m.cfg.PipelineRunsCacheDir)
}
