// Package types defines the core data model for the mekewe pipeline
// orchestration service: tickets, pipeline-run records, the analysis
// method catalog, statistic points, and client-facing info models.
//
// All records are JSON-encoded into the state store; field names here
// are the wire contract for both the store and the HTTP API.
package types

import (
	"fmt"
	"path/filepath"
	"time"
)

// RunState is the single source of truth for a pipeline run's lifecycle.
type RunState string

// Permitted run states. Transitions are monotone:
// initialized -> queued -> running -> success|failed -> expired.
// A failed or successful run may be re-committed (back to queued).
const (
	StateInitialized RunState = "initialized"
	StateQueued      RunState = "queued"
	StateRunning     RunState = "running"
	StateSuccess     RunState = "success"
	StateFailed      RunState = "failed"
	StateExpired     RunState = "expired"
)

// PipelineParams holds the two parameter sets of a run.
type PipelineParams struct {
	GlobalParams         map[string]any `json:"global_params"`
	MethodSpecificParams map[string]any `json:"method_specific_params"`
}

// PipelineRun is the central record of one pipeline run, keyed by ticket id.
// It is mutated only by the state manager and the maintenance worker.
type PipelineRun struct {
	Ticket Ticket   `json:"ticket"`
	State  RunState `json:"state"`

	// PlaceInQueue is derived from the dispatch queue on read; it is only
	// meaningful while State is queued.
	PlaceInQueue *int `json:"place_in_queue,omitempty"`

	// Error and ErrorTraceback are set only when State is failed.
	Error          *string `json:"error,omitempty"`
	ErrorTraceback *string `json:"error_traceback,omitempty"`

	// OutputLog is the captured analysis output, appended line by line
	// while the run executes so polling clients can follow progress.
	OutputLog *string `json:"output_log,omitempty"`

	PipelineParams         PipelineParams  `json:"pipeline_params"`
	PipelineAnalysesMethod *AnalysisMethod `json:"pipeline_analyses_method,omitempty"`

	// PipelineInputFileNames maps parameter name to the ordered list of
	// filenames currently present on disk under that parameter.
	PipelineInputFileNames map[string][]string `json:"pipeline_input_file_names,omitempty"`

	// PipelineOutputZipFileName is set once the worker has archived the
	// run's outputs. Cleared on expiration.
	PipelineOutputZipFileName *string `json:"pipeline_output_zip_file_name,omitempty"`

	CreatedAt  time.Time  `json:"created_at_utc"`
	QueuedAt   *time.Time `json:"queued_at_utc,omitempty"`
	StartedAt  *time.Time `json:"started_at_utc,omitempty"`
	FinishedAt *time.Time `json:"finished_at_utc,omitempty"`
}

// FilesBaseDir is the per-ticket root under the cache directory.
func (p *PipelineRun) FilesBaseDir(cacheDir string) string {
	return filepath.Join(cacheDir, p.Ticket.Hex())
}

// InputFileDir is the directory holding uploads for one file parameter.
func (p *PipelineRun) InputFileDir(cacheDir, param string) string {
	return filepath.Join(p.FilesBaseDir(cacheDir), "input", param)
}

// InputFilesBaseDir is the root of all input files of the run.
func (p *PipelineRun) InputFilesBaseDir(cacheDir string) string {
	return filepath.Join(p.FilesBaseDir(cacheDir), "input")
}

// InputFilePath returns the on-disk path for one attached file, or ""
// if the filename is not recorded for that parameter.
func (p *PipelineRun) InputFilePath(cacheDir, param, filename string) string {
	for _, name := range p.PipelineInputFileNames[param] {
		if name == filename {
			return filepath.Join(p.InputFileDir(cacheDir, param), name)
		}
	}
	return ""
}

// InputFilePaths returns the on-disk paths of every file attached to param,
// in attachment order.
func (p *PipelineRun) InputFilePaths(cacheDir, param string) []string {
	names := p.PipelineInputFileNames[param]
	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, filepath.Join(p.InputFileDir(cacheDir, param), name))
	}
	return paths
}

// OutputFilesDir is the directory the analysis writes into and where the
// result zip is placed.
func (p *PipelineRun) OutputFilesDir(cacheDir string) string {
	return filepath.Join(p.FilesBaseDir(cacheDir), "output")
}

// OutputZipFilePath returns the full path of the result archive, or ""
// if no archive has been recorded.
func (p *PipelineRun) OutputZipFilePath(cacheDir string) string {
	if p.PipelineOutputZipFileName == nil {
		return ""
	}
	return filepath.Join(p.OutputFilesDir(cacheDir), *p.PipelineOutputZipFileName)
}

// GenerateOutputZipFileName builds the archive name for the committed
// method. The value is opaque to clients; local time is acceptable.
func (p *PipelineRun) GenerateOutputZipFileName(now time.Time) string {
	method := ""
	if p.PipelineAnalysesMethod != nil {
		method = p.PipelineAnalysesMethod.Name
	}
	return fmt.Sprintf("output-metakegg-%s_%s.zip", method, now.Format("2006-01-02-15-04-05"))
}

// AppendOutputLine appends one captured output line to the run's log.
func (p *PipelineRun) AppendOutputLine(line string) {
	if p.OutputLog == nil {
		s := line
		p.OutputLog = &s
		return
	}
	joined := *p.OutputLog + "\n" + line
	p.OutputLog = &joined
}

// SetError records an analysis failure on the run.
func (p *PipelineRun) SetError(msg, traceback string) {
	p.Error = &msg
	p.ErrorTraceback = &traceback
}
