// Package engine connects pipeline-run records to the metaKEGG analysis
// engine. The Adapter prepares a validated Invocation from a claimed
// run, streams the engine's output into the run's log, and archives the
// produced files. The Engine interface itself is narrow so tests can
// substitute a fake and production can run the real engine out of
// process (see the proc subpackage).
package engine

import (
	"context"
	"io"
)

// Invocation is one fully-resolved analysis call: the method to run and
// the coerced parameter values, with file parameters already substituted
// by their on-disk paths.
type Invocation struct {
	Method       string         `json:"method"`
	GlobalParams map[string]any `json:"global_params"`
	MethodParams map[string]any `json:"method_params"`
	OutputDir    string         `json:"output_dir"`
}

// Engine executes one analysis invocation. Everything the analysis
// prints goes to out; the files it produces go to inv.OutputDir. A
// non-nil error marks the run as failed.
type Engine interface {
	Run(ctx context.Context, inv *Invocation, out io.Writer) error
}
