// Package enginetest provides a scriptable in-process engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dife-bioinformatics/mekewe/engine"
)

// Fake is a scriptable engine. By default it prints a line per
// invocation and writes one result file into the output directory.
type Fake struct {
	mu sync.Mutex

	// RunFunc overrides the default behavior when set.
	RunFunc func(ctx context.Context, inv *engine.Invocation, out io.Writer) error

	// Err, when set and RunFunc is nil, fails every invocation.
	Err error

	invocations []*engine.Invocation
}

var _ engine.Engine = (*Fake)(nil)

// Run records the invocation and executes the scripted behavior.
func (f *Fake) Run(ctx context.Context, inv *engine.Invocation, out io.Writer) error {
	f.mu.Lock()
	f.invocations = append(f.invocations, inv)
	f.mu.Unlock()

	if f.RunFunc != nil {
		return f.RunFunc(ctx, inv, out)
	}
	if f.Err != nil {
		return f.Err
	}
	fmt.Fprintf(out, "running %s\n", inv.Method)
	return os.WriteFile(filepath.Join(inv.OutputDir, "result.txt"), []byte("ok\n"), 0o644)
}

// Invocations returns every recorded invocation in call order.
func (f *Fake) Invocations() []*engine.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*engine.Invocation, len(f.invocations))
	copy(out, f.invocations)
	return out
}
