// Package proc runs the metaKEGG analysis engine as a subprocess. The
// invocation is written to the child's stdin as JSON; everything the
// child prints on stdout is streamed to the caller as the run's output
// log, and stderr is captured for the failure message.
package proc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"

	"github.com/dife-bioinformatics/mekewe/engine"
)

// Config configures the subprocess engine.
type Config struct {
	// Command is the engine binary, e.g. "metakegg-runner".
	Command string
	// Args are fixed arguments prepended before every invocation.
	Args []string
}

// Engine launches one subprocess per invocation.
type Engine struct {
	config Config
}

var _ engine.Engine = (*Engine)(nil)

// New creates a subprocess engine.
func New(config Config) *Engine {
	return &Engine{config: config}
}

// Run starts the child, feeds it the invocation, and waits for exit.
// A non-zero exit code fails the run with the stderr tail attached.
func (e *Engine) Run(ctx context.Context, inv *engine.Invocation, out io.Writer) error {
	cmd := exec.CommandContext(ctx, e.config.Command, e.config.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine process: %w", err)
	}
	if err := json.NewEncoder(stdin).Encode(inv); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("write invocation: %w", err)
	}
	// Closed stdin signals the child the invocation is complete.
	if err := stdin.Close(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("close stdin: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := -1
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				code = status.ExitStatus()
			}
			return fmt.Errorf("engine exited with code %d: %s", code, stderrTail(stderr.String()))
		}
		return fmt.Errorf("engine wait failed: %w", err)
	}
	return nil
}

// stderrTail keeps the last few lines of stderr so the failure message
// stays readable for clients.
func stderrTail(s string) string {
	const keep = 10
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return strings.Join(lines, "\n")
}
