// Package shell runs pattern probe commands in a subshell with a bounded
// timeout.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mcpterm/mcpterm/internal/debug"
)

// DefaultTimeout bounds one probe command.
const DefaultTimeout = 30 * time.Second

// killGrace is how long a timed-out command gets to die before its pipes
// are torn down.
const killGrace = time.Second

// Runner executes one shell command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// ExecRunner runs commands through `sh -c` with a per-command timeout.
type ExecRunner struct {
	Timeout time.Duration
}

// NewRunner returns an ExecRunner with the default timeout.
func NewRunner() *ExecRunner {
	return &ExecRunner{Timeout: DefaultTimeout}
}

// Run executes command, returning trimmed stdout. A non-zero exit with
// output still returns the output: probes feed AI context, and partial
// output beats none.
func (r *ExecRunner) Run(ctx context.Context, command string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	debug.Logf("shell: run %q", command)
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	// A grandchild holding the output pipes must not keep Run blocked past
	// the deadline; after killGrace the pipes are forcibly closed.
	cmd.WaitDelay = killGrace
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimRight(stdout.String(), "\n")
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return out, fmt.Errorf("shell: %q timed out after %s", command, timeout)
		}
		if out != "" {
			debug.Logf("shell: %q exited non-zero, keeping output: %v", command, err)
			return out, nil
		}
		return "", fmt.Errorf("shell: %q: %w (%s)", command, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
