package telemetry

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds every remediation and probe command.
const DefaultCommandTimeout = 30 * time.Second

// Runner executes a shell command and returns its trimmed stdout. A non-zero
// exit, timeout or spawn failure comes back as a non-nil error; stdout
// captured so far is still returned. Implementations must guarantee bounded
// execution time.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (string, error)
}

// ErrCommandTimeout is returned when a command exceeds its deadline.
var ErrCommandTimeout = errors.New("command timed out")

// execRunner runs commands through /bin/sh.
type execRunner struct{}

// NewRunner returns the exec-backed Runner used in production.
func NewRunner() Runner { return execRunner{} }

func (execRunner) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	out, err := cmd.Output()
	stdout := strings.TrimSpace(string(out))

	if ctx.Err() == context.DeadlineExceeded {
		return stdout, ErrCommandTimeout
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return stdout, errors.New(strings.TrimSpace(string(exitErr.Stderr)))
		}
		return stdout, err
	}
	return stdout, nil
}
