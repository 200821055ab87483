package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// teardownTimeout bounds the forced container removal after a run.
const teardownTimeout = 10 * time.Second

// dockerRuntime drives the docker CLI through exec.CommandContext. The
// container gets a unique name per run so concurrent runs never collide, and
// is force-removed on every exit path.
type dockerRuntime struct {
	binary string
}

func newDockerRuntime(binary string) *dockerRuntime {
	if binary == "" {
		binary = "docker"
	}
	return &dockerRuntime{binary: binary}
}

// runArgs builds the docker run arguments for one isolated execution:
// read-only single-file mount, no network, memory ceiling, no privilege
// escalation.
func runArgs(name, sourceFile string, limits Limits) []string {
	return []string{
		"run",
		"--name", name,
		"--network", "none",
		"--memory", limits.MemoryLimit,
		"--security-opt", "no-new-privileges",
		"--read-only",
		"-v", filepath.Dir(sourceFile) + ":/code:ro",
		"-w", "/code",
		limits.Image,
		"python", filepath.Base(sourceFile),
	}
}

// RunIsolated implements ContainerRuntime.
func (d *dockerRuntime) RunIsolated(ctx context.Context, sourceFile string, limits Limits) (RunResult, error) {
	name := "crewpipe-" + uuid.NewString()

	// Removal uses a fresh context: the run context is typically already
	// expired on the timeout path, and a container must never outlive the call.
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		_ = exec.CommandContext(rmCtx, d.binary, "rm", "-f", name).Run()
	}()

	cmd := exec.CommandContext(ctx, d.binary, runArgs(name, sourceFile, limits)...)
	output, err := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return RunResult{Output: output, TimedOut: true}, nil
	}
	// A canceled context kills the process with exit -1; that is the
	// caller's cancellation, not a program failure.
	if ctx.Err() != nil {
		return RunResult{}, fmt.Errorf("execution canceled: %w", ctx.Err())
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			// 125-127 are docker's own failures (daemon error, command not
			// runnable, command not found), not the sandboxed program's.
			if code >= 125 && code <= 127 {
				return RunResult{}, fmt.Errorf("container runtime failed (exit %d): %s", code, firstLine(output))
			}
			return RunResult{Output: output, ExitCode: code}, nil
		}
		return RunResult{}, fmt.Errorf("invoke container runtime: %w", err)
	}

	return RunResult{Output: output, ExitCode: 0}, nil
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}

var _ ContainerRuntime = (*dockerRuntime)(nil)
