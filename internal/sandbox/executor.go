// Package sandbox executes a single untrusted source artifact to completion
// inside an isolated, resource-limited, network-disabled container.
//
// The containment is best-effort resource and network isolation, not a
// security boundary against container-escape exploits.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/crewpipe/crewpipe/internal/config"
	"github.com/crewpipe/crewpipe/internal/logging"
	"go.uber.org/zap"
)

// Failure reasons reported in ExecutionResult.
const (
	FailureTimeout     = "timeout"
	setupFailurePrefix = "setup_error: "
)

const scriptName = "script.py"

// Limits bounds one isolated run.
type Limits struct {
	Image       string
	MemoryLimit string
	Timeout     time.Duration
}

// RunResult is the raw outcome of one isolated run.
type RunResult struct {
	// Output is the combined stdout/stderr of the sandboxed process.
	Output []byte

	// ExitCode is the process exit code; meaningless when TimedOut is set.
	ExitCode int

	// TimedOut reports the run was forcibly terminated at the wall-clock limit.
	TimedOut bool
}

// ContainerRuntime is the container-runtime collaborator: it runs one source
// file as a foreground process under the given limits. The runtime must mount
// the file read-only, disable networking and apply the memory ceiling. A
// non-zero exit of the sandboxed process is a RunResult, not an error; errors
// are reserved for containment setup failures.
type ContainerRuntime interface {
	RunIsolated(ctx context.Context, sourceFile string, limits Limits) (RunResult, error)
}

// ExecutionResult is the captured outcome of one sandboxed execution,
// consumed once by the review gate.
type ExecutionResult struct {
	// Output is the combined stdout/stderr text.
	Output string

	// Succeeded reports the process ran to completion with exit code zero.
	Succeeded bool

	// FailureReason describes why Succeeded is false ("timeout",
	// "setup_error: ...", "exit status N"). Empty on success.
	FailureReason string
}

// Executor runs untrusted artifacts under containment. One execution attempt
// per call; retry policy belongs to the caller and is deliberately absent here.
type Executor struct {
	runtime ContainerRuntime
	limits  Limits
	log     *logging.Logger
}

// NewExecutor builds an executor backed by the docker CLI.
func NewExecutor(cfg config.SandboxConfig, log *logging.Logger) *Executor {
	return NewExecutorWithRuntime(newDockerRuntime(cfg.DockerBinary), cfg, log)
}

// NewExecutorWithRuntime builds an executor with an explicit runtime.
// Tests substitute deterministic runtimes here.
func NewExecutorWithRuntime(runtime ContainerRuntime, cfg config.SandboxConfig, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.NewNop()
	}
	return &Executor{
		runtime: runtime,
		limits: Limits{
			Image:       cfg.Image,
			MemoryLimit: cfg.MemoryLimit,
			Timeout:     cfg.Timeout.Duration(),
		},
		log: log,
	}
}

// Execute runs sourceText once under containment and captures its combined
// output. The ephemeral execution context (temp directory, container) is torn
// down on every exit path, including timeout and setup failure.
//
// An empty sourceText is a caller error, not a reportable execution failure.
func (e *Executor) Execute(ctx context.Context, sourceText string) (ExecutionResult, error) {
	if sourceText == "" {
		return ExecutionResult{}, fmt.Errorf("sandbox: source text must not be empty")
	}

	dir, err := os.MkdirTemp("", "crewpipe-sandbox-*")
	if err != nil {
		return setupFailure(fmt.Errorf("create sandbox directory: %w", err)), nil
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			e.log.Warn(ctx, "failed to remove sandbox directory", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	sourceFile := filepath.Join(dir, scriptName)
	if err := os.WriteFile(sourceFile, []byte(sourceText), 0o444); err != nil {
		return setupFailure(fmt.Errorf("write source file: %w", err)), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, e.limits.Timeout)
	defer cancel()

	e.log.Debug(ctx, "starting sandboxed execution",
		zap.String("image", e.limits.Image),
		zap.String("memory_limit", e.limits.MemoryLimit),
		zap.Duration("timeout", e.limits.Timeout),
	)

	res, err := e.runtime.RunIsolated(runCtx, sourceFile, e.limits)
	if err != nil {
		e.log.Warn(ctx, "sandbox setup failed", zap.Error(err))
		return setupFailure(err), nil
	}

	result := ExecutionResult{Output: string(res.Output)}
	switch {
	case res.TimedOut:
		result.FailureReason = FailureTimeout
		e.log.Warn(ctx, "sandboxed execution timed out", zap.Duration("timeout", e.limits.Timeout))
	case res.ExitCode != 0:
		result.FailureReason = fmt.Sprintf("exit status %d", res.ExitCode)
	default:
		result.Succeeded = true
	}

	return result, nil
}

func setupFailure(err error) ExecutionResult {
	return ExecutionResult{
		Succeeded:     false,
		FailureReason: setupFailurePrefix + err.Error(),
	}
}
