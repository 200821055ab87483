package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunArgs(t *testing.T) {
	limits := Limits{
		Image:       "python:3.10",
		MemoryLimit: "128m",
		Timeout:     30 * time.Second,
	}

	args := runArgs("crewpipe-abc", "/tmp/crewpipe-sandbox-1/script.py", limits)

	require.Equal(t, "run", args[0])
	assert.Contains(t, args, "--network")
	assert.Contains(t, args, "none")
	assert.Contains(t, args, "--memory")
	assert.Contains(t, args, "128m")
	assert.Contains(t, args, "--security-opt")
	assert.Contains(t, args, "no-new-privileges")
	assert.Contains(t, args, "--read-only")
	assert.Contains(t, args, "/tmp/crewpipe-sandbox-1:/code:ro")
	assert.Contains(t, args, "python:3.10")

	// The container runs only the mounted file.
	assert.Equal(t, "python", args[len(args)-2])
	assert.Equal(t, "script.py", args[len(args)-1])
}

func TestRunIsolatedCanceledContext(t *testing.T) {
	rt := newDockerRuntime("true")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rt.RunIsolated(ctx, "/tmp/crewpipe-sandbox-1/script.py", Limits{
		Image:       "python:3.10",
		MemoryLimit: "128m",
	})

	// Cancellation is the caller's doing, never a program exit status.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewDockerRuntimeDefaultBinary(t *testing.T) {
	rt := newDockerRuntime("")
	assert.Equal(t, "docker", rt.binary)

	rt = newDockerRuntime("podman")
	assert.Equal(t, "podman", rt.binary)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "first", firstLine([]byte("first\nsecond")))
	assert.Equal(t, "only", firstLine([]byte("only")))
	assert.Equal(t, "", firstLine(nil))
}
