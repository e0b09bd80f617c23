package runner

import (
	"context"
	"time"
)

// ContainerEngine is the narrow capability the executor needs from a
// container runtime: fetch an image if it is absent, and run one
// disposable, network-disabled container to completion. Any runtime
// implementing these two calls satisfies the executor.
type ContainerEngine interface {
	// EnsureImage makes the image available locally, pulling it if absent.
	EnsureImage(ctx context.Context, image string) error

	// RunOnce starts a disposable container, blocks until it exits, and
	// returns the exit code with the combined output. A non-zero exit is
	// a result, not an error; errors mean the container could not be
	// started or the runtime failed.
	RunOnce(ctx context.Context, spec RunSpec) (*RunOutput, error)
}

// RunSpec describes a single container run.
type RunSpec struct {
	Image   string
	Command []string // Program and arguments, executed in the workdir.

	HostDir   string // Host directory bind-mounted read-only.
	MountPath string // In-container mount point, also the workdir.

	Env map[string]string // Extra environment on top of the sanitized base set.

	// Resource limits. Zero values fall back to engine defaults.
	MemoryMB  int
	CPUCores  float64
	PIDsLimit int
}

// RunOutput captures the outcome of a completed container run.
type RunOutput struct {
	ExitCode int
	Output   string // Combined stdout and stderr, size-capped.
	Duration time.Duration
}
