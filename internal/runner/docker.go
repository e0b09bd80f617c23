package runner

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

const (
	// maxOutputBytes caps the combined output to prevent OOM from chatty
	// test suites. Excess is silently discarded.
	maxOutputBytes = 1 << 20 // 1 MB

	defaultEngineMemoryMB = 512
	defaultEngineCPUCores = 1.0
	defaultEnginePIDs     = 128

	// ContainerNamePrefix names every container this engine launches; the
	// reaper sweeps by this prefix.
	ContainerNamePrefix = "sanduku-run-"
)

// DockerEngine implements ContainerEngine by shelling out to the docker CLI.
//
// Hardening applied to every run:
//   - one container per run (--rm, plus a deferred docker rm -f safety net)
//   - no network stack at all (--network=none, never negotiable)
//   - project tree mounted read-only; tests cannot mutate the host
//   - all Linux capabilities dropped, privilege escalation blocked
//   - non-root user, read-only root filesystem with tmpfs scratch space
//   - memory hard limit with swap disabled, PIDs limit, CPU rate limit
//   - sanitized environment, no host inheritance
//   - combined output capped to prevent OOM on the host
type DockerEngine struct {
	logger *slog.Logger
}

// NewDockerEngine creates a docker-CLI-backed container engine.
func NewDockerEngine(logger *slog.Logger) *DockerEngine {
	return &DockerEngine{logger: logger}
}

// Ping reports whether the docker daemon is reachable. Used for readiness
// checks; the executor surfaces unreachability through RunOnce errors.
func (e *DockerEngine) Ping(ctx context.Context) error {
	if out, err := exec.CommandContext(ctx, "docker", "info", "--format", "{{.ServerVersion}}").CombinedOutput(); err != nil {
		return fmt.Errorf("docker daemon unreachable: %v: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// EnsureImage checks for the image locally and pulls it when absent.
func (e *DockerEngine) EnsureImage(ctx context.Context, image string) error {
	if err := exec.CommandContext(ctx, "docker", "image", "inspect", image).Run(); err == nil {
		return nil
	}

	e.logger.Info("runner image not found locally, pulling",
		slog.String("image", image),
	)
	out, err := exec.CommandContext(ctx, "docker", "pull", image).CombinedOutput()
	if err != nil {
		return fmt.Errorf("pulling image %s: %v: %s", image, err, bytes.TrimSpace(out))
	}
	return nil
}

// RunOnce starts a disposable hardened container and blocks until it exits.
func (e *DockerEngine) RunOnce(ctx context.Context, spec RunSpec) (*RunOutput, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if spec.HostDir == "" || spec.MountPath == "" {
		return nil, fmt.Errorf("host directory and mount path are required")
	}

	name, err := generateContainerName()
	if err != nil {
		return nil, fmt.Errorf("generating container name: %w", err)
	}

	args := e.buildRunArgs(name, spec)
	args = append(args, spec.Command...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}

	// Stdout and stderr share one writer: the caller gets a single
	// combined blob, the way the test output is consumed downstream.
	// os/exec serializes writes when both streams are the same writer.
	var buf bytes.Buffer
	combined := &limitedWriter{w: &buf, remaining: maxOutputBytes}
	cmd.Stdout = combined
	cmd.Stderr = combined

	e.logger.Info("container run starting",
		slog.String("container", name),
		slog.String("image", spec.Image),
		slog.Any("command", spec.Command),
		slog.String("mount", spec.HostDir+":"+spec.MountPath+":ro"),
	)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	// Safety net in case --rm didn't fire (OOM kill, daemon restart,
	// context cancel race).
	e.forceRemove(name)

	exitCode := 0
	if runErr != nil {
		if ctx.Err() != nil {
			e.logger.Warn("container run canceled",
				slog.String("container", name),
				slog.Duration("duration", duration),
			)
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("starting container: %w", runErr)
		}
	}

	e.logger.Info("container run completed",
		slog.String("container", name),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
		slog.Int("output_bytes", buf.Len()),
	)

	return &RunOutput{
		ExitCode: exitCode,
		Output:   buf.String(),
		Duration: duration,
	}, nil
}

// buildRunArgs constructs the docker run argument list with all hardening
// flags. The command itself is appended by the caller.
func (e *DockerEngine) buildRunArgs(name string, spec RunSpec) []string {
	memoryMB := spec.MemoryMB
	if memoryMB <= 0 {
		memoryMB = defaultEngineMemoryMB
	}
	cpuCores := spec.CPUCores
	if cpuCores <= 0 {
		cpuCores = defaultEngineCPUCores
	}
	pids := spec.PIDsLimit
	if pids <= 0 {
		pids = defaultEnginePIDs
	}

	memoryFlag := strconv.Itoa(memoryMB) + "m"

	args := []string{
		"run", "--rm",
		"--name", name,

		// The project tree is visible but never writable from inside.
		"--volume", spec.HostDir + ":" + spec.MountPath + ":ro",
		"--workdir", spec.MountPath,

		// No network stack at all. Untrusted test code gets no say here.
		"--network=none",

		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--read-only",
		"--user=65534:65534",

		"--memory=" + memoryFlag,
		"--memory-swap=" + memoryFlag, // same as memory = swap disabled
		"--cpus=" + strconv.FormatFloat(cpuCores, 'f', 2, 64),
		"--pids-limit=" + strconv.Itoa(pids),

		// Writable scratch space for the test framework's cache files.
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=64m",
		"--tmpfs", "/home/runner:rw,nosuid,size=64m",

		"--env", "HOME=/home/runner",
		"--env", "PATH=/usr/local/bin:/usr/bin:/bin",
		"--env", "LANG=en_US.UTF-8",
		"--env", "TERM=dumb",
	}

	for k, v := range spec.Env {
		args = append(args, "--env", k+"="+v)
	}

	args = append(args, spec.Image)
	return args
}

// forceRemove removes a container by name, best effort. "No such
// container" is the expected outcome when --rm already cleaned up.
func (e *DockerEngine) forceRemove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "docker", "rm", "-f", name).CombinedOutput()
	if err != nil && !bytes.Contains(out, []byte("No such container")) {
		e.logger.Warn("docker rm -f failed",
			slog.String("container", name),
			slog.String("error", err.Error()),
			slog.String("output", string(out)),
		)
	}
}

// generateContainerName returns sanduku-run-<16 hex chars>.
func generateContainerName() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return ContainerNamePrefix + hex.EncodeToString(b), nil
}

// limitedWriter stops writing after a byte limit; excess data is silently
// discarded rather than erroring the command.
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return len(p), nil
	}
	n := len(p)
	if n > lw.remaining {
		p = p[:lw.remaining]
	}
	written, err := lw.w.Write(p)
	lw.remaining -= written
	if err != nil {
		return written, err
	}
	return n, nil
}
