// Package runner executes untrusted test code inside disposable,
// network-disabled containers with the project tree mounted read-only,
// and classifies the captured output into a structured verdict.
//
// The flow per run: validate every path through the pathguard (any
// rejection aborts before a container exists), ensure the runner image,
// run the test command once in the foreground, then classify the exit
// code and combined output. Nothing is retried; transient runtime
// failures surface as ERROR and the caller decides whether to re-invoke.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"time"

	"github.com/jkaninda/sanduku/internal/pathguard"
)

// Defaults mirror a plain pytest setup on a stock Python image. Override
// the image with one that has the project's test framework preinstalled.
const (
	DefaultImage     = "python:3.11-slim"
	DefaultMountPath = "/workspace"
	defaultTimeout   = 5 * time.Minute
)

// DefaultTestCommand is the command prepended to the translated paths.
func DefaultTestCommand() []string { return []string{"pytest"} }

// Config configures the test executor.
type Config struct {
	Image       string        // Runner image. Default: python:3.11-slim.
	TestCommand []string      // Test command. Default: ["pytest"].
	MountPath   string        // In-container workspace. Default: /workspace.
	Timeout     time.Duration // Wall-clock bound on the container run. Default: 5m.

	MemoryMB  int
	CPUCores  float64
	PIDsLimit int

	Env map[string]string // Extra in-container environment.
}

// Executor runs test paths through the container engine. A single run is
// assumed in flight against a given project root at a time; concurrent
// host writes during a run are unsynchronized (the mount is read-only, so
// the host tree itself is safe from the container).
type Executor struct {
	guard      *pathguard.Guard
	engine     ContainerEngine
	classifier Classifier
	config     Config
	logger     *slog.Logger
}

// NewExecutor creates an Executor. A nil classifier falls back to the
// marker-counting default.
func NewExecutor(guard *pathguard.Guard, engine ContainerEngine, classifier Classifier, cfg Config, logger *slog.Logger) *Executor {
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if len(cfg.TestCommand) == 0 {
		cfg.TestCommand = DefaultTestCommand()
	}
	if cfg.MountPath == "" {
		cfg.MountPath = DefaultMountPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if classifier == nil {
		classifier = MarkerClassifier{}
	}
	return &Executor{
		guard:      guard,
		engine:     engine,
		classifier: classifier,
		config:     cfg,
		logger:     logger,
	}
}

// Run validates the test paths, launches one disposable container, and
// returns the classified result. All failures are folded into the Result;
// Run never panics and never returns an error value.
func (e *Executor) Run(ctx context.Context, testPaths []string) Result {
	// VALIDATE. Partial execution of a partially-valid set is never
	// attempted — the first rejection aborts the whole call.
	if len(testPaths) == 0 {
		return errorResult("no test paths provided")
	}

	containerPaths := make([]string, 0, len(testPaths))
	for _, p := range testPaths {
		resolved, err := e.guard.ResolveExisting(p)
		if err != nil {
			e.logger.Warn("test path rejected", slog.String("path", p))
			return errorResult("invalid or unsafe test path: %s", p)
		}
		rel, err := e.guard.Rel(resolved)
		if err != nil {
			return errorResult("invalid or unsafe test path: %s", p)
		}
		containerPaths = append(containerPaths, path.Join(e.config.MountPath, rel))
	}

	// LAUNCH.
	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	if err := e.engine.EnsureImage(runCtx, e.config.Image); err != nil {
		e.logger.Error("runner image unavailable",
			slog.String("image", e.config.Image),
			slog.String("error", err.Error()),
		)
		return errorResult("runner image unavailable: %v", err)
	}

	command := append(append([]string{}, e.config.TestCommand...), containerPaths...)

	e.logger.Info("test run starting",
		slog.String("image", e.config.Image),
		slog.Any("paths", containerPaths),
		slog.Duration("timeout", e.config.Timeout),
	)

	// EXECUTE.
	out, err := e.engine.RunOnce(runCtx, RunSpec{
		Image:     e.config.Image,
		Command:   command,
		HostDir:   e.guard.Root(),
		MountPath: e.config.MountPath,
		Env:       e.config.Env,
		MemoryMB:  e.config.MemoryMB,
		CPUCores:  e.config.CPUCores,
		PIDsLimit: e.config.PIDsLimit,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.logger.Warn("test run timed out", slog.Duration("timeout", e.config.Timeout))
			return errorResult("test run timed out after %s", e.config.Timeout)
		}
		e.logger.Error("test run failed to execute", slog.String("error", err.Error()))
		return errorResult("container run failed: %v", err)
	}

	// CLASSIFY.
	verdict := e.classifier.Classify(out.ExitCode, out.Output)

	e.logger.Info("test run completed",
		slog.String("status", string(verdict.Status)),
		slog.Int("exit_code", out.ExitCode),
		slog.Int("passed", verdict.Passed),
		slog.Int("failed", verdict.Failed),
		slog.Int("errors", verdict.Errors),
		slog.Duration("duration", out.Duration),
	)

	return Result{
		Status: verdict.Status,
		Passed: verdict.Passed,
		Failed: verdict.Failed,
		Errors: verdict.Errors,
		Output: out.Output,
	}
}
