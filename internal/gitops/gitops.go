// Package gitops provides version-control helpers confined to the project
// root. Commands shell out to the git binary with the working directory
// pinned to the root; results mirror the write-side status contract so
// callers never have to branch on Go errors.
package gitops

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Status is the outcome kind of a git operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result describes the outcome of a git operation.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"` // Combined stderr/stdout on failure.
}

// Failed reports whether the operation did not succeed.
func (r Result) Failed() bool { return r.Status != StatusSuccess }

// Service runs git operations inside a fixed project root.
type Service struct {
	root   string
	logger *slog.Logger
}

// New creates a Service rooted at dir. The directory must exist.
func New(dir string, logger *slog.Logger) (*Service, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project root %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", dir)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{root: abs, logger: logger}, nil
}

// Init initializes a repository in the project root. Idempotent: an
// existing repository is reported as success without touching it.
func (s *Service) Init(ctx context.Context) Result {
	if _, err := os.Stat(filepath.Join(s.root, ".git")); err == nil {
		return Result{Status: StatusSuccess, Message: fmt.Sprintf("git repository already exists in %s", s.root)}
	}
	return s.run(ctx, "init")
}

// Add stages the given root-relative paths. "." stages everything.
func (s *Service) Add(ctx context.Context, paths []string) Result {
	if len(paths) == 0 {
		return Result{Status: StatusFailure, Message: "no paths provided to stage"}
	}
	for _, p := range paths {
		if filepath.IsAbs(p) || containsDotDot(p) {
			return Result{Status: StatusFailure, Message: fmt.Sprintf("invalid or unsafe relative path provided for git add: %s", p)}
		}
	}
	return s.run(ctx, append([]string{"add", "--"}, paths...)...)
}

// Commit commits staged changes with the given message.
func (s *Service) Commit(ctx context.Context, message string) Result {
	if message == "" {
		return Result{Status: StatusFailure, Message: "commit message cannot be empty"}
	}
	return s.run(ctx, "commit", "-m", message)
}

func (s *Service) run(ctx context.Context, args ...string) Result {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return Result{Status: StatusFailure, Message: "git command not found in PATH"}
	}

	cmd := exec.CommandContext(ctx, gitPath, args...)
	cmd.Dir = s.root
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		s.logger.Warn("git command failed",
			slog.String("args", strings.Join(args, " ")),
			slog.String("error", err.Error()),
		)
		details := strings.TrimSpace(fmt.Sprintf("stderr: %s\nstdout: %s",
			strings.TrimSpace(stderr.String()), strings.TrimSpace(stdout.String())))
		return Result{
			Status:  StatusFailure,
			Message: fmt.Sprintf("git %s failed: %v", args[0], err),
			Details: details,
		}
	}

	return Result{Status: StatusSuccess, Message: fmt.Sprintf("git %s executed successfully", strings.Join(args, " "))}
}

// containsDotDot reports whether any path element is "..".
func containsDotDot(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
