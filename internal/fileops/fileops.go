// Package fileops implements confined read, write, and list operations on
// the project tree. Every path goes through the pathguard before any I/O.
//
// Two result conventions are deliberate and must both be kept: reads fail
// with a typed error the caller renders as a plain string, while writes
// report a structured status/message pair and never return an error. The
// upstream orchestration layer branches on each convention separately.
package fileops

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jkaninda/sanduku/internal/pathguard"
)

const defaultMaxFileSize = 10 << 20 // 10 MB

// Sentinel errors for read and list failures. All are recoverable input
// or environment conditions, never faults.
var (
	// ErrNotFound covers both a missing target and a target that is a
	// directory. The original tool surface never distinguished the two for
	// reads, and callers depend on the single signal, so the conflation is
	// kept on purpose.
	ErrNotFound = errors.New("file not found")

	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory is returned by List for targets that are missing or
	// not directories.
	ErrNotDirectory = errors.New("path is not a directory")
)

// WriteStatus is the outcome kind of a write operation.
type WriteStatus string

const (
	WriteSuccess WriteStatus = "success"
	WriteFailure WriteStatus = "failure"
)

// WriteResult is the structured outcome of a Write. Failures are reported
// here, not as Go errors.
type WriteResult struct {
	Status  WriteStatus `json:"status"`
	Message string      `json:"message"`
}

// Failed reports whether the write did not complete.
func (r WriteResult) Failed() bool { return r.Status != WriteSuccess }

// Config configures file operation limits.
type Config struct {
	MaxFileSizeBytes int64 // Max bytes for read targets and write content. 0 = 10 MB.
}

// Service performs guarded file operations under a single project root.
type Service struct {
	guard   *pathguard.Guard
	logger  *slog.Logger
	maxSize int64
}

// New creates a Service confined to the guard's root.
func New(guard *pathguard.Guard, cfg Config, logger *slog.Logger) *Service {
	maxSize := cfg.MaxFileSizeBytes
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}
	return &Service{guard: guard, logger: logger, maxSize: maxSize}
}

// Read returns the content of a file under the project root.
//
// Failure taxonomy: pathguard.ErrUnsafePath (rejected before I/O),
// ErrNotFound (absent or a directory), ErrPermissionDenied, or a wrapped
// unexpected error.
func (s *Service) Read(path string) (string, error) {
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", classifyReadErr(path, err)
	}
	if info.IsDir() {
		// Same signal as a missing file — see ErrNotFound.
		return "", fmt.Errorf("%q: %w", path, ErrNotFound)
	}
	if info.Size() > s.maxSize {
		return "", fmt.Errorf("file %q size %d exceeds limit %d bytes", path, info.Size(), s.maxSize)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", classifyReadErr(path, err)
	}

	s.logger.Debug("file read",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return string(data), nil
}

// Write creates or replaces a file under the project root.
//
// Parent directories are created as needed. An existing target fails the
// write unless overwrite is set; an existing directory fails it regardless.
// On success the content is fully replaced; an interrupted write leaves the
// file in an undefined state (accepted limitation, no recovery attempted).
func (s *Service) Write(path, content string, overwrite bool) WriteResult {
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return failure("invalid or unsafe path specified: %s", path)
	}

	if int64(len(content)) > s.maxSize {
		return failure("content size %d exceeds limit %d bytes", len(content), s.maxSize)
	}

	if info, err := os.Stat(resolved); err == nil {
		if info.IsDir() {
			return failure("path points to a directory, cannot write file: %s", path)
		}
		if !overwrite {
			return failure("file already exists and overwrite is false: %s", path)
		}
	} else if !os.IsNotExist(err) {
		return failure("checking target %s: %v", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o750); err != nil {
		return failure("creating parent directory for %s: %v", path, err)
	}

	if err := os.WriteFile(resolved, []byte(content), fs.FileMode(0o640)); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return failure("permission denied when writing to file: %s", path)
		}
		return failure("writing %s: %v", path, err)
	}

	s.logger.Debug("file written",
		slog.String("path", path),
		slog.Int("bytes", len(content)),
		slog.Bool("overwrite", overwrite),
	)
	return WriteResult{Status: WriteSuccess, Message: fmt.Sprintf("file written successfully to %s", path)}
}

// List enumerates a directory under the project root.
//
// Non-recursive listings return immediate child names only. Recursive
// listings return every descendant's path relative to the queried
// directory, directories and files both. Ordering follows filesystem
// enumeration and is not guaranteed.
func (s *Service) List(path string, recursive bool) ([]string, error) {
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%q: %w", path, ErrNotDirectory)
	}

	if !recursive {
		entries, err := os.ReadDir(resolved)
		if err != nil {
			return nil, classifyListErr(path, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return names, nil
	}

	var results []string
	err = filepath.WalkDir(resolved, func(p string, _ fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == resolved {
			return nil
		}
		rel, relErr := filepath.Rel(resolved, p)
		if relErr != nil {
			return relErr
		}
		results = append(results, rel)
		return nil
	})
	if err != nil {
		return nil, classifyListErr(path, err)
	}
	return results, nil
}

func failure(format string, args ...any) WriteResult {
	return WriteResult{Status: WriteFailure, Message: fmt.Sprintf(format, args...)}
}

func classifyReadErr(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%q: %w", path, ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%q: %w", path, ErrPermissionDenied)
	default:
		return fmt.Errorf("reading %q: %w", path, err)
	}
}

func classifyListErr(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%q: %w", path, ErrPermissionDenied)
	}
	return fmt.Errorf("listing %q: %w", path, err)
}
