// Package pathguard confines all file-system access to a single project root.
//
// Every caller-supplied path is resolved to its absolute, symlink-free form
// and accepted only if it lands on the root itself or strictly beneath it.
// Symlinks are resolved before the containment check, so a link inside the
// root pointing outside it is rejected; joining under the root and checking
// the resolved result closes the ../ escape.
//
// Rejections are uniform: callers get ErrUnsafePath (optionally wrapping a
// more specific cause) and never a panic, whatever the underlying anomaly.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is the uniform rejection for any path that is absolute,
// escapes the root, or cannot be resolved. Callers must treat it as
// recoverable input validation, not a fault.
var ErrUnsafePath = errors.New("invalid or unsafe path")

// ErrAbsolutePath marks a candidate rejected on syntax alone, before any
// filesystem access. It wraps ErrUnsafePath.
var ErrAbsolutePath = fmt.Errorf("absolute paths are not allowed: %w", ErrUnsafePath)

// Guard resolves candidate paths against a fixed project root.
// The root is resolved once at construction and immutable afterwards.
type Guard struct {
	root string // absolute, symlink-free
}

// New creates a Guard rooted at dir. The directory must exist; its path is
// made absolute and symlink-resolved once, and all later checks compare
// against that canonical form.
func New(dir string) (*Guard, error) {
	if dir == "" {
		return nil, fmt.Errorf("project root must not be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project root %q: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving project root %q: %w", dir, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat project root %q: %w", resolved, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %q is not a directory", resolved)
	}
	return &Guard{root: resolved}, nil
}

// Root returns the canonical project root.
func (g *Guard) Root() string { return g.root }

// Resolve validates a caller-supplied path and returns its absolute,
// symlink-free location under the root.
//
// Absolute candidates are rejected by syntax before the filesystem is
// touched. Relative candidates are joined under the root and fully
// resolved; the result is accepted only if it equals the root or is
// strictly nested beneath it. "" and "." resolve to the root.
//
// For targets that do not exist yet (the write case), the deepest existing
// ancestor is resolved instead and the remaining components are appended,
// so a symlinked parent still cannot smuggle the target outside the root.
func (g *Guard) Resolve(candidate string) (string, error) {
	if filepath.IsAbs(candidate) {
		return "", fmt.Errorf("%q: %w", candidate, ErrAbsolutePath)
	}

	joined := filepath.Join(g.root, candidate)

	// Quick lexical check: Join cleans ".." segments, so a result that no
	// longer has the root as a prefix has already escaped.
	if !g.contains(joined) {
		return "", fmt.Errorf("%q escapes the project root: %w", candidate, ErrUnsafePath)
	}

	resolved, err := g.evalExisting(joined)
	if err != nil {
		return "", fmt.Errorf("%q: %w", candidate, ErrUnsafePath)
	}
	if !g.contains(resolved) {
		return "", fmt.Errorf("%q resolves outside the project root: %w", candidate, ErrUnsafePath)
	}
	return resolved, nil
}

// ResolveExisting is Resolve with the additional requirement that the
// target exists. Read and list operations use it; any resolution failure,
// including a missing target, is the same uniform rejection.
func (g *Guard) ResolveExisting(candidate string) (string, error) {
	resolved, err := g.Resolve(candidate)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(resolved); err != nil {
		return "", fmt.Errorf("%q: %w", candidate, ErrUnsafePath)
	}
	return resolved, nil
}

// Rel returns the root-relative form of a previously resolved path, in
// forward-slash form suitable for container path translation.
func (g *Guard) Rel(resolved string) (string, error) {
	rel, err := filepath.Rel(g.root, resolved)
	if err != nil {
		return "", fmt.Errorf("computing relative path for %q: %w", resolved, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q is outside the project root: %w", resolved, ErrUnsafePath)
	}
	return filepath.ToSlash(rel), nil
}

// contains reports whether p equals the root or is nested beneath it.
// The separator guard keeps "/proj" from matching "/project-evil".
func (g *Guard) contains(p string) bool {
	return p == g.root || strings.HasPrefix(p, g.root+string(filepath.Separator))
}

// evalExisting resolves symlinks in p. When p itself does not exist, the
// deepest existing ancestor is resolved and the missing suffix re-joined.
func (g *Guard) evalExisting(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	// Walk up until an existing ancestor resolves, collecting the missing
	// components to re-append. Stops at the root, which always exists.
	var suffix []string
	dir := p
	for {
		suffix = append([]string{filepath.Base(dir)}, suffix...)
		dir = filepath.Dir(dir)

		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolved}, suffix...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		if dir == g.root || dir == filepath.Dir(dir) {
			return "", err
		}
	}
}
