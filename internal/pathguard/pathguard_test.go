package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func newTestGuard(t *testing.T) (*Guard, string) {
	t.Helper()
	root := t.TempDir()
	g, err := New(root)
	if err != nil {
		t.Fatalf("New(%q): %v", root, err)
	}
	return g, g.Root()
}

func TestNew_RejectsMissingRoot(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("expected error for missing root, got nil")
	}
}

func TestNew_RejectsFileRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}
	if _, err := New(file); err == nil {
		t.Fatal("expected error for file root, got nil")
	}
}

func TestResolve_RootItself(t *testing.T) {
	g, root := newTestGuard(t)

	for _, candidate := range []string{"", "."} {
		got, err := g.Resolve(candidate)
		if err != nil {
			t.Errorf("Resolve(%q): unexpected error: %v", candidate, err)
			continue
		}
		if got != root {
			t.Errorf("Resolve(%q) = %q, want root %q", candidate, got, root)
		}
	}
}

func TestResolve_NestedPath(t *testing.T) {
	g, root := newTestGuard(t)

	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatal(err)
	}

	got, err := g.Resolve("a/b")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != nested {
		t.Errorf("Resolve(a/b) = %q, want %q", got, nested)
	}
}

func TestResolve_NotYetExistingTarget(t *testing.T) {
	g, root := newTestGuard(t)

	got, err := g.Resolve("new/dir/file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(root, "new", "dir", "file.txt")
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolve_RejectsUnsafe(t *testing.T) {
	g, _ := newTestGuard(t)

	tests := []struct {
		name      string
		candidate string
		absolute  bool
	}{
		{"absolute", "/etc/passwd", true},
		{"parent traversal", "../outside.txt", false},
		{"nested traversal", "a/../../outside.txt", false},
		{"bare parent", "..", false},
		{"deep traversal", "../../../../etc/passwd", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Resolve(tt.candidate)
			if err == nil {
				t.Fatalf("Resolve(%q): expected rejection, got nil", tt.candidate)
			}
			if !errors.Is(err, ErrUnsafePath) {
				t.Errorf("Resolve(%q): error %v is not ErrUnsafePath", tt.candidate, err)
			}
			if tt.absolute && !errors.Is(err, ErrAbsolutePath) {
				t.Errorf("Resolve(%q): error %v is not ErrAbsolutePath", tt.candidate, err)
			}
		})
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on windows")
	}
	g, root := newTestGuard(t)

	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}

	for _, candidate := range []string{"link", "link/secret.txt"} {
		if _, err := g.Resolve(candidate); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("Resolve(%q): want ErrUnsafePath, got %v", candidate, err)
		}
	}
}

func TestResolve_InternalSymlinkAccepted(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on windows")
	}
	g, root := newTestGuard(t)

	target := filepath.Join(root, "real")
	if err := os.MkdirAll(target, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "alias")); err != nil {
		t.Fatal(err)
	}

	got, err := g.Resolve("alias")
	if err != nil {
		t.Fatalf("Resolve(alias): %v", err)
	}
	if got != target {
		t.Errorf("Resolve(alias) = %q, want %q", got, target)
	}
}

func TestResolveExisting_MissingTarget(t *testing.T) {
	g, _ := newTestGuard(t)

	if _, err := g.ResolveExisting("nope.txt"); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("ResolveExisting(nope.txt): want ErrUnsafePath, got %v", err)
	}
}

func TestRel(t *testing.T) {
	g, root := newTestGuard(t)

	rel, err := g.Rel(filepath.Join(root, "a", "b.txt"))
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	if rel != "a/b.txt" {
		t.Errorf("Rel = %q, want %q", rel, "a/b.txt")
	}

	if rel, err := g.Rel(root); err != nil || rel != "." {
		t.Errorf("Rel(root) = %q, %v; want \".\", nil", rel, err)
	}

	if _, err := g.Rel(filepath.Dir(root)); err == nil {
		t.Error("Rel(parent of root): expected error, got nil")
	}
}
