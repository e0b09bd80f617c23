package gitops

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func skipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available, skipping")
	}
}

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return svc, dir
}

func configureIdentity(t *testing.T, dir string) {
	t.Helper()
	for _, args := range [][]string{
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
}

func TestNewRejectsMissingRoot(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestInitIdempotent(t *testing.T) {
	skipIfNoGit(t)
	svc, _ := newTestService(t)
	ctx := context.Background()

	if res := svc.Init(ctx); res.Failed() {
		t.Fatalf("Init() = %+v", res)
	}
	res := svc.Init(ctx)
	if res.Failed() {
		t.Fatalf("second Init() = %+v", res)
	}
	if !strings.Contains(res.Message, "already exists") {
		t.Errorf("second Init() message = %q", res.Message)
	}
}

func TestAddValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		paths []string
	}{
		{"empty", nil},
		{"absolute", []string{"/etc/passwd"}},
		{"traversal", []string{"../outside.txt"}},
		{"traversal nested", []string{"a/../../outside.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := svc.Add(ctx, tt.paths); !res.Failed() {
				t.Errorf("Add(%v) = %+v, want failure", tt.paths, res)
			}
		})
	}
}

func TestInitAddCommit(t *testing.T) {
	skipIfNoGit(t)
	svc, dir := newTestService(t)
	ctx := context.Background()

	if res := svc.Init(ctx); res.Failed() {
		t.Fatalf("Init() = %+v", res)
	}
	configureIdentity(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if res := svc.Add(ctx, []string{"main.py"}); res.Failed() {
		t.Fatalf("Add() = %+v", res)
	}
	if res := svc.Commit(ctx, "add main"); res.Failed() {
		t.Fatalf("Commit() = %+v", res)
	}

	cmd := exec.Command("git", "log", "--oneline")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git log: %v: %s", err, out)
	}
	if !strings.Contains(string(out), "add main") {
		t.Errorf("git log = %q, want commit message present", out)
	}
}

func TestCommitRequiresMessage(t *testing.T) {
	svc, _ := newTestService(t)
	if res := svc.Commit(context.Background(), ""); !res.Failed() {
		t.Fatal("expected failure for empty commit message")
	}
}

func TestCommitWithoutRepo(t *testing.T) {
	skipIfNoGit(t)
	svc, _ := newTestService(t)
	res := svc.Commit(context.Background(), "nothing")
	if !res.Failed() {
		t.Fatalf("Commit() outside a repo = %+v, want failure", res)
	}
	if res.Details == "" {
		t.Error("expected git output in Details")
	}
}
