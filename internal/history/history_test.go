package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/sanduku/internal/runner"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "history.db")}, logger)
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return store
}

func TestRecordAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result := runner.Result{
		Status: runner.StatusFail,
		Passed: 2,
		Failed: 1,
		Output: "2 passed, 1 failed",
	}
	rec, err := store.Record(ctx, []string{"tests/test_api.py"}, "python:3.11-slim", 3*time.Second, result)
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated run ID")
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != "FAIL" || got.Passed != 2 || got.Failed != 1 {
		t.Errorf("Get() = %+v", got)
	}
	if got.DurationMS != 3000 {
		t.Errorf("DurationMS = %d, want 3000", got.DurationMS)
	}
	if paths := got.Paths(); len(paths) != 1 || paths[0] != "tests/test_api.py" {
		t.Errorf("Paths() = %v", paths)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	statuses := []runner.Status{runner.StatusPass, runner.StatusFail, runner.StatusError}
	for i, status := range statuses {
		rec, err := store.Record(ctx, []string{"tests"}, "python:3.11-slim", time.Second, runner.Result{Status: status})
		if err != nil {
			t.Fatalf("Record(%d) error: %v", i, err)
		}
		// Distinct timestamps so ordering is deterministic.
		store.db.Model(rec).Update("created_at", time.Now().UTC().Add(time.Duration(i)*time.Second))
	}

	recs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(recs))
	}
	if recs[0].Status != "ERROR" {
		t.Errorf("first record status = %q, want newest (ERROR)", recs[0].Status)
	}
}

func TestOutputTruncated(t *testing.T) {
	store := newTestStore(t)

	huge := strings.Repeat("x", outputLimit+4096)
	rec, err := store.Record(context.Background(), []string{"tests"}, "python:3.11-slim", time.Second,
		runner.Result{Status: runner.StatusPass, Output: huge})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if len(rec.Output) != outputLimit {
		t.Errorf("stored output length = %d, want %d", len(rec.Output), outputLimit)
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if store.Driver() != "sqlite" {
		t.Errorf("Driver() = %q", store.Driver())
	}
}
