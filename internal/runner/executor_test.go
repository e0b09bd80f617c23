package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jkaninda/sanduku/internal/pathguard"
)

// stubEngine records calls and returns canned results. It stands in for
// the container runtime so validation short-circuits can be proven by the
// absence of any engine call.
type stubEngine struct {
	ensureCalls int
	runCalls    int
	lastSpec    RunSpec

	ensureErr error
	runErr    error
	output    *RunOutput
}

func (s *stubEngine) EnsureImage(_ context.Context, _ string) error {
	s.ensureCalls++
	return s.ensureErr
}

func (s *stubEngine) RunOnce(_ context.Context, spec RunSpec) (*RunOutput, error) {
	s.runCalls++
	s.lastSpec = spec
	if s.runErr != nil {
		return nil, s.runErr
	}
	return s.output, nil
}

func newTestExecutor(t *testing.T, engine ContainerEngine, cfg Config) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	guard, err := pathguard.New(root)
	if err != nil {
		t.Fatalf("pathguard.New: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewExecutor(guard, engine, nil, cfg, logger), guard.Root()
}

func writeTestFile(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("def test_ok():\n    assert True\n"), 0o640); err != nil {
		t.Fatal(err)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	engine := &stubEngine{}
	exec, _ := newTestExecutor(t, engine, Config{})

	res := exec.Run(context.Background(), nil)
	if res.Status != StatusError {
		t.Errorf("status = %s, want ERROR", res.Status)
	}
	if !strings.Contains(res.Message, "no test paths provided") {
		t.Errorf("message = %q, want no-paths diagnostic", res.Message)
	}
	if res.Output != "" {
		t.Errorf("output = %q, want empty", res.Output)
	}
	if engine.ensureCalls != 0 || engine.runCalls != 0 {
		t.Error("engine must not be touched for empty input")
	}
}

func TestRun_UnsafePathShortCircuits(t *testing.T) {
	engine := &stubEngine{}
	exec, _ := newTestExecutor(t, engine, Config{})

	for _, p := range []string{"../x.py", "/abs/x.py"} {
		res := exec.Run(context.Background(), []string{p})
		if res.Status != StatusError {
			t.Errorf("Run([%q]) status = %s, want ERROR", p, res.Status)
		}
		if !strings.Contains(res.Message, "invalid or unsafe test path") {
			t.Errorf("Run([%q]) message = %q", p, res.Message)
		}
	}
	if engine.ensureCalls != 0 || engine.runCalls != 0 {
		t.Error("no container work may happen before validation passes")
	}
}

func TestRun_PartiallyValidSetNeverExecutes(t *testing.T) {
	engine := &stubEngine{output: &RunOutput{ExitCode: 0, Output: "1 passed"}}
	exec, root := newTestExecutor(t, engine, Config{})
	writeTestFile(t, root, "tests/test_ok.py")

	res := exec.Run(context.Background(), []string{"tests/test_ok.py", "../escape.py"})
	if res.Status != StatusError {
		t.Errorf("status = %s, want ERROR", res.Status)
	}
	if engine.runCalls != 0 {
		t.Error("partially valid set must not reach the engine")
	}
}

func TestRun_MissingPathRejected(t *testing.T) {
	engine := &stubEngine{}
	exec, _ := newTestExecutor(t, engine, Config{})

	res := exec.Run(context.Background(), []string{"no_such_test.py"})
	if res.Status != StatusError {
		t.Errorf("status = %s, want ERROR", res.Status)
	}
	if engine.runCalls != 0 {
		t.Error("missing path must be rejected before launch")
	}
}

func TestRun_PathTranslation(t *testing.T) {
	engine := &stubEngine{output: &RunOutput{ExitCode: 0, Output: "2 passed"}}
	exec, root := newTestExecutor(t, engine, Config{})
	writeTestFile(t, root, "tests/test_a.py")
	writeTestFile(t, root, "tests/sub/test_b.py")

	res := exec.Run(context.Background(), []string{"tests/test_a.py", "tests/sub/test_b.py"})
	if res.Status != StatusPass {
		t.Fatalf("status = %s, want PASS (message: %s)", res.Status, res.Message)
	}

	wantCmd := []string{"pytest", "/workspace/tests/test_a.py", "/workspace/tests/sub/test_b.py"}
	if len(engine.lastSpec.Command) != len(wantCmd) {
		t.Fatalf("command = %v, want %v", engine.lastSpec.Command, wantCmd)
	}
	for i := range wantCmd {
		if engine.lastSpec.Command[i] != wantCmd[i] {
			t.Errorf("command[%d] = %q, want %q", i, engine.lastSpec.Command[i], wantCmd[i])
		}
	}
	if engine.lastSpec.HostDir != root {
		t.Errorf("host dir = %q, want project root %q", engine.lastSpec.HostDir, root)
	}
	if engine.lastSpec.MountPath != DefaultMountPath {
		t.Errorf("mount path = %q, want %q", engine.lastSpec.MountPath, DefaultMountPath)
	}
}

func TestRun_EngineFailuresAreError(t *testing.T) {
	tests := []struct {
		name   string
		engine *stubEngine
		want   string
	}{
		{
			name:   "image unavailable",
			engine: &stubEngine{ensureErr: context.Canceled},
			want:   "runner image unavailable",
		},
		{
			name:   "launch failure",
			engine: &stubEngine{runErr: os.ErrPermission},
			want:   "container run failed",
		},
		{
			name:   "timeout",
			engine: &stubEngine{runErr: context.DeadlineExceeded},
			want:   "timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, root := newTestExecutor(t, tt.engine, Config{})
			writeTestFile(t, root, "test_x.py")

			res := exec.Run(context.Background(), []string{"test_x.py"})
			if res.Status != StatusError {
				t.Errorf("status = %s, want ERROR", res.Status)
			}
			if !strings.Contains(res.Message, tt.want) {
				t.Errorf("message = %q, want substring %q", res.Message, tt.want)
			}
			if res.Output != "" {
				t.Errorf("output = %q, want empty on ERROR", res.Output)
			}
		})
	}
}

func TestRun_ZeroExitWithFailureMarkerIsFail(t *testing.T) {
	engine := &stubEngine{output: &RunOutput{ExitCode: 0, Output: "1 failed, 3 passed"}}
	exec, root := newTestExecutor(t, engine, Config{})
	writeTestFile(t, root, "test_x.py")

	res := exec.Run(context.Background(), []string{"test_x.py"})
	if res.Status != StatusFail {
		t.Errorf("status = %s, want FAIL despite exit 0", res.Status)
	}
	if res.Failed != 1 || res.Passed != 1 {
		t.Errorf("counts = passed %d failed %d, want 1/1", res.Passed, res.Failed)
	}
	if res.Message != "" {
		t.Errorf("message = %q, want empty for non-ERROR", res.Message)
	}
}

func TestRun_NonZeroExitIsFail(t *testing.T) {
	engine := &stubEngine{output: &RunOutput{ExitCode: 1, Output: "1 failed"}}
	exec, root := newTestExecutor(t, engine, Config{})
	writeTestFile(t, root, "test_x.py")

	res := exec.Run(context.Background(), []string{"test_x.py"})
	if res.Status != StatusFail {
		t.Errorf("status = %s, want FAIL", res.Status)
	}
	if res.Output != "1 failed" {
		t.Errorf("output = %q, want raw captured text", res.Output)
	}
}

func TestRun_CustomConfig(t *testing.T) {
	engine := &stubEngine{output: &RunOutput{ExitCode: 0, Output: "ok"}}
	exec, root := newTestExecutor(t, engine, Config{
		Image:       "custom-runner:1",
		TestCommand: []string{"python", "-m", "pytest", "-v"},
		MountPath:   "/src",
	})
	writeTestFile(t, root, "test_x.py")

	res := exec.Run(context.Background(), []string{"test_x.py"})
	if res.Status != StatusPass {
		t.Fatalf("status = %s, want PASS", res.Status)
	}
	if engine.lastSpec.Image != "custom-runner:1" {
		t.Errorf("image = %q", engine.lastSpec.Image)
	}
	got := strings.Join(engine.lastSpec.Command, " ")
	if got != "python -m pytest -v /src/test_x.py" {
		t.Errorf("command = %q", got)
	}
}
