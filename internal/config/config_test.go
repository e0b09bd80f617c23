package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ProjectRoot != "." {
		t.Errorf("ProjectRoot = %q, want %q", cfg.ProjectRoot, ".")
	}
	if cfg.Runner.Image != "python:3.11-slim" {
		t.Errorf("Runner.Image = %q, want python:3.11-slim", cfg.Runner.Image)
	}
	if len(cfg.Runner.TestCommand) != 1 || cfg.Runner.TestCommand[0] != "pytest" {
		t.Errorf("Runner.TestCommand = %v, want [pytest]", cfg.Runner.TestCommand)
	}
	if cfg.Runner.MountPath != "/workspace" {
		t.Errorf("Runner.MountPath = %q, want /workspace", cfg.Runner.MountPath)
	}
	if got := cfg.Runner.Timeout(); got != 5*time.Minute {
		t.Errorf("Runner.Timeout() = %v, want 5m", got)
	}
	if cfg.Storage != nil || cfg.Server != nil || cfg.Observability != nil || cfg.Reaper != nil {
		t.Error("optional sections should default to nil")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
project_root: /srv/project
runner:
  image: python:3.12-slim
  test_command: ["pytest", "-q"]
  timeout_seconds: 60
  memory_mb: 1024
files:
  max_file_size_bytes: 1048576
server:
  listen_addr: ":8080"
  requests_per_minute: 120
reaper:
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ProjectRoot != "/srv/project" {
		t.Errorf("ProjectRoot = %q", cfg.ProjectRoot)
	}
	if cfg.Runner.Image != "python:3.12-slim" {
		t.Errorf("Runner.Image = %q", cfg.Runner.Image)
	}
	if got := cfg.Runner.Timeout(); got != time.Minute {
		t.Errorf("Runner.Timeout() = %v, want 1m", got)
	}
	if cfg.Runner.CPUCores != 1.0 {
		t.Errorf("Runner.CPUCores = %v, want default 1.0", cfg.Runner.CPUCores)
	}
	if cfg.Files.MaxFileSizeBytes != 1048576 {
		t.Errorf("Files.MaxFileSizeBytes = %d", cfg.Files.MaxFileSizeBytes)
	}
	if cfg.Server == nil || cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.BurstSize != 120 {
		t.Errorf("Server.BurstSize = %d, want defaulted to requests_per_minute", cfg.Server.BurstSize)
	}
	if cfg.Reaper == nil || cfg.Reaper.Schedule != "*/5 * * * *" {
		t.Errorf("Reaper = %+v, want default schedule", cfg.Reaper)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"runner": {"image": "node:22-slim", "test_command": ["npm", "test"]}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Runner.Image != "node:22-slim" {
		t.Errorf("Runner.Image = %q", cfg.Runner.Image)
	}
	if len(cfg.Runner.TestCommand) != 2 || cfg.Runner.TestCommand[0] != "npm" {
		t.Errorf("Runner.TestCommand = %v", cfg.Runner.TestCommand)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SANDUKU_PROJECT_ROOT", "/srv/override")
	t.Setenv("SANDUKU_RUNNER_IMAGE", "python:3.13-slim")
	t.Setenv("SANDUKU_DB_DSN", "postgres://u:p@localhost/sanduku")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ProjectRoot != "/srv/override" {
		t.Errorf("ProjectRoot = %q", cfg.ProjectRoot)
	}
	if cfg.Runner.Image != "python:3.13-slim" {
		t.Errorf("Runner.Image = %q", cfg.Runner.Image)
	}
	if cfg.Storage == nil || cfg.Storage.StorageDriver() != "postgres" {
		t.Fatalf("Storage = %+v, want postgres driver", cfg.Storage)
	}
	if cfg.Storage.Postgres.DSN != "postgres://u:p@localhost/sanduku" {
		t.Errorf("Postgres.DSN = %q", cfg.Storage.Postgres.DSN)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "relative mount path",
			mutate:  func(c *Config) { c.Runner.MountPath = "workspace" },
			wantErr: "mount_path",
		},
		{
			name:    "postgres without DSN",
			mutate:  func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} },
			wantErr: "dsn",
		},
		{
			name:    "unknown storage driver",
			mutate:  func(c *Config) { c.Storage = &StorageConfig{Driver: "mysql"} },
			wantErr: "unknown storage driver",
		},
		{
			name:    "server without listen addr",
			mutate:  func(c *Config) { c.Server = &ServerConfig{} },
			wantErr: "listen_addr",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSQLitePath(t *testing.T) {
	cfg := Default()
	if got := cfg.SQLitePath("/srv/p"); got != filepath.Join("/srv/p", ".sanduku", "history.db") {
		t.Errorf("SQLitePath() = %q", got)
	}
	cfg.Storage = &StorageConfig{SQLite: &SQLiteStorageConfig{Path: "/tmp/x.db"}}
	if got := cfg.SQLitePath("/srv/p"); got != "/tmp/x.db" {
		t.Errorf("SQLitePath() with explicit path = %q", got)
	}
}
