// Package config handles loading and validating Sanduku configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Sanduku.
type Config struct {
	// ProjectRoot is the directory boundary all confined operations live
	// under. Resolved once at startup, immutable afterwards.
	// Default: current directory. Override: SANDUKU_PROJECT_ROOT env var.
	ProjectRoot string `json:"project_root,omitempty" yaml:"project_root,omitempty"`

	Runner        RunnerConfig         `json:"runner" yaml:"runner"`
	Files         FilesConfig          `json:"files" yaml:"files"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = run history disabled
	Server        *ServerConfig        `json:"server,omitempty" yaml:"server,omitempty"`               // nil = HTTP API disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Reaper        *ReaperConfig        `json:"reaper,omitempty" yaml:"reaper,omitempty"`               // nil = orphan sweep disabled
}

// RunnerConfig configures the isolated test executor.
type RunnerConfig struct {
	Image          string            `json:"image" yaml:"image"`                     // Runner image. Default: "python:3.11-slim". Override: SANDUKU_RUNNER_IMAGE.
	TestCommand    []string          `json:"test_command" yaml:"test_command"`       // Command run inside the container. Default: ["pytest"].
	MountPath      string            `json:"mount_path" yaml:"mount_path"`           // In-container workspace path. Default: "/workspace".
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"` // Wall-clock bound per run. Default: 300.
	MemoryMB       int               `json:"memory_mb" yaml:"memory_mb"`             // Hard memory limit. Default: 512.
	CPUCores       float64           `json:"cpu_cores" yaml:"cpu_cores"`             // CPU limit. Default: 1.0.
	PIDsLimit      int               `json:"pids_limit" yaml:"pids_limit"`           // Fork bomb protection. Default: 128.
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty"`     // Extra in-container environment.
}

// Timeout returns the per-run wall-clock bound as a duration.
func (r *RunnerConfig) Timeout() time.Duration {
	if r.TimeoutSeconds > 0 {
		return time.Duration(r.TimeoutSeconds) * time.Second
	}
	return 5 * time.Minute
}

// FilesConfig configures confined file operations.
type FilesConfig struct {
	MaxFileSizeBytes int64 `json:"max_file_size_bytes" yaml:"max_file_size_bytes"` // Read size cap. 0 = 10 MB.
}

// StorageConfig configures the run-history backend.
// When nil, run history is not persisted.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: <project root>/.sanduku/history.db.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
// DSN can be overridden by the SANDUKU_DB_DSN env var.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ServerConfig configures the HTTP API surface.
type ServerConfig struct {
	ListenAddr        string            `json:"listen_addr" yaml:"listen_addr"`                 // e.g. ":8080".
	APIKeys           map[string]string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"`   // API key -> client name. Empty = no auth.
	EnableDocs        bool              `json:"enable_docs" yaml:"enable_docs"`                 // Serve OpenAPI docs.
	RequestsPerMinute int               `json:"requests_per_minute" yaml:"requests_per_minute"` // Per-client rate limit. 0 = unlimited.
	BurstSize         int               `json:"burst_size" yaml:"burst_size"`                   // Default: requests_per_minute.
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "sanduku"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeEngine  bool `json:"include_engine" yaml:"include_engine"`   // Ping the container runtime.
	IncludeStorage bool `json:"include_storage" yaml:"include_storage"` // Ping the run-history store.
}

// ReaperConfig configures the orphaned-container sweep in serve mode.
type ReaperConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Schedule string `json:"schedule" yaml:"schedule"` // Cron expression. Default: "*/5 * * * *".
}

// Default returns a configuration with all defaults applied, rooted at
// the current working directory.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file (YAML or JSON by extension), applies
// environment overrides, defaults, and validation. An empty path yields
// the default configuration with env overrides applied.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", path, err)
			}
		case ".json":
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("unsupported config format %q (use .yaml, .yml, or .json)", filepath.Ext(path))
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SANDUKU_PROJECT_ROOT"); v != "" {
		c.ProjectRoot = v
	}
	if v := os.Getenv("SANDUKU_RUNNER_IMAGE"); v != "" {
		c.Runner.Image = v
	}
	if v := os.Getenv("SANDUKU_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: "postgres"}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = v
	}
}

func (c *Config) applyDefaults() {
	if c.ProjectRoot == "" {
		c.ProjectRoot = "."
	}
	if c.Runner.Image == "" {
		c.Runner.Image = "python:3.11-slim"
	}
	if len(c.Runner.TestCommand) == 0 {
		c.Runner.TestCommand = []string{"pytest"}
	}
	if c.Runner.MountPath == "" {
		c.Runner.MountPath = "/workspace"
	}
	if c.Runner.TimeoutSeconds <= 0 {
		c.Runner.TimeoutSeconds = 300
	}
	if c.Runner.MemoryMB <= 0 {
		c.Runner.MemoryMB = 512
	}
	if c.Runner.CPUCores <= 0 {
		c.Runner.CPUCores = 1.0
	}
	if c.Runner.PIDsLimit <= 0 {
		c.Runner.PIDsLimit = 128
	}
	if c.Server != nil {
		if c.Server.BurstSize <= 0 {
			c.Server.BurstSize = c.Server.RequestsPerMinute
		}
	}
	if c.Reaper != nil && c.Reaper.Schedule == "" {
		c.Reaper.Schedule = "*/5 * * * *"
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Runner.MountPath, "/") {
		return fmt.Errorf("runner.mount_path must be absolute, got %q", c.Runner.MountPath)
	}
	if c.Storage != nil {
		switch driver := c.Storage.StorageDriver(); driver {
		case "sqlite":
		case "postgres":
			if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
				return fmt.Errorf("storage.postgres.dsn is required when driver is %q (or set SANDUKU_DB_DSN)", driver)
			}
		default:
			return fmt.Errorf("unknown storage driver %q (supported: sqlite, postgres)", driver)
		}
	}
	if c.Server != nil && c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required when the server section is present")
	}
	return nil
}

// DefaultConfigPath returns a sanduku config file in the current directory
// when one exists, otherwise empty (defaults and env overrides only).
func DefaultConfigPath() string {
	for _, name := range []string{"sanduku.yaml", "sanduku.yml", "sanduku.json"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// SQLitePath returns the resolved SQLite database path for the given
// project root, creating no directories.
func (c *Config) SQLitePath(root string) string {
	if c.Storage != nil && c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		return c.Storage.SQLite.Path
	}
	return filepath.Join(root, ".sanduku", "history.db")
}
