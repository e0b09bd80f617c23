package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jkaninda/sanduku/internal/config"
	"github.com/jkaninda/sanduku/internal/fileops"
	"github.com/jkaninda/sanduku/internal/gitops"
	"github.com/jkaninda/sanduku/internal/history"
	"github.com/jkaninda/sanduku/internal/observability"
	"github.com/jkaninda/sanduku/internal/pathguard"
	"github.com/jkaninda/sanduku/internal/runner"
)

// SharedComponents holds all initialized subsystems that the serve, mcp,
// and run commands require. Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config *config.Config
	Logger *slog.Logger
	Guard  *pathguard.Guard

	Files  *observability.InstrumentedFiles
	Runs   *observability.InstrumentedExecutor
	Engine *runner.DockerEngine
	Git    *gitops.Service
	Store  *history.Store // nil = run history disabled.
	Obs    *observability.Observability

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs all common initialization shared between the
// commands. Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Project root. Resolved once; everything downstream is confined to it.
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	guard, err := pathguard.New(root)
	if err != nil {
		return nil, fmt.Errorf("initializing project root %s: %w", root, err)
	}
	sc.Guard = guard
	logger.Debug("project root confined", slog.String("root", guard.Root()))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() { obs.Shutdown(context.Background()) })

	metrics := obs.MetricsOrNil()
	tracer := obs.TracerOrNil()

	// Confined file operations.
	files := fileops.New(guard, fileops.Config{MaxFileSizeBytes: cfg.Files.MaxFileSizeBytes}, logger)
	sc.Files = observability.NewInstrumentedFiles(files, metrics)

	// Container engine + test executor.
	sc.Engine = runner.NewDockerEngine(logger)
	executor := runner.NewExecutor(guard, observability.NewInstrumentedEngine(sc.Engine, metrics), nil, runner.Config{
		Image:       cfg.Runner.Image,
		TestCommand: cfg.Runner.TestCommand,
		MountPath:   cfg.Runner.MountPath,
		Timeout:     cfg.Runner.Timeout(),
		MemoryMB:    cfg.Runner.MemoryMB,
		CPUCores:    cfg.Runner.CPUCores,
		PIDsLimit:   cfg.Runner.PIDsLimit,
		Env:         cfg.Runner.Env,
	}, logger)
	sc.Runs = observability.NewInstrumentedExecutor(executor, metrics, tracer)

	// Version control.
	git, err := gitops.New(guard.Root(), logger)
	if err != nil {
		return nil, fmt.Errorf("initializing git service: %w", err)
	}
	sc.Git = git

	// Run history (optional).
	if cfg.Storage != nil {
		store, err := openHistory(cfg, guard.Root(), logger)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(context.Background()); err != nil {
			_ = store.Close()
			return nil, err
		}
		sc.Store = store
		sc.addCleanup(func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing run history", slog.String("error", err.Error()))
			}
		})
	}

	// Readiness checks.
	if obs != nil && obs.Health != nil && cfg.Observability.Health != nil {
		if cfg.Observability.Health.IncludeEngine {
			obs.Health.AddEngineCheck(sc.Engine)
		}
		if cfg.Observability.Health.IncludeStorage && sc.Store != nil {
			obs.Health.AddStorageCheck(sc.Store.Ping)
		}
	}

	return sc, nil
}

// openHistory opens the configured run-history backend.
func openHistory(cfg *config.Config, root string, logger *slog.Logger) (*history.Store, error) {
	switch driver := cfg.Storage.StorageDriver(); driver {
	case "postgres":
		pg := cfg.Storage.Postgres
		return history.OpenPostgres(history.PostgresConfig{
			DSN:             pg.DSN,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
		}, logger)
	case "sqlite":
		var journalMode string
		if cfg.Storage.SQLite != nil {
			journalMode = cfg.Storage.SQLite.JournalMode
		}
		return history.OpenSQLite(history.SQLiteConfig{
			Path:        cfg.SQLitePath(root),
			JournalMode: journalMode,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// newLogger builds the process logger. MCP mode must keep stdout clean for
// the protocol stream, so logs always go to stderr.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
