// Package history persists test run results using GORM.
// Two backends are supported: SQLite (default, zero-config, pure Go via
// modernc) and PostgreSQL for shared deployments. All GORM usage is
// confined to this package — runner types remain ORM-free.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkaninda/sanduku/internal/runner"
)

// ErrNotFound is returned when no run exists with the requested ID.
var ErrNotFound = errors.New("run not found")

// outputLimit caps stored output so a noisy run cannot bloat the database.
const outputLimit = 64 * 1024

// RunRecord is the persisted form of a single test run.
type RunRecord struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Status     string    `gorm:"size:8;index" json:"status"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Errors     int       `json:"errors"`
	Output     string    `gorm:"type:text" json:"output"`
	Message    string    `gorm:"type:text" json:"message,omitempty"`
	TestPaths  string    `gorm:"type:text" json:"-"` // JSON-encoded request paths.
	Image      string    `gorm:"size:255" json:"image"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// TableName keeps the table name stable across GORM versions.
func (RunRecord) TableName() string { return "run_records" }

// Paths decodes the JSON-encoded test paths of the original request.
func (r *RunRecord) Paths() []string {
	var paths []string
	_ = json.Unmarshal([]byte(r.TestPaths), &paths)
	return paths
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path        string // Database file path.
	JournalMode string // "wal" by default.
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int           // Default: 25
	MaxIdleConns    int           // Default: 5
	ConnMaxLifetime time.Duration // Default: 30m
}

// Store persists and queries run records.
type Store struct {
	db     *gorm.DB
	driver string
	logger *slog.Logger
}

// OpenSQLite creates a SQLite-backed Store, creating the parent directory
// if needed.
func OpenSQLite(cfg SQLiteConfig, slogger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}

	journalMode := cfg.JournalMode
	if journalMode == "" {
		journalMode = "wal"
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)", cfg.Path, journalMode)

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(slogger))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	slogger.Info("run history opened", slog.String("driver", "sqlite"), slog.String("path", cfg.Path))
	return &Store{db: db, driver: "sqlite", logger: slogger}, nil
}

// OpenPostgres creates a PostgreSQL-backed Store with a configured pool.
func OpenPostgres(cfg PostgresConfig, slogger *slog.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig(slogger))
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing sql.DB: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	slogger.Info("run history opened", slog.String("driver", "postgres"))
	return &Store{db: db, driver: "postgres", logger: slogger}, nil
}

func gormConfig(slogger *slog.Logger) *gorm.Config {
	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	return &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates or updates the run_records table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&RunRecord{}); err != nil {
		return fmt.Errorf("migrating run history: %w", err)
	}
	return nil
}

// Record stores a finished run and returns its generated ID.
func (s *Store) Record(ctx context.Context, testPaths []string, image string, duration time.Duration, result runner.Result) (*RunRecord, error) {
	encoded, err := json.Marshal(testPaths)
	if err != nil {
		return nil, fmt.Errorf("encoding test paths: %w", err)
	}

	output := result.Output
	if len(output) > outputLimit {
		output = output[:outputLimit]
	}

	rec := &RunRecord{
		ID:         uuid.NewString(),
		Status:     string(result.Status),
		Passed:     result.Passed,
		Failed:     result.Failed,
		Errors:     result.Errors,
		Output:     output,
		Message:    result.Message,
		TestPaths:  string(encoded),
		Image:      image,
		DurationMS: duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	return rec, nil
}

// Get returns a single run by ID.
func (s *Store) Get(ctx context.Context, id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return &rec, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []RunRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return recs, nil
}

// Ping checks the database connection for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns the backing driver name ("sqlite" or "postgres").
func (s *Store) Driver() string { return s.driver }

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
