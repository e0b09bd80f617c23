package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	goutils "github.com/jkaninda/go-utils"
	"github.com/jkaninda/sanduku/internal/config"
	"github.com/jkaninda/sanduku/internal/gateway/httpapi"
	"github.com/jkaninda/sanduku/internal/ratelimit"
	"github.com/jkaninda/sanduku/internal/reaper"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var (
	configPath string
	listenAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd, mcpCmd, runCmd} {
		cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (yaml or json)")
	}
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "HTTP listen address (overrides config)")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger(slog.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server == nil {
		cfg.Server = &config.ServerConfig{}
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Reaper != nil && cfg.Reaper.Enabled {
		rp, err := reaper.New(reaper.DockerSweeper{}, cfg.Reaper.Schedule, logger)
		if err != nil {
			return fmt.Errorf("initializing container reaper: %w", err)
		}
		stopReaper := rp.Start(ctx)
		defer stopReaper()
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		BurstSize:         cfg.Server.BurstSize,
	})

	gwCfg := httpapi.Config{
		ListenAddr:  cfg.Server.ListenAddr,
		EnableDocs:  cfg.Server.EnableDocs,
		APIKeys:     cfg.Server.APIKeys,
		RunnerImage: cfg.Runner.Image,
	}
	if sc.Obs != nil {
		if m := sc.Obs.MetricsOrNil(); m != nil {
			gwCfg.Metrics = m
			gwCfg.MetricsRegistry = m.Registry
			if cfg.Observability != nil && cfg.Observability.Metrics != nil {
				gwCfg.MetricsPath = cfg.Observability.Metrics.Path
			}
		}
		if ts := sc.Obs.TracerOrNil(); ts != nil {
			gwCfg.Tracer = ts.Tracer()
		}
		gwCfg.HealthChecker = sc.Obs.Health
	}

	gw := httpapi.NewGateway(gwCfg, sc.Files, sc.Runs, limiter, logger).
		WithGit(sc.Git)
	if sc.Store != nil {
		gw = gw.WithHistory(sc.Store)
	}

	logger.Info("starting http server",
		slog.String("addr", cfg.Server.ListenAddr),
		slog.String("project_root", sc.Guard.Root()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.String("error", err.Error()))
	}
	return nil
}

// loadConfig resolves the config file path from the --config flag, the
// SANDUKU_CONFIG environment variable, or well-known filenames in the
// working directory, falling back to built-in defaults.
func loadConfig() (*config.Config, error) {
	path := goutils.Env("SANDUKU_CONFIG", configPath)
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("loading configuration from %s: %w", path, err)
		}
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
