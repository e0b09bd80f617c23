package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jkaninda/sanduku/internal/runner"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [test paths...]",
	Short: "Run tests in an isolated container and print the classified result",
	Long: `Mounts the project root into a throwaway container, runs the test
command against the given paths, and prints the classified result as
JSON. Exit code is 0 for PASS, 1 for FAIL, and 2 for ERROR.`,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := newLogger(slog.LevelWarn)
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	result := sc.Runs.Run(ctx, args)

	if sc.Store != nil {
		if _, err := sc.Store.Record(ctx, args, cfg.Runner.Image, time.Since(started), result); err != nil {
			logger.Warn("recording run history", slog.String("error", err.Error()))
		}
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))

	// os.Exit skips deferred cleanup, so release resources first.
	if result.Status != runner.StatusPass {
		stop()
		sc.Cleanup()
		if result.Status == runner.StatusFail {
			os.Exit(1)
		}
		os.Exit(2)
	}
	return nil
}
