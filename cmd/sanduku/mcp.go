package main

import (
	"fmt"
	"log/slog"

	"github.com/jkaninda/sanduku/internal/gateway/mcphost"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the tool interface over stdio (Model Context Protocol)",
	Long: `Exposes file access, directory listing, test execution, and git
operations as MCP tools over standard input/output. Intended to be
launched as a subprocess by an agent host.`,
	RunE: runMCP,
}

func runMCP(_ *cobra.Command, _ []string) error {
	// Stdout carries the protocol stream. Logs must stay on stderr.
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

	host := mcphost.New(sc.Files, sc.Runs, logger).WithGit(sc.Git)
	if err := host.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
