// Package reaper periodically removes orphaned runner containers.
// Every run cleans up after itself, but a SIGKILL of the sanduku
// process can leave a container behind; the reaper is the backstop.
package reaper

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/sanduku/internal/runner"
)

// Sweeper lists and removes leftover runner containers.
type Sweeper interface {
	ListOrphans(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, name string) error
}

// DockerSweeper implements Sweeper via the docker CLI.
type DockerSweeper struct{}

// ListOrphans returns all containers carrying the runner name prefix,
// running or exited.
func (DockerSweeper) ListOrphans(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "docker", "ps", "-a",
		"--filter", "name="+runner.ContainerNamePrefix,
		"--format", "{{.Names}}").Output()
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Remove force-removes a container by name.
func (DockerSweeper) Remove(ctx context.Context, name string) error {
	if err := exec.CommandContext(ctx, "docker", "rm", "-f", name).Run(); err != nil {
		return fmt.Errorf("removing container %s: %w", name, err)
	}
	return nil
}

// Reaper sweeps orphaned containers on a cron schedule.
type Reaper struct {
	sweeper  Sweeper
	schedule cron.Schedule
	logger   *slog.Logger
}

// New creates a Reaper. The schedule is a standard five-field cron
// expression, e.g. "*/5 * * * *".
func New(sweeper Sweeper, schedule string, logger *slog.Logger) (*Reaper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing reaper schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{sweeper: sweeper, schedule: sched, logger: logger}, nil
}

// Start begins the sweep loop. Returns a cancel function.
func (r *Reaper) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		r.logger.InfoContext(ctx, "container reaper started")
		for {
			next := r.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				r.logger.Info("container reaper stopped")
				return
			case <-timer.C:
				r.Sweep(ctx)
			}
		}
	}()

	return cancel
}

// Sweep removes all orphaned containers once. Safe to call directly.
func (r *Reaper) Sweep(ctx context.Context) {
	names, err := r.sweeper.ListOrphans(ctx)
	if err != nil {
		r.logger.Warn("orphan sweep failed", slog.String("error", err.Error()))
		return
	}
	for _, name := range names {
		if err := r.sweeper.Remove(ctx, name); err != nil {
			r.logger.Warn("removing orphan failed",
				slog.String("container", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.logger.Info("removed orphaned container", slog.String("container", name))
	}
}
