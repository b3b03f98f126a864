// Command consumer drains the item event queue and appends one line per
// event to a log file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/items-api/internal/config"
	"github.com/iliyamo/items-api/internal/logger"
	"github.com/iliyamo/items-api/internal/queue"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:          "consumer",
		Short:        "Consume item events and append them to a log file",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), out)
		},
	}
	cmd.Flags().StringVar(&out, "out", filepath.Join("logs", "items.log"), "file events are appended to")
	return cmd
}

func run(ctx context.Context, out string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(&logger.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON, TimeFormat: "15:04:05"})

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(out), err)
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Consuming item events", "queue", cfg.Events.Queue, "out", out)
	err = queue.StartItemConsumer(ctx, cfg.Events.URL, cfg.Events.Queue, f, log)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
