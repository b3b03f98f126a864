package main

import (
	"context"
	"fmt"

	charmlog "github.com/charmbracelet/log"

	"github.com/iliyamo/items-api/internal/config"
	"github.com/iliyamo/items-api/internal/database"
	"github.com/iliyamo/items-api/internal/logger"
)

// app is what every subcommand needs once startup has finished.
type app struct {
	cfg   config.Config
	log   *charmlog.Logger
	store *database.Store
}

// bootstrap loads config, runs the optional readiness gate, opens the pool
// and applies the schema, in that order.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(&logger.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON, TimeFormat: "15:04:05"})

	dialect, err := database.ParseDialect(cfg.DB.Driver)
	if err != nil {
		return nil, err
	}
	dsn := database.DSN(dialect, cfg.DB)
	target := database.Target(dialect, cfg.DB)

	if cfg.WaitEnabled() {
		log.Info("Waiting for database before startup", "target", target, "interval", cfg.WaitForInterval)
		probe := database.PingProbe(dialect, dsn)
		if err := database.WaitFor(ctx, probe, database.ConstantBackoff(cfg.WaitForInterval), log, target); err != nil {
			return nil, fmt.Errorf("wait for database: %w", err)
		}
	}

	db, err := database.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	log.Info("Creating tables (if not exist)", "target", target)
	if err := database.Migrate(ctx, db, dialect, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("Table check complete")
	return &app{cfg: cfg, log: log, store: database.NewStore(db, dialect)}, nil
}
