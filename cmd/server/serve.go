package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/iliyamo/items-api/internal/config"
	"github.com/iliyamo/items-api/internal/metrics"
	"github.com/iliyamo/items-api/internal/router"
	"github.com/iliyamo/items-api/internal/service"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	var rdb *redis.Client
	if a.cfg.Cache.Enabled || a.cfg.RateLimit.Enabled {
		if rdb = config.NewRedisClient(ctx, a.cfg.Redis); rdb == nil {
			a.log.Warn("Redis unavailable, cache and rate limiting disabled", "addr", a.cfg.Redis.Address())
		} else {
			defer rdb.Close()
		}
	}

	var pub service.Publisher = service.NopPublisher{}
	if a.cfg.Events.Enabled {
		pub = service.NewAMQPPublisher(a.cfg.Events.URL, a.cfg.Events.Queue, a.log)
	}

	e := router.New(router.Options{
		Store:     a.store,
		Publisher: pub,
		Metrics:   metrics.Handler(metrics.NewRegistry(a.store.DB())),
		Logger:    a.log,
		Redis:     rdb,
		Cache:     a.cfg.Cache,
		RateLimit: a.cfg.RateLimit,
	})

	addr := ":" + a.cfg.Port
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Listening", "addr", addr, "env", a.cfg.Env, "driver", a.store.Dialect())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
