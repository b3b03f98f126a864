package database

import (
	"context"
	"database/sql"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/sethvargo/go-retry"
)

// DefaultWaitInterval is the fixed pause between readiness attempts.
const DefaultWaitInterval = 2 * time.Second

// Probe makes one attempt to reach the store.  A nil error means ready.
type Probe func(ctx context.Context) error

// PingProbe opens a throwaway connection, pings it and closes it again.
func PingProbe(d Dialect, dsn string) Probe {
	return func(ctx context.Context) error {
		db, err := sql.Open(d.driverName(), dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}
}

// ConstantBackoff retries forever at a fixed interval.
func ConstantBackoff(interval time.Duration) retry.Backoff {
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	return retry.NewConstant(interval)
}

// WaitFor blocks until probe succeeds, sleeping according to backoff between
// failed attempts.  With ConstantBackoff it only returns early when ctx is
// done; callers wanting a bound wrap the backoff in retry.WithMaxRetries.
func WaitFor(ctx context.Context, probe Probe, backoff retry.Backoff, log *charmlog.Logger, target string) error {
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := probe(ctx); err != nil {
			log.Info("Waiting for database", "target", target, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		log.Info("Database is ready", "target", target, "attempts", attempt)
		return nil
	})
}
