// Package maintenance runs periodic background tasks as Go tickers.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	SweepInterval    time.Duration // Expired in-memory cache entries
	PruneInterval    time.Duration // Reading retention
	ReadingRetention time.Duration // Readings older than this are deleted; 0 keeps everything
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval: 5 * time.Minute,
		PruneInterval: 1 * time.Hour,
	}
}

// Sweeper drops expired cache entries.
type Sweeper interface {
	Sweep() int
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`. pool and sweeper may be nil.
func Start(ctx context.Context, pool *pgxpool.Pool, sweeper Sweeper, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"sweep", cfg.SweepInterval,
		"prune", cfg.PruneInterval,
		"retention", cfg.ReadingRetention)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if sweeper != nil && cfg.SweepInterval > 0 {
		t := time.NewTicker(cfg.SweepInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { sweepCache(sweeper, logger) })
	}

	if pool != nil && cfg.PruneInterval > 0 && cfg.ReadingRetention > 0 {
		t := time.NewTicker(cfg.PruneInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { PruneReadings(ctx, pool, cfg.ReadingRetention, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

func sweepCache(sweeper Sweeper, logger *slog.Logger) {
	if n := sweeper.Sweep(); n > 0 {
		logger.Debug("Cache sweep: removed expired entries", "count", n)
	}
}

// PruneReadings deletes readings older than retention. The most recent row is
// always kept so the latest reading survives an idle sensor.
func PruneReadings(ctx context.Context, pool *pgxpool.Pool, retention time.Duration, logger *slog.Logger) (int64, error) {
	start := time.Now()
	tag, err := pool.Exec(ctx, "prune_distances", start.Add(-retention))
	dur := time.Since(start).Round(time.Millisecond)
	if err != nil {
		logger.Warn("Prune: failed to delete old readings", "duration", dur, "error", err)
		return 0, err
	}
	if tag.RowsAffected() > 0 {
		logger.Info("Prune: deleted old readings", "count", tag.RowsAffected(), "duration", dur)
	}
	return tag.RowsAffected(), nil
}
