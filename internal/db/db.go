// Package db provides a pgxpool-based connection pool with prepared statement
// registration, schema migration and health checking.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ultrasense/ultrasense-server/internal/config"
)

const maxConnectDelay = 30 * time.Second

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Connect migrates the schema (when enabled) and opens the pool, retrying
// with exponential backoff until DBConnectAttempts is exhausted or ctx is
// cancelled. Migration must run first: prepared statements reference the
// tables it creates.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pool, error) {
	attempts := max(cfg.DBConnectAttempts, 1)
	delay := time.Second
	var lastErr error

	for i := 1; i <= attempts; i++ {
		pool, err := connectOnce(ctx, cfg)
		if err == nil {
			if i > 1 {
				logger.Info("Database connected", "attempt", i)
			}
			return pool, nil
		}
		lastErr = err

		if i == attempts {
			break
		}
		logger.Warn("Database connect failed",
			"attempt", i, "sleep", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("connect cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, maxConnectDelay)
	}

	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
}

func connectOnce(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg.DBAutoMigrate {
		conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect for migration: %w", err)
		}
		err = Migrate(ctx, conn)
		conn.Close(context.Background())
		if err != nil {
			return nil, err
		}
	}
	return New(ctx, cfg)
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements the API and ingestion
// layers use.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Device registry
		"upsert_push_token": `INSERT INTO push_tokens (token, experience_id, registered_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (token) DO UPDATE
			SET experience_id = EXCLUDED.experience_id, registered_at = EXCLUDED.registered_at`,
		"all_push_tokens": "SELECT token, experience_id, registered_at FROM push_tokens ORDER BY id",

		// Readings
		"insert_distance": "INSERT INTO distances (distance, created_at) VALUES ($1, $2) RETURNING id, distance, created_at",
		"latest_distance": "SELECT id, distance, created_at FROM distances ORDER BY id DESC LIMIT 1",

		// Maintenance
		"prune_distances": "DELETE FROM distances WHERE created_at < $1 AND id < (SELECT max(id) FROM distances)",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
