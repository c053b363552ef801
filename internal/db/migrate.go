package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ReadingChannel is the NOTIFY channel fired for every inserted distance.
const ReadingChannel = "distance_recorded"

// schema is idempotent; every statement may run on each startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS push_tokens (
		id            BIGSERIAL PRIMARY KEY,
		token         TEXT NOT NULL UNIQUE,
		experience_id TEXT NOT NULL,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS distances (
		id         BIGSERIAL PRIMARY KEY,
		distance   DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS distances_created_at_idx ON distances (created_at)`,
	`CREATE OR REPLACE FUNCTION notify_distance_recorded() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('` + ReadingChannel + `', json_build_object(
			'id', NEW.id,
			'distance', NEW.distance,
			'createdAt', NEW.created_at
		)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS distances_notify ON distances`,
	`CREATE TRIGGER distances_notify AFTER INSERT ON distances
		FOR EACH ROW EXECUTE FUNCTION notify_distance_recorded()`,
}

// Migrate creates the tables and triggers the service depends on.
func Migrate(ctx context.Context, conn *pgx.Conn) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent migrations from multiple replicas.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(727100)"); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	for i, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
