package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements TokenStore and ReadingStore on Postgres. Statement
// names refer to the prepared statements registered in internal/db.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store on an open pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// UpsertToken inserts or re-assigns a device token.
func (s *PGStore) UpsertToken(ctx context.Context, token, tenantID string, registeredAt time.Time) error {
	if _, err := s.pool.Exec(ctx, "upsert_push_token", token, tenantID, registeredAt); err != nil {
		return fmt.Errorf("upsert push token: %w", err)
	}
	return nil
}

// FindAllTokens returns every token in first-registration order.
func (s *PGStore) FindAllTokens(ctx context.Context) ([]DeviceToken, error) {
	rows, err := s.pool.Query(ctx, "all_push_tokens")
	if err != nil {
		return nil, fmt.Errorf("query push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []DeviceToken
	for rows.Next() {
		var t DeviceToken
		if err := rows.Scan(&t.Token, &t.TenantID, &t.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan push token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// InsertReading appends a distance and returns the stored row.
func (s *PGStore) InsertReading(ctx context.Context, distanceCm float64, createdAt time.Time) (Reading, error) {
	var r Reading
	err := s.pool.QueryRow(ctx, "insert_distance", distanceCm, createdAt).
		Scan(&r.ID, &r.DistanceCm, &r.CreatedAt)
	if err != nil {
		return Reading{}, fmt.Errorf("insert distance: %w", err)
	}
	return r, nil
}

// FindLatestReading returns the last appended reading or nil.
func (s *PGStore) FindLatestReading(ctx context.Context) (*Reading, error) {
	var r Reading
	err := s.pool.QueryRow(ctx, "latest_distance").Scan(&r.ID, &r.DistanceCm, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest distance: %w", err)
	}
	return &r, nil
}
