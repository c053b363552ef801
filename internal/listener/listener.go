// Package listener subscribes to Postgres LISTEN/NOTIFY for distance_recorded
// events so that readings written by other processes (the ingest CLI, other
// API replicas) are seen by this one.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
	"github.com/ultrasense/ultrasense-server/internal/db"
)

const (
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Handler receives each decoded reading.
type Handler func(ctx context.Context, r alerts.Reading)

// Start opens a dedicated connection and listens on the distance_recorded
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, handle Handler, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, handle, logger)
		if ctx.Err() != nil {
			logger.Info("Reading listener stopped (context cancelled)")
			return
		}

		logger.Error("Reading listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, handle Handler, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+db.ReadingChannel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", db.ReadingChannel, err)
	}
	logger.Info("Reading listener connected", "channel", db.ReadingChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		reading, err := ParsePayload(notification.Payload)
		if err != nil {
			logger.Warn("Failed to parse reading event",
				"payload", notification.Payload, "error", err)
			continue
		}
		logger.Debug("Reading event received",
			"id", reading.ID, "distance", reading.DistanceCm)
		handle(ctx, reading)
	}
}

// ParsePayload decodes the JSON object built by the notify trigger.
func ParsePayload(payload string) (alerts.Reading, error) {
	var r alerts.Reading
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return alerts.Reading{}, err
	}
	if r.ID == 0 {
		return alerts.Reading{}, fmt.Errorf("missing id")
	}
	return r, nil
}
