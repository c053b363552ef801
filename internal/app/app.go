// Package app assembles the alert pipeline from its stores and collaborators.
// Both cmd/api and cmd/ingest build their services here.
package app

import (
	"context"
	"log/slog"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
	"github.com/ultrasense/ultrasense-server/internal/config"
	"github.com/ultrasense/ultrasense-server/internal/db"
)

// Store is the persistence a pipeline needs.
type Store interface {
	alerts.TokenStore
	alerts.ReadingStore
}

// Options configures New. Zero values fall back to package defaults.
type Options struct {
	Threshold float64
	Workers   int
	Sender    alerts.Sender
	Publisher alerts.Publisher
	Observer  alerts.Observer
	Logger    *slog.Logger

	// HealthCheck probes the backing database; nil reports healthy.
	HealthCheck func(ctx context.Context) error
}

// Services is the wired pipeline.
type Services struct {
	Registry    *alerts.Registry
	Readings    *alerts.Readings
	Dispatcher  *alerts.Dispatcher
	Coordinator *alerts.Coordinator

	healthCheck func(ctx context.Context) error
}

// New wires registry, readings, dispatcher and coordinator over one store.
func New(store Store, opts Options) *Services {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := alerts.DefaultPolicy()
	if opts.Threshold > 0 {
		policy.Threshold = opts.Threshold
	}

	registry := alerts.NewRegistry(store)
	readings := alerts.NewReadings(store)
	dispatcher := alerts.NewDispatcher(registry, opts.Sender, opts.Workers, opts.Observer, logger)
	coordinator := alerts.NewCoordinator(alerts.Deps{
		Readings:   readings,
		Policy:     policy,
		Dispatcher: dispatcher,
		Publisher:  opts.Publisher,
		Observer:   opts.Observer,
		Logger:     logger,
	})

	return &Services{
		Registry:    registry,
		Readings:    readings,
		Dispatcher:  dispatcher,
		Coordinator: coordinator,
		healthCheck: opts.HealthCheck,
	}
}

// FromConfig wires the Postgres-backed pipeline with the Expo sender.
// publisher and observer may be nil.
func FromConfig(cfg *config.Config, pool *db.Pool, publisher alerts.Publisher, observer alerts.Observer, logger *slog.Logger) *Services {
	sender := alerts.NewExpoSender(cfg.ExpoPushURL, cfg.ExpoAccessToken, cfg.PushChunkSize, cfg.ProviderTimeout, logger)
	return New(alerts.NewPGStore(pool.Pool), Options{
		Threshold:   cfg.AlertThreshold,
		Workers:     cfg.DispatchWorkers,
		Sender:      sender,
		Publisher:   publisher,
		Observer:    observer,
		Logger:      logger,
		HealthCheck: pool.HealthCheck,
	})
}

// HealthCheck probes storage.
func (s *Services) HealthCheck(ctx context.Context) error {
	if s.healthCheck == nil {
		return nil
	}
	return s.healthCheck(ctx)
}
