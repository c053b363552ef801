// Command api is the UltraSense alert server.
//
// Usage:
//
//	ultrasense-api
//	PORT=8080 ultrasense-api

// @title UltraSense Alert Server
// @version 1.0.0
// @description Ingests ultrasonic distance readings and pushes threshold alerts to registered Expo devices.
// @host localhost:3000
// @BasePath /
// @schemes http https
// @contact.name UltraSense
// @license.name MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
	"github.com/ultrasense/ultrasense-server/internal/api"
	"github.com/ultrasense/ultrasense-server/internal/api/handler"
	"github.com/ultrasense/ultrasense-server/internal/app"
	"github.com/ultrasense/ultrasense-server/internal/cache"
	"github.com/ultrasense/ultrasense-server/internal/config"
	"github.com/ultrasense/ultrasense-server/internal/db"
	"github.com/ultrasense/ultrasense-server/internal/events"
	"github.com/ultrasense/ultrasense-server/internal/listener"
	"github.com/ultrasense/ultrasense-server/internal/maintenance"
	"github.com/ultrasense/ultrasense-server/internal/metrics"
	"github.com/ultrasense/ultrasense-server/internal/mqttin"

	_ "github.com/ultrasense/ultrasense-server/docs" // swagger docs
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize cache
	appCache := newCache(ctx, cfg, logger)

	rec := metrics.New()
	h := handler.New(appCache, logger)
	router := api.NewRouter(h, rec, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background; data routes answer 503 until storage is up.
	go func() {
		logger.Info("Starting UltraSense server",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	ready := make(chan *backends, 1)
	go func() {
		ready <- connectBackends(ctx, cfg, h, appCache, rec, logger)
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	(<-ready).close(logger)
	logger.Info("Server stopped")
}

// backends holds everything opened after startup so shutdown can release it.
type backends struct {
	pool      *db.Pool
	publisher *events.Publisher
	mqtt      *mqttin.Subscriber
}

func (b *backends) close(logger *slog.Logger) {
	if b.mqtt != nil {
		b.mqtt.Stop()
	}
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			logger.Warn("AMQP close failed", "error", err)
		}
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// connectBackends connects storage with backoff, attaches the pipeline to the
// handler and starts the optional consumers. Runs once, in the background.
func connectBackends(ctx context.Context, cfg *config.Config, h *handler.Handler, appCache cache.Store, rec *metrics.Recorder, logger *slog.Logger) *backends {
	b := &backends{}

	logger.Info("Connecting to database...")
	pool, err := db.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Database unavailable; data routes stay at 503", "error", err)
		return b
	}
	b.pool = pool
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns,
		"migrated", cfg.DBAutoMigrate)

	// Event bus (optional)
	var publisher alerts.Publisher
	if cfg.AMQPURL != "" {
		p, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("AMQP unavailable; dispatch events disabled", "error", err)
		} else {
			b.publisher = p
			publisher = p
			logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange)
		}
	}

	services := app.FromConfig(cfg, pool, publisher, rec, logger)
	h.Attach(services)
	logger.Info("Alert pipeline ready",
		"threshold_cm", cfg.AlertThreshold,
		"chunk_size", cfg.PushChunkSize,
		"workers", cfg.DispatchWorkers)

	// Readings written by other processes invalidate the cache too.
	go listener.Start(ctx, cfg.DatabaseURL, h.InvalidateLatest, logger)

	sweeper, _ := appCache.(maintenance.Sweeper)
	mcfg := maintenance.DefaultConfig()
	mcfg.ReadingRetention = cfg.ReadingRetention
	go maintenance.Start(ctx, pool.Pool, sweeper, mcfg, logger)

	// MQTT ingestion (optional)
	if cfg.MQTTBrokerURL != "" {
		sub, err := mqttin.Start(ctx, mqttin.Config{
			BrokerURL: cfg.MQTTBrokerURL,
			Topic:     cfg.MQTTTopic,
			ClientID:  cfg.MQTTClientID,
		}, services.Coordinator, logger)
		if err != nil {
			logger.Warn("MQTT ingestion disabled", "error", err)
		} else {
			b.mqtt = sub
		}
	}
	return b
}

func newCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) cache.Store {
	if cfg.CacheEnabled && cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rc, err := cache.NewRedis(pingCtx, cfg.RedisURL, logger)
		if err == nil {
			logger.Info("Cache initialized", "backend", "redis")
			return rc
		}
		logger.Warn("Redis unavailable, falling back to in-memory cache", "error", err)
	}
	logger.Info("Cache initialized", "backend", "memory", "enabled", cfg.CacheEnabled)
	return cache.New(cfg.CacheEnabled)
}
