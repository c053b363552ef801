// Command ingest is the UltraSense operations CLI.
//
// Usage:
//
//	ultrasense-ingest migrate
//	ultrasense-ingest register --token 'ExponentPushToken[xxx]' --experience @acme/app
//	ultrasense-ingest send-distance --distance 123.4
//	ultrasense-ingest latest
//	ultrasense-ingest tokens
//	ultrasense-ingest prune --older-than 720h
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
	"github.com/ultrasense/ultrasense-server/internal/app"
	"github.com/ultrasense/ultrasense-server/internal/config"
	"github.com/ultrasense/ultrasense-server/internal/db"
	"github.com/ultrasense/ultrasense-server/internal/events"
	"github.com/ultrasense/ultrasense-server/internal/maintenance"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "ultrasense-ingest",
		Short:        "UltraSense operations CLI",
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(registerCmd())
	root.AddCommand(sendDistanceCmd())
	root.AddCommand(latestCmd())
	root.AddCommand(tokensCmd())
	root.AddCommand(pruneCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables, indexes and triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer conn.Close(context.Background())

			start := time.Now()
			if err := db.Migrate(ctx, conn); err != nil {
				return err
			}
			logger.Info("Migration finished", "duration", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// registry commands
// --------------------------------------------------------------------------

func registerCmd() *cobra.Command {
	var token, experience string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register or re-assign a device push token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, s *app.Services) error {
				if err := s.Registry.Register(ctx, token, experience); err != nil {
					return err
				}
				logger.Info("Token registered", "experience_id", experience)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Expo push token")
	cmd.Flags().StringVar(&experience, "experience", "", "Experience (tenant) ID")
	return cmd
}

func tokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "List registered tokens grouped by experience",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, s *app.Services) error {
				snap, err := s.Registry.SnapshotAll(ctx)
				if err != nil {
					return err
				}
				return printJSON(groupTokens(snap))
			})
		},
	}
}

// tenantTokens is one experience in the tokens listing.
type tenantTokens struct {
	ExperienceID string   `json:"experienceId"`
	Tokens       []string `json:"tokens"`
}

func groupTokens(snap []alerts.DeviceToken) []tenantTokens {
	index := make(map[string]int)
	var out []tenantTokens
	for _, t := range snap {
		i, ok := index[t.TenantID]
		if !ok {
			i = len(out)
			index[t.TenantID] = i
			out = append(out, tenantTokens{ExperienceID: t.TenantID})
		}
		out[i].Tokens = append(out[i].Tokens, t.Token)
	}
	return out
}

// --------------------------------------------------------------------------
// reading commands
// --------------------------------------------------------------------------

func sendDistanceCmd() *cobra.Command {
	var distance float64
	cmd := &cobra.Command{
		Use:   "send-distance",
		Short: "Store a reading and alert devices when it crosses the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("distance") {
				return fmt.Errorf("--distance is required")
			}
			return run(func(ctx context.Context, cfg *config.Config, s *app.Services) error {
				start := time.Now()
				sub, err := s.Coordinator.SubmitReading(ctx, distance)
				if err != nil {
					return err
				}
				if sub.Dispatch != nil {
					logger.Info("Dispatch finished",
						"duration", time.Since(start).Round(time.Millisecond),
						"summary", sub.Dispatch.Summary())
				}
				return printJSON(sub)
			})
		},
	}
	cmd.Flags().Float64Var(&distance, "distance", 0, "Distance in centimetres")
	return cmd
}

func latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Print the most recent reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, s *app.Services) error {
				latest, err := s.Readings.Latest(ctx)
				if err != nil {
					return err
				}
				if latest == nil {
					return printJSON(map[string]any{"distance": nil})
				}
				return printJSON(latest)
			})
		},
	}
}

func pruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete readings older than a retention window (the latest is kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return runPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				n, err := maintenance.PruneReadings(ctx, pool.Pool, olderThan, logger)
				if err != nil {
					return err
				}
				logger.Info("Prune finished", "deleted", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Retention window")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runPool handles config loading, DB connection, and context cancellation.
func runPool(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

// run wires the alert pipeline on top of runPool. The AMQP publisher is
// attached when configured.
func run(fn func(ctx context.Context, cfg *config.Config, s *app.Services) error) error {
	return runPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
		var publisher alerts.Publisher
		if cfg.AMQPURL != "" {
			p, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
			if err != nil {
				logger.Warn("AMQP unavailable; dispatch events disabled", "error", err)
			} else {
				defer p.Close()
				publisher = p
			}
		}
		return fn(ctx, cfg, app.FromConfig(cfg, pool, publisher, nil, logger))
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
