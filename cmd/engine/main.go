// Package main is the entry point for the virtual pet engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"virtual-pet-engine/internal/cache"
	"virtual-pet-engine/internal/config"
	"virtual-pet-engine/internal/event"
	"virtual-pet-engine/internal/ledger"
	"virtual-pet-engine/internal/pet"
	"virtual-pet-engine/internal/pkg/clock"
	"virtual-pet-engine/internal/pkg/db"
	"virtual-pet-engine/internal/pkg/lock"
	"virtual-pet-engine/internal/points"
	"virtual-pet-engine/internal/session"
	"virtual-pet-engine/internal/store"
	"virtual-pet-engine/internal/syncer"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := store.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Persistent store with bounded retries for transient failures
	base := backoff.NewExponentialBackOff()
	base.InitialInterval = cfg.Sync.RetryBase
	persistent := store.NewRetrying(
		store.NewPostgres(dbPool.Pool),
		uint64(cfg.Sync.RetryAttempts),
		*base,
	)

	// Core plumbing: event bus, entity cache, transaction log, wallet locks
	bus := event.NewBus()
	entityCache := cache.New(persistent, bus, cfg.Sync.QueueSize)
	fallback := cache.NewFallback()
	txLog := ledger.New()
	walletLocks := lock.NewWalletLock()
	clk := clock.New()

	// Points engine and pet vitality service
	pointsEngine := points.NewEngine(
		entityCache, fallback, persistent, txLog, bus, walletLocks, clk, cfg.Points,
	)
	petService := pet.NewService(entityCache, persistent, pointsEngine, clk, cfg.Pet)

	// Session sync manager
	sessionManager := session.NewManager(persistent, clk, session.Config{
		Interval:       cfg.Session.Interval,
		MaxQueueSize:   cfg.Session.MaxQueueSize,
		FlushThreshold: cfg.Session.FlushThreshold,
		Policy:         session.Policy(cfg.Session.ConflictPolicy),
	})

	// Sync coordinator
	coordinator := syncer.New(entityCache, persistent, clk, syncer.Config{
		Interval:      cfg.Sync.Interval,
		ForceAttempts: cfg.Sync.ForceAttempts,
		ForceDelay:    cfg.Sync.ForceDelay,
	})

	coordinator.Start(ctx)
	sessionManager.Start(ctx)
	petService.Start(ctx)

	log.Info().
		Dur("sync_interval", cfg.Sync.Interval).
		Dur("session_interval", cfg.Session.Interval).
		Dur("decay_tick", cfg.Pet.DecayTick).
		Msg("Engine is running")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown: stop the loops, then flush everything that is
	// still dirty.
	petService.Stop()
	sessionManager.Stop()
	coordinator.Stop()
	log.Info().Msg("Engine stopped gracefully")
}
