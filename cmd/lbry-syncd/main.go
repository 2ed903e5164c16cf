// Command lbry-syncd runs the blockchain synchronizer as a long-lived
// daemon: one Coordinator driving the advance loop against a Postgres
// store and a trusted node's on-disk block-file directory.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lbryio/lbry-sync/internal/chainfile"
	"github.com/lbryio/lbry-sync/internal/eventbus"
	"github.com/lbryio/lbry-sync/internal/obs"
	"github.com/lbryio/lbry-sync/internal/progress"
	"github.com/lbryio/lbry-sync/internal/store"
	"github.com/lbryio/lbry-sync/internal/sync"
	"github.com/lbryio/lbry-sync/pkg/config"
)

const serviceName = "lbry-syncd"

func main() {
	logger := obs.InitLogger(serviceName)
	logger.Info().Msg("starting blockchain synchronizer")

	cfg := obs.InitConfig(logger, "config.toml")
	obs.UpdateLogLevel(cfg, logger)

	chainConfigs, err := config.LoadConfig("config/chains.json")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load chains.json")
	}

	chainName := cfg.String("chain.name")
	selectedChain, err := chainConfigs.GetChain(chainName)
	if err != nil {
		logger.Fatal().Err(err).Str("chain", chainName).Msg("chain not found in chains.json")
	}
	logger.Info().
		Str("chain", selectedChain.Name).
		Str("block_files_dir", selectedChain.BlockFilesDir).
		Bool("filters_enabled", selectedChain.SPVAddressFilters).
		Bool("trending_enabled", selectedChain.TrendingEnabled).
		Msg("loaded chain configuration")

	scanner, err := chainfile.Open(selectedChain.BlockFilesDir, selectedChain.PositionCachePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open block-file scanner")
	}
	defer scanner.Close()

	pool, err := pgxpool.New(context.Background(), cfg.String("db.dsn"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("database ping failed")
	}
	logger.Info().Msg("connected to database")

	bus, err := eventbus.New(
		cfg.String("nats.url"),
		cfg.Duration("nats.max_age"),
		cfg.String("nats.subject_prefix"),
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create event bus")
	}
	defer bus.Close()

	mq := progress.NewMetricsSink(bus)
	db := store.New(pool, scanner, mq, cfg.Int("sync.db_concurrency"), *logger)

	coordinator := sync.New(*logger, db, scanner, bus, sync.Config{
		FiltersEnabled:    selectedChain.SPVAddressFilters,
		TrendingEnabled:   selectedChain.TrendingEnabled,
		DistributeBatches: cfg.Int("sync.distribute_batches"),
	})

	metricsAddr := cfg.String("metrics.address")
	metricsServer := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info().Str("address", metricsAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	healthAddr := cfg.String("health.address")
	healthServer := &http.Server{Addr: healthAddr, Handler: http.HandlerFunc(healthCheckHandler(coordinator))}
	go func() {
		logger.Info().Str("address", healthAddr).Msg("starting health check server")
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := coordinator.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initial sync failed")
	}

	<-sigChan
	logger.Info().Msg("received shutdown signal")

	coordinator.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}

func healthCheckHandler(c *sync.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lastIndexed, lastErr := c.Status()
		if lastErr != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "unhealthy: %v\n", lastErr)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "healthy\nlast_indexed: %d\n", lastIndexed)
	}
}
