// payrolld hosts the payroll ledger engine: it picks up pending payroll
// batches and drives them to a terminal status, exposing health and metrics
// over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	memoryRepo "github.com/kestrelpay/payrolld/internal/adapter/repository/memory"
	postgresRepo "github.com/kestrelpay/payrolld/internal/adapter/repository/postgres"
	redisRepo "github.com/kestrelpay/payrolld/internal/adapter/repository/redis"
	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/infrastructure/config"
	"github.com/kestrelpay/payrolld/internal/infrastructure/logger"
	"github.com/kestrelpay/payrolld/internal/infrastructure/metrics"
	"github.com/kestrelpay/payrolld/internal/infrastructure/postgres"
	"github.com/kestrelpay/payrolld/internal/infrastructure/redis"
	"github.com/kestrelpay/payrolld/internal/ledger"
	"github.com/kestrelpay/payrolld/internal/payroll"
	"github.com/kestrelpay/payrolld/internal/store"
	"github.com/kestrelpay/payrolld/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	zl := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Logger = zl

	ctx := context.Background()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
		if err != nil {
			zl.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, zl); err != nil {
			zl.Fatal().Err(err).Msg("failed to run migrations")
		}

		st = postgresRepo.New(pool)
		zl.Info().Msg("connected to postgres")
	} else {
		st = memoryRepo.New()
		zl.Warn().Msg("no DATABASE_URL set, using in-memory store")
	}

	var refCache store.ReferenceCache
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			zl.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		refCache = redisRepo.NewReferenceCache(redisClient, cfg.ReferenceCacheTTL)
		zl.Info().Msg("connected to redis")
	}

	m := metrics.New()
	idGen := postgresRepo.NewULIDGenerator()

	ldg := ledger.New(st, zl, m,
		ledger.WithMaxAttempts(cfg.LedgerMaxAttempts),
		ledger.WithRetryInterval(cfg.LedgerRetryInterval, cfg.LedgerRetryMax),
	)

	registry := strategy.NewDefaultRegistry(strategy.Deps{
		Store:    st,
		Ledger:   ldg,
		IDGen:    idGen,
		RefCache: refCache,
		Logger:   zl,
		Metrics:  m,
	})

	orchestrator := payroll.New(st, ldg, registry, idGen, zl, m,
		payroll.WithWorkers(cfg.BatchWorkers),
		payroll.WithItemRetries(cfg.BatchItemRetries),
	)

	runCtx, stopRunner := context.WithCancel(ctx)
	defer stopRunner()
	go runPendingBatches(runCtx, st, orchestrator, cfg.BatchPollInterval, zl)

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.MetricsPort),
		Handler: router,
	}

	go func() {
		zl.Info().Str("port", cfg.MetricsPort).Msg("starting metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal().Err(err).Msg("metrics server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info().Msg("shutting down...")
	stopRunner()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.MetricsShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Fatal().Err(err).Msg("server forced to shutdown")
	}

	zl.Info().Msg("stopped")
}

// runPendingBatches polls for PENDING batches and drives each to a terminal
// status. A batch started here keeps running through shutdown of the poll
// loop; its outcome is durable either way.
func runPendingBatches(ctx context.Context, st store.Store, orchestrator *payroll.Orchestrator, interval time.Duration, zl zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		batches, err := st.ListBatchesByStatus(ctx, domain.BatchStatusPending)
		if err != nil {
			zl.Error().Err(err).Msg("failed to list pending batches")
			continue
		}

		for _, batch := range batches {
			fut := orchestrator.Run(ctx, batch.ID)
			go func(id string) {
				done, err := fut.Wait(context.Background())
				if err != nil {
					zl.Error().Err(err).Str("batch_id", id).Msg("batch run failed")
					return
				}
				zl.Info().
					Str("batch_id", id).
					Str("status", string(done.Status)).
					Msg("batch run finished")
			}(batch.ID)
		}
	}
}
