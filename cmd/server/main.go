package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/config"
	"github.com/PnGunchai/MAinventory-sub000/internal/infra"
	"github.com/PnGunchai/MAinventory-sub000/internal/metrics"
	"github.com/PnGunchai/MAinventory-sub000/internal/router"
	"github.com/PnGunchai/MAinventory-sub000/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: pretty in dev, JSON in prod
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	// Redis is optional: without it claims stay in-process and jobs run inline
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without leases and job queue")
			rdb = nil
		}
	}

	m := metrics.New("inventory")

	leaseCfg := infra.DefaultCBConfig("claim_leases")
	leaseCfg.OnStateChange = func(name string, from, to infra.CBState) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		m.SetCircuitState(name, int(to))
	}
	leaseCB := infra.NewCircuitBreaker(leaseCfg)

	r, svcs, err := router.New(router.Deps{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		LeaseCB: leaseCB,
		Metrics: m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build router")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if rdb != nil {
		proc := worker.NewProcessor(rdb, svcs.Stock, svcs.LoanOrders, m)
		worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize, proc)
	}
	worker.StartReconcileCron(ctx, cfg.ReconcileInterval(), svcs.Stock)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("inventory backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel() // stop workers and cron
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
