package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/citizen-registry/internal/app"
	"github.com/jwalitptl/citizen-registry/internal/config"
	"github.com/jwalitptl/citizen-registry/internal/email"
	"github.com/jwalitptl/citizen-registry/internal/repository/postgres"
	"github.com/jwalitptl/citizen-registry/pkg/logger"
	"github.com/jwalitptl/citizen-registry/pkg/messaging"
	"github.com/jwalitptl/citizen-registry/pkg/messaging/redis"
	"github.com/jwalitptl/citizen-registry/pkg/metrics"
)

// metricsPort serves the worker's /metrics endpoint.
const metricsPort = 9091

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Console: cfg.Log.Console,
	})
	appLogger.SetGlobal()

	if cfg.Store.Driver != "postgres" {
		log.Fatal().Str("store", cfg.Store.Driver).Msg("the worker needs a shared postgres store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		rdb, err := redis.NewClient(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		broker = redis.NewRedisBroker(rdb, 5*time.Second, appLogger.ZL)
	} else {
		log.Warn().Msg("no Redis configured, events are relayed to an in-process broker")
		broker = messaging.NewMemoryBroker()
	}
	defer broker.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry, "registry")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", metricsPort), Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	mailer := email.NewSMTPService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, appLogger.ZL)

	log.Info().Msg("starting worker")
	if err := app.RunWorkers(ctx, app.WorkerDeps{
		Config:  cfg,
		Stores:  app.PostgresStores(db, nil),
		Broker:  broker,
		Mailer:  mailer,
		Logger:  appLogger,
		Metrics: m,
	}); err != nil {
		log.Fatal().Err(err).Msg("worker failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)
	log.Info().Msg("worker exited")
}
