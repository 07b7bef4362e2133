package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/citizen-registry/internal/app"
	"github.com/jwalitptl/citizen-registry/internal/config"
	"github.com/jwalitptl/citizen-registry/internal/email"
	"github.com/jwalitptl/citizen-registry/internal/handler/health"
	"github.com/jwalitptl/citizen-registry/internal/repository/postgres"
	"github.com/jwalitptl/citizen-registry/pkg/logger"
	"github.com/jwalitptl/citizen-registry/pkg/messaging"
	"github.com/jwalitptl/citizen-registry/pkg/messaging/redis"
	"github.com/jwalitptl/citizen-registry/pkg/metrics"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry, "registry")

	var rdb *goredis.Client
	if cfg.Redis.URL != "" {
		rdb, err = redis.NewClient(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
	}

	checks := map[string]health.Check{}
	if rdb != nil {
		checks["redis"] = app.PingRedis(rdb)
	}

	var stores *app.Stores
	switch cfg.Store.Driver {
	case "memory":
		log.Warn().Msg("using in-memory store, data is lost on restart")
		stores = app.MemoryStores()
		go runEmbeddedWorkers(ctx, cfg, stores, appLogger, m)
	default:
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialise database")
		}
		defer db.Close()
		checks["database"] = app.PingDB(db)
		stores = app.PostgresStores(db, rdb)
	}

	engine, err := app.NewAPI(app.Deps{
		Config:   cfg,
		Stores:   stores,
		Logger:   appLogger.ZL,
		Registry: registry,
		Metrics:  m,
		Checks:   checks,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build API")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("store", cfg.Store.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// runEmbeddedWorkers relays events in-process when the store lives in memory
// and no separate worker can reach it.
func runEmbeddedWorkers(ctx context.Context, cfg *config.Config, stores *app.Stores, appLogger *logger.Logger, m *metrics.Metrics) {
	broker := messaging.NewMemoryBroker()
	defer broker.Close()

	mailer := email.NewSMTPService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, appLogger.ZL)

	// No SMS gateway in embedded mode; reminders are logged instead.
	err := messaging.Consume(ctx, broker, cfg.Reminders.SMSChannel, func(msg messaging.Message) error {
		log.Info().Str("message_id", msg.ID).Str("type", msg.Type).Msg("sms reminder")
		return nil
	}, func(err error) {
		log.Warn().Err(err).Msg("sms reminder dropped")
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to subscribe to sms channel")
	}

	if err := app.RunWorkers(ctx, app.WorkerDeps{
		Config:  cfg,
		Stores:  stores,
		Broker:  broker,
		Mailer:  mailer,
		Logger:  appLogger,
		Metrics: m,
	}); err != nil {
		log.Error().Err(err).Msg("embedded workers stopped")
	}
}
