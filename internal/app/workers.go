package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/citizen-registry/internal/config"
	"github.com/jwalitptl/citizen-registry/internal/email"
	"github.com/jwalitptl/citizen-registry/pkg/logger"
	"github.com/jwalitptl/citizen-registry/pkg/messaging"
	"github.com/jwalitptl/citizen-registry/pkg/metrics"
	"github.com/jwalitptl/citizen-registry/pkg/worker"
)

type WorkerDeps struct {
	Config  *config.Config
	Stores  *Stores
	Broker  messaging.Broker
	Mailer  email.Service
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// RunWorkers starts the outbox relay, the outbox retention purge and the
// reminder dispatcher, and blocks until ctx is cancelled and all have stopped.
func RunWorkers(ctx context.Context, deps WorkerDeps) error {
	cfg := deps.Config

	processor, err := worker.NewOutboxProcessor(deps.Stores.Outbox, deps.Broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
	}, deps.Logger.WithFields(map[string]interface{}{"worker": "outbox"}), deps.Metrics)
	if err != nil {
		return fmt.Errorf("failed to create outbox processor: %w", err)
	}

	cleanupInterval := cfg.Outbox.Retention / 24
	if cleanupInterval < time.Minute {
		cleanupInterval = time.Minute
	}
	cleanup := worker.NewOutboxCleanupWorker(deps.Stores.Outbox, cfg.Outbox.Retention, cleanupInterval,
		deps.Logger.WithFields(map[string]interface{}{"worker": "retention"}), deps.Metrics)

	reminders := worker.NewReminderDispatcher(
		deps.Stores.Appointments,
		deps.Stores.Citizens,
		deps.Stores.Institutions,
		deps.Mailer,
		messaging.NewBrokerPublisher(deps.Broker, cfg.Reminders.SMSChannel),
		worker.ReminderDispatcherConfig{
			PollInterval: cfg.Reminders.PollInterval,
			BatchSize:    cfg.Reminders.BatchSize,
		},
		deps.Logger.WithFields(map[string]interface{}{"worker": "reminders"}),
		deps.Metrics,
	)

	var wg sync.WaitGroup
	for _, start := range []func(context.Context){processor.Start, cleanup.Start, reminders.Start} {
		wg.Add(1)
		go func(start func(context.Context)) {
			defer wg.Done()
			start(ctx)
		}(start)
	}
	wg.Wait()
	return nil
}
