package main

import (
	"context"
	"errors"
	"os"
	"time"

	"koperasi/internal/cli"
	applog "koperasi/internal/log"
	"koperasi/internal/worker"
)

const (
	statsInterval   = time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		logger := cli.SetupLogger(os.Stdout, "info")
		logger.Error("Configuration validation failed",
			applog.FieldOperation, applog.OpValidate,
			applog.FieldErrorType, applog.ErrorTypeConfiguration,
			applog.FieldError, err)
		os.Exit(1)
	}

	logger := cli.SetupLogger(os.Stdout, cfg.LogLevel).WithComponent(applog.ComponentWorker)
	logger.Info("Starting koperasi-worker", applog.FieldOperation, applog.OpStartup)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the audit worker")
		os.Exit(1)
	}

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			applog.FieldErrorType, applog.ErrorTypeDatabase,
			applog.FieldError, err,
			applog.FieldLocation, cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := cli.InitAMQP(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	if recent, err := repo.ListAuditEvents(context.Background(), 1); err != nil {
		logger.Warn("Could not read audit log", applog.FieldError, err)
	} else if len(recent) > 0 {
		logger.Info("Resuming audit log", "last_event", recent[0].EventID, "last_recorded_at", recent[0].RecordedAt)
	}

	auditWorker := worker.NewAuditWorker(repo, logger)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func() {
		stats := auditWorker.Stats()
		logger.Info("Audit worker stopped",
			applog.FieldOperation, applog.OpShutdown,
			"recorded", stats.Recorded,
			"duplicates", stats.Duplicates,
			"failed", stats.Failed)
	})

	err = auditWorker.Run(ctx, amqpClient, statsInterval)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		os.Exit(1)
	}
	if ctx.Err() == nil {
		logger.Error("Message consumption stopped without a shutdown signal")
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
