// Package worker turns mutation events from the broker into rows of the
// local audit trail.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"koperasi/internal/amqp"
	"koperasi/internal/core"
	applog "koperasi/internal/log"
)

// AuditStore persists audit events. RecordAudit reports false for an event
// id it has already seen.
type AuditStore interface {
	RecordAudit(ctx context.Context, ev core.AuditEvent) (bool, error)
}

// Consumer delivers mutation events until ctx ends.
type Consumer interface {
	ConsumeMutations(ctx context.Context, handler func(context.Context, *amqp.MutationEvent) error) error
}

// Stats counts what the worker has done since it started.
type Stats struct {
	Recorded   int64
	Duplicates int64
	Failed     int64
}

type AuditWorker struct {
	store  AuditStore
	logger *applog.Logger

	recorded   atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

func NewAuditWorker(store AuditStore, logger *applog.Logger) *AuditWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &AuditWorker{store: store, logger: logger.WithComponent(applog.ComponentWorker)}
}

// HandleMutation records one event. A returned error makes the consumer
// requeue the message; duplicates are acknowledged.
func (w *AuditWorker) HandleMutation(ctx context.Context, msg *amqp.MutationEvent) error {
	w.logger.DebugContext(ctx, "Processing mutation event",
		"event_id", msg.ID,
		applog.FieldResource, msg.Resource,
		applog.FieldAction, msg.Action)

	inserted, err := w.store.RecordAudit(ctx, core.AuditEvent{
		EventID:    msg.ID,
		Resource:   msg.Resource,
		ResourceID: msg.ResourceID,
		Action:     msg.Action,
		ActorID:    msg.ActorID,
		Detail:     msg.Detail,
		OccurredAt: msg.OccurredAt,
	})
	if err != nil {
		w.failed.Add(1)
		w.logger.ErrorContext(ctx, "Failed to record audit event",
			"event_id", msg.ID,
			applog.FieldErrorType, applog.ErrorTypeDatabase,
			applog.FieldError, err)
		return fmt.Errorf("record audit event: %w", err)
	}
	if !inserted {
		w.duplicates.Add(1)
		w.logger.InfoContext(ctx, "Skipping already recorded event", "event_id", msg.ID)
		return nil
	}
	w.recorded.Add(1)

	w.logger.InfoContext(ctx, "Recorded mutation",
		"event_id", msg.ID,
		applog.FieldResource, msg.Resource,
		applog.FieldResourceID, msg.ResourceID,
		applog.FieldAction, msg.Action)
	return nil
}

func (w *AuditWorker) Stats() Stats {
	return Stats{
		Recorded:   w.recorded.Load(),
		Duplicates: w.duplicates.Load(),
		Failed:     w.failed.Load(),
	}
}

// Run consumes events until ctx ends, logging a stats line every
// reportEvery (never when reportEvery <= 0). Cancellation is not an error.
func (w *AuditWorker) Run(ctx context.Context, consumer Consumer, reportEvery time.Duration) error {
	if reportEvery > 0 {
		ticker := time.NewTicker(reportEvery)
		defer ticker.Stop()
		done := make(chan struct{})
		defer close(done)
		go func() {
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					s := w.Stats()
					w.logger.Info("Audit worker stats",
						"recorded", s.Recorded,
						"duplicates", s.Duplicates,
						"failed", s.Failed)
				}
			}
		}()
	}

	err := consumer.ConsumeMutations(ctx, w.HandleMutation)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
