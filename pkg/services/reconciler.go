package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/drsolutions/drsplan/pkg/logging"
	"github.com/drsolutions/drsplan/pkg/metrics"
	"github.com/drsolutions/drsplan/pkg/storage"
)

// Reconciler writes execution records that the request path could not store
type Reconciler struct {
	outbox  Outbox
	store   storage.ExecutionStore
	logger  logging.Logger
	metrics *metrics.Collector

	cron *cron.Cron

	// running prevents overlapping passes when a pass outlasts the schedule
	running sync.Mutex
}

// NewReconciler creates a reconciler
func NewReconciler(outbox Outbox, store storage.ExecutionStore, logger logging.Logger, collector *metrics.Collector) *Reconciler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Reconciler{
		outbox:  outbox,
		store:   store,
		logger:  logger,
		metrics: collector,
	}
}

// ReconcileOnce writes every pending record and removes the ones that succeeded.
// It returns how many records were written.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	if !r.running.TryLock() {
		return 0, nil
	}
	defer r.running.Unlock()

	pending, err := r.outbox.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read outbox: %w", err)
	}

	written := 0
	for _, record := range pending {
		if err := r.store.SaveExecution(ctx, record); err != nil {
			r.metrics.RecordReconcile(false)
			r.logger.Warn("execution record still not written",
				logging.F("execution_id", record.ExecutionID), logging.Err(err))
			continue
		}
		r.metrics.RecordReconcile(true)

		if err := r.outbox.Remove(ctx, record.ExecutionID); err != nil {
			// the put is idempotent, so the next pass simply writes it again
			r.logger.Warn("failed to remove written record from outbox",
				logging.F("execution_id", record.ExecutionID), logging.Err(err))
			continue
		}
		written++
		r.logger.LogExecutionEvent(record.ExecutionID, "recorded", map[string]interface{}{"source": "outbox"})
	}

	r.metrics.SetOutboxPending(len(pending) - written)
	return written, nil
}

// Start runs ReconcileOnce on the cron schedule
func (r *Reconciler) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := r.ReconcileOnce(context.Background()); err != nil {
			r.logger.Error("execution reconcile failed", logging.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}

	r.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule; the returned context is done once a running pass finishes
func (r *Reconciler) Stop() context.Context {
	if r.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return r.cron.Stop()
}
