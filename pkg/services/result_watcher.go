package services

import (
	"context"
	"errors"
	"time"

	"github.com/drsolutions/drsplan/pkg/logging"
	"github.com/drsolutions/drsplan/pkg/models"
)

// WatchOptions bound a result watch
type WatchOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Watch polls one result and calls publish whenever its status changes, including the
// first time it is seen. It returns nil once the result reaches a terminal status, and
// the context error on cancellation or timeout.
func (s *ResultService) Watch(ctx context.Context, appIDPlanID, executionID string, opts WatchOptions, publish func(models.Result)) error {
	if appIDPlanID == "" || executionID == "" {
		return validationError("AppId_PlanId and ExecutionId are required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	lastStatus, seen := "", false
	for {
		result, err := s.Get(ctx, appIDPlanID, executionID)
		switch {
		case err == nil:
			if !seen || result.Status != lastStatus {
				publish(result)
				seen, lastStatus = true, result.Status
			}
			if result.IsTerminal() {
				return nil
			}
		case errors.Is(err, ErrNotFound):
			// not written by the engine yet
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			s.logger.Warn("result watch poll failed",
				logging.F("execution_id", executionID), logging.Err(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
