package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drsolutions/drsplan/pkg/logging"
	"github.com/drsolutions/drsplan/pkg/metrics"
	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/drsolutions/drsplan/pkg/notify"
	"github.com/drsolutions/drsplan/pkg/storage"
	"github.com/drsolutions/drsplan/pkg/workflow"
)

// ExecutionService starts recovery workflow runs and records them
type ExecutionService struct {
	starter  workflow.Starter
	store    storage.ExecutionStore
	outbox   Outbox
	notifier notify.Notifier
	logger   logging.Logger
	metrics  *metrics.Collector

	notifyOnStart bool
	newName       func() string
}

// ExecutionServiceConfig wires an ExecutionService
type ExecutionServiceConfig struct {
	Starter  workflow.Starter
	Store    storage.ExecutionStore
	Outbox   Outbox
	Notifier notify.Notifier
	Logger   logging.Logger
	Metrics  *metrics.Collector

	// NotifyOnStart publishes to the request's TopicARN once the run is recorded
	NotifyOnStart bool
}

// NewExecutionService creates an execution service
func NewExecutionService(config ExecutionServiceConfig) *ExecutionService {
	notifier := config.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ExecutionService{
		starter:       config.Starter,
		store:         config.Store,
		outbox:        config.Outbox,
		notifier:      notifier,
		logger:        logger,
		metrics:       config.Metrics,
		notifyOnStart: config.NotifyOnStart,
		newName:       uuid.NewString,
	}
}

// Start validates the batch in body, starts one workflow run with body as its input and
// records the run. subject is the authenticated caller and fills an empty "user".
func (s *ExecutionService) Start(ctx context.Context, body []byte, subject string) (models.ExecutionStarted, error) {
	request, input, err := prepareExecution(body, subject)
	if err != nil {
		s.metrics.RecordExecution(metrics.ExecutionRejected)
		return models.ExecutionStarted{}, err
	}

	name := s.newName()
	started, err := s.starter.Start(ctx, name, input)
	if err != nil {
		s.metrics.RecordExecution(metrics.ExecutionStartFailed)
		s.logger.Error("failed to start execution", logging.F("name", name), logging.Err(err))
		return models.ExecutionStarted{}, fmt.Errorf("%w: %v", ErrWorkflowStart, err)
	}

	startDate := started.StartDate.UTC().Format(time.RFC3339)
	record := models.ExecutionRecord{
		ExecutionID: started.ExecutionArn,
		StartDate:   startDate,
		Params: models.ExecutionParams{
			StateMachineArn: s.starter.StateMachineArn(),
			Input:           input,
			Name:            name,
		},
	}

	if err := s.store.SaveExecution(ctx, record); err != nil {
		s.metrics.RecordExecution(metrics.ExecutionNotRecorded)
		s.logger.Error("execution started but record write failed",
			logging.F("execution_id", record.ExecutionID), logging.Err(err))

		if qerr := s.outbox.Enqueue(ctx, record); qerr != nil {
			s.logger.Error("failed to queue execution record",
				logging.F("execution_id", record.ExecutionID), logging.Err(qerr))
		} else if pending, perr := s.outbox.Pending(ctx); perr == nil {
			s.metrics.SetOutboxPending(len(pending))
		}
		return models.ExecutionStarted{}, &NotRecordedError{
			ExecutionArn: record.ExecutionID,
			StartDate:    startDate,
			Err:          err,
		}
	}

	s.metrics.RecordExecution(metrics.ExecutionStarted)
	s.logger.LogExecutionEvent(record.ExecutionID, "started", map[string]interface{}{
		"applications": len(request.Applications),
		"drill":        request.IsDrill,
		"user":         request.User,
	})

	if s.notifyOnStart && request.TopicARN != "" {
		payload := map[string]interface{}{
			"executionArn": record.ExecutionID,
			"startDate":    startDate,
			"isDrill":      request.IsDrill,
			"user":         request.User,
		}
		if err := s.notifier.Notify(ctx, request.TopicARN, "Execution started", payload); err != nil {
			s.logger.Warn("failed to publish start notification",
				logging.F("execution_id", record.ExecutionID), logging.Err(err))
		}
	}

	return models.ExecutionStarted{ExecutionArn: record.ExecutionID, StartDate: startDate}, nil
}

// prepareExecution decodes and checks the batch. The returned input is body unchanged
// unless the caller's subject was added as "user".
func prepareExecution(body []byte, subject string) (models.ExecuteRequest, string, error) {
	var request models.ExecuteRequest
	if err := json.Unmarshal(body, &request); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return request, "", validationError("field %s has the wrong type", typeErr.Field)
		}
		return request, "", validationError("request body is not valid JSON")
	}

	if len(request.Applications) == 0 {
		return request, "", validationError("Applications must be a non-empty list")
	}
	for i, target := range request.Applications {
		if target.Plan < 0 || target.Plan >= len(target.Application.Plans) {
			return request, "", validationError("Applications[%d].plan %d is out of range", i, target.Plan)
		}
	}

	if request.User != "" || subject == "" {
		return request, string(body), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return request, "", validationError("request body must be a JSON object")
	}
	user, err := json.Marshal(subject)
	if err != nil {
		return request, "", fmt.Errorf("failed to encode user: %w", err)
	}
	fields["user"] = user

	input, err := json.Marshal(fields)
	if err != nil {
		return request, "", fmt.Errorf("failed to encode execution input: %w", err)
	}
	request.User = subject
	return request, string(input), nil
}
