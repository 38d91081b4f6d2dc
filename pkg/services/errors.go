// Package services implements the account, application, execution and result operations
// behind the HTTP API.
package services

import (
	"errors"
	"fmt"
)

// Error kinds. Handlers map them to status codes with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrWorkflowStart        = errors.New("failed to start workflow")
	ErrExecutionNotRecorded = errors.New("execution started but not recorded")
)

// validationError wraps ErrValidation with a message for the caller
func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotRecordedError reports a workflow run that started but whose record could not be
// written. The record is queued for the reconciler.
type NotRecordedError struct {
	ExecutionArn string
	StartDate    string
	Err          error
}

func (e *NotRecordedError) Error() string {
	return fmt.Sprintf("execution %s started but not recorded: %v", e.ExecutionArn, e.Err)
}

// Is matches ErrExecutionNotRecorded
func (e *NotRecordedError) Is(target error) bool {
	return target == ErrExecutionNotRecorded
}

func (e *NotRecordedError) Unwrap() error {
	return e.Err
}
