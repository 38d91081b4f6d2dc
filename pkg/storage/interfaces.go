// Package storage provides interfaces for persistent storage.
package storage

import (
	"context"
	"errors"

	"github.com/drsolutions/drsplan/pkg/models"
)

// Errors returned by all storage providers
var (
	ErrResultNotFound    = errors.New("result not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrMissingKey        = errors.New("missing key")
)

// StorageProvider defines the interface for persistence backends
type StorageProvider interface {
	// Initialize sets up the storage backend
	Initialize() error

	// Close cleans up resources
	Close() error

	// GetAccountStore returns a store for accounts
	GetAccountStore() AccountStore

	// GetApplicationStore returns a store for applications and their embedded plans
	GetApplicationStore() ApplicationStore

	// GetExecutionStore returns a store for execution records
	GetExecutionStore() ExecutionStore

	// GetResultStore returns a store for plan results
	GetResultStore() ResultStore
}

// AccountStore manages account persistence
type AccountStore interface {
	// ListAccounts returns every account
	ListAccounts(ctx context.Context) ([]models.Account, error)

	// SaveAccount creates or replaces an account
	SaveAccount(ctx context.Context, account models.Account) error

	// DeleteAccount removes an account; removing a missing account is not an error
	DeleteAccount(ctx context.Context, accountID string) error
}

// ApplicationStore manages application persistence
type ApplicationStore interface {
	// ListApplications returns every application
	ListApplications(ctx context.Context) ([]models.Application, error)

	// SaveApplication creates or replaces an application. AppID must be set.
	SaveApplication(ctx context.Context, app models.Application) error

	// DeleteApplication removes an application; removing a missing one is not an error
	DeleteApplication(ctx context.Context, appID string) error
}

// ExecutionStore manages execution records
type ExecutionStore interface {
	// SaveExecution writes an execution record. Writing the same record twice is harmless.
	SaveExecution(ctx context.Context, record models.ExecutionRecord) error

	// GetExecution retrieves an execution record
	GetExecution(ctx context.Context, executionID string) (models.ExecutionRecord, error)
}

// ResultStore manages plan results
type ResultStore interface {
	// SaveResult creates or replaces a result
	SaveResult(ctx context.Context, result models.Result) error

	// ListResults returns the results of one partition ordered by execution id
	ListResults(ctx context.Context, appIDPlanID string) ([]models.Result, error)

	// GetResult retrieves one result
	GetResult(ctx context.Context, appIDPlanID, executionID string) (models.Result, error)
}
