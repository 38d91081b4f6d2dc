package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/drsolutions/drsplan/pkg/models"
)

// MemoryProvider implements the StorageProvider interface using in-memory storage
type MemoryProvider struct {
	accountStore     *MemoryAccountStore
	applicationStore *MemoryApplicationStore
	executionStore   *MemoryExecutionStore
	resultStore      *MemoryResultStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		accountStore:     NewMemoryAccountStore(),
		applicationStore: NewMemoryApplicationStore(),
		executionStore:   NewMemoryExecutionStore(),
		resultStore:      NewMemoryResultStore(),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize() error {
	// Nothing to initialize for in-memory storage
	return nil
}

// Close cleans up resources
func (p *MemoryProvider) Close() error {
	return nil
}

// GetAccountStore returns a store for accounts
func (p *MemoryProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// GetApplicationStore returns a store for applications
func (p *MemoryProvider) GetApplicationStore() ApplicationStore {
	return p.applicationStore
}

// GetExecutionStore returns a store for execution records
func (p *MemoryProvider) GetExecutionStore() ExecutionStore {
	return p.executionStore
}

// GetResultStore returns a store for results
func (p *MemoryProvider) GetResultStore() ResultStore {
	return p.resultStore
}

// clone deep-copies a document so callers never share memory with the store
func clone[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("failed to copy document: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to copy document: %w", err)
	}
	return out, nil
}

// MemoryAccountStore implements the AccountStore interface using in-memory storage
type MemoryAccountStore struct {
	accounts map[string]models.Account
	mu       sync.RWMutex
}

// NewMemoryAccountStore creates a new in-memory account store
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[string]models.Account),
	}
}

// ListAccounts returns every account ordered by id
func (s *MemoryAccountStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountID < accounts[j].AccountID
	})
	return accounts, nil
}

// SaveAccount creates or replaces an account
func (s *MemoryAccountStore) SaveAccount(ctx context.Context, account models.Account) error {
	if account.AccountID == "" {
		return fmt.Errorf("%w: AccountId", ErrMissingKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.AccountID] = account
	return nil
}

// DeleteAccount removes an account
func (s *MemoryAccountStore) DeleteAccount(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accounts, accountID)
	return nil
}

// MemoryApplicationStore implements the ApplicationStore interface using in-memory storage
type MemoryApplicationStore struct {
	applications map[string]models.Application
	order        []string
	mu           sync.RWMutex
}

// NewMemoryApplicationStore creates a new in-memory application store
func NewMemoryApplicationStore() *MemoryApplicationStore {
	return &MemoryApplicationStore{
		applications: make(map[string]models.Application),
	}
}

// ListApplications returns every application in insertion order
func (s *MemoryApplicationStore) ListApplications(ctx context.Context) ([]models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps := make([]models.Application, 0, len(s.order))
	for _, id := range s.order {
		app, err := clone(s.applications[id])
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// SaveApplication creates or replaces an application
func (s *MemoryApplicationStore) SaveApplication(ctx context.Context, app models.Application) error {
	if app.AppID == "" {
		return fmt.Errorf("%w: AppId", ErrMissingKey)
	}

	stored, err := clone(app)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.applications[app.AppID]; !exists {
		s.order = append(s.order, app.AppID)
	}
	s.applications[app.AppID] = stored
	return nil
}

// DeleteApplication removes an application
func (s *MemoryApplicationStore) DeleteApplication(ctx context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.applications[appID]; !exists {
		return nil
	}
	delete(s.applications, appID)
	for i, id := range s.order {
		if id == appID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// MemoryExecutionStore implements the ExecutionStore interface using in-memory storage
type MemoryExecutionStore struct {
	executions map[string]models.ExecutionRecord
	mu         sync.RWMutex
}

// NewMemoryExecutionStore creates a new in-memory execution store
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		executions: make(map[string]models.ExecutionRecord),
	}
}

// SaveExecution writes an execution record
func (s *MemoryExecutionStore) SaveExecution(ctx context.Context, record models.ExecutionRecord) error {
	if record.ExecutionID == "" {
		return fmt.Errorf("%w: ExecutionId", ErrMissingKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[record.ExecutionID] = record
	return nil
}

// GetExecution retrieves an execution record
func (s *MemoryExecutionStore) GetExecution(ctx context.Context, executionID string) (models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.executions[executionID]
	if !ok {
		return models.ExecutionRecord{}, ErrExecutionNotFound
	}
	return record, nil
}

// MemoryResultStore implements the ResultStore interface using in-memory storage
type MemoryResultStore struct {
	// partitions maps AppId_PlanId to results keyed by ExecutionId
	partitions map[string]map[string]models.Result
	mu         sync.RWMutex
}

// NewMemoryResultStore creates a new in-memory result store
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		partitions: make(map[string]map[string]models.Result),
	}
}

// SaveResult creates or replaces a result
func (s *MemoryResultStore) SaveResult(ctx context.Context, result models.Result) error {
	if result.AppIDPlanID == "" || result.ExecutionID == "" {
		return fmt.Errorf("%w: AppId_PlanId and ExecutionId", ErrMissingKey)
	}

	stored, err := clone(result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	partition, ok := s.partitions[result.AppIDPlanID]
	if !ok {
		partition = make(map[string]models.Result)
		s.partitions[result.AppIDPlanID] = partition
	}
	partition[result.ExecutionID] = stored
	return nil
}

// ListResults returns the results of one partition ordered by execution id
func (s *MemoryResultStore) ListResults(ctx context.Context, appIDPlanID string) ([]models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partition := s.partitions[appIDPlanID]
	results := make([]models.Result, 0, len(partition))
	for _, result := range partition {
		copied, err := clone(result)
		if err != nil {
			return nil, err
		}
		results = append(results, copied)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ExecutionID < results[j].ExecutionID
	})
	return results, nil
}

// GetResult retrieves one result
func (s *MemoryResultStore) GetResult(ctx context.Context, appIDPlanID, executionID string) (models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.partitions[appIDPlanID][executionID]
	if !ok {
		return models.Result{}, ErrResultNotFound
	}
	return clone(result)
}
