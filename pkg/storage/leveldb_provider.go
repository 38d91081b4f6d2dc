package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	levelstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/drsolutions/drsplan/pkg/models"
)

// Key prefixes of the LevelDB keyspace
const (
	levelAccountPrefix     = "account/"
	levelApplicationPrefix = "application/"
	levelExecutionPrefix   = "execution/"
	levelResultPrefix      = "result/"

	// levelKeySep separates the partition from the execution id in result keys
	levelKeySep = "\x00"
)

// LevelDBProviderConfig contains configuration for the LevelDB provider
type LevelDBProviderConfig struct {
	// Path is the database directory. An empty path keeps the database in memory.
	Path string
}

// LevelDBProvider implements the StorageProvider interface on an embedded LevelDB database
type LevelDBProvider struct {
	db               *leveldb.DB
	accountStore     *LevelDBAccountStore
	applicationStore *LevelDBApplicationStore
	executionStore   *LevelDBExecutionStore
	resultStore      *LevelDBResultStore
}

// NewLevelDBProvider opens the database at config.Path
func NewLevelDBProvider(config LevelDBProviderConfig) (*LevelDBProvider, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if config.Path == "" {
		db, err = leveldb.Open(levelstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(config.Path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB: %w", err)
	}

	return &LevelDBProvider{
		db:               db,
		accountStore:     &LevelDBAccountStore{db: db},
		applicationStore: &LevelDBApplicationStore{db: db},
		executionStore:   &LevelDBExecutionStore{db: db},
		resultStore:      &LevelDBResultStore{db: db},
	}, nil
}

// Initialize sets up the storage backend
func (p *LevelDBProvider) Initialize() error {
	return nil
}

// Close releases the database
func (p *LevelDBProvider) Close() error {
	return p.db.Close()
}

// GetAccountStore returns a store for accounts
func (p *LevelDBProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// GetApplicationStore returns a store for applications
func (p *LevelDBProvider) GetApplicationStore() ApplicationStore {
	return p.applicationStore
}

// GetExecutionStore returns a store for execution records
func (p *LevelDBProvider) GetExecutionStore() ExecutionStore {
	return p.executionStore
}

// GetResultStore returns a store for results
func (p *LevelDBProvider) GetResultStore() ResultStore {
	return p.resultStore
}

func levelPut(db *leveldb.DB, key string, doc interface{}) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	return db.Put([]byte(key), value, nil)
}

// levelGet decodes the document at key, returning leveldb.ErrNotFound when absent
func levelGet(db *leveldb.DB, key string, out interface{}) error {
	value, err := db.Get([]byte(key), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// levelScan decodes every document under prefix in key order
func levelScan[T any](ctx context.Context, db *leveldb.DB, prefix string) ([]T, error) {
	iter := db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	docs := make([]T, 0)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var doc T
		if err := json.Unmarshal(iter.Value(), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", iter.Key(), err)
		}
		docs = append(docs, doc)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return docs, nil
}

// LevelDBAccountStore implements the AccountStore interface using LevelDB
type LevelDBAccountStore struct {
	db *leveldb.DB
}

// ListAccounts returns every account ordered by id
func (s *LevelDBAccountStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	accounts, err := levelScan[models.Account](ctx, s.db, levelAccountPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// SaveAccount creates or replaces an account
func (s *LevelDBAccountStore) SaveAccount(ctx context.Context, account models.Account) error {
	if account.AccountID == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, accountKey)
	}
	if err := levelPut(s.db, levelAccountPrefix+account.AccountID, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// DeleteAccount removes an account
func (s *LevelDBAccountStore) DeleteAccount(ctx context.Context, accountID string) error {
	if err := s.db.Delete([]byte(levelAccountPrefix+accountID), nil); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// LevelDBApplicationStore implements the ApplicationStore interface using LevelDB
type LevelDBApplicationStore struct {
	db *leveldb.DB
}

// ListApplications returns every application ordered by id
func (s *LevelDBApplicationStore) ListApplications(ctx context.Context) ([]models.Application, error) {
	apps, err := levelScan[models.Application](ctx, s.db, levelApplicationPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	for i := range apps {
		apps[i].Normalize()
	}
	return apps, nil
}

// SaveApplication creates or replaces an application
func (s *LevelDBApplicationStore) SaveApplication(ctx context.Context, app models.Application) error {
	if app.AppID == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, applicationKey)
	}
	if err := levelPut(s.db, levelApplicationPrefix+app.AppID, app); err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}
	return nil
}

// DeleteApplication removes an application
func (s *LevelDBApplicationStore) DeleteApplication(ctx context.Context, appID string) error {
	if err := s.db.Delete([]byte(levelApplicationPrefix+appID), nil); err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	return nil
}

// LevelDBExecutionStore implements the ExecutionStore interface using LevelDB
type LevelDBExecutionStore struct {
	db *leveldb.DB
}

// SaveExecution writes an execution record
func (s *LevelDBExecutionStore) SaveExecution(ctx context.Context, record models.ExecutionRecord) error {
	if record.ExecutionID == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, executionKey)
	}
	if err := levelPut(s.db, levelExecutionPrefix+record.ExecutionID, record); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution record
func (s *LevelDBExecutionStore) GetExecution(ctx context.Context, executionID string) (models.ExecutionRecord, error) {
	var record models.ExecutionRecord
	if err := levelGet(s.db, levelExecutionPrefix+executionID, &record); err != nil {
		if err == leveldb.ErrNotFound {
			return models.ExecutionRecord{}, ErrExecutionNotFound
		}
		return models.ExecutionRecord{}, fmt.Errorf("failed to get execution: %w", err)
	}
	return record, nil
}

// LevelDBResultStore implements the ResultStore interface using LevelDB
type LevelDBResultStore struct {
	db *leveldb.DB
}

func resultPartitionPrefix(appIDPlanID string) string {
	return levelResultPrefix + appIDPlanID + levelKeySep
}

// SaveResult creates or replaces a result
func (s *LevelDBResultStore) SaveResult(ctx context.Context, result models.Result) error {
	if result.AppIDPlanID == "" || result.ExecutionID == "" {
		return fmt.Errorf("%w: %s and %s", ErrMissingKey, resultHashKey, resultRangeKey)
	}
	if err := levelPut(s.db, resultPartitionPrefix(result.AppIDPlanID)+result.ExecutionID, result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// ListResults returns the results of one partition ordered by execution id
func (s *LevelDBResultStore) ListResults(ctx context.Context, appIDPlanID string) ([]models.Result, error) {
	results, err := levelScan[models.Result](ctx, s.db, resultPartitionPrefix(appIDPlanID))
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}

// GetResult retrieves one result
func (s *LevelDBResultStore) GetResult(ctx context.Context, appIDPlanID, executionID string) (models.Result, error) {
	var result models.Result
	if err := levelGet(s.db, resultPartitionPrefix(appIDPlanID)+executionID, &result); err != nil {
		if err == leveldb.ErrNotFound {
			return models.Result{}, ErrResultNotFound
		}
		return models.Result{}, fmt.Errorf("failed to get result: %w", err)
	}
	return result, nil
}
