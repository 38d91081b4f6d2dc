package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/drsolutions/drsplan/pkg/models"
)

// PostgreSQLProvider implements the StorageProvider interface using PostgreSQL.
// Documents are kept as JSONB next to their key columns.
type PostgreSQLProvider struct {
	db               *sql.DB
	accountStore     *PostgreSQLAccountStore
	applicationStore *PostgreSQLApplicationStore
	executionStore   *PostgreSQLExecutionStore
	resultStore      *PostgreSQLResultStore
}

// PostgreSQLProviderConfig contains configuration for the PostgreSQL provider
type PostgreSQLProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgreSQLProvider creates a new PostgreSQL storage provider
func NewPostgreSQLProvider(config PostgreSQLProviderConfig) (*PostgreSQLProvider, error) {
	// Set default port if not specified
	if config.Port == 0 {
		config.Port = 5432
	}

	// Set default SSL mode if not specified
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return NewPostgreSQLProviderWithDB(db), nil
}

// NewPostgreSQLProviderWithDB creates a provider over an existing connection pool
func NewPostgreSQLProviderWithDB(db *sql.DB) *PostgreSQLProvider {
	return &PostgreSQLProvider{
		db:               db,
		accountStore:     &PostgreSQLAccountStore{db: db},
		applicationStore: &PostgreSQLApplicationStore{db: db},
		executionStore:   &PostgreSQLExecutionStore{db: db},
		resultStore:      &PostgreSQLResultStore{db: db},
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (p *PostgreSQLProvider) Initialize() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS drs_accounts (
			account_id TEXT PRIMARY KEY,
			document JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS drs_applications (
			app_id TEXT PRIMARY KEY,
			document JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS drs_executions (
			execution_id TEXT PRIMARY KEY,
			document JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS drs_results (
			app_plan_id TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			document JSONB NOT NULL,
			PRIMARY KEY (app_plan_id, execution_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *PostgreSQLProvider) Close() error {
	return p.db.Close()
}

// GetAccountStore returns a store for accounts
func (p *PostgreSQLProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// GetApplicationStore returns a store for applications
func (p *PostgreSQLProvider) GetApplicationStore() ApplicationStore {
	return p.applicationStore
}

// GetExecutionStore returns a store for execution records
func (p *PostgreSQLProvider) GetExecutionStore() ExecutionStore {
	return p.executionStore
}

// GetResultStore returns a store for results
func (p *PostgreSQLProvider) GetResultStore() ResultStore {
	return p.resultStore
}

// queryDocuments runs a query selecting one JSONB column and decodes every row
func queryDocuments[T any](ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]T, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var doc T
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return docs, nil
}

// PostgreSQLAccountStore implements the AccountStore interface using PostgreSQL
type PostgreSQLAccountStore struct {
	db *sql.DB
}

// ListAccounts returns every account ordered by id
func (s *PostgreSQLAccountStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	accounts, err := queryDocuments[models.Account](ctx, s.db,
		"SELECT document FROM drs_accounts ORDER BY account_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// SaveAccount creates or replaces an account
func (s *PostgreSQLAccountStore) SaveAccount(ctx context.Context, account models.Account) error {
	if account.AccountID == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, accountKey)
	}

	doc, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drs_accounts (account_id, document) VALUES ($1, $2)
		 ON CONFLICT (account_id) DO UPDATE SET document = EXCLUDED.document`,
		account.AccountID, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// DeleteAccount removes an account
func (s *PostgreSQLAccountStore) DeleteAccount(ctx context.Context, accountID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM drs_accounts WHERE account_id = $1", accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// PostgreSQLApplicationStore implements the ApplicationStore interface using PostgreSQL
type PostgreSQLApplicationStore struct {
	db *sql.DB
}

// ListApplications returns every application in creation order
func (s *PostgreSQLApplicationStore) ListApplications(ctx context.Context) ([]models.Application, error) {
	apps, err := queryDocuments[models.Application](ctx, s.db,
		"SELECT document FROM drs_applications ORDER BY created_at, app_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	for i := range apps {
		apps[i].Normalize()
	}
	return apps, nil
}

// SaveApplication creates or replaces an application
func (s *PostgreSQLApplicationStore) SaveApplication(ctx context.Context, app models.Application) error {
	if app.AppID == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, applicationKey)
	}

	doc, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drs_applications (app_id, document, created_at, updated_at) VALUES ($1, $2, $3, $3)
		 ON CONFLICT (app_id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		app.AppID, doc, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}
	return nil
}

// DeleteApplication removes an application
func (s *PostgreSQLApplicationStore) DeleteApplication(ctx context.Context, appID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM drs_applications WHERE app_id = $1", appID); err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	return nil
}

// PostgreSQLExecutionStore implements the ExecutionStore interface using PostgreSQL
type PostgreSQLExecutionStore struct {
	db *sql.DB
}

// SaveExecution writes an execution record
func (s *PostgreSQLExecutionStore) SaveExecution(ctx context.Context, record models.ExecutionRecord) error {
	if record.ExecutionID == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, executionKey)
	}

	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drs_executions (execution_id, document) VALUES ($1, $2)
		 ON CONFLICT (execution_id) DO UPDATE SET document = EXCLUDED.document`,
		record.ExecutionID, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution record
func (s *PostgreSQLExecutionStore) GetExecution(ctx context.Context, executionID string) (models.ExecutionRecord, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM drs_executions WHERE execution_id = $1", executionID,
	).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ExecutionRecord{}, ErrExecutionNotFound
		}
		return models.ExecutionRecord{}, fmt.Errorf("failed to get execution: %w", err)
	}

	var record models.ExecutionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return models.ExecutionRecord{}, fmt.Errorf("failed to decode execution: %w", err)
	}
	return record, nil
}

// PostgreSQLResultStore implements the ResultStore interface using PostgreSQL
type PostgreSQLResultStore struct {
	db *sql.DB
}

// SaveResult creates or replaces a result
func (s *PostgreSQLResultStore) SaveResult(ctx context.Context, result models.Result) error {
	if result.AppIDPlanID == "" || result.ExecutionID == "" {
		return fmt.Errorf("%w: %s and %s", ErrMissingKey, resultHashKey, resultRangeKey)
	}

	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drs_results (app_plan_id, execution_id, document) VALUES ($1, $2, $3)
		 ON CONFLICT (app_plan_id, execution_id) DO UPDATE SET document = EXCLUDED.document`,
		result.AppIDPlanID, result.ExecutionID, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// ListResults returns the results of one partition ordered by execution id
func (s *PostgreSQLResultStore) ListResults(ctx context.Context, appIDPlanID string) ([]models.Result, error) {
	results, err := queryDocuments[models.Result](ctx, s.db,
		"SELECT document FROM drs_results WHERE app_plan_id = $1 ORDER BY execution_id", appIDPlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}

// GetResult retrieves one result
func (s *PostgreSQLResultStore) GetResult(ctx context.Context, appIDPlanID, executionID string) (models.Result, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM drs_results WHERE app_plan_id = $1 AND execution_id = $2",
		appIDPlanID, executionID,
	).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Result{}, ErrResultNotFound
		}
		return models.Result{}, fmt.Errorf("failed to get result: %w", err)
	}

	var result models.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.Result{}, fmt.Errorf("failed to decode result: %w", err)
	}
	return result, nil
}
