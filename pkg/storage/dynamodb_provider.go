package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"

	"github.com/drsolutions/drsplan/pkg/models"
)

// Key attribute names, shared with the orchestration engine
const (
	accountKey     = "AccountId"
	applicationKey = "AppId"
	executionKey   = "ExecutionId"
	resultHashKey  = "AppId_PlanId"
	resultRangeKey = "ExecutionId"
)

// DynamoDBProvider implements the StorageProvider interface using DynamoDB
type DynamoDBProvider struct {
	client           dynamodbiface.DynamoDBAPI
	accountStore     *DynamoDBAccountStore
	applicationStore *DynamoDBApplicationStore
	executionStore   *DynamoDBExecutionStore
	resultStore      *DynamoDBResultStore
	createTables     bool
}

// DynamoDBProviderConfig contains configuration for the DynamoDB provider
type DynamoDBProviderConfig struct {
	Region      string
	AccessKey   string
	SecretKey   string
	TablePrefix string
	Endpoint    string // Optional, for local DynamoDB

	// Explicit table names override TablePrefix + default name
	Tables DynamoDBTableNames

	// CreateTables creates missing tables on Initialize
	CreateTables bool
}

// DynamoDBTableNames names the four tables used by the service
type DynamoDBTableNames struct {
	Accounts     string
	Applications string
	Executions   string
	Results      string
}

// resolve fills empty names from the prefix and the default table names
func (t DynamoDBTableNames) resolve(prefix string) DynamoDBTableNames {
	pick := func(name, fallback string) string {
		if name != "" {
			return name
		}
		return prefix + fallback
	}
	return DynamoDBTableNames{
		Accounts:     pick(t.Accounts, "accounts"),
		Applications: pick(t.Applications, "applications"),
		Executions:   pick(t.Executions, "executions"),
		Results:      pick(t.Results, "results"),
	}
}

// NewDynamoDBProvider creates a new DynamoDB storage provider
func NewDynamoDBProvider(config DynamoDBProviderConfig) (*DynamoDBProvider, error) {
	sess, err := NewAWSSession(config.Region, config.AccessKey, config.SecretKey, config.Endpoint)
	if err != nil {
		return nil, err
	}

	provider := NewDynamoDBProviderWithClient(dynamodb.New(sess), config.TablePrefix, config.Tables)
	provider.createTables = config.CreateTables
	return provider, nil
}

// NewAWSSession creates an AWS session with optional static credentials and endpoint
func NewAWSSession(region, accessKey, secretKey, endpoint string) (*session.Session, error) {
	awsConfig := &aws.Config{
		Region: aws.String(region),
	}

	if accessKey != "" && secretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	if endpoint != "" {
		awsConfig.Endpoint = aws.String(endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return sess, nil
}

// NewDynamoDBProviderWithClient creates a new DynamoDB storage provider with a custom client
// This is primarily used for testing with mock clients
func NewDynamoDBProviderWithClient(client dynamodbiface.DynamoDBAPI, tablePrefix string, tables DynamoDBTableNames) *DynamoDBProvider {
	names := tables.resolve(tablePrefix)
	return &DynamoDBProvider{
		client:           client,
		accountStore:     &DynamoDBAccountStore{client: client, tableName: names.Accounts},
		applicationStore: &DynamoDBApplicationStore{client: client, tableName: names.Applications},
		executionStore:   &DynamoDBExecutionStore{client: client, tableName: names.Executions},
		resultStore:      &DynamoDBResultStore{client: client, tableName: names.Results},
		createTables:     true,
	}
}

// Initialize verifies the tables exist, creating them when configured to
func (p *DynamoDBProvider) Initialize() error {
	tables := []struct {
		name     string
		hashKey  string
		rangeKey string
	}{
		{p.accountStore.tableName, accountKey, ""},
		{p.applicationStore.tableName, applicationKey, ""},
		{p.executionStore.tableName, executionKey, ""},
		{p.resultStore.tableName, resultHashKey, resultRangeKey},
	}

	for _, table := range tables {
		if err := ensureTable(p.client, table.name, table.hashKey, table.rangeKey, p.createTables); err != nil {
			return err
		}
	}
	return nil
}

// Close cleans up resources
func (p *DynamoDBProvider) Close() error {
	// Nothing to close for DynamoDB client
	return nil
}

// GetAccountStore returns a store for accounts
func (p *DynamoDBProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// GetApplicationStore returns a store for applications
func (p *DynamoDBProvider) GetApplicationStore() ApplicationStore {
	return p.applicationStore
}

// GetExecutionStore returns a store for execution records
func (p *DynamoDBProvider) GetExecutionStore() ExecutionStore {
	return p.executionStore
}

// GetResultStore returns a store for results
func (p *DynamoDBProvider) GetResultStore() ResultStore {
	return p.resultStore
}

// ensureTable checks that a table exists and creates it if allowed
func ensureTable(client dynamodbiface.DynamoDBAPI, tableName, hashKey, rangeKey string, create bool) error {
	_, err := client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err == nil {
		return nil
	}

	aerr, ok := err.(awserr.Error)
	if !ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("failed to check if table %s exists: %w", tableName, err)
	}
	if !create {
		return fmt.Errorf("table %s does not exist", tableName)
	}

	attributes := []*dynamodb.AttributeDefinition{
		{AttributeName: aws.String(hashKey), AttributeType: aws.String("S")},
	}
	keySchema := []*dynamodb.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: aws.String("HASH")},
	}
	if rangeKey != "" {
		attributes = append(attributes, &dynamodb.AttributeDefinition{
			AttributeName: aws.String(rangeKey), AttributeType: aws.String("S"),
		})
		keySchema = append(keySchema, &dynamodb.KeySchemaElement{
			AttributeName: aws.String(rangeKey), KeyType: aws.String("RANGE"),
		})
	}

	_, err = client.CreateTable(&dynamodb.CreateTableInput{
		TableName:            aws.String(tableName),
		AttributeDefinitions: attributes,
		KeySchema:            keySchema,
		BillingMode:          aws.String("PAY_PER_REQUEST"),
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	err = client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to wait for table %s creation: %w", tableName, err)
	}
	return nil
}

// scanAll reads every page of a table scan
func scanAll(ctx context.Context, client dynamodbiface.DynamoDBAPI, tableName string) ([]map[string]*dynamodb.AttributeValue, error) {
	var items []map[string]*dynamodb.AttributeValue
	err := client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(tableName),
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		items = append(items, page.Items...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// putItem marshals a document and writes it
func putItem(ctx context.Context, client dynamodbiface.DynamoDBAPI, tableName string, doc interface{}) error {
	av, err := dynamodbattribute.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      av,
	})
	return err
}

// deleteItem removes the item with the given string hash key
func deleteItem(ctx context.Context, client dynamodbiface.DynamoDBAPI, tableName, keyName, keyValue string) error {
	_, err := client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key: map[string]*dynamodb.AttributeValue{
			keyName: {S: aws.String(keyValue)},
		},
	})
	return err
}

// DynamoDBAccountStore implements the AccountStore interface using DynamoDB
type DynamoDBAccountStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// ListAccounts returns every account ordered by id
func (s *DynamoDBAccountStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	items, err := scanAll(ctx, s.client, s.tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to scan accounts: %w", err)
	}

	accounts := make([]models.Account, 0, len(items))
	if err := dynamodbattribute.UnmarshalListOfMaps(items, &accounts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal accounts: %w", err)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountID < accounts[j].AccountID
	})
	return accounts, nil
}

// SaveAccount creates or replaces an account
func (s *DynamoDBAccountStore) SaveAccount(ctx context.Context, account models.Account) error {
	if account.AccountID == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, accountKey)
	}
	if err := putItem(ctx, s.client, s.tableName, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// DeleteAccount removes an account
func (s *DynamoDBAccountStore) DeleteAccount(ctx context.Context, accountID string) error {
	if err := deleteItem(ctx, s.client, s.tableName, accountKey, accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// DynamoDBApplicationStore implements the ApplicationStore interface using DynamoDB
type DynamoDBApplicationStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// ListApplications returns every application
func (s *DynamoDBApplicationStore) ListApplications(ctx context.Context) ([]models.Application, error) {
	items, err := scanAll(ctx, s.client, s.tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to scan applications: %w", err)
	}

	apps := make([]models.Application, 0, len(items))
	if err := dynamodbattribute.UnmarshalListOfMaps(items, &apps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal applications: %w", err)
	}
	// empty lists come back as NULL attributes
	for i := range apps {
		apps[i].Normalize()
	}
	return apps, nil
}

// SaveApplication creates or replaces an application
func (s *DynamoDBApplicationStore) SaveApplication(ctx context.Context, app models.Application) error {
	if app.AppID == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, applicationKey)
	}
	if err := putItem(ctx, s.client, s.tableName, app); err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}
	return nil
}

// DeleteApplication removes an application
func (s *DynamoDBApplicationStore) DeleteApplication(ctx context.Context, appID string) error {
	if err := deleteItem(ctx, s.client, s.tableName, applicationKey, appID); err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	return nil
}

// DynamoDBExecutionStore implements the ExecutionStore interface using DynamoDB
type DynamoDBExecutionStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// SaveExecution writes an execution record
func (s *DynamoDBExecutionStore) SaveExecution(ctx context.Context, record models.ExecutionRecord) error {
	if record.ExecutionID == "" {
		return fmt.Errorf("%w: %s", ErrMissingKey, executionKey)
	}
	if err := putItem(ctx, s.client, s.tableName, record); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution record
func (s *DynamoDBExecutionStore) GetExecution(ctx context.Context, executionID string) (models.ExecutionRecord, error) {
	out, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			executionKey: {S: aws.String(executionID)},
		},
	})
	if err != nil {
		return models.ExecutionRecord{}, fmt.Errorf("failed to get execution: %w", err)
	}
	if out.Item == nil {
		return models.ExecutionRecord{}, ErrExecutionNotFound
	}

	var record models.ExecutionRecord
	if err := dynamodbattribute.UnmarshalMap(out.Item, &record); err != nil {
		return models.ExecutionRecord{}, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return record, nil
}

// DynamoDBResultStore implements the ResultStore interface using DynamoDB
type DynamoDBResultStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// SaveResult creates or replaces a result
func (s *DynamoDBResultStore) SaveResult(ctx context.Context, result models.Result) error {
	if result.AppIDPlanID == "" || result.ExecutionID == "" {
		return fmt.Errorf("%w: %s and %s", ErrMissingKey, resultHashKey, resultRangeKey)
	}
	if err := putItem(ctx, s.client, s.tableName, result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// ListResults queries one partition in ascending execution id order
func (s *DynamoDBResultStore) ListResults(ctx context.Context, appIDPlanID string) ([]models.Result, error) {
	keyCond := expression.Key(resultHashKey).Equal(expression.Value(appIDPlanID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var items []map[string]*dynamodb.AttributeValue
	err = s.client.QueryPagesWithContext(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	}, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		items = append(items, page.Items...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}

	results := make([]models.Result, 0, len(items))
	if err := dynamodbattribute.UnmarshalListOfMaps(items, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	return results, nil
}

// GetResult retrieves one result by its composite key
func (s *DynamoDBResultStore) GetResult(ctx context.Context, appIDPlanID, executionID string) (models.Result, error) {
	out, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			resultHashKey:  {S: aws.String(appIDPlanID)},
			resultRangeKey: {S: aws.String(executionID)},
		},
	})
	if err != nil {
		return models.Result{}, fmt.Errorf("failed to get result: %w", err)
	}
	if out.Item == nil {
		return models.Result{}, ErrResultNotFound
	}

	var result models.Result
	if err := dynamodbattribute.UnmarshalMap(out.Item, &result); err != nil {
		return models.Result{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return result, nil
}
