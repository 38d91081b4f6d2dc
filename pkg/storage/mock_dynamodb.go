package storage

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

var (
	useRealDynamoDB = flag.Bool("real-dynamodb", false, "Use real DynamoDB for tests instead of mock")

	// keyEquality matches the "#name = :value" terms produced by the expression builder
	keyEquality = regexp.MustCompile(`(#\w+)\s*=\s*(:\w+)`)
)

// MockDynamoDBAPI implements the dynamodbiface.DynamoDBAPI interface for testing
type MockDynamoDBAPI struct {
	dynamodbiface.DynamoDBAPI
	mu     sync.RWMutex
	tables map[string]*MockTable

	// putErrors makes PutItem fail for the named tables
	putErrors map[string]error
}

// MockTable represents a DynamoDB table in memory
type MockTable struct {
	Name         string
	Items        map[string]map[string]*dynamodb.AttributeValue
	BillingMode  string
	TableStatus  string
	KeySchema    []*dynamodb.KeySchemaElement
	AttributeDef []*dynamodb.AttributeDefinition
}

// NewMockDynamoDBAPI creates a new mock DynamoDB client
func NewMockDynamoDBAPI() *MockDynamoDBAPI {
	return &MockDynamoDBAPI{
		tables:    make(map[string]*MockTable),
		putErrors: make(map[string]error),
	}
}

// FailPuts makes every PutItem against tableName return err; a nil err clears it
func (m *MockDynamoDBAPI) FailPuts(tableName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.putErrors, tableName)
		return
	}
	m.putErrors[tableName] = err
}

// ItemCount returns the number of items stored in a table
func (m *MockDynamoDBAPI) ItemCount(tableName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if table, ok := m.tables[tableName]; ok {
		return len(table.Items)
	}
	return 0
}

// CreateTable creates a mock table
func (m *MockDynamoDBAPI) CreateTable(input *dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableName := aws.StringValue(input.TableName)
	if _, exists := m.tables[tableName]; exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceInUseException, fmt.Sprintf("table already exists: %s", tableName), nil)
	}

	m.tables[tableName] = &MockTable{
		Name:         tableName,
		Items:        make(map[string]map[string]*dynamodb.AttributeValue),
		BillingMode:  aws.StringValue(input.BillingMode),
		TableStatus:  "ACTIVE",
		KeySchema:    input.KeySchema,
		AttributeDef: input.AttributeDefinitions,
	}

	return &dynamodb.CreateTableOutput{
		TableDescription: &dynamodb.TableDescription{
			TableName:   input.TableName,
			TableStatus: aws.String("ACTIVE"),
		},
	}, nil
}

// DescribeTable describes a mock table
func (m *MockDynamoDBAPI) DescribeTable(input *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tableName := aws.StringValue(input.TableName)
	table, exists := m.tables[tableName]
	if !exists {
		// Return AWS-style error for resource not found
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "Requested resource not found", nil)
	}

	return &dynamodb.DescribeTableOutput{
		Table: &dynamodb.TableDescription{
			TableName:            aws.String(table.Name),
			TableStatus:          aws.String(table.TableStatus),
			KeySchema:            table.KeySchema,
			AttributeDefinitions: table.AttributeDef,
			BillingModeSummary: &dynamodb.BillingModeSummary{
				BillingMode: aws.String(table.BillingMode),
			},
		},
	}, nil
}

// DeleteTable deletes a mock table
func (m *MockDynamoDBAPI) DeleteTable(input *dynamodb.DeleteTableInput) (*dynamodb.DeleteTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableName := aws.StringValue(input.TableName)
	if _, exists := m.tables[tableName]; !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "Requested resource not found", nil)
	}

	delete(m.tables, tableName)

	return &dynamodb.DeleteTableOutput{
		TableDescription: &dynamodb.TableDescription{
			TableName:   input.TableName,
			TableStatus: aws.String("DELETING"),
		},
	}, nil
}

// PutItemWithContext puts an item in a mock table
func (m *MockDynamoDBAPI) PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableName := aws.StringValue(input.TableName)
	if err, ok := m.putErrors[tableName]; ok {
		return nil, err
	}
	table, exists := m.tables[tableName]
	if !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "Requested resource not found", nil)
	}

	key, err := m.generateKey(table.KeySchema, input.Item)
	if err != nil {
		return nil, err
	}
	table.Items[key] = input.Item

	return &dynamodb.PutItemOutput{}, nil
}

// GetItemWithContext gets an item from a mock table
func (m *MockDynamoDBAPI) GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, exists := m.tables[aws.StringValue(input.TableName)]
	if !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "Requested resource not found", nil)
	}

	key, err := m.generateKey(table.KeySchema, input.Key)
	if err != nil {
		return nil, err
	}
	item, exists := table.Items[key]
	if !exists {
		return &dynamodb.GetItemOutput{}, nil
	}

	return &dynamodb.GetItemOutput{Item: item}, nil
}

// DeleteItemWithContext deletes an item from a mock table
func (m *MockDynamoDBAPI) DeleteItemWithContext(ctx aws.Context, input *dynamodb.DeleteItemInput, opts ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, exists := m.tables[aws.StringValue(input.TableName)]
	if !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "Requested resource not found", nil)
	}

	key, err := m.generateKey(table.KeySchema, input.Key)
	if err != nil {
		return nil, err
	}
	delete(table.Items, key)

	return &dynamodb.DeleteItemOutput{}, nil
}

// ScanPagesWithContext returns every item of a mock table as a single page
func (m *MockDynamoDBAPI) ScanPagesWithContext(ctx aws.Context, input *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool, opts ...request.Option) error {
	m.mu.RLock()
	table, exists := m.tables[aws.StringValue(input.TableName)]
	if !exists {
		m.mu.RUnlock()
		return awserr.New(dynamodb.ErrCodeResourceNotFoundException, "Requested resource not found", nil)
	}

	keys := make([]string, 0, len(table.Items))
	for key := range table.Items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	items := make([]map[string]*dynamodb.AttributeValue, 0, len(keys))
	for _, key := range keys {
		items = append(items, table.Items[key])
	}
	m.mu.RUnlock()

	fn(&dynamodb.ScanOutput{
		Items: items,
		Count: aws.Int64(int64(len(items))),
	}, true)
	return nil
}

// QueryPagesWithContext evaluates equality key conditions against a mock table
func (m *MockDynamoDBAPI) QueryPagesWithContext(ctx aws.Context, input *dynamodb.QueryInput, fn func(*dynamodb.QueryOutput, bool) bool, opts ...request.Option) error {
	m.mu.RLock()
	table, exists := m.tables[aws.StringValue(input.TableName)]
	if !exists {
		m.mu.RUnlock()
		return awserr.New(dynamodb.ErrCodeResourceNotFoundException, "Requested resource not found", nil)
	}

	conditions := make(map[string]string)
	for _, match := range keyEquality.FindAllStringSubmatch(aws.StringValue(input.KeyConditionExpression), -1) {
		name := aws.StringValue(input.ExpressionAttributeNames[match[1]])
		value := input.ExpressionAttributeValues[match[2]]
		if name == "" || value == nil {
			m.mu.RUnlock()
			return fmt.Errorf("unresolved key condition term %s = %s", match[1], match[2])
		}
		conditions[name] = aws.StringValue(value.S)
	}

	var items []map[string]*dynamodb.AttributeValue
	for _, item := range table.Items {
		matched := true
		for name, want := range conditions {
			attr, ok := item[name]
			if !ok || aws.StringValue(attr.S) != want {
				matched = false
				break
			}
		}
		if matched {
			items = append(items, item)
		}
	}
	m.mu.RUnlock()

	if rangeKey := rangeKeyName(table.KeySchema); rangeKey != "" {
		forward := input.ScanIndexForward == nil || aws.BoolValue(input.ScanIndexForward)
		sort.Slice(items, func(i, j int) bool {
			a, b := aws.StringValue(items[i][rangeKey].S), aws.StringValue(items[j][rangeKey].S)
			if forward {
				return a < b
			}
			return a > b
		})
	}

	if input.Limit != nil {
		limit := int(aws.Int64Value(input.Limit))
		if limit < len(items) {
			items = items[:limit]
		}
	}

	fn(&dynamodb.QueryOutput{
		Items: items,
		Count: aws.Int64(int64(len(items))),
	}, true)
	return nil
}

// WaitUntilTableExists waits for table to exist (mock always returns immediately)
func (m *MockDynamoDBAPI) WaitUntilTableExists(input *dynamodb.DescribeTableInput) error {
	return nil // Mock tables are immediately available
}

// WaitUntilTableNotExists waits for table to not exist (mock always returns immediately)
func (m *MockDynamoDBAPI) WaitUntilTableNotExists(input *dynamodb.DescribeTableInput) error {
	return nil // Mock tables are immediately gone
}

// generateKey generates a composite key from key schema and item attributes
func (m *MockDynamoDBAPI) generateKey(keySchema []*dynamodb.KeySchemaElement, item map[string]*dynamodb.AttributeValue) (string, error) {
	var keyParts []string
	for _, keyElement := range keySchema {
		attrName := aws.StringValue(keyElement.AttributeName)
		attr, exists := item[attrName]
		if !exists || (attr.S == nil && attr.N == nil) {
			return "", awserr.New("ValidationException",
				fmt.Sprintf("One of the required keys was not given a value: %s", attrName), nil)
		}
		if attr.S != nil {
			keyParts = append(keyParts, aws.StringValue(attr.S))
		} else {
			keyParts = append(keyParts, aws.StringValue(attr.N))
		}
	}
	return strings.Join(keyParts, "#"), nil
}

func rangeKeyName(keySchema []*dynamodb.KeySchemaElement) string {
	for _, element := range keySchema {
		if aws.StringValue(element.KeyType) == "RANGE" {
			return aws.StringValue(element.AttributeName)
		}
	}
	return ""
}

// GetTestDynamoDBClient returns a real DynamoDB client when -real-dynamodb is set,
// otherwise a fresh mock
func GetTestDynamoDBClient() (dynamodbiface.DynamoDBAPI, error) {
	if *useRealDynamoDB {
		sess, err := NewAWSSession("us-east-1",
			os.Getenv("AWS_ACCESS_KEY_ID"),
			os.Getenv("AWS_SECRET_ACCESS_KEY"),
			os.Getenv("DYNAMODB_ENDPOINT"))
		if err != nil {
			return nil, err
		}
		return dynamodb.New(sess), nil
	}

	// Use mock DynamoDB
	return NewMockDynamoDBAPI(), nil
}
