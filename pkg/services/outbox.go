package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/drsolutions/drsplan/pkg/models"
)

// Outbox holds execution records that were started but not yet written
type Outbox interface {
	// Enqueue adds or replaces a pending record
	Enqueue(ctx context.Context, record models.ExecutionRecord) error

	// Pending returns every queued record ordered by execution id
	Pending(ctx context.Context) ([]models.ExecutionRecord, error)

	// Remove drops a record once it has been written
	Remove(ctx context.Context, executionID string) error
}

// MemoryOutbox keeps pending records in process memory
type MemoryOutbox struct {
	mu      sync.Mutex
	records map[string]models.ExecutionRecord
}

// NewMemoryOutbox creates an empty in-memory outbox
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{records: make(map[string]models.ExecutionRecord)}
}

// Enqueue adds or replaces a pending record
func (o *MemoryOutbox) Enqueue(ctx context.Context, record models.ExecutionRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.records[record.ExecutionID] = record
	return nil
}

// Pending returns every queued record
func (o *MemoryOutbox) Pending(ctx context.Context) ([]models.ExecutionRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	records := make([]models.ExecutionRecord, 0, len(o.records))
	for _, record := range o.records {
		records = append(records, record)
	}
	sortRecords(records)
	return records, nil
}

// Remove drops a record
func (o *MemoryOutbox) Remove(ctx context.Context, executionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.records, executionID)
	return nil
}

// RedisOutbox keeps pending records in a Redis hash so they survive restarts
type RedisOutbox struct {
	client redis.UniversalClient
	key    string
}

// NewRedisOutbox creates an outbox stored in the hash at key
func NewRedisOutbox(client redis.UniversalClient, key string) *RedisOutbox {
	if key == "" {
		key = "drsplan:outbox:executions"
	}
	return &RedisOutbox{client: client, key: key}
}

// Enqueue adds or replaces a pending record
func (o *RedisOutbox) Enqueue(ctx context.Context, record models.ExecutionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution record: %w", err)
	}
	if err := o.client.HSet(ctx, o.key, record.ExecutionID, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue execution %s: %w", record.ExecutionID, err)
	}
	return nil
}

// Pending returns every queued record
func (o *RedisOutbox) Pending(ctx context.Context) ([]models.ExecutionRecord, error) {
	values, err := o.client.HGetAll(ctx, o.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}

	records := make([]models.ExecutionRecord, 0, len(values))
	for id, value := range values {
		var record models.ExecutionRecord
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			return nil, fmt.Errorf("failed to decode outbox entry %s: %w", id, err)
		}
		records = append(records, record)
	}
	sortRecords(records)
	return records, nil
}

// Remove drops a record
func (o *RedisOutbox) Remove(ctx context.Context, executionID string) error {
	if err := o.client.HDel(ctx, o.key, executionID).Err(); err != nil {
		return fmt.Errorf("failed to remove execution %s from outbox: %w", executionID, err)
	}
	return nil
}

func sortRecords(records []models.ExecutionRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].ExecutionID < records[j].ExecutionID
	})
}
