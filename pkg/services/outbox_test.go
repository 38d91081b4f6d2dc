package services

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drsolutions/drsplan/pkg/models"
)

func outboxSuite(t *testing.T, outbox Outbox) {
	ctx := context.Background()

	pending, err := outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	second := models.ExecutionRecord{ExecutionID: "arn:exec:b", StartDate: "2024-01-01T00:00:00Z"}
	first := models.ExecutionRecord{
		ExecutionID: "arn:exec:a",
		StartDate:   "2024-01-02T00:00:00Z",
		Params:      models.ExecutionParams{StateMachineArn: "arn:sm", Input: `{"Applications":[]}`, Name: "a"},
	}
	require.NoError(t, outbox.Enqueue(ctx, second))
	require.NoError(t, outbox.Enqueue(ctx, first))
	require.NoError(t, outbox.Enqueue(ctx, first))

	pending, err = outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ExecutionRecord{first, second}, pending)

	require.NoError(t, outbox.Remove(ctx, first.ExecutionID))
	require.NoError(t, outbox.Remove(ctx, "arn:exec:unknown"))

	pending, err = outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ExecutionRecord{second}, pending)
}

func TestMemoryOutbox(t *testing.T) {
	outboxSuite(t, NewMemoryOutbox())
}

func TestRedisOutbox(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	outbox := NewRedisOutbox(client, "")
	outboxSuite(t, outbox)

	assert.True(t, server.Exists("drsplan:outbox:executions"))
}

func TestRedisOutboxSurvivesRestart(t *testing.T) {
	server := miniredis.RunT(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	require.NoError(t, NewRedisOutbox(client, "test:outbox").Enqueue(ctx, models.ExecutionRecord{ExecutionID: "arn:exec:a"}))
	require.NoError(t, client.Close())

	client = redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	pending, err := NewRedisOutbox(client, "test:outbox").Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "arn:exec:a", pending[0].ExecutionID)
}

func TestRedisOutboxUnavailable(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer client.Close()
	server.Close()

	outbox := NewRedisOutbox(client, "")
	assert.Error(t, outbox.Enqueue(context.Background(), models.ExecutionRecord{ExecutionID: "arn:exec:a"}))
	_, err := outbox.Pending(context.Background())
	assert.Error(t, err)
}
