package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	client, err := NewRedisClient(ctx, s.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	c := NewRedisCache(client, "drsplan:archive:")

	_, err = c.Get(ctx, "bucket/key")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "bucket/key", []byte(`{"status":"completed"}`), time.Minute))
	assert.True(t, s.Exists("drsplan:archive:bucket/key"))

	value, err := c.Get(ctx, "bucket/key")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"completed"}`, string(value))

	s.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "bucket/key")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	addr := s.Addr()
	s.Close()

	_, err = NewRedisClient(context.Background(), addr, "", 0)
	assert.Error(t, err)
}

func TestNoopCache(t *testing.T) {
	var c Cache = NoopCache{}
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrMiss)
}
