package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drsolutions/drsplan/pkg/cache"
	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/drsolutions/drsplan/pkg/storage"
)

// fakeArchive serves archived bodies from memory and counts fetches
type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	fetches int
}

func (a *fakeArchive) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fetches++
	body, ok := a.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: s3://%s/%s", storage.ErrArchiveNotFound, bucket, key)
	}
	return body, nil
}

func (a *fakeArchive) fetchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches
}

func seedResults(t *testing.T, store storage.ResultStore) {
	t.Helper()
	ctx := context.Background()
	for _, r := range []models.Result{
		{AppIDPlanID: "app1_plan1", ExecutionID: "exec-2", Status: models.ResultStatusFailed},
		{AppIDPlanID: "app1_plan1", ExecutionID: "exec-1", Status: models.ResultStatusCompleted},
		{AppIDPlanID: "app1_plan2", ExecutionID: "exec-3", Status: models.ResultStatusStarted},
		{AppIDPlanID: "app1_plan1", ExecutionID: "exec-4", S3Bucket: "drs-results", S3Key: "app1_plan1/exec-4.json"},
	} {
		require.NoError(t, store.SaveResult(ctx, r))
	}
}

func TestResultServiceList(t *testing.T) {
	store := storage.NewMemoryResultStore()
	seedResults(t, store)
	service := NewResultService(ResultServiceConfig{Store: store})
	ctx := context.Background()

	results, err := service.List(ctx, "app1", "plan1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exec-1", results[0].ExecutionID)
	assert.Equal(t, "exec-2", results[1].ExecutionID)
	// archived stubs are listed as stored
	assert.Equal(t, "drs-results", results[2].S3Bucket)

	results, err = service.List(ctx, "app1", "plan9")
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = service.List(ctx, "app1", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResultServiceGet(t *testing.T) {
	store := storage.NewMemoryResultStore()
	seedResults(t, store)
	service := NewResultService(ResultServiceConfig{Store: store})
	ctx := context.Background()

	result, err := service.Get(ctx, "app1_plan1", "exec-2")
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFailed, result.Status)

	_, err = service.Get(ctx, "app1_plan1", "exec-9")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = service.Get(ctx, "", "exec-1")
	assert.ErrorIs(t, err, ErrValidation)

	// without an archive the stub is returned unchanged
	stub, err := service.Get(ctx, "app1_plan1", "exec-4")
	require.NoError(t, err)
	assert.Equal(t, "app1_plan1/exec-4.json", stub.S3Key)
}

func TestResultServiceResolvesStubWithoutBucket(t *testing.T) {
	store := storage.NewMemoryResultStore()
	ctx := context.Background()
	require.NoError(t, store.SaveResult(ctx, models.Result{AppIDPlanID: "a_p", ExecutionID: "e", S3Key: "/results/a_p/e"}))

	// an empty bucket is left for the archive to default
	archive := &fakeArchive{objects: map[string][]byte{"//results/a_p/e": []byte(`{"status":"completed"}`)}}
	service := NewResultService(ResultServiceConfig{Store: store, Archive: archive})

	result, err := service.Get(ctx, "a_p", "e")
	require.NoError(t, err)
	assert.Equal(t, 1, archive.fetchCount())
	assert.Equal(t, models.ResultStatusCompleted, result.Status)
	assert.Equal(t, "a_p", result.AppIDPlanID)
	assert.Empty(t, result.S3Key)
}

func TestResultServiceResolvesArchiveThroughCache(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	store := storage.NewMemoryResultStore()
	seedResults(t, store)

	body, err := json.Marshal(models.Result{
		ExecutionID: "exec-4",
		Status:      models.ResultStatusCompleted,
		AppName:     "payments",
		Waves:       []models.WaveResult{{Status: models.ResultStatusCompleted}},
	})
	require.NoError(t, err)
	archive := &fakeArchive{objects: map[string][]byte{"drs-results/app1_plan1/exec-4.json": body}}

	service := NewResultService(ResultServiceConfig{
		Store:    store,
		Archive:  archive,
		Cache:    cache.NewRedisCache(client, "test:"),
		CacheTTL: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := service.Get(ctx, "app1_plan1", "exec-4")
		require.NoError(t, err)
		assert.Equal(t, "app1_plan1", result.AppIDPlanID)
		assert.Equal(t, "exec-4", result.ExecutionID)
		assert.Equal(t, "payments", result.AppName)
		assert.Len(t, result.Waves, 1)
		assert.Empty(t, result.S3Bucket)
		assert.Empty(t, result.S3Key)
	}
	assert.Equal(t, 1, archive.fetchCount())

	// once the entry expires the archive is read again
	server.FastForward(2 * time.Minute)
	_, err = service.Get(ctx, "app1_plan1", "exec-4")
	require.NoError(t, err)
	assert.Equal(t, 2, archive.fetchCount())
}

func TestResultServiceMissingArchive(t *testing.T) {
	store := storage.NewMemoryResultStore()
	seedResults(t, store)
	service := NewResultService(ResultServiceConfig{Store: store, Archive: &fakeArchive{}})

	_, err := service.Get(context.Background(), "app1_plan1", "exec-4")
	assert.ErrorIs(t, err, ErrNotFound)
}

// brokenCache fails every call
type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("connection refused")
}

func TestResultServiceCacheUnavailable(t *testing.T) {
	store := storage.NewMemoryResultStore()
	seedResults(t, store)
	archive := &fakeArchive{objects: map[string][]byte{
		"drs-results/app1_plan1/exec-4.json": []byte(`{"status":"completed"}`),
	}}
	service := NewResultService(ResultServiceConfig{Store: store, Archive: archive, Cache: brokenCache{}})

	result, err := service.Get(context.Background(), "app1_plan1", "exec-4")
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusCompleted, result.Status)
	assert.Equal(t, 1, archive.fetchCount())
}

func TestResultServiceWatch(t *testing.T) {
	store := storage.NewMemoryResultStore()
	service := NewResultService(ResultServiceConfig{Store: store})
	ctx := context.Background()

	var mu sync.Mutex
	var statuses []string
	publish := func(r models.Result) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, r.Status)
	}
	published := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), statuses...)
	}

	done := make(chan error, 1)
	go func() {
		done <- service.Watch(ctx, "app1_plan1", "exec-1", WatchOptions{PollInterval: 10 * time.Millisecond}, publish)
	}()

	// not written yet, then started, then completed
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, store.SaveResult(ctx, models.Result{AppIDPlanID: "app1_plan1", ExecutionID: "exec-1", Status: models.ResultStatusStarted}))
	require.Eventually(t, func() bool { return len(published()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, store.SaveResult(ctx, models.Result{AppIDPlanID: "app1_plan1", ExecutionID: "exec-1", Status: models.ResultStatusCompleted}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not finish on a terminal status")
	}
	assert.Equal(t, []string{models.ResultStatusStarted, models.ResultStatusCompleted}, published())
}

func TestResultServiceWatchTimeout(t *testing.T) {
	store := storage.NewMemoryResultStore()
	require.NoError(t, store.SaveResult(context.Background(), models.Result{
		AppIDPlanID: "app1_plan1", ExecutionID: "exec-1", Status: models.ResultStatusStarted,
	}))
	service := NewResultService(ResultServiceConfig{Store: store})

	calls := 0
	err := service.Watch(context.Background(), "app1_plan1", "exec-1",
		WatchOptions{PollInterval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond},
		func(models.Result) { calls++ })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)

	err = service.Watch(context.Background(), "", "exec-1", WatchOptions{}, func(models.Result) {})
	assert.ErrorIs(t, err, ErrValidation)
}
