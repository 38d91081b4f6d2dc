package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drsolutions/drsplan/pkg/metrics"
	"github.com/drsolutions/drsplan/pkg/models"
)

func TestReconcilerMetrics(t *testing.T) {
	ctx := context.Background()
	store := newFlakyExecutionStore(true)
	outbox := NewMemoryOutbox()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("test", registry)

	require.NoError(t, outbox.Enqueue(ctx, models.ExecutionRecord{ExecutionID: "arn:exec:a"}))
	require.NoError(t, outbox.Enqueue(ctx, models.ExecutionRecord{ExecutionID: "arn:exec:b"}))

	reconciler := NewReconciler(outbox, store, nil, collector)

	written, err := reconciler.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, written)

	store.heal()
	written, err = reconciler.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	count, err := testutil.GatherAndCount(registry, "test_execution_reconcile_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count) // success and failure series
	assert.Equal(t, 4, store.saveCount())
}

func TestReconcilerSkipsOverlappingPass(t *testing.T) {
	outbox := NewMemoryOutbox()
	require.NoError(t, outbox.Enqueue(context.Background(), models.ExecutionRecord{ExecutionID: "arn:exec:a"}))
	reconciler := NewReconciler(outbox, newFlakyExecutionStore(false), nil, nil)

	reconciler.running.Lock()
	written, err := reconciler.ReconcileOnce(context.Background())
	reconciler.running.Unlock()

	require.NoError(t, err)
	assert.Zero(t, written)
	pending, err := outbox.Pending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestReconcilerSchedule(t *testing.T) {
	outbox := NewMemoryOutbox()
	store := newFlakyExecutionStore(false)
	require.NoError(t, outbox.Enqueue(context.Background(), models.ExecutionRecord{ExecutionID: "arn:exec:a"}))

	reconciler := NewReconciler(outbox, store, nil, nil)
	assert.Error(t, reconciler.Start("not a schedule"))

	require.NoError(t, reconciler.Start("@every 1s"))
	assert.Eventually(t, func() bool {
		pending, err := outbox.Pending(context.Background())
		return err == nil && len(pending) == 0
	}, 5*time.Second, 50*time.Millisecond)

	select {
	case <-reconciler.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestReconcilerStopWithoutStart(t *testing.T) {
	reconciler := NewReconciler(NewMemoryOutbox(), newFlakyExecutionStore(false), nil, nil)
	<-reconciler.Stop().Done()
}
