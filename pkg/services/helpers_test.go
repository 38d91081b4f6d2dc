package services

import (
	"context"
	"errors"
	"sync"

	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/drsolutions/drsplan/pkg/storage"
)

var errStoreDown = errors.New("store unavailable")

// flakyExecutionStore fails writes until healed
type flakyExecutionStore struct {
	*storage.MemoryExecutionStore

	mu      sync.Mutex
	failing bool
	saves   int
}

func newFlakyExecutionStore(failing bool) *flakyExecutionStore {
	return &flakyExecutionStore{
		MemoryExecutionStore: storage.NewMemoryExecutionStore(),
		failing:              failing,
	}
}

func (s *flakyExecutionStore) SaveExecution(ctx context.Context, record models.ExecutionRecord) error {
	s.mu.Lock()
	s.saves++
	failing := s.failing
	s.mu.Unlock()

	if failing {
		return errStoreDown
	}
	return s.MemoryExecutionStore.SaveExecution(ctx, record)
}

func (s *flakyExecutionStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = false
}

func (s *flakyExecutionStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func testApplication(name string, plans ...string) models.Application {
	app := models.Application{
		AppName:   name,
		KeyName:   "App",
		KeyValue:  name,
		AccountID: "123456789012",
		Region:    "us-east-1",
	}
	for _, plan := range plans {
		app.Plans = append(app.Plans, models.Plan{
			PlanName: plan,
			Waves: []models.Wave{{
				Name:        "wave-1",
				KeyName:     "Wave",
				KeyValue:    "1",
				MaxWaitTime: 3600,
				UpdateTime:  30,
			}},
		})
	}
	return app
}
