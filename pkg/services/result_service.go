package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drsolutions/drsplan/pkg/cache"
	"github.com/drsolutions/drsplan/pkg/logging"
	"github.com/drsolutions/drsplan/pkg/metrics"
	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/drsolutions/drsplan/pkg/storage"
)

// ResultService reads the results written by the orchestration engine
type ResultService struct {
	store    storage.ResultStore
	archive  storage.ResultArchive
	cache    cache.Cache
	cacheTTL time.Duration
	logger   logging.Logger
	metrics  *metrics.Collector
}

// ResultServiceConfig wires a ResultService
type ResultServiceConfig struct {
	Store storage.ResultStore

	// Archive resolves results offloaded to S3; nil returns the stored stub as is
	Archive storage.ResultArchive

	// Cache holds resolved archive bodies; nil disables caching
	Cache    cache.Cache
	CacheTTL time.Duration

	Logger  logging.Logger
	Metrics *metrics.Collector
}

// NewResultService creates a result service
func NewResultService(config ResultServiceConfig) *ResultService {
	c := config.Cache
	if c == nil {
		c = cache.NoopCache{}
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ResultService{
		store:    config.Store,
		archive:  config.Archive,
		cache:    c,
		cacheTTL: config.CacheTTL,
		logger:   logger,
		metrics:  config.Metrics,
	}
}

// List returns the results of one application plan in execution id order
func (s *ResultService) List(ctx context.Context, appID, planID string) ([]models.Result, error) {
	if appID == "" || planID == "" {
		return nil, validationError("appId and planId are required")
	}

	results, err := s.store.ListResults(ctx, models.PlanKey(appID, planID))
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}

// Get returns one result, resolving archived bodies
func (s *ResultService) Get(ctx context.Context, appIDPlanID, executionID string) (models.Result, error) {
	result, err := s.lookup(ctx, appIDPlanID, executionID)
	if err != nil {
		return models.Result{}, err
	}

	if !result.IsArchived() || s.archive == nil {
		return result, nil
	}
	return s.resolve(ctx, result)
}

// lookup reads the stored record without resolving archives
func (s *ResultService) lookup(ctx context.Context, appIDPlanID, executionID string) (models.Result, error) {
	if appIDPlanID == "" || executionID == "" {
		return models.Result{}, validationError("AppId_PlanId and ExecutionId are required")
	}

	result, err := s.store.GetResult(ctx, appIDPlanID, executionID)
	if err != nil {
		if errors.Is(err, storage.ErrResultNotFound) {
			return models.Result{}, fmt.Errorf("%w: result %s/%s", ErrNotFound, appIDPlanID, executionID)
		}
		return models.Result{}, fmt.Errorf("failed to get result: %w", err)
	}
	return result, nil
}

func (s *ResultService) resolve(ctx context.Context, stub models.Result) (models.Result, error) {
	cacheKey := stub.S3Bucket + "/" + stub.S3Key

	body, err := s.cache.Get(ctx, cacheKey)
	switch {
	case err == nil:
		s.metrics.RecordCacheLookup(true)
	case errors.Is(err, cache.ErrMiss):
		s.metrics.RecordCacheLookup(false)
		body, err = s.fetch(ctx, stub, cacheKey)
		if err != nil {
			return models.Result{}, err
		}
	default:
		s.logger.Warn("result cache unavailable", logging.F("key", cacheKey), logging.Err(err))
		body, err = s.fetch(ctx, stub, "")
		if err != nil {
			return models.Result{}, err
		}
	}

	result, err := storage.DecodeArchivedResult(stub, body)
	if err != nil {
		return models.Result{}, fmt.Errorf("failed to resolve archived result: %w", err)
	}
	return result, nil
}

// fetch downloads an archived body and caches it under cacheKey when set
func (s *ResultService) fetch(ctx context.Context, stub models.Result, cacheKey string) ([]byte, error) {
	body, err := s.archive.Fetch(ctx, stub.S3Bucket, stub.S3Key)
	s.metrics.RecordArchiveFetch(err == nil)
	if err != nil {
		if errors.Is(err, storage.ErrArchiveNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to fetch archived result: %w", err)
	}

	if cacheKey != "" {
		if err := s.cache.Set(ctx, cacheKey, body, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache archived result", logging.F("key", cacheKey), logging.Err(err))
		}
	}
	return body, nil
}
