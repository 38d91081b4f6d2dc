package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/go-redis/redis/v8"

	"github.com/drsolutions/drsplan/pkg/api"
	"github.com/drsolutions/drsplan/pkg/auth"
	"github.com/drsolutions/drsplan/pkg/cache"
	"github.com/drsolutions/drsplan/pkg/config"
	"github.com/drsolutions/drsplan/pkg/logging"
	"github.com/drsolutions/drsplan/pkg/metrics"
	"github.com/drsolutions/drsplan/pkg/notify"
	"github.com/drsolutions/drsplan/pkg/schema"
	"github.com/drsolutions/drsplan/pkg/services"
	"github.com/drsolutions/drsplan/pkg/storage"
	"github.com/drsolutions/drsplan/pkg/workflow"
)

// App represents the drsplan application
type App struct {
	config          *config.Config
	logger          logging.Logger
	server          *api.Server
	storageProvider storage.StorageProvider
	reconciler      *services.Reconciler
	redis           *redis.Client
}

// NewApp wires storage, AWS clients and services into an API server
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	provider, err := newStorageProvider(cfg)
	if err != nil {
		return nil, err
	}
	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.storageProvider = provider
	logger.Info("storage initialized", logging.F("type", cfg.Storage.Type))

	// AWS clients are only created when something needs them
	var sess *session.Session
	awsSession := func() (*session.Session, error) {
		if sess != nil {
			return sess, nil
		}
		s, err := storage.NewAWSSession(cfg.AWS.Region, cfg.AWS.AccessKey, cfg.AWS.SecretKey, cfg.AWS.Endpoint)
		if err != nil {
			return nil, err
		}
		sess = s
		return sess, nil
	}

	var starter workflow.Starter
	switch cfg.Workflow.Type {
	case "stepfunctions":
		s, err := awsSession()
		if err != nil {
			return nil, err
		}
		starter, err = workflow.NewSFNStarter(sfn.New(s), cfg.Workflow.StateMachineArn)
		if err != nil {
			return nil, err
		}
	default:
		starter = workflow.NewMemoryStarter(cfg.Workflow.StateMachineArn)
	}

	if cfg.Cache.Enabled || cfg.Executions.Outbox == "redis" {
		client, err := cache.NewRedisClient(ctx, cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
		if err != nil {
			return nil, err
		}
		app.redis = client
	}

	var outbox services.Outbox = services.NewMemoryOutbox()
	if cfg.Executions.Outbox == "redis" {
		outbox = services.NewRedisOutbox(app.redis, "")
	}

	var resultCache cache.Cache = cache.NoopCache{}
	if cfg.Cache.Enabled {
		resultCache = cache.NewRedisCache(app.redis, "drsplan:results:")
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
	}

	var archive storage.ResultArchive
	var notifier notify.Notifier = notify.Discard{}
	if cfg.Workflow.Type == "stepfunctions" || cfg.Storage.Type == "dynamodb" {
		s, err := awsSession()
		if err != nil {
			return nil, err
		}
		archive = storage.NewS3ResultArchive(s3.New(s), cfg.Results.ArchiveBucket)
		if cfg.Notifications.OnStart {
			notifier = notify.NewSNSNotifier(sns.New(s))
		}
	}

	var validator services.ApplicationValidator
	if cfg.Validation.StrictApplications {
		v, err := schema.NewValidator()
		if err != nil {
			return nil, err
		}
		validator = v
	}

	var tokens auth.TokenValidator
	if cfg.Auth.JWTSecret != "" {
		tokens = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	}

	executions := provider.GetExecutionStore()
	app.reconciler = services.NewReconciler(outbox, executions, logger, collector)

	app.server = api.NewServer(cfg, api.Dependencies{
		Accounts:     services.NewAccountService(provider.GetAccountStore()),
		Applications: services.NewApplicationService(provider.GetApplicationStore(), validator),
		Executions: services.NewExecutionService(services.ExecutionServiceConfig{
			Starter:       starter,
			Store:         executions,
			Outbox:        outbox,
			Notifier:      notifier,
			Logger:        logger,
			Metrics:       collector,
			NotifyOnStart: cfg.Notifications.OnStart,
		}),
		Results: services.NewResultService(services.ResultServiceConfig{
			Store:    provider.GetResultStore(),
			Archive:  archive,
			Cache:    resultCache,
			CacheTTL: cfg.Cache.TTL.Std(),
			Logger:   logger,
			Metrics:  collector,
		}),
		Tokens:  tokens,
		Logger:  logger,
		Metrics: collector,
	})

	return app, nil
}

// newStorageProvider builds the configured storage backend
func newStorageProvider(cfg *config.Config) (storage.StorageProvider, error) {
	providerConfig := storage.ProviderConfig{Type: storage.ProviderType(cfg.Storage.Type)}

	switch providerConfig.Type {
	case storage.DynamoDBProviderType:
		providerConfig.DynamoDB = &storage.DynamoDBProviderConfig{
			Region:      cfg.AWS.Region,
			AccessKey:   cfg.AWS.AccessKey,
			SecretKey:   cfg.AWS.SecretKey,
			TablePrefix: cfg.Storage.DynamoDB.TablePrefix,
			Endpoint:    cfg.Storage.DynamoDB.Endpoint,
			Tables: storage.DynamoDBTableNames{
				Accounts:     cfg.Storage.DynamoDB.AccountsTable,
				Applications: cfg.Storage.DynamoDB.ApplicationsTable,
				Executions:   cfg.Storage.DynamoDB.ExecutionsTable,
				Results:      cfg.Storage.DynamoDB.ResultsTable,
			},
			CreateTables: cfg.Storage.DynamoDB.CreateTables,
		}
	case storage.PostgreSQLProviderType, "postgres":
		providerConfig.PostgreSQL = &storage.PostgreSQLProviderConfig{
			Host:     cfg.Storage.Postgres.Host,
			Port:     cfg.Storage.Postgres.Port,
			User:     cfg.Storage.Postgres.User,
			Password: cfg.Storage.Postgres.Password,
			Database: cfg.Storage.Postgres.Database,
			SSLMode:  cfg.Storage.Postgres.SSLMode,
		}
	case storage.LevelDBProviderType:
		providerConfig.LevelDB = &storage.LevelDBProviderConfig{Path: cfg.Storage.LevelDB.Path}
	}

	provider, err := storage.NewProvider(providerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage provider: %w", err)
	}
	return provider, nil
}

// Start starts the reconciler and serves the API until the server stops
func (a *App) Start() error {
	if err := a.reconciler.Start(a.config.Executions.ReconcileSchedule); err != nil {
		return err
	}
	a.logger.LogSystemEvent("started", map[string]interface{}{"version": AppVersion})
	return a.server.Start()
}

// Stop stops the application gracefully
func (a *App) Stop(ctx context.Context) error {
	if err := a.server.Stop(ctx); err != nil {
		return err
	}

	select {
	case <-a.reconciler.Stop().Done():
	case <-ctx.Done():
		a.logger.Warn("reconcile pass still running at shutdown")
	}

	if a.redis != nil {
		a.redis.Close()
	}

	if err := a.storageProvider.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
