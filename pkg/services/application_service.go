package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/drsolutions/drsplan/pkg/storage"
)

// ApplicationValidator checks an application before it is stored
type ApplicationValidator interface {
	ValidateApplication(app models.Application) error
}

// ApplicationService manages applications and their embedded plans
type ApplicationService struct {
	store     storage.ApplicationStore
	validator ApplicationValidator
	newID     func() string
}

// NewApplicationService creates an application service. A nil validator skips
// schema validation.
func NewApplicationService(store storage.ApplicationStore, validator ApplicationValidator) *ApplicationService {
	return &ApplicationService{
		store:     store,
		validator: validator,
		newID:     uuid.NewString,
	}
}

// List returns every application
func (s *ApplicationService) List(ctx context.Context) ([]models.Application, error) {
	apps, err := s.store.ListApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// Put creates or replaces an application. A missing AppId and any missing PlanId are
// generated; ids already present are kept.
func (s *ApplicationService) Put(ctx context.Context, app models.Application) (models.Application, error) {
	app.Normalize()

	if s.validator != nil {
		if err := s.validator.ValidateApplication(app); err != nil {
			return models.Application{}, validationError("%v", err)
		}
	}

	if app.AppID == "" {
		app.AppID = s.newID()
	}
	for i := range app.Plans {
		if app.Plans[i].PlanID == "" {
			app.Plans[i].PlanID = s.newID()
		}
	}

	if err := s.store.SaveApplication(ctx, app); err != nil {
		return models.Application{}, fmt.Errorf("failed to save application: %w", err)
	}
	return app, nil
}

// Delete removes an application. Deleting an unknown application succeeds.
func (s *ApplicationService) Delete(ctx context.Context, appID string) error {
	if appID == "" {
		return validationError("AppId is required")
	}

	if err := s.store.DeleteApplication(ctx, appID); err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	return nil
}
