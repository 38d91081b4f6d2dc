package services

import (
	"context"
	"fmt"

	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/drsolutions/drsplan/pkg/storage"
)

// AccountService manages the AWS accounts plans can target
type AccountService struct {
	store storage.AccountStore
}

// NewAccountService creates a new account service with the given storage backend
func NewAccountService(store storage.AccountStore) *AccountService {
	return &AccountService{
		store: store,
	}
}

// List returns every account
func (s *AccountService) List(ctx context.Context) ([]models.Account, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// Put creates or replaces an account. The account id is its key and is required.
func (s *AccountService) Put(ctx context.Context, account models.Account) (models.Account, error) {
	if account.AccountID == "" {
		return models.Account{}, validationError("AccountId is required")
	}

	if err := s.store.SaveAccount(ctx, account); err != nil {
		return models.Account{}, fmt.Errorf("failed to save account: %w", err)
	}
	return account, nil
}

// Delete removes an account. Deleting an unknown account succeeds.
func (s *AccountService) Delete(ctx context.Context, accountID string) error {
	if accountID == "" {
		return validationError("AccountId is required")
	}

	if err := s.store.DeleteAccount(ctx, accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
