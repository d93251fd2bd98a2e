package collection

import (
	"time"

	"github.com/google/uuid"

	"listing_orchestrator/internal/domain"
)

// AccountRepository is a collection-backed domain.AccountRepository.
type AccountRepository struct {
	store Store
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(store Store) *AccountRepository {
	return &AccountRepository{store: store}
}

// GetAll returns all accounts in insertion order.
func (r *AccountRepository) GetAll() ([]*domain.Account, error) {
	items, err := Load[domain.Account](r.store, Accounts)
	if err != nil {
		return nil, err
	}
	accounts := make([]*domain.Account, 0, len(items))
	for i := range items {
		accounts = append(accounts, &items[i])
	}
	return accounts, nil
}

// GetByID returns an account by ID, or nil when absent.
func (r *AccountRepository) GetByID(id string) (*domain.Account, error) {
	accounts, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return nil, nil
}

// GetByIDs returns accounts in the order of ids, skipping unknown ids.
func (r *AccountRepository) GetByIDs(ids []string) ([]*domain.Account, error) {
	accounts, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}
	result := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		if acc, ok := byID[id]; ok {
			result = append(result, acc)
		}
	}
	return result, nil
}

// GetByLogin returns an account by external login id, or nil when absent.
func (r *AccountRepository) GetByLogin(loginID string) (*domain.Account, error) {
	accounts, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		if acc.ExternalLoginID == loginID {
			return acc, nil
		}
	}
	return nil, nil
}

// Save inserts or replaces an account.
func (r *AccountRepository) Save(account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	return Mutate(r.store, Accounts, func(items []domain.Account) ([]domain.Account, bool, error) {
		for i := range items {
			if items[i].ID == account.ID {
				items[i] = *account
				return items, true, nil
			}
		}
		return append(items, *account), true, nil
	})
}

// AddMany inserts accounts whose login id is new and returns how many were added.
func (r *AccountRepository) AddMany(accounts []*domain.Account) (int, error) {
	added := 0
	err := Mutate(r.store, Accounts, func(items []domain.Account) ([]domain.Account, bool, error) {
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			seen[item.ExternalLoginID] = struct{}{}
		}
		for _, acc := range accounts {
			if _, dup := seen[acc.ExternalLoginID]; dup {
				continue
			}
			if acc.ID == "" {
				acc.ID = uuid.NewString()
			}
			if acc.CreatedAt.IsZero() {
				acc.CreatedAt = time.Now()
			}
			seen[acc.ExternalLoginID] = struct{}{}
			items = append(items, *acc)
			added++
		}
		return items, added > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// Delete removes an account by ID.
func (r *AccountRepository) Delete(id string) error {
	return Mutate(r.store, Accounts, func(items []domain.Account) ([]domain.Account, bool, error) {
		for i := range items {
			if items[i].ID == id {
				return append(items[:i], items[i+1:]...), true, nil
			}
		}
		return items, false, nil
	})
}
