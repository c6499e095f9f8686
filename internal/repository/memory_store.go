package repository

import (
	"context"
	"sync"

	"github.com/JoaoGuiPan/bank-account/internal/domain"
)

// MemoryAccountStore is an in-memory account store with the same contract as
// AccountRepository, including compare-and-set versioning and all-or-nothing
// UpdateAll. It backs the service tests and the transfer-atomicity property
// under concurrent execution.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	order    []string
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[string]domain.Account),
	}
}

func (m *MemoryAccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &account, nil
}

func (m *MemoryAccountStore) GetByUserLastName(ctx context.Context, userLastName string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if account := m.accounts[id]; account.UserLastName == userLastName {
			return &account, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

// FindAll returns copies of all accounts in insertion order.
func (m *MemoryAccountStore) FindAll(ctx context.Context) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	accounts := make([]domain.Account, 0, len(m.order))
	for _, id := range m.order {
		accounts = append(accounts, m.accounts[id])
	}
	return accounts, nil
}

func (m *MemoryAccountStore) Insert(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.UserLastName == account.UserLastName {
			return domain.ErrDuplicateHolder
		}
	}
	m.accounts[account.ID] = *account
	m.order = append(m.order, account.ID)
	return nil
}

func (m *MemoryAccountStore) Update(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.casUpdate(account); err != nil {
		return err
	}
	account.Version++
	return nil
}

// UpdateAll applies every update or none: versions are validated for all
// accounts before the first write.
func (m *MemoryAccountStore) UpdateAll(ctx context.Context, accounts ...*domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range accounts {
		current, ok := m.accounts[account.ID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if current.Version != account.Version {
			return domain.ErrConflict
		}
	}
	for _, account := range accounts {
		if err := m.casUpdate(account); err != nil {
			return err
		}
		account.Version++
	}
	return nil
}

func (m *MemoryAccountStore) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = make(map[string]domain.Account)
	m.order = nil
	return nil
}

// casUpdate must be called with the mutex held.
func (m *MemoryAccountStore) casUpdate(account *domain.Account) error {
	current, ok := m.accounts[account.ID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if current.Version != account.Version {
		return domain.ErrConflict
	}
	updated := *account
	updated.Version++
	m.accounts[account.ID] = updated
	return nil
}
