package bank

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Repository for tests and dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	loans    map[string]Loan
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		loans:    make(map[string]Loan),
	}
}

// PutAccount inserts or replaces an account.
func (m *MemoryStore) PutAccount(a Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.UserID] = a
}

// PutLoan inserts or replaces a user's loan.
func (m *MemoryStore) PutLoan(l Loan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loans[l.UserID] = l
}

// Account returns a copy of the user's account.
func (m *MemoryStore) Account(_ context.Context, userID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account for %s: %w", userID, ErrNotFound)
	}
	return &a, nil
}

// Loan returns a copy of the user's loan.
func (m *MemoryStore) Loan(_ context.Context, userID string) (*Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loans[userID]
	if !ok {
		return nil, fmt.Errorf("loan for %s: %w", userID, ErrNotFound)
	}
	return &l, nil
}
