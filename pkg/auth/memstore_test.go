package auth

import (
	"sync"

	"github.com/samber/lo"
)

// memStore is an in-memory CredentialStore with injectable failures
type memStore struct {
	mu       sync.RWMutex
	accounts map[string]Account

	storeErr error
	listErr  error
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]Account)}
}

func (s *memStore) Store(account *Account) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	s.mu.Lock()
	s.accounts[account.Username] = *account
	s.mu.Unlock()
	return nil
}

func (s *memStore) Retrieve(username string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

func (s *memStore) List() ([]*Account, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.MapToSlice(s.accounts, func(_ string, account Account) *Account {
		return &account
	}), nil
}

func (s *memStore) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(s.accounts, username)
	return nil
}

func (s *memStore) Exists(username string) bool {
	_, err := s.Retrieve(username)
	return err == nil
}

func (s *memStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
