package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded CredentialStore. It is process-local and
// intended for tests and single-process development.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	byEmail  map[string]string
}

var _ CredentialStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		byEmail:  make(map[string]string),
	}
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *m.accounts[id], nil
}

// Get returns a copy of the account with the given id.
func (m *MemoryStore) Get(id string) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return Account{}, false
	}
	return *account, true
}

func (m *MemoryStore) RecordFailure(_ context.Context, accountID string, policy LockoutPolicy, now time.Time) (FailureOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return FailureOutcome{}, ErrAccountNotFound
	}

	next, outcome := policy.Failure(account.Lockout, now)
	account.Lockout = next
	account.UpdatedAt = now
	return outcome, nil
}

func (m *MemoryStore) RecordSuccess(_ context.Context, accountID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.Lockout = LockoutState{}
	loginAt := now
	account.LastLoginAt = &loginAt
	account.UpdatedAt = now
	return nil
}

func (m *MemoryStore) CreateAccount(_ context.Context, input NewAccount) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(input.Email)
	if _, exists := m.byEmail[email]; exists {
		return Account{}, ErrEmailTaken
	}

	now := time.Now().UTC()
	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         input.Name,
		Role:         input.Role,
		PasswordHash: input.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.accounts[account.ID] = account
	m.byEmail[email] = account.ID
	return *account, nil
}

func (m *MemoryStore) UpsertAdmin(ctx context.Context, email, passwordHash string) error {
	m.mu.Lock()
	id, exists := m.byEmail[strings.ToLower(email)]
	if exists {
		account := m.accounts[id]
		account.Role = RoleAdmin
		account.PasswordHash = passwordHash
		account.Lockout = LockoutState{}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	_, err := m.CreateAccount(ctx, NewAccount{Email: email, Name: "Administrator", Role: RoleAdmin, PasswordHash: passwordHash})
	return err
}
