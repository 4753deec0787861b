package csrf

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	token     string
	expiresAt time.Time
}

// MemoryStore keeps tokens in process memory. Tokens issued by one process
// are unknown to any other, so it only suits single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Issue(_ context.Context, accountID string) (string, time.Time, error) {
	token, err := newToken()
	if err != nil {
		return "", time.Time{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.now().Add(m.ttl)
	m.entries[accountID] = entry{token: token, expiresAt: expiresAt}
	return token, expiresAt, nil
}

func (m *MemoryStore) Validate(_ context.Context, accountID, token string) error {
	m.mu.RLock()
	current, ok := m.entries[accountID]
	m.mu.RUnlock()

	if !ok {
		return ErrTokenInvalid
	}

	if !m.now().Before(current.expiresAt) {
		m.mu.Lock()
		// a concurrent Issue may have replaced the entry
		if latest, ok := m.entries[accountID]; ok && latest == current {
			delete(m.entries, accountID)
		}
		m.mu.Unlock()
		return ErrTokenInvalid
	}

	if !tokensEqual(current.token, token) {
		return ErrTokenInvalid
	}
	return nil
}

func (m *MemoryStore) Revoke(_ context.Context, accountID string) error {
	m.mu.Lock()
	delete(m.entries, accountID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for accountID, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, accountID)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
