package token

import (
	"context"
	"sync"
	"time"
)

// RevocationStore tracks revoked token IDs until the tokens would have
// expired anyway.
type RevocationStore interface {
	// Revoke records the token ID until expiresAt.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	// IsRevoked reports whether the token ID is in the set.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Sweep drops entries whose tokens have expired and returns the number
	// removed. Backends with native expiry may make this a no-op.
	Sweep(ctx context.Context) (int, error)
	// ActiveCount reports the number of live entries, for the metrics gauge.
	ActiveCount(ctx context.Context) (int, error)
}

// MemoryRevocations is the in-process revocation set. Expired entries are
// dropped lazily on lookup and in bulk by the periodic Sweep.
type MemoryRevocations struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations creates an empty in-memory revocation set.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryRevocations) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = expiresAt
	return nil
}

func (m *MemoryRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.RLock()
	expiresAt, ok := m.entries[jti]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !expiresAt.After(m.now()) {
		m.mu.Lock()
		delete(m.entries, jti)
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (m *MemoryRevocations) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for jti, expiresAt := range m.entries {
		if !expiresAt.After(now) {
			delete(m.entries, jti)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryRevocations) ActiveCount(ctx context.Context) (int, error) {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, expiresAt := range m.entries {
		if expiresAt.After(now) {
			count++
		}
	}
	return count, nil
}
