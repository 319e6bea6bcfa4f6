package credentials

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kredensia/kredensia/pkg/errs"
)

// Store is the persistence contract for credential records. Implementations
// return *errs.NotFoundError for missing records.
type Store interface {
	Insert(ctx context.Context, c *Credential) error
	FindByID(ctx context.Context, id string) (*Credential, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) (*Credential, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*Credential, int, error)
	// ExpiringBefore returns verified credentials whose expiry falls before
	// the cutoff, soonest first.
	ExpiringBefore(ctx context.Context, cutoff time.Time) ([]*Credential, error)
}

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Credential
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Credential)}
}

func (m *MemoryStore) Insert(ctx context.Context, c *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.records {
		if other.UserID == c.UserID && other.Kind == c.Kind && strings.EqualFold(other.Number, c.Number) {
			return &errs.DuplicateError{Field: "number"}
		}
	}
	clone := *c
	m.records[c.ID] = &clone
	return nil
}

func (m *MemoryStore) FindByID(ctx context.Context, id string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.records[id]
	if !ok {
		return nil, &errs.NotFoundError{Resource: "credential"}
	}
	clone := *c
	return &clone, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fields map[string]interface{}) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.records[id]
	if !ok {
		return nil, &errs.NotFoundError{Resource: "credential"}
	}

	for key, raw := range fields {
		switch key {
		case "kind":
			if v, ok := raw.(Kind); ok {
				c.Kind = v
			}
		case "number":
			if v, ok := raw.(string); ok {
				c.Number = v
			}
		case "name":
			if v, ok := raw.(string); ok {
				c.Name = v
			}
		case "issuer":
			if v, ok := raw.(string); ok {
				c.Issuer = v
			}
		case "issued_at":
			if v, ok := raw.(time.Time); ok {
				c.IssuedAt = v
			}
		case "expires_at":
			switch v := raw.(type) {
			case *time.Time:
				c.ExpiresAt = v
			case time.Time:
				c.ExpiresAt = &v
			}
		case "status":
			if v, ok := raw.(Status); ok {
				c.Status = v
			}
		case "verified_by":
			if v, ok := raw.(string); ok {
				c.VerifiedBy = v
			}
		case "notes":
			if v, ok := raw.(string); ok {
				c.Notes = v
			}
		case "updated_at":
			if v, ok := raw.(time.Time); ok {
				c.UpdatedAt = v
			}
		}
	}

	clone := *c
	return &clone, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return &errs.NotFoundError{Resource: "credential"}
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*Credential, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*Credential, 0)
	for _, c := range m.records {
		if filter.UserID != "" && c.UserID != filter.UserID {
			continue
		}
		if filter.Kind != "" && c.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		clone := *c
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if start >= total {
		return []*Credential{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) ExpiringBefore(ctx context.Context, cutoff time.Time) ([]*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expiring := make([]*Credential, 0)
	for _, c := range m.records {
		if c.Status != StatusVerified || c.ExpiresAt == nil {
			continue
		}
		if c.ExpiresAt.Before(cutoff) {
			clone := *c
			expiring = append(expiring, &clone)
		}
	}
	sort.Slice(expiring, func(i, j int) bool {
		return expiring[i].ExpiresAt.Before(*expiring[j].ExpiresAt)
	})
	return expiring, nil
}
