package identity

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kredensia/kredensia/pkg/errs"
	"github.com/kredensia/kredensia/pkg/policy"
)

// MemoryStore is an in-memory Store used by tests and the "memory" store
// type in development. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (m *MemoryStore) Insert(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUnique(u.ID, u.Username, u.Email, u.NPK); err != nil {
		return err
	}

	clone := *u
	m.users[u.ID] = &clone
	return nil
}

func (m *MemoryStore) FindByID(ctx context.Context, id string, opts LookupOptions) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok || (!opts.IncludeInactive && !u.IsActive) {
		return nil, &errs.NotFoundError{Resource: "user"}
	}
	clone := *u
	return &clone, nil
}

func (m *MemoryStore) FindByUsername(ctx context.Context, username string, opts LookupOptions) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username && (opts.IncludeInactive || u.IsActive) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, &errs.NotFoundError{Resource: "user"}
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string, opts LookupOptions) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == email && (opts.IncludeInactive || u.IsActive) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, &errs.NotFoundError{Resource: "user"}
}

func (m *MemoryStore) Update(ctx context.Context, id string, fields map[string]interface{}) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok || !u.IsActive {
		return nil, &errs.NotFoundError{Resource: "user"}
	}

	next := *u
	for key, value := range fields {
		switch key {
		case "username":
			next.Username = value.(string)
		case "email":
			next.Email = value.(string)
		case "full_name":
			next.FullName = value.(string)
		case "role":
			next.Role = value.(policy.Role)
		case "unit":
			next.Unit = value.(string)
		case "npk":
			next.NPK = value.(string)
		case "permissions":
			next.Permissions = value.([]policy.Permission)
		case "is_active":
			next.IsActive = value.(bool)
		case "password_hash":
			next.PasswordHash = value.(string)
		case "updated_at":
			next.UpdatedAt = value.(time.Time)
		}
	}

	if err := m.checkUnique(id, next.Username, next.Email, next.NPK); err != nil {
		return nil, err
	}

	m.users[id] = &next
	clone := next
	return &clone, nil
}

func (m *MemoryStore) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return &errs.NotFoundError{Resource: "user"}
	}
	stamp := at
	u.LastLogin = &stamp
	return nil
}

func (m *MemoryStore) SetNPK(ctx context.Context, id, npk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return &errs.NotFoundError{Resource: "user"}
	}
	for otherID, other := range m.users {
		if otherID != id && other.NPK == npk {
			return &errs.DuplicateError{Field: "npk"}
		}
	}
	u.NPK = npk
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*User, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*User, 0)
	for _, u := range m.users {
		if !u.IsActive {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Unit != "" && u.Unit != filter.Unit {
			continue
		}
		if filter.Search != "" && !matchesSearch(u, filter.Search) {
			continue
		}
		clone := *u
		matched = append(matched, &clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if start >= total {
		return []*User{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) MaxNPKSuffix(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	max := 0
	for _, u := range m.users {
		if n, ok := npkSuffix(u.NPK); ok && n > max {
			max = n
		}
	}
	return max, nil
}

func (m *MemoryStore) PerawatMissingNPK(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	missing := make([]*User, 0)
	for _, u := range m.users {
		if u.IsActive && u.Role == policy.RolePerawat && !ValidNPK(u.NPK) {
			clone := *u
			missing = append(missing, &clone)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		return missing[i].CreatedAt.Before(missing[j].CreatedAt)
	})
	return missing, nil
}

func (m *MemoryStore) Purge(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return &errs.NotFoundError{Resource: "user"}
	}
	delete(m.users, id)
	return nil
}

// checkUnique enforces the username, email and npk unique constraints,
// mirroring the document store's indexes. Caller holds the write lock.
func (m *MemoryStore) checkUnique(selfID, username, email, npk string) error {
	for id, other := range m.users {
		if id == selfID {
			continue
		}
		if other.Username == username {
			return &errs.DuplicateError{Field: "username"}
		}
		if other.Email == email {
			return &errs.DuplicateError{Field: "email"}
		}
		if npk != "" && other.NPK == npk {
			return &errs.DuplicateError{Field: "npk"}
		}
	}
	return nil
}

func matchesSearch(u *User, search string) bool {
	needle := strings.ToLower(search)
	for _, hay := range []string{u.Username, u.FullName, u.Email, u.NPK} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

// npkSuffix extracts the numeric suffix of a well-formed license code.
func npkSuffix(npk string) (int, bool) {
	if !ValidNPK(npk) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(npk, "NPK"))
	if err != nil {
		return 0, false
	}
	return n, true
}
