// Package identity implements the user entity and its lifecycle: creation
// with validation and NPK assignment, lookups, allow-listed updates, password
// verification, soft deletion and paginated listing. Persistence is behind
// the Store interface; mongostore provides the document-database
// implementation and MemoryStore backs tests and development.
package identity

import (
	"time"

	"github.com/kredensia/kredensia/pkg/policy"
)

// User is the persisted identity record. PasswordHash is never serialized in
// any output representation.
type User struct {
	ID           string              `json:"id" bson:"_id"`
	Username     string              `json:"username" bson:"username"`
	Email        string              `json:"email" bson:"email"`
	FullName     string              `json:"full_name,omitempty" bson:"full_name,omitempty"`
	PasswordHash string              `json:"-" bson:"password_hash"`
	NPK          string              `json:"npk,omitempty" bson:"npk,omitempty"`
	Role         policy.Role         `json:"role" bson:"role"`
	Permissions  []policy.Permission `json:"permissions,omitempty" bson:"permissions,omitempty"`
	Unit         string              `json:"unit,omitempty" bson:"unit,omitempty"`
	IsActive     bool                `json:"is_active" bson:"is_active"`
	LastLogin    *time.Time          `json:"last_login,omitempty" bson:"last_login,omitempty"`
	CreatedAt    time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" bson:"updated_at"`
}

// EffectivePermissions returns the union of the role's table-derived
// permissions and the record's explicit grants. Record-level permissions are
// purely additive.
func (u *User) EffectivePermissions() []policy.Permission {
	seen := make(map[policy.Permission]struct{})
	out := make([]policy.Permission, 0, 8)
	for _, p := range policy.PermissionsOf(u.Role) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for _, p := range u.Permissions {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// NewUser is the candidate payload for user creation.
type NewUser struct {
	Username    string              `json:"username"`
	Email       string              `json:"email"`
	Password    string              `json:"password"`
	FullName    string              `json:"full_name"`
	NPK         string              `json:"npk"`
	Role        policy.Role         `json:"role"`
	Permissions []policy.Permission `json:"permissions"`
	Unit        string              `json:"unit"`
}

// Patch is a partial update payload. Keys outside the allow-list are
// silently dropped.
type Patch map[string]interface{}

// ListFilter selects and pages user records.
type ListFilter struct {
	Role   policy.Role
	Unit   string
	// Search matches case-insensitive substrings of username, full name,
	// email and npk.
	Search string
	Page   int
	Limit  int
}

// DefaultLimit and MaxLimit bound page sizes.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Normalize clamps paging values into range.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
}

// Page is one page of user records plus paging metadata.
type Page struct {
	Records     []*User `json:"records"`
	CurrentPage int     `json:"current_page"`
	TotalPages  int     `json:"total_pages"`
	TotalCount  int     `json:"total_count"`
	HasNext     bool    `json:"has_next"`
	HasPrev     bool    `json:"has_prev"`
}
