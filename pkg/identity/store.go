package identity

import (
	"context"
	"time"
)

// LookupOptions tunes record lookups.
type LookupOptions struct {
	// IncludeInactive also matches soft-deleted records.
	IncludeInactive bool
}

// Store is the persistence contract for identity records. Implementations
// must signal unique-constraint collisions with *errs.DuplicateError (naming
// the colliding field) and missing records with *errs.NotFoundError.
type Store interface {
	// Insert persists a new record. The caller has already assigned ID,
	// timestamps and the password hash.
	Insert(ctx context.Context, u *User) error

	FindByID(ctx context.Context, id string, opts LookupOptions) (*User, error)
	FindByUsername(ctx context.Context, username string, opts LookupOptions) (*User, error)
	FindByEmail(ctx context.Context, email string, opts LookupOptions) (*User, error)

	// Update applies the given fields to the matching active record and
	// returns the updated record.
	Update(ctx context.Context, id string, fields map[string]interface{}) (*User, error)

	// SetLastLogin stamps the login time without touching any other field.
	SetLastLogin(ctx context.Context, id string, at time.Time) error

	// SetNPK assigns a license code to a record, subject to the npk unique
	// constraint.
	SetNPK(ctx context.Context, id, npk string) error

	// List returns one page of active records matching the filter plus the
	// total match count.
	List(ctx context.Context, filter ListFilter) ([]*User, int, error)

	// MaxNPKSuffix returns the highest numeric suffix among assigned npk
	// codes, or 0 when none exist.
	MaxNPKSuffix(ctx context.Context) (int, error)

	// PerawatMissingNPK returns active perawat records without a well-formed
	// npk, ordered by creation time ascending.
	PerawatMissingNPK(ctx context.Context) ([]*User, error)

	// Purge physically removes a record. Administrative use only.
	Purge(ctx context.Context, id string) error
}
