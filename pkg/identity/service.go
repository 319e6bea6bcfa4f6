package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/kredensia/kredensia/pkg/errs"
	"github.com/kredensia/kredensia/pkg/policy"
)

const (
	defaultBcryptCost  = 12
	defaultSnapshotTTL = 5 * time.Second
	snapshotCacheSize  = 512

	// npkAllocRetries bounds the duplicate-key retry loop for license code
	// assignment. Collisions only happen when another process claims the
	// same suffix between our read and write.
	npkAllocRetries = 5
)

// Service implements the identity operations over a Store. All returned
// records are copies with the password hash stripped; only ComparePassword
// ever touches the hash.
type Service struct {
	store Store
	cost  int
	now   func() time.Time
	log   *logrus.Logger

	// npkMu serializes in-process license code claims. Cross-process
	// collisions are handled by the store's unique constraint plus retry.
	npkMu sync.Mutex

	// snapshots caches FindByID results for the middleware's per-request
	// identity reload. Invalidated on every mutation of the record.
	snapshots *lru.LRU[string, *User]
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost sets the password-hash work factor.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithSnapshotTTL sets the identity snapshot cache lifetime. Zero disables
// the cache.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.snapshots = lru.NewLRU[string, *User](snapshotCacheSize, nil, ttl)
		} else {
			s.snapshots = nil
		}
	}
}

// NewService creates an identity service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		cost:      defaultBcryptCost,
		now:       time.Now,
		log:       logrus.StandardLogger(),
		snapshots: lru.NewLRU[string, *User](snapshotCacheSize, nil, defaultSnapshotTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the candidate, hashes the password and persists the
// record. A perawat without an npk gets the next sequential license code;
// the claim is serialized against concurrent creates and retried on a
// unique-constraint collision.
func (s *Service) Create(ctx context.Context, candidate NewUser) (*User, error) {
	if err := validateNew(&candidate); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(candidate.Password), s.cost)
	if err != nil {
		return nil, &errs.InternalError{Cause: fmt.Errorf("hash password: %w", err)}
	}

	now := s.now().UTC()
	u := &User{
		ID:           uuid.NewString(),
		Username:     candidate.Username,
		Email:        candidate.Email,
		FullName:     strings.TrimSpace(candidate.FullName),
		PasswordHash: string(hash),
		NPK:          candidate.NPK,
		Role:         candidate.Role,
		Permissions:  candidate.Permissions,
		Unit:         strings.TrimSpace(candidate.Unit),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	autoAssign := u.Role == policy.RolePerawat && u.NPK == ""

	for attempt := 0; ; attempt++ {
		if autoAssign {
			npk, err := s.claimNextNPK(ctx)
			if err != nil {
				return nil, err
			}
			u.NPK = npk
		}

		err := s.store.Insert(ctx, u)
		if err == nil {
			s.log.WithFields(logrus.Fields{
				"user_id":  u.ID,
				"username": u.Username,
				"role":     u.Role,
			}).Info("user created")
			return redact(u), nil
		}

		var dup *errs.DuplicateError
		if autoAssign && attempt < npkAllocRetries && errors.As(err, &dup) && dup.Field == "npk" {
			continue
		}
		return nil, err
	}
}

// claimNextNPK reads the current maximum suffix and claims the next code.
// The critical section covers only the claim, not the surrounding create.
func (s *Service) claimNextNPK(ctx context.Context) (string, error) {
	s.npkMu.Lock()
	defer s.npkMu.Unlock()

	max, err := s.store.MaxNPKSuffix(ctx)
	if err != nil {
		return "", &errs.InternalError{Cause: fmt.Errorf("read max npk: %w", err)}
	}
	return fmt.Sprintf("NPK%04d", max+1), nil
}

// FindByID returns the active record, password hash stripped.
func (s *Service) FindByID(ctx context.Context, id string) (*User, error) {
	if s.snapshots != nil {
		if u, ok := s.snapshots.Get(id); ok {
			return redact(u), nil
		}
	}
	u, err := s.store.FindByID(ctx, id, LookupOptions{})
	if err != nil {
		return nil, err
	}
	if s.snapshots != nil {
		s.snapshots.Add(id, u)
	}
	return redact(u), nil
}

// FindByUsername returns the active record, password hash stripped.
func (s *Service) FindByUsername(ctx context.Context, username string) (*User, error) {
	u, err := s.store.FindByUsername(ctx, username, LookupOptions{})
	if err != nil {
		return nil, err
	}
	return redact(u), nil
}

// FindByEmail returns the active record, password hash stripped. Emails are
// stored lowercased, so the lookup is case-insensitive.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.store.FindByEmail(ctx, strings.ToLower(email), LookupOptions{})
	if err != nil {
		return nil, err
	}
	return redact(u), nil
}

// FindByIDIncludeInactive is the administrative lookup that also matches
// soft-deleted records.
func (s *Service) FindByIDIncludeInactive(ctx context.Context, id string) (*User, error) {
	u, err := s.store.FindByID(ctx, id, LookupOptions{IncludeInactive: true})
	if err != nil {
		return nil, err
	}
	return redact(u), nil
}

// UpdateAllowedFields applies an allow-listed patch to the active record.
// Unknown keys are silently dropped; violated constraints are all reported.
func (s *Service) UpdateAllowedFields(ctx context.Context, id string, patch Patch) (*User, error) {
	fields, err := validatePatch(patch)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return s.FindByID(ctx, id)
	}

	fields["updated_at"] = s.now().UTC()
	u, err := s.store.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	s.invalidate(id)
	return redact(u), nil
}

// ComparePassword verifies a candidate against the stored hash. A mismatch
// or empty candidate returns false without error; only a failure to retrieve
// the hash is an error.
func (s *Service) ComparePassword(ctx context.Context, id, candidate string) (bool, error) {
	if candidate == "" {
		return false, nil
	}

	u, err := s.store.FindByID(ctx, id, LookupOptions{})
	if err != nil {
		var notFound *errs.NotFoundError
		if errors.As(err, &notFound) {
			return false, err
		}
		return false, &errs.InternalError{Cause: fmt.Errorf("load password hash: %w", err)}
	}
	if u.PasswordHash == "" {
		return false, &errs.InternalError{Cause: fmt.Errorf("user %s has no password hash", id)}
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(candidate)) != nil {
		return false, nil
	}
	return true, nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	ok, err := s.ComparePassword(ctx, id, current)
	if err != nil {
		return err
	}
	if !ok {
		return &errs.AuthenticationError{Message: "invalid credentials"}
	}
	if len(next) < passwordMinLen {
		ve := errs.NewValidationError()
		ve.Add("password", "must be at least 8 characters")
		return ve
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return &errs.InternalError{Cause: fmt.Errorf("hash password: %w", err)}
	}
	_, err = s.store.Update(ctx, id, map[string]interface{}{
		"password_hash": string(hash),
		"updated_at":    s.now().UTC(),
	})
	if err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

// SoftDelete marks the record inactive. The record stays in the store for
// audit but disappears from active lookups.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	_, err := s.store.Update(ctx, id, map[string]interface{}{
		"is_active":  false,
		"updated_at": s.now().UTC(),
	})
	if err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

// Purge physically removes a record. Administrative use only.
func (s *Service) Purge(ctx context.Context, id string) error {
	if err := s.store.Purge(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

// TouchLastLogin stamps the login time, bypassing full validation so a stale
// record can still log in.
func (s *Service) TouchLastLogin(ctx context.Context, id string) error {
	return s.store.SetLastLogin(ctx, id, s.now().UTC())
}

// Authenticate resolves a login name (username, or email when it contains
// "@") and verifies the password. Every failure mode produces the same
// generic error so callers cannot probe which usernames exist.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*User, error) {
	invalid := &errs.AuthenticationError{Message: "invalid credentials"}

	var u *User
	var err error
	if strings.Contains(login, "@") {
		u, err = s.store.FindByEmail(ctx, strings.ToLower(login), LookupOptions{})
	} else {
		u, err = s.store.FindByUsername(ctx, login, LookupOptions{})
	}
	if err != nil {
		var notFound *errs.NotFoundError
		if errors.As(err, &notFound) {
			return nil, invalid
		}
		return nil, &errs.InternalError{Cause: err}
	}

	ok, err := s.ComparePassword(ctx, u.ID, password)
	if err != nil {
		var notFound *errs.NotFoundError
		if errors.As(err, &notFound) {
			return nil, invalid
		}
		return nil, err
	}
	if !ok {
		return nil, invalid
	}

	if err := s.TouchLastLogin(ctx, u.ID); err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("failed to stamp last login")
	}
	s.invalidate(u.ID)
	return redact(u), nil
}

// List returns one page of active records matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (*Page, error) {
	filter.Normalize()

	records, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	for i, u := range records {
		records[i] = redact(u)
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit
	if totalPages < 1 {
		totalPages = 1
	}
	return &Page{
		Records:     records,
		CurrentPage: filter.Page,
		TotalPages:  totalPages,
		TotalCount:  total,
		HasNext:     filter.Page < totalPages,
		HasPrev:     filter.Page > 1 && total > 0,
	}, nil
}

// GenerateMissingNPKs assigns sequential license codes to perawat records
// lacking a well-formed one, oldest first, and returns the repaired count.
// The same claim serialization as Create applies.
func (s *Service) GenerateMissingNPKs(ctx context.Context) (int, error) {
	missing, err := s.store.PerawatMissingNPK(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, u := range missing {
		assigned := false
		for attempt := 0; attempt <= npkAllocRetries; attempt++ {
			npk, err := s.claimNextNPK(ctx)
			if err != nil {
				return repaired, err
			}
			err = s.store.SetNPK(ctx, u.ID, npk)
			if err == nil {
				assigned = true
				break
			}
			var dup *errs.DuplicateError
			if errors.As(err, &dup) && dup.Field == "npk" {
				continue
			}
			return repaired, err
		}
		if !assigned {
			return repaired, &errs.InternalError{Cause: fmt.Errorf("npk assignment kept colliding for user %s", u.ID)}
		}
		s.invalidate(u.ID)
		repaired++
	}

	if repaired > 0 {
		s.log.WithField("count", repaired).Info("repaired missing npk codes")
	}
	return repaired, nil
}

func (s *Service) invalidate(id string) {
	if s.snapshots != nil {
		s.snapshots.Remove(id)
	}
}

// redact returns a copy with the password hash stripped.
func redact(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	out.PasswordHash = ""
	if u.Permissions != nil {
		out.Permissions = make([]policy.Permission, len(u.Permissions))
		copy(out.Permissions, u.Permissions)
	}
	return &out
}
