package credentials

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kredensia/kredensia/pkg/errs"
)

// DefaultExpiryWindow is how far ahead the expiring-soon listing looks.
const DefaultExpiryWindow = 90 * 24 * time.Hour

// Service implements the credential registry operations over a Store.
type Service struct {
	store Store
	now   func() time.Time
	log   *logrus.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a credential service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates and stores a new credential record in pending state.
func (s *Service) Register(ctx context.Context, candidate NewCredential) (*Credential, error) {
	ve := errs.NewValidationError()

	candidate.Number = strings.TrimSpace(candidate.Number)
	if candidate.Number == "" {
		ve.Add("number", "required")
	}
	candidate.Name = strings.TrimSpace(candidate.Name)
	if candidate.Name == "" {
		ve.Add("name", "required")
	}
	if candidate.UserID == "" {
		ve.Add("user_id", "required")
	}
	if !KnownKind(candidate.Kind) {
		ve.Add("kind", "must be one of str, sip, certificate")
	}
	if candidate.IssuedAt.IsZero() {
		ve.Add("issued_at", "required")
	}
	if candidate.ExpiresAt != nil && !candidate.ExpiresAt.After(candidate.IssuedAt) {
		ve.Add("expires_at", "must be after issued_at")
	}
	if ve.HasViolations() {
		return nil, ve
	}

	now := s.now().UTC()
	c := &Credential{
		ID:        uuid.NewString(),
		UserID:    candidate.UserID,
		Kind:      candidate.Kind,
		Number:    candidate.Number,
		Name:      candidate.Name,
		Issuer:    strings.TrimSpace(candidate.Issuer),
		IssuedAt:  candidate.IssuedAt,
		ExpiresAt: candidate.ExpiresAt,
		Status:    StatusPending,
		Notes:     strings.TrimSpace(candidate.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Insert(ctx, c); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"credential_id": c.ID,
		"user_id":       c.UserID,
		"kind":          c.Kind,
	}).Info("credential registered")
	return c, nil
}

// FindByID returns one credential record.
func (s *Service) FindByID(ctx context.Context, id string) (*Credential, error) {
	return s.store.FindByID(ctx, id)
}

// SetStatus moves a credential through the verification workflow and records
// who decided.
func (s *Service) SetStatus(ctx context.Context, id string, status Status, verifierID, notes string) (*Credential, error) {
	if !KnownStatus(status) {
		ve := errs.NewValidationError()
		ve.Add("status", "must be one of pending, verified, rejected")
		return nil, ve
	}

	fields := map[string]interface{}{
		"status":      status,
		"verified_by": verifierID,
		"updated_at":  s.now().UTC(),
	}
	if notes != "" {
		fields["notes"] = notes
	}
	return s.store.Update(ctx, id, fields)
}

// Update applies an allow-listed patch to a credential record.
func (s *Service) Update(ctx context.Context, id string, patch map[string]interface{}) (*Credential, error) {
	ve := errs.NewValidationError()
	fields := make(map[string]interface{})

	for key, raw := range patch {
		switch key {
		case "number", "name", "issuer", "notes":
			v, ok := raw.(string)
			if !ok {
				ve.Add(key, "must be a string")
				continue
			}
			v = strings.TrimSpace(v)
			if (key == "number" || key == "name") && v == "" {
				ve.Add(key, "required")
				continue
			}
			fields[key] = v
		case "kind":
			v, ok := raw.(string)
			if !ok || !KnownKind(Kind(v)) {
				ve.Add("kind", "must be one of str, sip, certificate")
				continue
			}
			fields[key] = Kind(v)
		case "issued_at", "expires_at":
			v, ok := raw.(string)
			if !ok {
				ve.Add(key, "must be an RFC 3339 timestamp")
				continue
			}
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				ve.Add(key, "must be an RFC 3339 timestamp")
				continue
			}
			if key == "expires_at" {
				fields[key] = &ts
			} else {
				fields[key] = ts
			}
		}
	}
	if ve.HasViolations() {
		return nil, ve
	}
	if len(fields) == 0 {
		return s.store.FindByID(ctx, id)
	}

	fields["updated_at"] = s.now().UTC()
	return s.store.Update(ctx, id, fields)
}

// Delete removes a credential record.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// List returns one page of credential records matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (*Page, error) {
	filter.Normalize()

	records, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
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

// ExpiringSoon returns verified credentials expiring within the window,
// soonest first. A non-positive window uses the default.
func (s *Service) ExpiringSoon(ctx context.Context, window time.Duration) ([]*Credential, error) {
	if window <= 0 {
		window = DefaultExpiryWindow
	}
	return s.store.ExpiringBefore(ctx, s.now().UTC().Add(window))
}
