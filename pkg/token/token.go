// Package token issues and verifies the signed session tokens carried by API
// clients. Tokens are HS256 JWTs whose claims embed a snapshot of the user's
// identity and effective permissions at issue time; revocation is tracked by
// token ID in a RevocationStore so logout takes effect before expiry.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kredensia/kredensia/pkg/identity"
	"github.com/kredensia/kredensia/pkg/policy"
)

const issuerName = "kredensia"

var (
	// ErrTokenInvalid covers malformed tokens, wrong signing methods and bad
	// signatures.
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired marks a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token has expired")
	// ErrTokenRevoked marks a valid token whose ID is in the revocation set.
	ErrTokenRevoked = errors.New("token has been revoked")
)

// Claims is the JWT payload. Role and permission data is fixed at issue
// time; the middleware refreshes it from the live record per request.
type Claims struct {
	UserID      string              `json:"uid"`
	Username    string              `json:"username"`
	Email       string              `json:"email"`
	FullName    string              `json:"full_name,omitempty"`
	Role        policy.Role         `json:"role"`
	Unit        string              `json:"unit,omitempty"`
	Permissions []policy.Permission `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs, verifies and revokes session tokens.
type Issuer struct {
	secret      []byte
	ttl         time.Duration
	now         func() time.Time
	revocations RevocationStore
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer. The revocation store may not be nil; use
// NewMemoryRevocations for single-process deployments.
func NewIssuer(secret string, ttl time.Duration, revocations RevocationStore, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		secret:      []byte(secret),
		ttl:         ttl,
		now:         time.Now,
		revocations: revocations,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue signs a token for the user. The claims carry the union of the role's
// table permissions and the record's explicit grants.
func (i *Issuer) Issue(u *identity.User) (string, *Claims, error) {
	now := i.now().UTC()
	claims := &Claims{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		Unit:        u.Unit,
		Permissions: u.EffectivePermissions(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuerName,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses and validates a token, then checks the revocation set.
func (i *Issuer) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(func() time.Time { return i.now().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	revoked, err := i.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation set: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke adds a token's ID to the revocation set until its natural expiry.
// Expired and malformed tokens are a no-op: there is nothing left to revoke.
func (i *Issuer) Revoke(ctx context.Context, raw string) error {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) { return i.secret, nil })
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	if !claims.ExpiresAt.After(i.now().UTC()) {
		return nil
	}
	return i.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
