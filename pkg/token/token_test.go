package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kredensia/kredensia/pkg/identity"
	"github.com/kredensia/kredensia/pkg/policy"
)

const testSecret = "test-secret-please-rotate"

func testIssuer(t *testing.T, now *time.Time) *Issuer {
	t.Helper()
	return NewIssuer(testSecret, time.Hour, NewMemoryRevocations(),
		WithClock(func() time.Time { return *now }))
}

func testIdentity() *identity.User {
	return &identity.User{
		ID:          "u-1",
		Username:    "sari",
		Email:       "sari@rs.example.id",
		FullName:    "Sari Dewi",
		NPK:         "NPK0001",
		Role:        policy.RolePerawat,
		Permissions: []policy.Permission{policy.PermViewReports},
		Unit:        "icu",
		IsActive:    true,
	}
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Now().UTC()
	issuer := testIssuer(t, &now)

	raw, issued, err := issuer.Issue(testIdentity())
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.NotEmpty(t, issued.ID)

	claims, err := issuer.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "sari", claims.Username)
	assert.Equal(t, policy.RolePerawat, claims.Role)
	assert.Equal(t, issued.ID, claims.ID)

	// Claims embed role permissions plus the record's explicit grant.
	assert.ElementsMatch(t,
		[]policy.Permission{
			policy.PermViewCredentials, policy.PermCreateCredentials,
			policy.PermViewReports,
		},
		claims.Permissions)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Now().UTC()
	issuer := testIssuer(t, &now)

	raw, _, err := issuer.Issue(testIdentity())
	require.NoError(t, err)

	now = now.Add(time.Hour + time.Minute)
	_, err = issuer.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsTampering(t *testing.T) {
	now := time.Now().UTC()
	issuer := testIssuer(t, &now)

	raw, _, err := issuer.Issue(testIdentity())
	require.NoError(t, err)

	_, err = issuer.Verify(context.Background(), raw+"x")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = issuer.Verify(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	other := NewIssuer("different-secret", time.Hour, NewMemoryRevocations(),
		WithClock(func() time.Time { return now }))
	_, err = other.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRevocation(t *testing.T) {
	now := time.Now().UTC()
	issuer := testIssuer(t, &now)
	ctx := context.Background()

	raw, _, err := issuer.Issue(testIdentity())
	require.NoError(t, err)

	// A second token for the same user survives revocation of the first.
	other, _, err := issuer.Issue(testIdentity())
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(ctx, raw))

	_, err = issuer.Verify(ctx, raw)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = issuer.Verify(ctx, other)
	assert.NoError(t, err)

	// Revoking twice, or revoking garbage, is harmless.
	assert.NoError(t, issuer.Revoke(ctx, raw))
	assert.NoError(t, issuer.Revoke(ctx, "not-a-jwt"))
}

func TestRevokeExpiredTokenIsNoop(t *testing.T) {
	now := time.Now().UTC()
	store := NewMemoryRevocations()
	issuer := NewIssuer(testSecret, time.Hour, store,
		WithClock(func() time.Time { return now }))

	raw, _, err := issuer.Issue(testIdentity())
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	require.NoError(t, issuer.Revoke(context.Background(), raw))

	count, err := store.ActiveCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
