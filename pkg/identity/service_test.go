package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/kredensia/kredensia/pkg/errs"
	"github.com/kredensia/kredensia/pkg/policy"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := NewMemoryStore()
	svc := NewService(store,
		WithBcryptCost(bcrypt.MinCost),
		WithLogger(log),
		WithSnapshotTTL(0),
	)
	return svc, store
}

func perawatCandidate(username string) NewUser {
	return NewUser{
		Username: username,
		Email:    username + "@rs.example.id",
		Password: "rahasia-kuat",
		FullName: "Perawat " + username,
		Role:     policy.RolePerawat,
		Unit:     "icu",
	}
}

func TestCreateAssignsSequentialNPK(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		u, err := svc.Create(ctx, perawatCandidate(fmt.Sprintf("perawat%d", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("NPK%04d", i), u.NPK)
		assert.True(t, u.IsActive)
		assert.Empty(t, u.PasswordHash)
	}
}

func TestCreateKeepsExplicitNPK(t *testing.T) {
	svc, _ := newTestService(t)

	c := perawatCandidate("tuti")
	c.NPK = "NPK9000"
	u, err := svc.Create(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "NPK9000", u.NPK)

	// The next automatic assignment continues past the explicit code.
	next, err := svc.Create(context.Background(), perawatCandidate("wati"))
	require.NoError(t, err)
	assert.Equal(t, "NPK9001", next.NPK)
}

func TestCreateWidensNPKPastFourDigits(t *testing.T) {
	svc, _ := newTestService(t)

	for _, tc := range []struct{ username, npk string }{
		{"siti", "NPK9999"},
		{"rina", "NPK10000"},
	} {
		c := perawatCandidate(tc.username)
		c.NPK = tc.npk
		_, err := svc.Create(context.Background(), c)
		require.NoError(t, err)
	}

	u, err := svc.Create(context.Background(), perawatCandidate("dewi"))
	require.NoError(t, err)
	assert.Equal(t, "NPK10001", u.NPK)
}

func TestCreateNonPerawatGetsNoNPK(t *testing.T) {
	svc, _ := newTestService(t)

	c := perawatCandidate("kepala")
	c.Role = policy.RoleKepalaUnit
	u, err := svc.Create(context.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, u.NPK)
}

func TestConcurrentCreatesYieldDistinctNPKs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const n = 100
	var mu sync.Mutex
	seen := make(map[string]string, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			u, err := svc.Create(ctx, perawatCandidate(fmt.Sprintf("nurse%03d", i)))
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, dup := seen[u.NPK]; dup {
				return fmt.Errorf("npk %s assigned to both %s and %s", u.NPK, prev, u.Username)
			}
			seen[u.NPK] = u.Username
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, n)
}

func TestCreateDuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, perawatCandidate("sari"))
	require.NoError(t, err)

	dup := perawatCandidate("sari")
	dup.Email = "other@rs.example.id"
	_, err = svc.Create(ctx, dup)

	var de *errs.DuplicateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "username", de.Field)
}

func TestCreateReportsAllViolations(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), NewUser{
		Username: "ab",
		Email:    "not-an-email",
		Password: "short",
		Role:     "director",
	})

	var ve *errs.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "username")
	assert.Contains(t, ve.Fields, "email")
	assert.Contains(t, ve.Fields, "password")
	assert.Contains(t, ve.Fields, "role")
}

func TestCreateDefaultsRoleToPerawat(t *testing.T) {
	svc, _ := newTestService(t)

	c := perawatCandidate("lina")
	c.Role = ""
	u, err := svc.Create(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, policy.RolePerawat, u.Role)
	assert.NotEmpty(t, u.NPK)
}

func TestComparePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, perawatCandidate("ani"))
	require.NoError(t, err)

	ok, err := svc.ComparePassword(ctx, u.ID, "rahasia-kuat")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.ComparePassword(ctx, u.ID, "wrong-password")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ComparePassword(ctx, u.ID, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.ComparePassword(ctx, "missing", "whatever")
	var nf *errs.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, perawatCandidate("rini"))
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, u.ID, "wrong", "new-password-1")
	var ae *errs.AuthenticationError
	require.True(t, errors.As(err, &ae))

	err = svc.ChangePassword(ctx, u.ID, "rahasia-kuat", "short")
	var ve *errs.ValidationError
	require.True(t, errors.As(err, &ve))

	require.NoError(t, svc.ChangePassword(ctx, u.ID, "rahasia-kuat", "new-password-1"))

	ok, err := svc.ComparePassword(ctx, u.ID, "new-password-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, perawatCandidate("dian"))
	require.NoError(t, err)
	require.Nil(t, created.LastLogin)

	u, err := svc.Authenticate(ctx, "dian", "rahasia-kuat")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	// Email login works too.
	_, err = svc.Authenticate(ctx, "DIAN@rs.example.id", "rahasia-kuat")
	require.NoError(t, err)

	// Login stamps last_login on the stored record.
	reloaded, err := svc.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastLogin)
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, perawatCandidate("eka"))
	require.NoError(t, err)

	_, unknownErr := svc.Authenticate(ctx, "nobody", "rahasia-kuat")
	_, wrongErr := svc.Authenticate(ctx, "eka", "wrong-password")

	var a, b *errs.AuthenticationError
	require.True(t, errors.As(unknownErr, &a))
	require.True(t, errors.As(wrongErr, &b))
	assert.Equal(t, a.Error(), b.Error())
}

func TestSoftDeleteHidesFromActiveLookups(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, perawatCandidate("budi"))
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, u.ID))

	_, err = svc.FindByID(ctx, u.ID)
	var nf *errs.NotFoundError
	assert.True(t, errors.As(err, &nf))

	kept, err := svc.FindByIDIncludeInactive(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, kept.IsActive)

	_, err = svc.Authenticate(ctx, "budi", "rahasia-kuat")
	var ae *errs.AuthenticationError
	assert.True(t, errors.As(err, &ae))
}

func TestUpdateAllowedFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, perawatCandidate("citra"))
	require.NoError(t, err)

	updated, err := svc.UpdateAllowedFields(ctx, u.ID, Patch{
		"unit":          "igd",
		"full_name":     "Citra Dewi",
		"password_hash": "hax", // not on the allow-list, silently dropped
		"id":            "new-id",
	})
	require.NoError(t, err)
	assert.Equal(t, "igd", updated.Unit)
	assert.Equal(t, "Citra Dewi", updated.FullName)
	assert.Equal(t, u.ID, updated.ID)

	ok, err := svc.ComparePassword(ctx, u.ID, "rahasia-kuat")
	require.NoError(t, err)
	assert.True(t, ok, "password hash must survive a patch that tried to touch it")
}

func TestUpdateRejectsInvalidValues(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, perawatCandidate("fitri"))
	require.NoError(t, err)

	_, err = svc.UpdateAllowedFields(ctx, u.ID, Patch{
		"email": "broken",
		"npk":   "12345",
	})
	var ve *errs.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "email")
	assert.Contains(t, ve.Fields, "npk")
}

func TestListPaginationMath(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := svc.Create(ctx, perawatCandidate(fmt.Sprintf("page%02d", i)))
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, ListFilter{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 25, page.TotalCount)
	assert.Len(t, page.Records, 10)
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrev)

	last, err := svc.List(ctx, ListFilter{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, last.Records, 5)
	assert.False(t, last.HasNext)

	for _, r := range page.Records {
		assert.Empty(t, r.PasswordHash)
	}
}

func TestListEmptyStore(t *testing.T) {
	svc, _ := newTestService(t)

	page, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 0, page.TotalCount)
	assert.Empty(t, page.Records)
	assert.False(t, page.HasNext)
	assert.False(t, page.HasPrev)
}

func TestGenerateMissingNPKs(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Records written without codes, as a legacy import would leave them.
	for i, username := range []string{"lama", "baru"} {
		require.NoError(t, store.Insert(ctx, &User{
			ID:        username,
			Username:  username,
			Email:     username + "@rs.example.id",
			Role:      policy.RolePerawat,
			Unit:      "icu",
			IsActive:  true,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt: base,
		}))
	}
	u, err := svc.Create(ctx, perawatCandidate("sudah"))
	require.NoError(t, err)
	assert.Equal(t, "NPK0001", u.NPK)

	repaired, err := svc.GenerateMissingNPKs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)

	// Oldest record first.
	oldest, err := svc.FindByID(ctx, "lama")
	require.NoError(t, err)
	assert.Equal(t, "NPK0002", oldest.NPK)

	newest, err := svc.FindByID(ctx, "baru")
	require.NoError(t, err)
	assert.Equal(t, "NPK0003", newest.NPK)

	// Second run finds nothing to repair.
	repaired, err = svc.GenerateMissingNPKs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired)
}

func TestSnapshotCacheInvalidatedOnUpdate(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := NewMemoryStore()
	svc := NewService(store,
		WithBcryptCost(bcrypt.MinCost),
		WithLogger(log),
		WithSnapshotTTL(time.Minute),
	)
	ctx := context.Background()

	u, err := svc.Create(ctx, perawatCandidate("gita"))
	require.NoError(t, err)

	first, err := svc.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "icu", first.Unit)

	_, err = svc.UpdateAllowedFields(ctx, u.ID, Patch{"unit": "igd"})
	require.NoError(t, err)

	second, err := svc.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "igd", second.Unit, "mutation must drop the cached snapshot")
}
