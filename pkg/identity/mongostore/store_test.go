package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kredensia/kredensia/pkg/errs"
	"github.com/kredensia/kredensia/pkg/identity"
	"github.com/kredensia/kredensia/pkg/policy"
)

// newTestStore connects to the database named by TEST_MONGO_URI and hands
// back a Store over a throwaway database. Tests are skipped when the
// variable is unset so the suite stays runnable without infrastructure.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping mongo integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database(fmt.Sprintf("kredensia_test_%s", uuid.NewString()[:8]))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	store, err := New(ctx, db)
	require.NoError(t, err)
	return store
}

func testUser(username string) *identity.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &identity.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@rs.example.id",
		FullName:     "Test " + username,
		PasswordHash: "$2a$10$notarealhashnotarealhashnotarealhash",
		Role:         policy.RolePerawat,
		Unit:         "icu",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestStoreInsertAndFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := testUser("sari")
	require.NoError(t, store.Insert(ctx, u))

	got, err := store.FindByUsername(ctx, "sari", identity.LookupOptions{})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "sari@rs.example.id", got.Email)

	got, err = store.FindByEmail(ctx, "SARI@rs.example.id", identity.LookupOptions{})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = store.FindByID(ctx, "missing", identity.LookupOptions{})
	var nf *errs.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestStoreDuplicateKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testUser("dewi")))

	dup := testUser("dewi")
	dup.ID = uuid.NewString()
	dup.Email = "other@rs.example.id"
	err := store.Insert(ctx, dup)

	var de *errs.DuplicateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "username", de.Field)

	withNPK := testUser("ratna")
	withNPK.NPK = "NPK0001"
	require.NoError(t, store.Insert(ctx, withNPK))

	clash := testUser("rina")
	clash.NPK = "NPK0001"
	err = store.Insert(ctx, clash)
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "npk", de.Field)
}

func TestStoreSparseNPKIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Multiple records without an npk must not collide.
	require.NoError(t, store.Insert(ctx, testUser("a1")))
	require.NoError(t, store.Insert(ctx, testUser("a2")))
}

func TestStoreUpdateAndSoftDeleteVisibility(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := testUser("budi")
	require.NoError(t, store.Insert(ctx, u))

	updated, err := store.Update(ctx, u.ID, map[string]interface{}{"unit": "igd"})
	require.NoError(t, err)
	assert.Equal(t, "igd", updated.Unit)

	_, err = store.Update(ctx, u.ID, map[string]interface{}{"is_active": false})
	require.NoError(t, err)

	_, err = store.FindByID(ctx, u.ID, identity.LookupOptions{})
	var nf *errs.NotFoundError
	assert.True(t, errors.As(err, &nf))

	got, err := store.FindByID(ctx, u.ID, identity.LookupOptions{IncludeInactive: true})
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestStoreMaxNPKSuffix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.MaxNPKSuffix(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for i, suffix := range []string{"NPK0003", "NPK0010", "NPK0007"} {
		u := testUser(fmt.Sprintf("n%d", i))
		u.NPK = suffix
		require.NoError(t, store.Insert(ctx, u))
	}

	n, err = store.MaxNPKSuffix(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestStoreMaxNPKSuffixNumericOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// NPK9999 sorts after NPK10000 as a string; the max must be numeric
	// or allocation wedges at the five-digit boundary.
	for i, suffix := range []string{"NPK9999", "NPK10000"} {
		u := testUser(fmt.Sprintf("wide%d", i))
		u.NPK = suffix
		require.NoError(t, store.Insert(ctx, u))
	}

	n, err := store.MaxNPKSuffix(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000, n)
}

func TestStoreListFiltersAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		u := testUser(fmt.Sprintf("perawat%d", i))
		u.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Insert(ctx, u))
	}
	admin := testUser("kepala")
	admin.Role = policy.RoleKepalaUnit
	require.NoError(t, store.Insert(ctx, admin))

	records, total, err := store.List(ctx, identity.ListFilter{Role: policy.RolePerawat, Page: 1, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, records, 3)
	// Newest first.
	assert.Equal(t, "perawat4", records[0].Username)

	records, total, err = store.List(ctx, identity.ListFilter{Search: "KEPALA", Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "kepala", records[0].Username)
}

func TestStorePerawatMissingNPK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testUser("old")
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, first))

	second := testUser("new")
	require.NoError(t, store.Insert(ctx, second))

	assigned := testUser("done")
	assigned.NPK = "NPK0042"
	require.NoError(t, store.Insert(ctx, assigned))

	missing, err := store.PerawatMissingNPK(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, "old", missing[0].Username)
	assert.Equal(t, "new", missing[1].Username)
}
