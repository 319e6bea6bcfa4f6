package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kredensia/kredensia/pkg/policy"
)

const seedYAML = `users:
  - username: admin
    email: admin@rs.example.id
    password: admin-bootstrap
    full_name: Administrator
    role: admin
  - username: kepala-icu
    email: kepala.icu@rs.example.id
    password: kepala-bootstrap
    full_name: Kepala Unit ICU
    role: kepala-unit
    unit: icu
  - username: ""
    password: ignored
`

func TestSeedFromFile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	created, err := svc.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	admin, err := svc.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, policy.RoleAdmin, admin.Role)

	ok, err := svc.ComparePassword(ctx, admin.ID, "admin-bootstrap")
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-seeding is a no-op.
	created, err = svc.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestSeedFromFileMissingPath(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SeedFromFile(context.Background(), "/nonexistent/seed.yaml")
	assert.Error(t, err)
}
