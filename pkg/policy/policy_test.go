package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookups_TotalOverKnownRoles(t *testing.T) {
	for _, role := range Roles() {
		assert.True(t, Known(role))
		assert.NotEmpty(t, PermissionsOf(role), "role %s should have permissions", role)
		assert.NotEmpty(t, MenusOf(role), "role %s should have menus", role)
		assert.Greater(t, LevelOf(role), 0, "role %s should have a level", role)
		assert.NotEqual(t, DefaultRedirect, RedirectOf(role), "role %s should have its own redirect", role)
	}
}

func TestLookups_UnknownRoleDefaults(t *testing.T) {
	unknown := Role("dokter")

	assert.False(t, Known(unknown))
	assert.Empty(t, PermissionsOf(unknown))
	assert.Empty(t, MenusOf(unknown))
	assert.Equal(t, 0, LevelOf(unknown))
	assert.Equal(t, DefaultRedirect, RedirectOf(unknown))
}

func TestHierarchyOrdering(t *testing.T) {
	assert.Greater(t, LevelOf(RoleAdmin), LevelOf(RoleKepalaUnit))
	assert.Greater(t, LevelOf(RoleKepalaUnit), LevelOf(RoleMitra))
	assert.Greater(t, LevelOf(RoleMitra), LevelOf(RolePerawat))
}

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleAdmin, PermManageUsers))
	assert.False(t, HasPermission(RolePerawat, PermManageUsers))
	assert.True(t, HasPermission(RolePerawat, PermViewCredentials))
	assert.False(t, HasPermission(Role("dokter"), PermViewCredentials))
}

func TestPermissionsOf_ReturnsCopy(t *testing.T) {
	perms := PermissionsOf(RolePerawat)
	perms[0] = Permission("tampered")
	assert.NotContains(t, PermissionsOf(RolePerawat), Permission("tampered"))
}

func TestValidPermission(t *testing.T) {
	assert.True(t, ValidPermission(PermViewReports))
	assert.False(t, ValidPermission(Permission("fly")))
}
