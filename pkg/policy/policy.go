// Package policy holds the static role policy table: which permissions, menu
// entries, hierarchy level and post-login redirect belong to each role. The
// table is process-wide constant configuration; every lookup is a pure, total
// function over the role tags, and an unknown role degrades to the documented
// defaults instead of failing.
package policy

// Role is an enumerated role tag. It is not a stored entity, only a key into
// the policy table.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleMitra      Role = "mitra"
	RolePerawat    Role = "perawat"
	RoleKepalaUnit Role = "kepala-unit"
)

// Permission is an enumerated capability tag.
type Permission string

const (
	PermViewCredentials   Permission = "view_credentials"
	PermCreateCredentials Permission = "create_credentials"
	PermEditCredentials   Permission = "edit_credentials"
	PermDeleteCredentials Permission = "delete_credentials"
	PermManageUsers       Permission = "manage_users"
	PermViewReports       Permission = "view_reports"
	PermSystemSettings    Permission = "system_settings"
)

// Menu is a menu-visibility tag consumed by the frontend.
type Menu string

const (
	MenuDashboard   Menu = "dashboard"
	MenuCredentials Menu = "credentials"
	MenuSchedules   Menu = "schedules"
	MenuExams       Menu = "exams"
	MenuUsers       Menu = "users"
	MenuReports     Menu = "reports"
	MenuSettings    Menu = "settings"
)

// DefaultRedirect is returned for roles without a table entry.
const DefaultRedirect = "/"

type entry struct {
	permissions []Permission
	menus       []Menu
	level       int
	redirect    string
}

// table is defined once at process start and never mutated.
var table = map[Role]entry{
	RoleAdmin: {
		permissions: []Permission{
			PermViewCredentials, PermCreateCredentials, PermEditCredentials,
			PermDeleteCredentials, PermManageUsers, PermViewReports,
			PermSystemSettings,
		},
		menus: []Menu{
			MenuDashboard, MenuCredentials, MenuSchedules, MenuExams,
			MenuUsers, MenuReports, MenuSettings,
		},
		level:    40,
		redirect: "/admin/dashboard",
	},
	RoleKepalaUnit: {
		permissions: []Permission{
			PermViewCredentials, PermCreateCredentials, PermEditCredentials,
			PermViewReports,
		},
		menus: []Menu{
			MenuDashboard, MenuCredentials, MenuSchedules, MenuReports,
		},
		level:    30,
		redirect: "/unit/dashboard",
	},
	RoleMitra: {
		permissions: []Permission{PermViewCredentials, PermViewReports},
		menus:       []Menu{MenuDashboard, MenuCredentials, MenuReports},
		level:       20,
		redirect:    "/mitra/dashboard",
	},
	RolePerawat: {
		permissions: []Permission{PermViewCredentials, PermCreateCredentials},
		menus:       []Menu{MenuDashboard, MenuCredentials, MenuSchedules, MenuExams},
		level:       10,
		redirect:    "/dashboard",
	},
}

// Known reports whether the role has a policy table entry.
func Known(role Role) bool {
	_, ok := table[role]
	return ok
}

// Roles returns all roles with a table entry.
func Roles() []Role {
	return []Role{RoleAdmin, RoleKepalaUnit, RoleMitra, RolePerawat}
}

// PermissionsOf returns the permission set of a role. Unknown roles yield an
// empty set.
func PermissionsOf(role Role) []Permission {
	e, ok := table[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(e.permissions))
	copy(out, e.permissions)
	return out
}

// MenusOf returns the menu-visibility set of a role. Unknown roles yield an
// empty set.
func MenusOf(role Role) []Menu {
	e, ok := table[role]
	if !ok {
		return nil
	}
	out := make([]Menu, len(e.menus))
	copy(out, e.menus)
	return out
}

// LevelOf returns the hierarchy level of a role. Unknown roles are level 0.
func LevelOf(role Role) int {
	return table[role].level
}

// RedirectOf returns the post-login redirect target of a role. Unknown roles
// get DefaultRedirect.
func RedirectOf(role Role) string {
	e, ok := table[role]
	if !ok {
		return DefaultRedirect
	}
	return e.redirect
}

// HasPermission reports whether the role's table entry grants the permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range table[role].permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// ValidPermission reports whether the tag is one of the enumerated
// capabilities.
func ValidPermission(perm Permission) bool {
	switch perm {
	case PermViewCredentials, PermCreateCredentials, PermEditCredentials,
		PermDeleteCredentials, PermManageUsers, PermViewReports,
		PermSystemSettings:
		return true
	}
	return false
}
