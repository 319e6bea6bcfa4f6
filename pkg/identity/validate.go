package identity

import (
	"regexp"
	"strings"

	"github.com/kredensia/kredensia/pkg/errs"
	"github.com/kredensia/kredensia/pkg/policy"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	// npkPattern matches assigned license codes: NPK + at least 4 digits.
	npkPattern = regexp.MustCompile(`^NPK\d{4,}$`)
)

const (
	usernameMinLen = 3
	usernameMaxLen = 30
	passwordMinLen = 8
)

// ValidNPK reports whether the code is well-formed.
func ValidNPK(npk string) bool {
	return npkPattern.MatchString(npk)
}

// validateNew checks every field constraint of a creation candidate and
// reports all violations at once. The candidate is normalized in place
// (email lowercased, role defaulted).
func validateNew(c *NewUser) error {
	ve := errs.NewValidationError()

	c.Username = strings.TrimSpace(c.Username)
	if len(c.Username) < usernameMinLen || len(c.Username) > usernameMaxLen {
		ve.Add("username", "must be 3-30 characters")
	}

	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if !emailPattern.MatchString(c.Email) {
		ve.Add("email", "must be a valid address")
	}

	if len(c.Password) < passwordMinLen {
		ve.Add("password", "must be at least 8 characters")
	}

	if c.Role == "" {
		c.Role = policy.RolePerawat
	} else if !policy.Known(c.Role) {
		ve.Add("role", "must be one of admin, mitra, perawat, kepala-unit")
	}

	if c.NPK != "" && !ValidNPK(c.NPK) {
		ve.Add("npk", "must match NPK followed by 4 digits")
	}

	if (c.Role == policy.RolePerawat || c.Role == policy.RoleKepalaUnit) && strings.TrimSpace(c.Unit) == "" {
		ve.Add("unit", "required for perawat and kepala-unit roles")
	}

	for _, p := range c.Permissions {
		if !policy.ValidPermission(p) {
			ve.Add("permissions", "contains an unknown permission tag")
			break
		}
	}

	if ve.HasViolations() {
		return ve
	}
	return nil
}

// allowedPatchFields is the fixed mutation allow-list; any other key in a
// patch is silently dropped.
var allowedPatchFields = map[string]struct{}{
	"username":    {},
	"email":       {},
	"full_name":   {},
	"role":        {},
	"unit":        {},
	"npk":         {},
	"permissions": {},
	"is_active":   {},
}

// validatePatch filters a patch down to the allow-list, normalizes values
// and reports every violated constraint.
func validatePatch(patch Patch) (map[string]interface{}, error) {
	ve := errs.NewValidationError()
	fields := make(map[string]interface{})

	for key, raw := range patch {
		if _, ok := allowedPatchFields[key]; !ok {
			continue
		}

		switch key {
		case "username":
			s, ok := raw.(string)
			s = strings.TrimSpace(s)
			if !ok || len(s) < usernameMinLen || len(s) > usernameMaxLen {
				ve.Add("username", "must be 3-30 characters")
				continue
			}
			fields[key] = s
		case "email":
			s, ok := raw.(string)
			s = strings.ToLower(strings.TrimSpace(s))
			if !ok || !emailPattern.MatchString(s) {
				ve.Add("email", "must be a valid address")
				continue
			}
			fields[key] = s
		case "full_name":
			s, ok := raw.(string)
			if !ok {
				ve.Add("full_name", "must be a string")
				continue
			}
			fields[key] = strings.TrimSpace(s)
		case "role":
			s, ok := raw.(string)
			if !ok || !policy.Known(policy.Role(s)) {
				ve.Add("role", "must be one of admin, mitra, perawat, kepala-unit")
				continue
			}
			fields[key] = policy.Role(s)
		case "unit":
			s, ok := raw.(string)
			if !ok {
				ve.Add("unit", "must be a string")
				continue
			}
			fields[key] = strings.TrimSpace(s)
		case "npk":
			s, ok := raw.(string)
			if !ok || (s != "" && !ValidNPK(s)) {
				ve.Add("npk", "must match NPK followed by 4 digits")
				continue
			}
			fields[key] = s
		case "permissions":
			perms, err := coercePermissions(raw)
			if err != nil {
				ve.Add("permissions", "must be a list of known permission tags")
				continue
			}
			fields[key] = perms
		case "is_active":
			b, ok := raw.(bool)
			if !ok {
				ve.Add("is_active", "must be a boolean")
				continue
			}
			fields[key] = b
		}
	}

	if ve.HasViolations() {
		return nil, ve
	}
	return fields, nil
}

// coercePermissions accepts either typed tags or JSON-decoded values.
func coercePermissions(raw interface{}) ([]policy.Permission, error) {
	var tags []string
	switch v := raw.(type) {
	case []policy.Permission:
		for _, p := range v {
			tags = append(tags, string(p))
		}
	case []string:
		tags = v
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &errs.ValidationError{Fields: map[string]string{"permissions": "non-string entry"}}
			}
			tags = append(tags, s)
		}
	default:
		return nil, &errs.ValidationError{Fields: map[string]string{"permissions": "not a list"}}
	}

	perms := make([]policy.Permission, 0, len(tags))
	for _, tag := range tags {
		p := policy.Permission(tag)
		if !policy.ValidPermission(p) {
			return nil, &errs.ValidationError{Fields: map[string]string{"permissions": "unknown tag " + tag}}
		}
		perms = append(perms, p)
	}
	return perms, nil
}
