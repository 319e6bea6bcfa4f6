// Package errs defines the error taxonomy shared by the identity, token and
// API layers. Handlers map these types onto HTTP statuses in one place
// (httputil.WriteTaxonomyError) so stores and services never talk HTTP.
package errs

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports every violated field constraint of a request, not
// just the first one encountered.
type ValidationError struct {
	// Fields maps a field name to a human-readable constraint description.
	Fields map[string]string
}

// NewValidationError creates an empty validation error ready to collect
// violations.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a violated constraint for a field.
func (e *ValidationError) Add(field, constraint string) {
	e.Fields[field] = constraint
}

// HasViolations reports whether any constraint was violated.
func (e *ValidationError) HasViolations() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// DuplicateError signals a unique-constraint collision on a single field.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate value for field %q", e.Field)
}

// NotFoundError signals that no active record matched the lookup.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return e.Resource + " not found"
}

// AuthenticationError covers missing, malformed, expired and revoked
// credentials. The message is deliberately generic on login paths so callers
// cannot distinguish an unknown user from a wrong password.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "authentication required"
	}
	return e.Message
}

// AuthorizationError signals a valid identity with insufficient role or
// permissions. Redirect carries the policy table's suggestion for the
// caller's actual role.
type AuthorizationError struct {
	Message  string
	Redirect string
}

func (e *AuthorizationError) Error() string {
	if e.Message == "" {
		return "insufficient permissions"
	}
	return e.Message
}

// InternalError wraps an unexpected persistence or configuration failure.
// The wrapped cause goes to the operational log; the caller only ever sees
// the generic message.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string {
	return "internal error"
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}
