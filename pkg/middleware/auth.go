// Package middleware implements the request-gating pipeline: authentication
// against the token issuer followed by composable authorization stages.
// Stages run strictly in sequence; the first failing stage writes its error
// and no downstream stage or handler executes.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kredensia/kredensia/pkg/contextkeys"
	"github.com/kredensia/kredensia/pkg/errs"
	"github.com/kredensia/kredensia/pkg/httputil"
	"github.com/kredensia/kredensia/pkg/identity"
	"github.com/kredensia/kredensia/pkg/observability"
	"github.com/kredensia/kredensia/pkg/policy"
	"github.com/kredensia/kredensia/pkg/token"
)

// SessionCookie is the fallback token carrier for browser clients that do
// not set an Authorization header.
const SessionCookie = "kredensia_session"

// Chain builds the authorization stages over a token issuer and the
// identity service.
type Chain struct {
	issuer *token.Issuer
	users  *identity.Service
	log    *logrus.Logger
}

// NewChain creates a middleware chain.
func NewChain(issuer *token.Issuer, users *identity.Service, log *logrus.Logger) *Chain {
	return &Chain{issuer: issuer, users: users, log: log}
}

// ClaimsFromContext returns the claims attached by the Authenticate stage.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(contextkeys.ClaimsKey).(*token.Claims)
	return claims, ok
}

// extractToken pulls the bearer token from the Authorization header, falling
// back to the session cookie.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// Authenticate verifies the presented token and attaches its claims to the
// request context. Missing, malformed and expired tokens get 401; a revoked
// token is a valid identity acting on a dead session, which gets 403.
func (c *Chain) Authenticate() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractToken(r)
			if raw == "" {
				observability.RecordDenied("authenticate")
				httputil.WriteTaxonomyError(w, &errs.AuthenticationError{Message: "missing bearer token"})
				return
			}

			claims, err := c.issuer.Verify(r.Context(), raw)
			if err != nil {
				observability.RecordDenied("authenticate")
				switch {
				case errors.Is(err, token.ErrTokenExpired):
					httputil.WriteTaxonomyError(w, &errs.AuthenticationError{Message: "token has expired"})
				case errors.Is(err, token.ErrTokenRevoked):
					httputil.WriteTaxonomyError(w, &errs.AuthorizationError{Message: "token has been revoked"})
				case errors.Is(err, token.ErrTokenInvalid):
					httputil.WriteTaxonomyError(w, &errs.AuthenticationError{Message: "invalid token"})
				default:
					c.log.WithError(err).Error("token verification failed")
					httputil.WriteInternalError(w)
				}
				return
			}

			ctx := contextkeys.WithClaims(r.Context(), claims)
			ctx = contextkeys.WithRawToken(ctx, raw)
			ctx = contextkeys.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActiveUser confirms the identity record behind the claims is still
// active, and stamps its last-login time as a liveness marker.
func (c *Chain) RequireActiveUser() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httputil.WriteTaxonomyError(w, &errs.AuthenticationError{})
				return
			}

			u, err := c.users.FindByID(r.Context(), claims.UserID)
			if err != nil {
				var notFound *errs.NotFoundError
				if errors.As(err, &notFound) {
					observability.RecordDenied("require_active_user")
					httputil.WriteTaxonomyError(w, &errs.AuthorizationError{Message: "account is inactive"})
					return
				}
				c.log.WithError(err).WithField("user_id", claims.UserID).Error("identity reload failed")
				httputil.WriteInternalError(w)
				return
			}
			if !u.IsActive {
				observability.RecordDenied("require_active_user")
				httputil.WriteTaxonomyError(w, &errs.AuthorizationError{Message: "account is inactive"})
				return
			}

			if err := c.users.TouchLastLogin(r.Context(), u.ID); err != nil {
				c.log.WithError(err).WithField("user_id", u.ID).Warn("failed to stamp last login")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RefreshUserData replaces the claim snapshot with the live identity record
// so role and permission edits take effect without re-login. The registered
// claims (token ID, expiry) are preserved.
func (c *Chain) RefreshUserData() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httputil.WriteTaxonomyError(w, &errs.AuthenticationError{})
				return
			}

			u, err := c.users.FindByID(r.Context(), claims.UserID)
			if err != nil {
				var notFound *errs.NotFoundError
				if errors.As(err, &notFound) {
					observability.RecordDenied("refresh_user_data")
					httputil.WriteTaxonomyError(w, &errs.AuthorizationError{Message: "account is inactive"})
					return
				}
				c.log.WithError(err).WithField("user_id", claims.UserID).Error("identity reload failed")
				httputil.WriteInternalError(w)
				return
			}

			fresh := *claims
			fresh.Username = u.Username
			fresh.Email = u.Email
			fresh.FullName = u.FullName
			fresh.Role = u.Role
			fresh.Unit = u.Unit
			fresh.Permissions = u.EffectivePermissions()

			ctx := contextkeys.WithClaims(r.Context(), &fresh)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits only the listed roles. The rejection names the allowed
// set and carries the policy table's redirect for the caller's actual role.
func (c *Chain) RequireRole(allowed ...policy.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httputil.WriteTaxonomyError(w, &errs.AuthenticationError{})
				return
			}

			for _, role := range allowed {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			names := make([]string, len(allowed))
			for i, role := range allowed {
				names[i] = string(role)
			}
			sort.Strings(names)

			observability.RecordDenied("require_role")
			httputil.WriteTaxonomyError(w, &errs.AuthorizationError{
				Message:  fmt.Sprintf("requires one of roles: %s", strings.Join(names, ", ")),
				Redirect: policy.RedirectOf(claims.Role),
			})
		})
	}
}

// RequireMinimumRole admits roles at or above the given hierarchy level.
func (c *Chain) RequireMinimumRole(min policy.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httputil.WriteTaxonomyError(w, &errs.AuthenticationError{})
				return
			}

			if policy.LevelOf(claims.Role) < policy.LevelOf(min) {
				observability.RecordDenied("require_minimum_role")
				httputil.WriteTaxonomyError(w, &errs.AuthorizationError{
					Message:  fmt.Sprintf("requires at least %s role", min),
					Redirect: policy.RedirectOf(claims.Role),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission admits callers holding the permission either through
// their role's policy entry or as an explicit record-level grant.
func (c *Chain) RequirePermission(tag policy.Permission) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httputil.WriteTaxonomyError(w, &errs.AuthenticationError{})
				return
			}

			if policy.HasPermission(claims.Role, tag) || hasGrant(claims.Permissions, tag) {
				next.ServeHTTP(w, r)
				return
			}

			observability.RecordDenied("require_permission")
			httputil.WriteTaxonomyError(w, &errs.AuthorizationError{
				Message:  fmt.Sprintf("requires %s permission", tag),
				Redirect: policy.RedirectOf(claims.Role),
			})
		})
	}
}

func hasGrant(grants []policy.Permission, tag policy.Permission) bool {
	for _, p := range grants {
		if p == tag {
			return true
		}
	}
	return false
}
