// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here. This
// prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ClaimsKey contains *token.Claims
	// Set by: middleware.Chain.Authenticate; replaced by RefreshUserData
	// Required by: all protected endpoints and downstream chain stages
	ClaimsKey Key = "claims"

	// RawTokenKey contains the presented bearer token string
	// Set by: middleware.Chain.Authenticate
	// Used by: logout and password-change handlers to revoke the session
	RawTokenKey Key = "raw_token"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil request logging middleware
	// Used by: logger
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user ID string
	// Set by: middleware.Chain.Authenticate
	// Used by: logger, self-scoped operations
	UserIDKey Key = "user_id"
)

// WithClaims adds token claims to the context.
func WithClaims(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithRawToken adds the presented bearer token to the context.
func WithRawToken(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, RawTokenKey, raw)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds the authenticated user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRawToken retrieves the presented bearer token from the context.
func GetRawToken(ctx context.Context) string {
	if raw, ok := ctx.Value(RawTokenKey).(string); ok {
		return raw
	}
	return ""
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
