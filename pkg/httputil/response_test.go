package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kredensia/kredensia/pkg/errs"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusTeapot, map[string]string{"a": "b"}))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "b", body["a"])
}

func TestWriteTaxonomyError(t *testing.T) {
	ve := errs.NewValidationError()
	ve.Add("email", "must be a valid address")

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", ve, http.StatusBadRequest},
		{"duplicate", &errs.DuplicateError{Field: "username"}, http.StatusConflict},
		{"not found", &errs.NotFoundError{Resource: "user"}, http.StatusNotFound},
		{"authentication", &errs.AuthenticationError{Message: "invalid credentials"}, http.StatusUnauthorized},
		{"authorization", &errs.AuthorizationError{Message: "nope", Redirect: "/dashboard"}, http.StatusForbidden},
		{"internal", &errs.InternalError{Cause: errors.New("boom")}, http.StatusInternalServerError},
		{"unknown", errors.New("mystery"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteTaxonomyError(rec, tc.err)
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestWriteTaxonomyErrorBodies(t *testing.T) {
	ve := errs.NewValidationError()
	ve.Add("email", "must be a valid address")
	ve.Add("password", "must be at least 8 characters")

	rec := httptest.NewRecorder()
	WriteTaxonomyError(rec, ve)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Fields, 2)

	rec = httptest.NewRecorder()
	WriteTaxonomyError(rec, &errs.AuthorizationError{Message: "nope", Redirect: "/unit/dashboard"})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/unit/dashboard", body.Redirect)
}

func TestWriteTaxonomyErrorUnwrapsCause(t *testing.T) {
	// Wrapped taxonomy errors still map to their status.
	wrapped := fmt.Errorf("lookup: %w", &errs.NotFoundError{Resource: "user"})
	rec := httptest.NewRecorder()
	WriteTaxonomyError(rec, wrapped)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInternalErrorNeverLeaksCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteTaxonomyError(rec, &errs.InternalError{Cause: errors.New("password hash table corruption")})
	assert.NotContains(t, rec.Body.String(), "corruption")
}
