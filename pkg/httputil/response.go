// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kredensia/kredensia/pkg/errs"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteInternalError writes an internal server error response (500). The
// cause is never exposed to the caller.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal error")
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Field    string            `json:"field,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

// WriteTaxonomyError maps an error from the identity/token layers onto the
// matching HTTP status and structured body. Unknown errors become a generic
// 500 so internal detail never leaks.
func WriteTaxonomyError(w http.ResponseWriter, err error) {
	var (
		validation *errs.ValidationError
		duplicate  *errs.DuplicateError
		notFound   *errs.NotFoundError
		authn      *errs.AuthenticationError
		authz      *errs.AuthorizationError
	)

	switch {
	case errors.As(err, &validation):
		writeBody(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Fields: validation.Fields,
		})
	case errors.As(err, &duplicate):
		writeBody(w, http.StatusConflict, ErrorResponse{
			Error: duplicate.Error(),
			Field: duplicate.Field,
		})
	case errors.As(err, &notFound):
		writeBody(w, http.StatusNotFound, ErrorResponse{Error: notFound.Error()})
	case errors.As(err, &authn):
		writeBody(w, http.StatusUnauthorized, ErrorResponse{Error: authn.Error()})
	case errors.As(err, &authz):
		writeBody(w, http.StatusForbidden, ErrorResponse{
			Error:    authz.Error(),
			Redirect: authz.Redirect,
		})
	default:
		WriteInternalError(w)
	}
}

func writeBody(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
