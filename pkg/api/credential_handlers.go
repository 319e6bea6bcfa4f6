package api

import (
	"net/http"
	"time"

	"github.com/kredensia/kredensia/pkg/credentials"
	"github.com/kredensia/kredensia/pkg/errs"
	"github.com/kredensia/kredensia/pkg/httputil"
	"github.com/kredensia/kredensia/pkg/middleware"
)

func (s *Server) createCredential(w http.ResponseWriter, r *http.Request) {
	var req credentials.NewCredential
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	// A nurse registers documents against their own record unless they can
	// manage other users' credentials.
	if req.UserID == "" {
		if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
			req.UserID = claims.UserID
		}
	}

	c, err := s.credentials.Register(r.Context(), req)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteCreated(w, c)
}

func (s *Server) listCredentials(w http.ResponseWriter, r *http.Request) {
	filter := credentials.ListFilter{
		UserID: httputil.ParseQueryString(r, "user_id", ""),
		Kind:   credentials.Kind(httputil.ParseQueryString(r, "kind", "")),
		Status: credentials.Status(httputil.ParseQueryString(r, "status", "")),
		Page:   httputil.ParseQueryInt(r, "page", 1),
		Limit:  httputil.ParseQueryInt(r, "limit", 20),
	}

	page, err := s.credentials.List(r.Context(), filter)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

func (s *Server) expiringCredentials(w http.ResponseWriter, r *http.Request) {
	days := httputil.ParseQueryInt(r, "days", 0)

	expiring, err := s.credentials.ExpiringSoon(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"records": expiring,
		"count":   len(expiring),
	})
}

func (s *Server) getCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	c, err := s.credentials.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

func (s *Server) updateCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var patch map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	c, err := s.credentials.Update(r.Context(), id, patch)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

type credentialStatusRequest struct {
	Status credentials.Status `json:"status"`
	Notes  string             `json:"notes"`
}

func (s *Server) setCredentialStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteTaxonomyError(w, &errs.AuthenticationError{})
		return
	}

	var req credentialStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	c, err := s.credentials.SetStatus(r.Context(), id, req.Status, claims.UserID, req.Notes)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

func (s *Server) deleteCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.credentials.Delete(r.Context(), id); err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
