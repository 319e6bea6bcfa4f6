package api

import (
	"net/http"

	"github.com/kredensia/kredensia/pkg/httputil"
	"github.com/kredensia/kredensia/pkg/identity"
	"github.com/kredensia/kredensia/pkg/policy"
)

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req identity.NewUser
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	u, err := s.users.Create(r.Context(), req)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteCreated(w, u)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	filter := identity.ListFilter{
		Role:   policy.Role(httputil.ParseQueryString(r, "role", "")),
		Unit:   httputil.ParseQueryString(r, "unit", ""),
		Search: httputil.ParseQueryString(r, "search", ""),
		Page:   httputil.ParseQueryInt(r, "page", 1),
		Limit:  httputil.ParseQueryInt(r, "limit", identity.DefaultLimit),
	}

	page, err := s.users.List(r.Context(), filter)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	includeInactive := httputil.ParseQueryBool(r, "include_inactive", false)
	var (
		u   *identity.User
		err error
	)
	if includeInactive {
		u, err = s.users.FindByIDIncludeInactive(r.Context(), id)
	} else {
		u, err = s.users.FindByID(r.Context(), id)
	}
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var patch identity.Patch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	u, err := s.users.UpdateAllowedFields(r.Context(), id, patch)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

// deleteUser soft-deletes: the record stays for audit but can no longer
// authenticate or appear in active listings.
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.users.SoftDelete(r.Context(), id); err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) purgeUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.users.Purge(r.Context(), id); err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// repairNPK runs the batch license-code repair on demand; the same routine
// the nightly job runs.
func (s *Server) repairNPK(w http.ResponseWriter, r *http.Request) {
	repaired, err := s.users.GenerateMissingNPKs(r.Context())
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int{"repaired": repaired})
}
