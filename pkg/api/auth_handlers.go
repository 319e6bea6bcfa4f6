package api

import (
	"net/http"

	"github.com/kredensia/kredensia/pkg/contextkeys"
	"github.com/kredensia/kredensia/pkg/errs"
	"github.com/kredensia/kredensia/pkg/httputil"
	"github.com/kredensia/kredensia/pkg/identity"
	"github.com/kredensia/kredensia/pkg/middleware"
	"github.com/kredensia/kredensia/pkg/observability"
	"github.com/kredensia/kredensia/pkg/policy"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string         `json:"token"`
	User     *identity.User `json:"user"`
	Redirect string         `json:"redirect"`
	Menus    []policy.Menu  `json:"menus"`
}

// register creates a new account. Self-registration is limited to the
// perawat role; privileged accounts are created by an administrator through
// the user admin endpoints.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req identity.NewUser
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Role != "" && req.Role != policy.RolePerawat {
		ve := errs.NewValidationError()
		ve.Add("role", "self-registration is limited to the perawat role")
		httputil.WriteTaxonomyError(w, ve)
		return
	}
	// Permission grants and explicit license codes are administrative
	// actions; self-registrants always get the next code in sequence.
	req.Permissions = nil
	req.NPK = ""

	u, err := s.users.Create(r.Context(), req)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteCreated(w, u)
}

// login authenticates, issues a token and reports the caller's post-login
// redirect and menu set from the policy table.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	u, err := s.users.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		observability.RecordAuthAttempt("failure")
		httputil.WriteTaxonomyError(w, err)
		return
	}

	raw, _, err := s.issuer.Issue(u)
	if err != nil {
		s.log.WithError(err).Error("token issue failed")
		httputil.WriteInternalError(w)
		return
	}

	observability.RecordAuthAttempt("success")
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    raw,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteSuccess(w, loginResponse{
		Token:    raw,
		User:     u,
		Redirect: policy.RedirectOf(u.Role),
		Menus:    policy.MenusOf(u.Role),
	})
}

// logout revokes the presented token and clears the session cookie.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	raw := contextkeys.GetRawToken(r.Context())
	if err := s.issuer.Revoke(r.Context(), raw); err != nil {
		s.log.WithError(err).Error("token revoke failed")
		httputil.WriteInternalError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	httputil.WriteSuccess(w, map[string]string{"status": "logged out"})
}

// me returns the live identity behind the session, with the policy table's
// view of its role.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteTaxonomyError(w, &errs.AuthenticationError{})
		return
	}

	u, err := s.users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user":        u,
		"permissions": u.EffectivePermissions(),
		"menus":       policy.MenusOf(u.Role),
		"redirect":    policy.RedirectOf(u.Role),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// changePassword rotates the password and revokes the presented token so a
// stolen session dies with the old credential.
func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteTaxonomyError(w, &errs.AuthenticationError{})
		return
	}

	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.users.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		httputil.WriteTaxonomyError(w, err)
		return
	}

	if err := s.issuer.Revoke(r.Context(), contextkeys.GetRawToken(r.Context())); err != nil {
		s.log.WithError(err).Warn("failed to revoke session after password change")
	}
	httputil.WriteSuccess(w, map[string]string{"status": "password changed"})
}
