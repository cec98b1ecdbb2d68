package auth

import (
	"net/http"
	"strings"

	"hvgateway/internal/apierr"
	"hvgateway/internal/model"
	"hvgateway/internal/store"
)

// Extract pulls a bearer token from a request using the fixed precedence
// query "token" → Authorization header → cookie "access_token". Both the
// HTTP middleware and the WebSocket upgrade handlers call this same
// function so the precedence cannot drift between the two call sites.
func Extract(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie("access_token"); err == nil {
		return c.Value
	}
	return ""
}

// Verify extracts and validates a request's token, then resolves its
// subject (the username) to a User. Returns Unauthenticated if no/invalid
// token or an unknown user.
func Verify(r *http.Request, secret string, users store.UserStore) (*model.User, error) {
	tok := Extract(r)
	if tok == "" {
		return nil, apierr.Unauthenticatedf("no access token presented")
	}
	claims, err := VerifyToken(secret, tok)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unauthenticated, "invalid access token", err)
	}
	user, err := users.GetUserByUsername(r.Context(), claims.Subject)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unauthenticated, "token subject does not resolve to a user", err)
	}
	return user, nil
}

// RequireRole enforces a minimum role, returning Forbidden if user does
// not meet it. Only RoleAdmin is currently gated this way.
func RequireRole(user *model.User, role model.Role) error {
	if role == model.RoleAdmin && user.Role != model.RoleAdmin {
		return apierr.Forbiddenf("admin role required")
	}
	return nil
}
