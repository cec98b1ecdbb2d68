package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"hvgateway/internal/apierr"
	"hvgateway/internal/auth"
	"hvgateway/internal/config"
	"hvgateway/internal/model"
)

type authHandlers struct{ d *Deps }

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         userView `json:"user"`
}

func toUserView(u *model.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, Role: string(u.Role)}
}

// login authenticates username/password, issues access+refresh JWTs, sets
// them as cookies, and returns them in the JSON body.
func (h *authHandlers) login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, r, apierr.BadRequestf("username and password are required"))
		return
	}

	user, err := h.d.Users.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, apierr.Unauthenticatedf("invalid username or password"))
		return
	}
	if !auth.ComparePassword(user.PasswordHash, req.Password) {
		writeError(w, r, apierr.Unauthenticatedf("invalid username or password"))
		return
	}

	h.issueTokens(w, r, user)
}

// refresh re-issues an access+refresh token pair from a still-valid refresh
// token, without re-prompting credentials.
func (h *authHandlers) refresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	tok := req.RefreshToken
	if tok == "" {
		if c, err := r.Cookie("refresh_token"); err == nil {
			tok = c.Value
		}
	}
	if tok == "" {
		writeError(w, r, apierr.Unauthenticatedf("no refresh token presented"))
		return
	}

	claims, err := auth.VerifyToken(h.d.Cfg.JWTSecret, tok)
	if err != nil {
		writeError(w, r, apierr.Wrap(apierr.Unauthenticated, "invalid refresh token", err))
		return
	}
	user, err := h.d.Users.GetUserByUsername(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, r, apierr.Wrap(apierr.Unauthenticated, "refresh token subject does not resolve to a user", err))
		return
	}

	h.issueTokens(w, r, user)
}

// register creates a new account; role always defaults to "user", only
// direct store manipulation grants admin.
func (h *authHandlers) register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, r, apierr.BadRequestf("username and password are required"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, apierr.Wrap(apierr.Upstream, "failed to hash password", err))
		return
	}

	u := &model.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
	}
	if err := h.d.Users.CreateUser(r.Context(), u); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(u))
}

// logout clears the auth cookies; there is no server-side session to
// invalidate.
func (h *authHandlers) logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	clearCookie(w, h.d.Cfg, "access_token")
	clearCookie(w, h.d.Cfg, "refresh_token")
	w.WriteHeader(http.StatusNoContent)
}

func (h *authHandlers) adminExists(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	exists, err := h.d.Users.AnyAdminExists(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (h *authHandlers) issueTokens(w http.ResponseWriter, r *http.Request, user *model.User) {
	access, err := auth.IssueToken(h.d.Cfg.JWTSecret, user.Username, auth.AccessTokenTTL)
	if err != nil {
		writeError(w, r, apierr.Wrap(apierr.Upstream, "failed to issue access token", err))
		return
	}
	refresh, err := auth.IssueToken(h.d.Cfg.JWTSecret, user.Username, auth.RefreshTokenTTL)
	if err != nil {
		writeError(w, r, apierr.Wrap(apierr.Upstream, "failed to issue refresh token", err))
		return
	}

	setCookie(w, h.d.Cfg, "access_token", access, auth.AccessTokenTTL)
	setCookie(w, h.d.Cfg, "refresh_token", refresh, auth.RefreshTokenTTL)

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         toUserView(user),
	})
}

// setCookie and clearCookie apply the gateway's cookie policy: HttpOnly,
// configurable SameSite/Secure/Domain, Path=/.
func setCookie(w http.ResponseWriter, cfg *config.Config, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: sameSiteFromString(cfg.CookieSameSite),
	})
}

func clearCookie(w http.ResponseWriter, cfg *config.Config, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: sameSiteFromString(cfg.CookieSameSite),
	})
}

func sameSiteFromString(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
