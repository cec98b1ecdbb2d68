package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvgateway/internal/aggregator"
	"hvgateway/internal/auth"
	"hvgateway/internal/config"
	"hvgateway/internal/model"
	"hvgateway/internal/nodecache"
	"hvgateway/internal/nodeclient"
	"hvgateway/internal/store"
)

func newTestDeps(t *testing.T) (*Deps, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	cfg := &config.Config{
		JWTSecret:            "test-secret",
		CookieSameSite:       "lax",
		RateLimitLoginPerMin: 1000,
	}
	cache := nodecache.New(func(n *model.Node) (nodeclient.Client, error) {
		return nil, nil
	})
	return &Deps{
		Cfg:     cfg,
		Nodes:   s,
		Users:   s,
		Tickets: s,
		Cache:   cache,
		Agg:     aggregator.New(s, cache.Get),
	}, s
}

func TestLogin_Success(t *testing.T) {
	deps, s := newTestDeps(t)
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	require.NoError(t, s.CreateUser(context.Background(), &model.User{
		ID: "u1", Username: "admin", Role: model.RoleAdmin, PasswordHash: hash,
	}))

	router := NewRouter(deps)
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "admin", resp.User.Username)

	var gotAccessCookie bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "access_token" {
			gotAccessCookie = true
		}
	}
	assert.True(t, gotAccessCookie)
}

func TestLogin_WrongPassword(t *testing.T) {
	deps, s := newTestDeps(t)
	hash, _ := auth.HashPassword("hunter2")
	require.NoError(t, s.CreateUser(context.Background(), &model.User{
		ID: "u1", Username: "admin", Role: model.RoleAdmin, PasswordHash: hash,
	}))

	router := NewRouter(deps)
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVMsList_RequiresAuth(t *testing.T) {
	deps, _ := newTestDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/vms", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVMsList_AcceptsVersionedAndUnversionedPaths(t *testing.T) {
	deps, s := newTestDeps(t)
	require.NoError(t, s.CreateUser(context.Background(), &model.User{ID: "u1", Username: "alice", Role: model.RoleUser}))
	tok, err := auth.IssueToken(deps.Cfg.JWTSecret, "alice", auth.AccessTokenTTL)
	require.NoError(t, err)

	router := NewRouter(deps)
	for _, path := range []string{"/vms", "/api/v1/vms"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestHealth_ReturnsOK(t *testing.T) {
	deps, _ := newTestDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
