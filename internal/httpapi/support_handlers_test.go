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

	"hvgateway/internal/auth"
	"hvgateway/internal/model"
	"hvgateway/internal/store"
)

func TestSupportMessage_FilesTicketAndHistoryReturnsIt(t *testing.T) {
	deps, s := newTestDeps(t)
	require.NoError(t, s.CreateUser(context.Background(), &model.User{ID: "u1", Username: "alice", Role: model.RoleUser}))
	tok, err := auth.IssueToken(deps.Cfg.JWTSecret, "alice", auth.AccessTokenTTL)
	require.NoError(t, err)

	router := NewRouter(deps)
	body, _ := json.Marshal(supportMessageRequest{Subject: "console down", Message: "black screen on vm 100", Priority: "high"})
	req := httptest.NewRequest(http.MethodPost, "/support/message", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/support/history", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tickets []store.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tickets))
	require.Len(t, tickets, 1)
	assert.Equal(t, "console down", tickets[0].Subject)
	assert.Equal(t, "high", tickets[0].Priority)
	assert.Equal(t, "open", tickets[0].Status)
	assert.NotEmpty(t, tickets[0].ID)
}

func TestSupportMessage_RequiresAuth(t *testing.T) {
	deps, _ := newTestDeps(t)
	router := NewRouter(deps)

	body, _ := json.Marshal(supportMessageRequest{Subject: "s", Message: "m"})
	req := httptest.NewRequest(http.MethodPost, "/support/message", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSupportMessage_RejectsMissingFields(t *testing.T) {
	deps, s := newTestDeps(t)
	require.NoError(t, s.CreateUser(context.Background(), &model.User{ID: "u1", Username: "alice", Role: model.RoleUser}))
	tok, err := auth.IssueToken(deps.Cfg.JWTSecret, "alice", auth.AccessTokenTTL)
	require.NoError(t, err)

	router := NewRouter(deps)
	body, _ := json.Marshal(supportMessageRequest{Subject: "no message"})
	req := httptest.NewRequest(http.MethodPost, "/support/message", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
