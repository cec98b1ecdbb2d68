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

type recordingClient struct {
	nodeclient.Client
	lastAction nodeclient.PowerAction
	lastVMID   string
}

func (c *recordingClient) PowerAction(ctx context.Context, vmID string, action nodeclient.PowerAction) error {
	c.lastAction = action
	c.lastVMID = vmID
	return nil
}

func TestVMsPower_RoutesToResolvedNodeClient(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateNode(context.Background(), &model.Node{ID: "n1", Kind: model.KindProxmox}))
	require.NoError(t, s.CreateUser(context.Background(), &model.User{ID: "u1", Username: "alice", Role: model.RoleUser}))

	rc := &recordingClient{}
	cache := nodecache.New(func(n *model.Node) (nodeclient.Client, error) { return rc, nil })
	cfg := &config.Config{JWTSecret: "test-secret", RateLimitLoginPerMin: 1000}

	deps := &Deps{
		Cfg: cfg, Nodes: s, Users: s, Tickets: s, Cache: cache,
		Agg: aggregator.New(s, cache.Get),
	}
	tok, err := auth.IssueToken(cfg.JWTSecret, "alice", auth.AccessTokenTTL)
	require.NoError(t, err)

	router := NewRouter(deps)
	body, _ := json.Marshal(powerRequest{NodeID: "n1", VMID: "px/qemu/100", Action: "start"})
	req := httptest.NewRequest(http.MethodPost, "/vms/power", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, nodeclient.ActionStart, rc.lastAction)
	assert.Equal(t, "px/qemu/100", rc.lastVMID)
}

func TestVMsPower_RejectsUnknownAction(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateUser(context.Background(), &model.User{ID: "u1", Username: "alice", Role: model.RoleUser}))
	cache := nodecache.New(func(n *model.Node) (nodeclient.Client, error) { return &recordingClient{}, nil })
	cfg := &config.Config{JWTSecret: "test-secret", RateLimitLoginPerMin: 1000}
	deps := &Deps{Cfg: cfg, Nodes: s, Users: s, Tickets: s, Cache: cache, Agg: aggregator.New(s, cache.Get)}

	tok, err := auth.IssueToken(cfg.JWTSecret, "alice", auth.AccessTokenTTL)
	require.NoError(t, err)

	router := NewRouter(deps)
	body, _ := json.Marshal(powerRequest{NodeID: "n1", VMID: "px/qemu/100", Action: "nuke"})
	req := httptest.NewRequest(http.MethodPost, "/vms/power", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
