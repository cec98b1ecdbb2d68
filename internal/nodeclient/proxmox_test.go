package nodeclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvgateway/internal/apierr"
	"hvgateway/internal/model"
)

func newTestProxmoxNode(t *testing.T, srv *httptest.Server) *model.Node {
	t.Helper()
	insecure := true
	return &model.Node{
		ID:          "node-1",
		Kind:        model.KindProxmox,
		APIURL:      srv.URL,
		APIKey:      "testuser@pve!token",
		APISecret:   "secret-value",
		InsecureTLS: &insecure,
	}
}

func TestProxmoxClient_ListVMs_FiltersByType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/json/cluster/resources", r.URL.Path)
		assert.Equal(t, "PVEAPIToken=testuser@pve!token=secret-value", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"type": "qemu", "vmid": 100, "node": "pve1"},
				{"type": "lxc", "vmid": 101, "node": "pve1"},
				{"type": "storage", "storage": "local"},
			},
		})
	}))
	defer srv.Close()

	client, err := newProxmoxClient(newTestProxmoxNode(t, srv))
	require.NoError(t, err)

	vms, err := client.ListVMs(context.Background())
	require.NoError(t, err)
	assert.Len(t, vms, 2)
}

func TestProxmoxClient_PowerAction_RejectsBareID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be contacted for a malformed vm_id")
	}))
	defer srv.Close()

	client, err := newProxmoxClient(newTestProxmoxNode(t, srv))
	require.NoError(t, err)

	err = client.PowerAction(context.Background(), "100", ActionStart)
	require.Error(t, err)
}

func TestProxmoxClient_PowerAction_PostsExpectedPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": "UPID:..."})
	}))
	defer srv.Close()

	client, err := newProxmoxClient(newTestProxmoxNode(t, srv))
	require.NoError(t, err)

	err = client.PowerAction(context.Background(), "pve1/qemu/100", ActionStart)
	require.NoError(t, err)
	assert.Equal(t, "/api2/json/nodes/pve1/qemu/100/status/start", gotPath)
}

func TestProxmoxClient_GetVNCInfo_ComposesWebSocketURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/json/nodes/pve1/qemu/100/vncproxy", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"ticket": "PVEVNC:abc123",
				"port":   "5901",
				"user":   "root@pam",
			},
		})
	}))
	defer srv.Close()

	client, err := newProxmoxClient(newTestProxmoxNode(t, srv))
	require.NoError(t, err)

	info, err := client.GetVNCInfo(context.Background(), "pve1/qemu/100")
	require.NoError(t, err)
	assert.Equal(t, "PVEVNC:abc123", info.Ticket)
	assert.EqualValues(t, 5901, info.Port)
	assert.Contains(t, info.URL, "vncwebsocket?port=5901")
	assert.Contains(t, info.URL, "vncticket=")
}

func TestProxmoxClient_GetVNCInfo_FailsOnMissingTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"port": "5901"},
		})
	}))
	defer srv.Close()

	client, err := newProxmoxClient(newTestProxmoxNode(t, srv))
	require.NoError(t, err)

	_, err = client.GetVNCInfo(context.Background(), "pve1/qemu/100")
	require.Error(t, err)
}

func TestProxmoxClient_NodeMetrics_ParsesPercentages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api2/json/nodes/pve1/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"cpu":    0.25,
				"uptime": 3600,
				"memory": map[string]interface{}{"used": float64(4), "total": float64(8)},
				"rootfs": map[string]interface{}{"used": float64(10), "total": float64(100)},
			},
		})
	}))
	defer srv.Close()

	node := newTestProxmoxNode(t, srv)
	node.Name = "pve1"
	client, err := newProxmoxClient(node)
	require.NoError(t, err)

	m, err := client.NodeMetrics(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 25, m.CPUPercent, 0.01)
	assert.InDelta(t, 50, m.RAMPercent, 0.01)
	require.NotNil(t, m.DiskPercent)
	assert.InDelta(t, 10, *m.DiskPercent, 0.01)
	require.NotNil(t, m.UptimeSeconds)
	assert.EqualValues(t, 3600, *m.UptimeSeconds)
	assert.False(t, m.Partial)
}

func TestProxmoxClient_ClassifiesUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"data":null}`))
	}))
	defer srv.Close()

	client, err := newProxmoxClient(newTestProxmoxNode(t, srv))
	require.NoError(t, err)

	_, err = client.GetDetails(context.Background(), "pve1/qemu/100")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.Forbidden, apiErr.Kind)
}
