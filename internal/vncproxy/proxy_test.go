package vncproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"hvgateway/internal/model"
	"hvgateway/internal/nodeclient"
)

// stubClient is a minimal nodeclient.Client that only answers GetVNCInfo,
// pointing at an httptest echo WebSocket server standing in for the
// upstream hypervisor console endpoint.
type stubClient struct {
	nodeclient.Client
	info *model.VncInfo
	err  error
}

func (s stubClient) GetVNCInfo(ctx context.Context, vmID string) (*model.VncInfo, error) {
	return s.info, s.err
}

// echoUpstream runs a WebSocket server that echoes every frame it receives,
// standing in for the hypervisor's console websocket endpoint.
func echoUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
	return srv
}

func wsURL(t *testing.T, httpURL string) string {
	t.Helper()
	u, err := url.Parse(httpURL)
	require.NoError(t, err)
	u.Scheme = "ws"
	return u.String()
}

func TestProxy_PumpsFramesBidirectionally(t *testing.T) {
	upstream := echoUpstream(t)
	defer upstream.Close()

	client := stubClient{info: &model.VncInfo{URL: wsURL(t, upstream.URL), Ticket: "PVEVNC:abc", Port: 5901}}
	node := &model.Node{ID: "node-1", Kind: model.KindProxmox}

	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := Proxy(w, r, node, client, "pve1/qemu/100")
		require.NoError(t, err)
	}))
	defer front.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL(t, front.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello console")))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "hello console", string(data))
}

func TestProxy_TicketAcquisitionFailureReturnsError(t *testing.T) {
	client := stubClient{err: errVNCUnavailable{}}
	node := &model.Node{ID: "node-1", Kind: model.KindProxmox}

	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := Proxy(w, r, node, client, "pve1/qemu/100")
		require.Error(t, err)
	}))
	defer front.Close()

	resp, err := http.Get(front.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestProxy_UpstreamUnreachableClosesClientConnection(t *testing.T) {
	client := stubClient{info: &model.VncInfo{URL: "ws://127.0.0.1:1/does-not-exist", Ticket: "t", Port: 1}}
	node := &model.Node{ID: "node-1", Kind: model.KindProxmox}

	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = Proxy(w, r, node, client, "pve1/qemu/100")
	}))
	defer front.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL(t, front.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

type errVNCUnavailable struct{}

func (errVNCUnavailable) Error() string { return "vnc info unavailable" }
