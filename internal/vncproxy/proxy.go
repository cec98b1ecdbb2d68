// Package vncproxy implements the authenticated bidirectional WebSocket VNC
// proxy: ticket acquisition against the target hypervisor, an outbound
// TLS WebSocket dial, and a transparent bidirectional frame pump.
//
// Tickets come through nodeclient.Client.GetVNCInfo rather than a direct
// Proxmox call, so the proxy itself stays backend-agnostic. The pump never
// inspects payloads: RFB traffic passes through opaque and unreordered.
package vncproxy

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"hvgateway/internal/apierr"
	"hvgateway/internal/logger"
	"hvgateway/internal/model"
	"hvgateway/internal/nodeclient"
)

// ConnectTimeout is the hard bound on the outbound handshake.
const ConnectTimeout = 15 * time.Second

var clientUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Proxy upgrades the inbound HTTP request to a WebSocket, acquires a fresh
// VNC ticket via client, dials the upstream console endpoint, and pumps
// frames bidirectionally until either side closes.
func Proxy(w http.ResponseWriter, r *http.Request, node *model.Node, client nodeclient.Client, vmID string) error {
	log := logger.Get().With().Str("component", "vncproxy").Str("node_id", node.ID).Str("vm_id", vmID).Logger()

	info, err := client.GetVNCInfo(r.Context(), vmID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to acquire VNC ticket")
		http.Error(w, "failed to acquire console ticket", http.StatusBadGateway)
		return err
	}

	clientConn, err := clientUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("vncproxy: upgrade client connection: %w", err)
	}
	defer clientConn.Close()
	log.Info().Msg("client websocket connection established")

	dialer := websocket.Dialer{
		HandshakeTimeout: ConnectTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: nodeclient.InsecureTLS(node)},
	}

	upstreamHeaders := http.Header{}
	switch node.Kind {
	case model.KindProxmox:
		upstreamHeaders.Set("Cookie", fmt.Sprintf("PVEAuthCookie=%s", info.Ticket))
	case model.KindIncus:
		if node.APIKey != "" {
			upstreamHeaders.Set("Authorization", "Bearer "+node.APIKey)
		}
	}

	upstreamConn, resp, err := dialer.Dial(info.URL, upstreamHeaders)
	if err != nil {
		msg := handshakeErrorMessage(resp)
		log.Warn().Err(err).Str("detail", msg).Msg("failed to connect to upstream console websocket")
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg)
		_ = clientConn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		return apierr.Upstreamf(err, "%s", msg)
	}
	defer upstreamConn.Close()
	log.Info().Msg("upstream console websocket established, starting bidirectional proxy")

	clientConn.SetReadDeadline(time.Time{})
	upstreamConn.SetReadDeadline(time.Time{})

	errChan := make(chan error, 2)

	go pump(clientConn, upstreamConn, errChan)
	go pump(upstreamConn, clientConn, errChan)

	pumpErr := <-errChan

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = clientConn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	_ = upstreamConn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))

	if pumpErr != nil && !websocket.IsCloseError(pumpErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Warn().Err(pumpErr).Msg("console websocket closed with error")
	} else {
		log.Info().Msg("console websocket closed")
	}
	return nil
}

// pump relays frames from src to dst as-is, preserving payload opacity:
// binary RFB traffic is never interpreted or modified. The first error from
// either direction (including a clean close) is reported on errChan and the
// other goroutine's write will subsequently fail too, unblocking it.
func pump(src, dst *websocket.Conn, errChan chan<- error) {
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			errChan <- err
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			errChan <- err
			return
		}
	}
}

func handshakeErrorMessage(resp *http.Response) string {
	if resp == nil {
		return "upstream console endpoint unreachable"
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return "console ticket rejected by upstream"
	case http.StatusForbidden:
		return "API token lacks VM.Console permission"
	case http.StatusNotFound:
		return "console endpoint not found on upstream"
	default:
		return fmt.Sprintf("upstream console handshake failed with status %d", resp.StatusCode)
	}
}
