package httpapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"hvgateway/internal/auth"
	"hvgateway/internal/vncproxy"
)

type consoleHandlers struct{ d *Deps }

// ticket returns a one-shot VNC ticket/port pair without opening the
// WebSocket proxy itself; a client that wants to open its own RFB socket
// (rather than go through the gateway's proxy) can use this directly.
// Re-acquired fresh every call: tickets are single-use.
func (h *consoleHandlers) ticket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	nodeID := ps.ByName("node_id")
	vmID := ps.ByName("vm_id")

	_, client, err := resolveClient(h.d, r, nodeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	info, err := client.GetVNCInfo(r.Context(), vmID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ticket": info.Ticket, "port": info.Port})
}

// websocket is the authenticated bidirectional VNC proxy entry point.
// It takes the raw http.HandlerFunc shape because the WebSocket upgrade
// handshake cannot go through standard HTTP middleware, so auth.Verify is
// called inline instead.
func (h *consoleHandlers) websocket(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.Verify(r, h.d.Cfg.JWTSecret, h.d.Users); err != nil {
		writeError(w, r, err)
		return
	}

	nodeID := paramFromContext(r, "node_id")
	vmID := paramFromContext(r, "vm_id")

	node, client, err := resolveClient(h.d, r, nodeID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// vncproxy.Proxy already logs failure context; the client simply sees
	// the WebSocket close.
	_ = vncproxy.Proxy(w, r, node, client, vmID)
}
