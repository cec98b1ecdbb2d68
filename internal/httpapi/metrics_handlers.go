package httpapi

import (
	"net/http"

	"hvgateway/internal/auth"
	"hvgateway/internal/metricspump"
)

type metricsHandlers struct{ d *Deps }

// websocket upgrades to the periodic per-node sample stream. Raw
// http.HandlerFunc shape for the same reason as the console proxy: the
// upgrade request needs auth done inline.
func (h *metricsHandlers) websocket(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.Verify(r, h.d.Cfg.JWTSecret, h.d.Users); err != nil {
		writeError(w, r, err)
		return
	}

	nodeIDFilter := r.URL.Query().Get("node_id")
	metricspump.Serve(w, r, h.d.Nodes, h.d.Cache.Get, nodeIDFilter)
}
