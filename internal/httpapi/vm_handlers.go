package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"hvgateway/internal/apierr"
	"hvgateway/internal/nodeclient"
)

type vmHandlers struct{ d *Deps }

// list is the cross-node aggregation endpoint: per-node
// failures are absorbed into a node status transition, never surfaced here.
func (h *vmHandlers) list(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	vms, err := h.d.Agg.ListAllVMs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vms)
}

func (h *vmHandlers) details(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	nodeID := r.URL.Query().Get("node_id")
	vmID := r.URL.Query().Get("vm_id")
	if nodeID == "" || vmID == "" {
		writeError(w, r, apierr.BadRequestf("node_id and vm_id are required"))
		return
	}

	_, client, err := resolveClient(h.d, r, nodeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	details, err := client.GetDetails(r.Context(), vmID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

type powerRequest struct {
	NodeID string `json:"node_id"`
	VMID   string `json:"vm_id"`
	Action string `json:"action"`
}

func (h *vmHandlers) power(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" || req.VMID == "" {
		writeError(w, r, apierr.BadRequestf("node_id, vm_id and action are required"))
		return
	}
	if !nodeclient.ValidPowerAction(req.Action) {
		writeError(w, r, apierr.BadRequestf("unsupported power action %q", req.Action))
		return
	}

	_, client, err := resolveClient(h.d, r, req.NodeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := client.PowerAction(r.Context(), req.VMID, nodeclient.PowerAction(req.Action)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type configRequest struct {
	NodeID string                 `json:"node_id"`
	VMID   string                 `json:"vm_id"`
	Config map[string]interface{} `json:"config"`
}

func (h *vmHandlers) config(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" || req.VMID == "" {
		writeError(w, r, apierr.BadRequestf("node_id and vm_id are required"))
		return
	}

	_, client, err := resolveClient(h.d, r, req.NodeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := client.UpdateConfig(r.Context(), req.VMID, req.Config); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type mediaRequest struct {
	NodeID  string `json:"node_id"`
	VMID    string `json:"vm_id"`
	ISOPath string `json:"iso_path"`
}

func (h *vmHandlers) mountMedia(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req mediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" || req.VMID == "" || req.ISOPath == "" {
		writeError(w, r, apierr.BadRequestf("node_id, vm_id and iso_path are required"))
		return
	}

	_, client, err := resolveClient(h.d, r, req.NodeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := client.MountMedia(r.Context(), req.VMID, req.ISOPath); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
