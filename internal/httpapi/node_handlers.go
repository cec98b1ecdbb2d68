package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"hvgateway/internal/apierr"
	"hvgateway/internal/model"
	"hvgateway/internal/nodeclient"
	"hvgateway/internal/store"
)

type nodeHandlers struct{ d *Deps }

func (h *nodeHandlers) list(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	nodes, err := h.d.Nodes.ListNodes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// get returns a Node augmented with current_status from a live re-check;
// the stored status is advisory only.
func (h *nodeHandlers) get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	node, err := h.d.Nodes.GetNode(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	currentStatus := model.StatusError
	client, err := h.d.Cache.Get(node)
	if err == nil {
		if status, healthErr := client.CheckHealth(r.Context()); healthErr == nil {
			currentStatus = status
		}
	}
	_ = h.d.Nodes.UpdateNodeStatus(r.Context(), node.ID, currentStatus)

	resp := struct {
		*model.Node
		CurrentStatus model.NodeStatus `json:"current_status"`
	}{Node: node, CurrentStatus: currentStatus}
	writeJSON(w, http.StatusOK, resp)
}

type createNodeRequest struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	APIURL      string `json:"api_url"`
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	InsecureTLS *bool  `json:"insecure_tls"`
}

func (h *nodeHandlers) create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequestf("invalid request body"))
		return
	}
	if req.Name == "" || req.APIURL == "" {
		writeError(w, r, apierr.BadRequestf("name and api_url are required"))
		return
	}
	kind := model.NodeKind(req.Kind)
	if kind != model.KindProxmox && kind != model.KindIncus {
		writeError(w, r, apierr.BadRequestf("kind must be %q or %q", model.KindProxmox, model.KindIncus))
		return
	}

	n := &model.Node{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Kind:        kind,
		APIURL:      req.APIURL,
		APIKey:      req.APIKey,
		APISecret:   req.APISecret,
		Status:      model.StatusOffline,
		InsecureTLS: req.InsecureTLS,
		LastCheck:   time.Now().UTC(),
	}
	if err := h.d.Nodes.CreateNode(r.Context(), n); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *nodeHandlers) update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	var req struct {
		Name          *string `json:"name"`
		APIURL        *string `json:"api_url"`
		APIKey        *string `json:"api_key"`
		APISecret     *string `json:"api_secret"`
		InsecureTLS   *bool   `json:"insecure_tls"`
		ClientCertPEM *string `json:"client_cert_pem"`
		ClientKeyPEM  *string `json:"client_key_pem"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequestf("invalid request body"))
		return
	}

	updated, err := h.d.Nodes.UpdateNode(r.Context(), id, store.NodePatch{
		Name:           req.Name,
		APIURL:         req.APIURL,
		APIKey:         req.APIKey,
		APISecretPlain: req.APISecret,
		InsecureTLS:    req.InsecureTLS,
		ClientCertPEM:  req.ClientCertPEM,
		ClientKeyPEM:   req.ClientKeyPEM,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.d.Cache.Invalidate(id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *nodeHandlers) delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if err := h.d.Nodes.DeleteNode(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.d.Cache.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

// resolveClient re-resolves a Node and constructs its driver from the
// cache. Every per-VM operation does this fresh: the caller has no
// guarantee that the Node still exists or is reachable.
func resolveClient(d *Deps, r *http.Request, nodeID string) (*model.Node, nodeclient.Client, error) {
	node, err := d.Nodes.GetNode(r.Context(), nodeID)
	if err != nil {
		return nil, nil, err
	}
	client, err := d.Cache.Get(node)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.Upstream, "failed to construct node client", err)
	}
	return node, client, nil
}
