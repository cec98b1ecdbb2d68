// Package httpapi is the HTTP routing shell: a thin mapping from HTTP
// verbs/paths to the core subsystems (aggregator, nodeclient, vncproxy,
// metricspump, auth). Every route is registered under both /api/v1/* and
// the unversioned path, except the Prometheus endpoint /metrics/prom,
// which is unversioned only.
package httpapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"hvgateway/internal/aggregator"
	"hvgateway/internal/config"
	"hvgateway/internal/metrics"
	"hvgateway/internal/nodecache"
	"hvgateway/internal/store"
)

// Deps bundles every collaborator the HTTP layer dispatches into. It is
// constructed once at startup and handed to each handler group.
type Deps struct {
	Cfg     *config.Config
	Nodes   store.NodeStore
	Users   store.UserStore
	Tickets store.TicketStore
	Cache   *nodecache.Cache
	Agg     *aggregator.Aggregator
}

// NewRouter builds the full httprouter.Router with every route
// registered, CORS/rate-limit/metrics middleware applied, and the
// prometheus handler mounted at /metrics/prom (kept distinct from the
// domain /metrics WebSocket per internal/metrics' own doc comment).
func NewRouter(d *Deps) http.Handler {
	r := httprouter.New()

	authH := &authHandlers{d: d}
	nodeH := &nodeHandlers{d: d}
	vmH := &vmHandlers{d: d}
	consoleH := &consoleHandlers{d: d}
	metricsH := &metricsHandlers{d: d}
	supportH := &supportHandlers{d: d}

	registerBoth(r, http.MethodPost, "/auth/login", rateLimited(d, authH.login))
	registerBoth(r, http.MethodPost, "/auth/refresh", authH.refresh)
	registerBoth(r, http.MethodPost, "/auth/register", rateLimited(d, authH.register))
	registerBoth(r, http.MethodPost, "/auth/logout", authH.logout)
	registerBoth(r, http.MethodGet, "/auth/admin_exists", authH.adminExists)

	registerBoth(r, http.MethodGet, "/nodes", requireAuth(d, nodeH.list))
	registerBoth(r, http.MethodPost, "/nodes", requireAdmin(d, nodeH.create))
	registerBoth(r, http.MethodGet, "/nodes/:id", requireAuth(d, nodeH.get))
	registerBoth(r, http.MethodPatch, "/nodes/:id", requireAdmin(d, nodeH.update))
	registerBoth(r, http.MethodDelete, "/nodes/:id", requireAdmin(d, nodeH.delete))

	registerBoth(r, http.MethodGet, "/vms", requireAuth(d, vmH.list))
	registerBoth(r, http.MethodGet, "/vms/details", requireAuth(d, vmH.details))
	registerBoth(r, http.MethodPost, "/vms/power", requireAuth(d, vmH.power))
	registerBoth(r, http.MethodPatch, "/vms/config", requireAuth(d, vmH.config))
	registerBoth(r, http.MethodPost, "/vms/media", requireAuth(d, vmH.mountMedia))

	registerBoth(r, http.MethodPost, "/support/message", requireAuth(d, supportH.message))
	registerBoth(r, http.MethodGet, "/support/history", requireAuth(d, supportH.history))

	registerBoth(r, http.MethodGet, "/vms/console/:node_id/:vm_id/ticket", requireAuth(d, consoleH.ticket))
	registerRawBoth(r, http.MethodGet, "/vms/console/:node_id/:vm_id", consoleH.websocket)

	registerRawBoth(r, http.MethodGet, "/metrics", metricsH.websocket)
	r.Handler(http.MethodGet, "/metrics/prom", metrics.Handler())

	registerBoth(r, http.MethodGet, "/health", healthHandler)

	return metrics.HTTPMetricsMiddleware(withCORS(d, acceptEncodedVMIDs(r)))
}

func healthHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

// registerBoth mounts handle at both the unversioned path and its
// "/api/v1"-prefixed twin.
func registerBoth(r *httprouter.Router, method, path string, handle httprouter.Handle) {
	r.Handle(method, path, handle)
	r.Handle(method, "/api/v1"+path, handle)
}

// registerRawBoth is registerBoth for handlers that upgrade to WebSocket
// and so take the raw http.HandlerFunc signature instead of
// httprouter.Handle; auth happens inline in those handlers.
func registerRawBoth(r *httprouter.Router, method, path string, handle http.HandlerFunc) {
	wrapped := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := withParams(r, ps)
		handle(w, r.WithContext(ctx))
	}
	r.Handle(method, path, wrapped)
	r.Handle(method, "/api/v1"+path, wrapped)
}
