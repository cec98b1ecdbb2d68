package httpapi

import (
	"encoding/json"
	"net/http"

	"hvgateway/internal/apierr"
	"hvgateway/internal/logger"
)

// writeError maps the gateway's typed error taxonomy onto an
// HTTP status and a short text body holding the error's Message. Errors
// that are not *apierr.Error are logged and answered with an opaque
// "internal server error". Upstream/Timeout errors are logged in full and
// answered with 500 and their Message; the wrapped Cause is not sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		logger.Get().Error().Err(err).Str("path", r.URL.Path).Msg("unclassified error")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch ae.Kind {
	case apierr.Unauthenticated:
		status = http.StatusUnauthorized
	case apierr.Forbidden:
		status = http.StatusForbidden
	case apierr.NotFound:
		status = http.StatusNotFound
	case apierr.BadRequest:
		status = http.StatusBadRequest
	case apierr.Conflict:
		status = http.StatusConflict
	case apierr.Upstream, apierr.Timeout:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logger.Get().Error().Err(ae).Str("path", r.URL.Path).Msg("upstream or timeout error")
	}

	http.Error(w, ae.Message, status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
