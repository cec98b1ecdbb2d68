package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/julienschmidt/httprouter"
)

type paramsKey struct{}

// withParams stashes httprouter's path parameters in the request context so
// WebSocket handlers, which take the raw http.HandlerFunc shape because
// auth happens inline before the upgrade, can still read path segments.
func withParams(r *http.Request, ps httprouter.Params) context.Context {
	return context.WithValue(r.Context(), paramsKey{}, ps)
}

func paramFromContext(r *http.Request, name string) string {
	ps, _ := r.Context().Value(paramsKey{}).(httprouter.Params)
	return ps.ByName(name)
}

// acceptEncodedVMIDs lets a qualified VM identifier travel as one
// percent-encoded path segment ("px%2Fqemu%2F100"). The HTTP server decodes
// escapes before routing, which would split the identifier across segments;
// rewriting the encoded slashes to the hyphen form the identifier parser
// also accepts keeps the route a single segment.
func acceptEncodedVMIDs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.URL.RawPath; raw != "" && strings.Contains(strings.ToUpper(raw), "%2F") {
			hyphenated := strings.ReplaceAll(strings.ReplaceAll(raw, "%2F", "-"), "%2f", "-")
			if p, err := url.PathUnescape(hyphenated); err == nil {
				r.URL.Path = p
				r.URL.RawPath = ""
			}
		}
		next.ServeHTTP(w, r)
	})
}
