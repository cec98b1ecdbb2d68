package nodeclient

import (
	"crypto/tls"
	"math/rand"
	"net/http"
	"time"

	"hvgateway/internal/model"
)

// insecureTLSDefault is the process-wide fallback applied when a Node does
// not pin its own insecure_tls setting. It defaults to accepting
// self-signed certificates for internal-fleet operation and is overridden
// at startup from ALLOW_INSECURE_TLS.
var insecureTLSDefault = true

// SetInsecureTLSDefault overrides the process-wide fallback. Call once
// during startup, before any client is constructed.
func SetInsecureTLSDefault(allow bool) { insecureTLSDefault = allow }

// InsecureTLS resolves a node's effective TLS-verification toggle.
func InsecureTLS(node *model.Node) bool {
	if node.InsecureTLS != nil {
		return *node.InsecureTLS
	}
	return insecureTLSDefault
}

// newHTTPClient builds the pooled, TLS-configurable transport shared by the
// Proxmox and Incus drivers. insecureSkipVerify is a per-Node toggle, not
// a process-wide global.
func newHTTPClient(insecureSkipVerify bool, timeout time.Duration) *http.Client {
	tr := &http.Transport{
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: insecureSkipVerify},
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       60 * time.Second,
		MaxConnsPerHost:       32,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	return &http.Client{Transport: tr, Timeout: timeout}
}

// shouldRetryStatus reports whether a status code represents a transient
// upstream failure worth retrying.
func shouldRetryStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// backoff sleeps with exponential backoff and jitter between retry attempts.
func backoff(attempt int) {
	base := 200 * time.Millisecond
	maxDelay := 2 * time.Second
	d := time.Duration(1<<uint(attempt-1)) * base
	if d > maxDelay {
		d = maxDelay
	}
	jitter := 0.2 - rand.Float64()*0.4
	time.Sleep(time.Duration(float64(d) * (1 + jitter)))
}
