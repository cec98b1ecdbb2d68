// Package model holds the data shapes shared across the gateway's core
// subsystems: registered hypervisor nodes, the normalized VM record shape,
// VNC session info, JWT claims, and application users.
package model

import "time"

// NodeKind identifies which hypervisor dialect a Node speaks.
type NodeKind string

const (
	KindProxmox NodeKind = "proxmox"
	KindIncus   NodeKind = "incus"
)

// NodeStatus is the last observed liveness of a Node. It is advisory only:
// callers must re-resolve via a live call before trusting it.
type NodeStatus string

const (
	StatusOnline  NodeStatus = "online"
	StatusOffline NodeStatus = "offline"
	StatusError   NodeStatus = "error"
)

// Node is a registered hypervisor endpoint, not a cluster member name.
// (api_url, kind) uniquely identifies an upstream.
type Node struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Kind      NodeKind   `json:"kind"`
	APIURL    string     `json:"api_url"`
	APIKey    string     `json:"api_key"`
	APISecret string     `json:"-"` // decrypted in-process value; never serialized
	Status    NodeStatus `json:"status"`
	LastCheck time.Time  `json:"last_check"`
	CreatedAt time.Time  `json:"created_at"`

	// InsecureTLS controls acceptance of invalid/self-signed upstream
	// certificates for this node specifically; falls back to the
	// process-wide ALLOW_INSECURE_TLS default when nil.
	InsecureTLS *bool `json:"insecure_tls,omitempty"`

	// ClientCertPEM/ClientKeyPEM are an Incus client-certificate hook; unused
	// by Proxmox nodes.
	ClientCertPEM string `json:"-"`
	ClientKeyPEM  string `json:"-"`
}

// VM is the loosely-typed, per-response record returned by the aggregator
// and per-VM operations, augmented with normalized fields after dispatch.
type VM map[string]interface{}

// NodeID returns the injected provenance field, or "" if absent.
func (v VM) NodeID() string { return stringField(v, "node_id") }

// InternalID returns the stable per-VM routing identifier.
func (v VM) InternalID() string { return stringField(v, "internal_id") }

func stringField(v VM, key string) string {
	if s, ok := v[key].(string); ok {
		return s
	}
	return ""
}

// NodeMetrics is a point-in-time utilization snapshot for one Node, as
// streamed over the metrics WebSocket. DiskPercent and UptimeSeconds are
// nil when the backend has no analog (flagged via Partial instead of
// silently reporting zero as real data).
type NodeMetrics struct {
	CPUPercent    float64
	RAMPercent    float64
	DiskPercent   *float64
	UptimeSeconds *int64
	Partial       bool
}

// VncInfo is a single-use, just-in-time console credential.
type VncInfo struct {
	URL    string `json:"url"`
	Ticket string `json:"ticket"`
	Port   uint16 `json:"port"`
}

// Claims are the JWT payload issued at login; there is no server-side
// session state, logout is cookie clear only.
type Claims struct {
	Subject   string    `json:"sub"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Role distinguishes administrative users from regular ones.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is an application account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
