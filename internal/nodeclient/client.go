// Package nodeclient is the polymorphic driver layer over heterogeneous
// hypervisor REST dialects (Proxmox's /api2/json with PVEAPIToken auth,
// Incus's /1.0 with client-cert TLS). Callers depend only on the Client
// interface; backend-specific field names never leak past a driver's own
// file.
package nodeclient

import (
	"context"
	"fmt"

	"hvgateway/internal/model"
)

// PowerAction is one of the lifecycle transitions a NodeClient must support.
type PowerAction string

const (
	ActionStart    PowerAction = "start"
	ActionStop     PowerAction = "stop"
	ActionShutdown PowerAction = "shutdown"
	ActionReset    PowerAction = "reset"
	ActionReboot   PowerAction = "reboot"
)

// ValidPowerAction reports whether the named action is one this layer
// dispatches.
func ValidPowerAction(a string) bool {
	switch PowerAction(a) {
	case ActionStart, ActionStop, ActionShutdown, ActionReset, ActionReboot:
		return true
	default:
		return false
	}
}

// Client is the capability set every backend driver implements.
type Client interface {
	// CheckHealth reports Online/Error for the node as a whole.
	CheckHealth(ctx context.Context) (model.NodeStatus, error)
	// ListVMs returns every VM/instance on this node as raw, unnormalized maps.
	ListVMs(ctx context.Context) ([]map[string]interface{}, error)
	// PowerAction issues a lifecycle transition against a single VM.
	PowerAction(ctx context.Context, vmID string, action PowerAction) error
	// UpdateConfig patches a VM's configuration.
	UpdateConfig(ctx context.Context, vmID string, patch map[string]interface{}) error
	// GetDetails is the read-only counterpart of UpdateConfig.
	GetDetails(ctx context.Context, vmID string) (map[string]interface{}, error)
	// MountMedia attaches an ISO to a VM's virtual CD-ROM.
	MountMedia(ctx context.Context, vmID string, isoPath string) error
	// GetVNCInfo acquires a fresh, single-use VNC ticket for a VM.
	GetVNCInfo(ctx context.Context, vmID string) (*model.VncInfo, error)
	// NodeMetrics reports the node's own resource utilization (not a VM's).
	NodeMetrics(ctx context.Context) (*model.NodeMetrics, error)
}

// New constructs the Client appropriate to node.Kind. Nodes carry no other
// client-selection data; callers never branch on kind themselves.
func New(node *model.Node) (Client, error) {
	switch node.Kind {
	case model.KindProxmox:
		return newProxmoxClient(node)
	case model.KindIncus:
		return newIncusClient(node)
	default:
		return nil, fmt.Errorf("nodeclient: unknown node kind %q", node.Kind)
	}
}
