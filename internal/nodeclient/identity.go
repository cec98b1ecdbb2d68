package nodeclient

import (
	"fmt"
	"strings"

	"hvgateway/internal/apierr"
)

// ProxmoxID is the parsed form of a Proxmox internal_id: "{node}/{type}/{vmid}".
type ProxmoxID struct {
	Node string
	Type string // "qemu" or "lxc"
	VMID string
}

// BuildProxmoxInternalID composes the stable, URL-safe identifier used for
// all subsequent per-VM operations.
func BuildProxmoxInternalID(node, vmType, vmid string) string {
	return fmt.Sprintf("%s/%s/%s", node, vmType, vmid)
}

// ParseProxmoxID parses a fully-qualified "{node}/{type}/{vmid}" identifier.
//
// Defaulting a bare vmid to (pve, qemu, vmid) would be a latent routing
// bug: a VM on a non-default node, or an LXC container, would silently
// route to the wrong resource. This parser rejects bare identifiers
// outright rather than guessing.
func ParseProxmoxID(vmID string) (ProxmoxID, error) {
	vmID = normalizeSeparators(vmID)
	parts := strings.Split(vmID, "/")
	if len(parts) != 3 {
		return ProxmoxID{}, apierr.BadRequestf("vm_id %q must be fully qualified as node/type/vmid", vmID)
	}
	node, vmType, vmid := parts[0], parts[1], parts[2]
	if node == "" || vmid == "" {
		return ProxmoxID{}, apierr.BadRequestf("vm_id %q is missing node or vmid", vmID)
	}
	switch vmType {
	case "qemu", "lxc":
	default:
		return ProxmoxID{}, apierr.BadRequestf("vm_id %q has unknown type %q", vmID, vmType)
	}
	return ProxmoxID{Node: node, Type: vmType, VMID: vmid}, nil
}

// normalizeSeparators accepts the hyphen-substitution legacy form
// ("px-lxc-100") in addition to the canonical slash form ("px/lxc/100").
// A hyphenated identifier is only reinterpreted when it has
// exactly three hyphen-separated parts and the middle one is a known type;
// otherwise it is left alone (node names may themselves contain hyphens).
func normalizeSeparators(id string) string {
	if strings.Contains(id, "/") {
		return id
	}
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		return id
	}
	switch parts[1] {
	case "qemu", "lxc":
		return strings.Join(parts, "/")
	default:
		return id
	}
}
