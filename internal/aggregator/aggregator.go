// Package aggregator fans a ListVMs call out across every registered node
// concurrently and merges the results into one normalized list, stamping
// each VM with provenance (node_id, internal_id) so subsequent per-VM
// operations route back to the right backend.
package aggregator

import (
	"context"
	"fmt"
	"sync"

	"hvgateway/internal/apierr"
	"hvgateway/internal/logger"
	"hvgateway/internal/metrics"
	"hvgateway/internal/model"
	"hvgateway/internal/nodeclient"
	"hvgateway/internal/store"
)

// maxConcurrentNodes bounds simultaneous upstream calls.
const maxConcurrentNodes = 10

// ClientResolver returns the driver for a node, backed by a nodecache.Cache
// in production and an in-line factory in tests.
type ClientResolver func(node *model.Node) (nodeclient.Client, error)

// Aggregator fans ListVMs out across all nodes in a NodeStore.
type Aggregator struct {
	nodes   store.NodeStore
	resolve ClientResolver
}

// New builds an Aggregator backed by nodes and resolve.
func New(nodes store.NodeStore, resolve ClientResolver) *Aggregator {
	return &Aggregator{nodes: nodes, resolve: resolve}
}

// nodeResult captures one node's outcome. Each goroutine writes only its
// own slot of the results slice, and status transitions are applied after
// all goroutines finish.
type nodeResult struct {
	node *model.Node
	vms  []model.VM
	err  error
}

// ListAllVMs queries every registered node concurrently, normalizes each
// VM record with its owning node_id and internal_id, and records each
// node's online/error transition in the store. A per-node failure is
// logged and excluded from the result; it is never fatal to the overall
// aggregation.
func (a *Aggregator) ListAllVMs(ctx context.Context) ([]model.VM, error) {
	log := logger.Get().With().Str("component", "aggregator").Logger()

	nodes, err := a.nodes.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregator: list nodes: %w", err)
	}

	results := make([]nodeResult, len(nodes))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, maxConcurrentNodes)

	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n *model.Node) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			vms, err := a.listNodeVMs(ctx, n)
			results[i] = nodeResult{node: n, vms: vms, err: err}
		}(i, n)
	}
	wg.Wait()

	var merged []model.VM
	for _, r := range results {
		status := model.StatusOnline
		if r.err != nil {
			status = model.StatusError
			metrics.ObserveNodeError(r.node.ID)
			log.Warn().Err(r.err).Str("node_id", r.node.ID).Str("node_name", r.node.Name).
				Msg("node excluded from aggregation")
		}
		if updateErr := a.nodes.UpdateNodeStatus(ctx, r.node.ID, status); updateErr != nil {
			log.Warn().Err(updateErr).Str("node_id", r.node.ID).Msg("failed to persist node status")
		}
		merged = append(merged, r.vms...)
	}

	return merged, nil
}

func (a *Aggregator) listNodeVMs(ctx context.Context, n *model.Node) ([]model.VM, error) {
	client, err := a.resolve(n)
	if err != nil {
		return nil, err
	}

	raw, err := client.ListVMs(ctx)
	if err != nil {
		return nil, err
	}

	vms := make([]model.VM, 0, len(raw))
	for _, item := range raw {
		vm, err := normalize(n, item)
		if err != nil {
			logger.Get().Debug().Err(err).Str("node_id", n.ID).Msg("skipping unnormalizable VM record")
			continue
		}
		vms = append(vms, vm)
	}
	return vms, nil
}

// normalize stamps a raw driver record with node_id and internal_id so the
// rest of the gateway never branches on node.Kind again.
func normalize(n *model.Node, raw map[string]interface{}) (model.VM, error) {
	vm := model.VM{}
	for k, v := range raw {
		vm[k] = v
	}
	vm["node_id"] = n.ID
	vm["node_name"] = n.Name
	fillNumeric(vm, "cpus", "maxcpu", "cpu")
	fillNumeric(vm, "memory", "maxmem")

	switch n.Kind {
	case model.KindProxmox:
		id, err := proxmoxInternalID(raw)
		if err != nil {
			return nil, err
		}
		vm["internal_id"] = id
	case model.KindIncus:
		name, _ := raw["name"].(string)
		if name == "" {
			return nil, apierr.Upstreamf(nil, "incus instance record missing name")
		}
		vm["internal_id"] = name
	default:
		return nil, apierr.Upstreamf(nil, "unknown node kind %q", n.Kind)
	}
	return vm, nil
}

func proxmoxInternalID(raw map[string]interface{}) (string, error) {
	node, _ := raw["node"].(string)
	vmType, _ := raw["type"].(string)
	if node == "" || vmType == "" {
		return "", apierr.Upstreamf(nil, "proxmox cluster resource missing node/type")
	}
	vmid, err := vmidString(raw["vmid"])
	if err != nil {
		return "", err
	}
	return nodeclient.BuildProxmoxInternalID(node, vmType, vmid), nil
}

// fillNumeric sets vm[dest] from the first of sources that holds a value,
// but only when dest is not already present.
func fillNumeric(vm model.VM, dest string, sources ...string) {
	if _, ok := vm[dest]; ok {
		return
	}
	for _, src := range sources {
		if v, ok := vm[src]; ok {
			vm[dest] = v
			return
		}
	}
}

func vmidString(v interface{}) (string, error) {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%d", int64(n)), nil
	case string:
		if n == "" {
			return "", apierr.Upstreamf(nil, "empty vmid")
		}
		return n, nil
	default:
		return "", apierr.Upstreamf(nil, "unsupported vmid type %T", v)
	}
}
