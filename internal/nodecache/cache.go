// Package nodecache caches one nodeclient.Client per (node_id, api_url) so
// high-frequency callers (aggregation, metrics pump) reuse pooled HTTP
// connections instead of building a fresh client per call.
package nodecache

import (
	"sync"

	"hvgateway/internal/model"
	"hvgateway/internal/nodeclient"
)

type entry struct {
	client nodeclient.Client
	apiURL string
}

// Cache is a bounded-by-node-count map; it is invalidated explicitly on
// Node update/delete rather than on a TTL, since connection reuse is the
// only thing it buys.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	factory func(*model.Node) (nodeclient.Client, error)
}

// New builds an empty Cache. factory is injectable for tests; production
// callers pass nodeclient.New.
func New(factory func(*model.Node) (nodeclient.Client, error)) *Cache {
	if factory == nil {
		factory = nodeclient.New
	}
	return &Cache{entries: make(map[string]entry), factory: factory}
}

// Get returns the cached client for node if its api_url hasn't changed,
// otherwise constructs and caches a new one.
func (c *Cache) Get(node *model.Node) (nodeclient.Client, error) {
	c.mu.RLock()
	if e, ok := c.entries[node.ID]; ok && e.apiURL == node.APIURL {
		c.mu.RUnlock()
		return e.client, nil
	}
	c.mu.RUnlock()

	client, err := c.factory(node)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[node.ID] = entry{client: client, apiURL: node.APIURL}
	c.mu.Unlock()
	return client, nil
}

// Invalidate drops any cached client for nodeID, forcing reconstruction on
// next Get. Called after Node update/delete.
func (c *Cache) Invalidate(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, nodeID)
}
