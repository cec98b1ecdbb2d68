package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvgateway/internal/model"
	"hvgateway/internal/nodeclient"
	"hvgateway/internal/store"
)

type fakeClient struct {
	nodeclient.Client
	vms []map[string]interface{}
	err error
}

func (f fakeClient) ListVMs(ctx context.Context) ([]map[string]interface{}, error) {
	return f.vms, f.err
}

func newStoreWithNodes(t *testing.T, nodes ...*model.Node) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for _, n := range nodes {
		require.NoError(t, s.CreateNode(context.Background(), n))
	}
	return s
}

func TestListAllVMs_MergesAcrossNodes(t *testing.T) {
	pve := &model.Node{ID: "n1", Name: "pve1", Kind: model.KindProxmox}
	incus := &model.Node{ID: "n2", Name: "incus1", Kind: model.KindIncus}
	s := newStoreWithNodes(t, pve, incus)

	resolve := func(n *model.Node) (nodeclient.Client, error) {
		switch n.ID {
		case "n1":
			return fakeClient{vms: []map[string]interface{}{
				{"node": "pve1", "type": "qemu", "vmid": float64(100), "name": "web"},
			}}, nil
		case "n2":
			return fakeClient{vms: []map[string]interface{}{
				{"name": "incus-web", "status": "Running"},
			}}, nil
		default:
			t.Fatalf("unexpected node %s", n.ID)
			return nil, nil
		}
	}

	agg := New(s, resolve)
	vms, err := agg.ListAllVMs(context.Background())
	require.NoError(t, err)
	require.Len(t, vms, 2)

	byInternalID := map[string]model.VM{}
	for _, vm := range vms {
		byInternalID[vm.InternalID()] = vm
	}
	assert.Equal(t, "n1", byInternalID["pve1/qemu/100"].NodeID())
	assert.Equal(t, "n2", byInternalID["incus-web"].NodeID())

	n1, err := s.GetNode(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnline, n1.Status)
}

func TestListAllVMs_NodeErrorExcludedButMarkedErrorStatus(t *testing.T) {
	ok := &model.Node{ID: "n1", Name: "good", Kind: model.KindProxmox}
	bad := &model.Node{ID: "n2", Name: "bad", Kind: model.KindProxmox}
	s := newStoreWithNodes(t, ok, bad)

	resolve := func(n *model.Node) (nodeclient.Client, error) {
		if n.ID == "n2" {
			return nil, assertError{}
		}
		return fakeClient{vms: []map[string]interface{}{
			{"node": "good", "type": "qemu", "vmid": float64(1), "name": "web"},
		}}, nil
	}

	agg := New(s, resolve)
	vms, err := agg.ListAllVMs(context.Background())
	require.NoError(t, err)
	require.Len(t, vms, 1)

	bad2, err := s.GetNode(context.Background(), "n2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, bad2.Status)
}

type assertError struct{}

func (assertError) Error() string { return "resolve failed" }
