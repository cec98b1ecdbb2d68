package nodeclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvgateway/internal/apierr"
)

func TestParseProxmoxID_Qualified(t *testing.T) {
	id, err := ParseProxmoxID("pve1/qemu/100")
	require.NoError(t, err)
	assert.Equal(t, "pve1", id.Node)
	assert.Equal(t, "qemu", id.Type)
	assert.Equal(t, "100", id.VMID)
}

func TestParseProxmoxID_HyphenLegacyForm(t *testing.T) {
	id, err := ParseProxmoxID("px-lxc-100")
	require.NoError(t, err)
	assert.Equal(t, "px", id.Node)
	assert.Equal(t, "lxc", id.Type)
	assert.Equal(t, "100", id.VMID)
}

func TestParseProxmoxID_RejectsBareID(t *testing.T) {
	_, err := ParseProxmoxID("100")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.BadRequest, apiErr.Kind)
}

func TestParseProxmoxID_RejectsUnknownType(t *testing.T) {
	_, err := ParseProxmoxID("pve1/docker/100")
	require.Error(t, err)
}

func TestBuildProxmoxInternalID(t *testing.T) {
	assert.Equal(t, "pve1/qemu/100", BuildProxmoxInternalID("pve1", "qemu", "100"))
}
