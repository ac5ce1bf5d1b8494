package network

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryDefaults(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	def := r.Default()
	assert.Equal(t, "unichain", def.Key)
	assert.Equal(t, uint64(1301), def.ChainID)
	assert.Equal(t, "eip155:1301", def.CAIP2())
	assert.Equal(t, []uint64{5003, 1301, 58008}, r.ChainIDs())
}

func TestNewRegistryUnknownDefault(t *testing.T) {
	_, err := NewRegistry("optimism")
	assert.Error(t, err)
}

func TestL1TxURL(t *testing.T) {
	r, err := NewRegistry("mantle")
	require.NoError(t, err)
	assert.Equal(t, "https://eth-sepolia.blockscout.com/tx/0xabc", r.Default().L1TxURL("0xabc"))
}

func TestLoadFileOverridesBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.toml")
	content := `
default = "devnet"

[networks.devnet]
name = "Local Devnet"
chain_id = 901
portal_address = "0x1111111111111111111111111111111111111111"
rpc_url = "http://localhost:9545"
block_explorer = ""
l1_block_explorer = "http://localhost:4000"

[networks.mantle]
name = "Mantle Sepolia (custom)"
chain_id = 5003
portal_address = "0xB3db4bd5bc225930eD674494F9A4F6a11B8EFBc8"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := LoadFile(path, "")
	require.NoError(t, err)

	assert.Equal(t, "devnet", r.Default().Key)
	assert.Equal(t, uint64(901), r.Default().ChainID)

	mantle, ok := r.Get("mantle")
	require.True(t, ok)
	assert.Equal(t, "Mantle Sepolia (custom)", mantle.Name)

	_, ok = r.Get("unichain")
	assert.True(t, ok, "内置网络应保留")
}

func TestLoadFileRejectsBadPortal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.toml")
	content := `
[networks.broken]
name = "Broken"
chain_id = 1
portal_address = "not-an-address"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFile(path, "unichain")
	assert.Error(t, err)
}
