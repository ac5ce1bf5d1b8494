package network

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// L2Network 目标 L2 网络的静态参数
type L2Network struct {
	Key             string `toml:"-" json:"key"`
	Name            string `toml:"name" json:"name"`
	ChainID         uint64 `toml:"chain_id" json:"chain_id"`
	PortalAddress   string `toml:"portal_address" json:"portal_address"` // L1 上的 OptimismPortal 合约
	RpcURL          string `toml:"rpc_url" json:"rpc_url"`
	BlockExplorer   string `toml:"block_explorer" json:"block_explorer"`
	L1BlockExplorer string `toml:"l1_block_explorer" json:"l1_block_explorer"`
}

// Portal 返回门户合约地址
func (n L2Network) Portal() common.Address {
	return common.HexToAddress(n.PortalAddress)
}

// CAIP2 返回 WalletConnect 使用的链标识, 例如 eip155:1301
func (n L2Network) CAIP2() string {
	return fmt.Sprintf("eip155:%d", n.ChainID)
}

// L1TxURL 返回 L1 浏览器中的交易链接
func (n L2Network) L1TxURL(hash string) string {
	return strings.TrimRight(n.L1BlockExplorer, "/") + "/tx/" + hash
}

// Registry 网络注册表 (只读)
type Registry struct {
	networks   map[string]L2Network
	defaultKey string
}

// DefaultNetwork 内置默认网络
const DefaultNetwork = "unichain"

var builtin = map[string]L2Network{
	"unichain": {
		Name:            "Unichain Sepolia",
		ChainID:         1301,
		PortalAddress:   "0x0d83dab629f0e0F9d36c0Cbc89B69a489f0751bD",
		RpcURL:          "https://sepolia.unichain.org",
		BlockExplorer:   "https://sepolia.uniscan.xyz",
		L1BlockExplorer: "https://eth-sepolia.blockscout.com/",
	},
	"mantle": {
		Name:            "Mantle Sepolia",
		ChainID:         5003,
		PortalAddress:   "0xB3db4bd5bc225930eD674494F9A4F6a11B8EFBc8",
		RpcURL:          "https://rpc.sepolia.mantle.xyz",
		BlockExplorer:   "https://sepolia.mantlescan.xyz",
		L1BlockExplorer: "https://eth-sepolia.blockscout.com/",
	},
	"zircuit": {
		Name:            "Zircuit Sepolia",
		ChainID:         58008,
		PortalAddress:   "0x787f1C8c5924178689E0560a43D848bF8E54b23e",
		RpcURL:          "https://sepolia-testnet.zircuit.com",
		BlockExplorer:   "https://sepolia.zircuitscan.xyz",
		L1BlockExplorer: "https://eth-sepolia.blockscout.com/",
	},
}

// NewRegistry 使用内置网络创建注册表
func NewRegistry(defaultKey string) (*Registry, error) {
	return newRegistry(builtin, defaultKey)
}

// fileFormat TOML 文件结构:
//
//	default = "mantle"
//	[networks.mantle]
//	name = "Mantle Sepolia"
//	chain_id = 5003
//	...
type fileFormat struct {
	Default  string               `toml:"default"`
	Networks map[string]L2Network `toml:"networks"`
}

// LoadFile 读取 TOML 网络表，文件中的同名网络覆盖内置网络
// defaultKey 非空时优先于文件里的 default
func LoadFile(path, defaultKey string) (*Registry, error) {
	var f fileFormat
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("解析网络表 %s 失败: %w", path, err)
	}

	merged := make(map[string]L2Network, len(builtin)+len(f.Networks))
	for k, v := range builtin {
		merged[k] = v
	}
	for k, v := range f.Networks {
		merged[k] = v
	}

	if defaultKey == "" {
		defaultKey = f.Default
	}
	return newRegistry(merged, defaultKey)
}

func newRegistry(networks map[string]L2Network, defaultKey string) (*Registry, error) {
	if defaultKey == "" {
		defaultKey = DefaultNetwork
	}

	r := &Registry{networks: make(map[string]L2Network, len(networks)), defaultKey: defaultKey}
	for k, n := range networks {
		if n.ChainID == 0 {
			return nil, fmt.Errorf("网络 %s 缺少 chain_id", k)
		}
		if !common.IsHexAddress(n.PortalAddress) {
			return nil, fmt.Errorf("网络 %s 的 portal_address 非法: %q", k, n.PortalAddress)
		}
		n.Key = k
		r.networks[k] = n
	}

	if _, ok := r.networks[defaultKey]; !ok {
		return nil, fmt.Errorf("默认网络 %s 不存在", defaultKey)
	}
	return r, nil
}

// Get 按 key 查询网络
func (r *Registry) Get(key string) (L2Network, bool) {
	n, ok := r.networks[key]
	return n, ok
}

// Default 返回默认网络
func (r *Registry) Default() L2Network {
	return r.networks[r.defaultKey]
}

// All 按 key 排序返回全部网络
func (r *Registry) All() []L2Network {
	out := make([]L2Network, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ChainIDs 返回全部网络的 chain id (按 key 排序)
func (r *Registry) ChainIDs() []uint64 {
	all := r.All()
	ids := make([]uint64, 0, len(all))
	for _, n := range all {
		ids = append(ids, n.ChainID)
	}
	return ids
}
