package session

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const namespaceEIP155 = "eip155"

// SupportedMethods 批准给 dApp 的方法集合 (顺序固定)
var SupportedMethods = []string{
	"eth_sendTransaction",
	"personal_sign",
	"eth_sign",
	"eth_signTransaction",
	"eth_signTypedData",
	"eth_signTypedData_v4",
}

// SupportedEvents 批准给 dApp 的事件集合
var SupportedEvents = []string{"chainChanged", "accountsChanged"}

// BuildNamespaces 按注册表中的链与当前签名地址构造批准的命名空间。
// 提案的 requiredNamespaces 必须能被满足，否则返回错误 (调用方拒绝提案)。
func BuildNamespaces(p ProposalParams, chainIDs []uint64, account common.Address) (Namespaces, error) {
	if len(chainIDs) == 0 {
		return nil, fmt.Errorf("no configured chains")
	}

	chains := make([]string, 0, len(chainIDs))
	accounts := make([]string, 0, len(chainIDs))
	for _, id := range chainIDs {
		chain := namespaceEIP155 + ":" + strconv.FormatUint(id, 10)
		chains = append(chains, chain)
		accounts = append(accounts, chain+":"+account.Hex())
	}

	for key, required := range p.RequiredNamespaces {
		// 兼容 "eip155:1301" 形式的 key
		name, _, _ := strings.Cut(key, ":")
		if name != namespaceEIP155 {
			return nil, fmt.Errorf("unsupported namespace %q", key)
		}
		wanted := slices.Clone(required.Chains)
		if key != name {
			wanted = append(wanted, key)
		}
		for _, c := range wanted {
			if !slices.Contains(chains, c) {
				return nil, fmt.Errorf("unsupported chain %q", c)
			}
		}
		for _, m := range required.Methods {
			if !slices.Contains(SupportedMethods, m) {
				return nil, fmt.Errorf("unsupported method %q", m)
			}
		}
		for _, e := range required.Events {
			if !slices.Contains(SupportedEvents, e) {
				return nil, fmt.Errorf("unsupported event %q", e)
			}
		}
	}

	return Namespaces{
		namespaceEIP155: {
			Chains:   chains,
			Methods:  slices.Clone(SupportedMethods),
			Events:   slices.Clone(SupportedEvents),
			Accounts: accounts,
		},
	}, nil
}
