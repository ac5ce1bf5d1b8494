package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PortalABIJSON OptimismPortal 中继需要用到的部分
const PortalABIJSON = `[
  {
    "inputs": [
      {"name": "_to", "type": "address"},
      {"name": "_value", "type": "uint256"},
      {"name": "_gasLimit", "type": "uint64"},
      {"name": "_isCreation", "type": "bool"},
      {"name": "_data", "type": "bytes"}
    ],
    "name": "depositTransaction",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "from", "type": "address"},
      {"indexed": true, "name": "to", "type": "address"},
      {"indexed": true, "name": "version", "type": "uint256"},
      {"indexed": false, "name": "opaqueData", "type": "bytes"}
    ],
    "name": "TransactionDeposited",
    "type": "event"
  }
]`

const (
	methodDeposit = "depositTransaction"
	eventDeposit  = "TransactionDeposited"
)

var portalABI = mustParse(PortalABIJSON)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse portal abi: %v", err))
	}
	return parsed
}

// DepositParams depositTransaction 的参数
type DepositParams struct {
	To         common.Address
	Value      *big.Int
	GasLimit   uint64
	IsCreation bool
	Data       []byte
}

// EncodeDeposit 编码 depositTransaction 调用数据
func EncodeDeposit(p DepositParams) ([]byte, error) {
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	data := p.Data
	if data == nil {
		data = []byte{}
	}
	return portalABI.Pack(methodDeposit, p.To, value, p.GasLimit, p.IsCreation, data)
}

// DepositedEvent 解码后的 TransactionDeposited 事件
type DepositedEvent struct {
	From       common.Address
	To         common.Address
	Version    *big.Int
	OpaqueData []byte
	TxHash     common.Hash
	LogIndex   uint
}

// DecodeDepositEvents 从回执日志中挑出门户合约的 TransactionDeposited 事件
// 解码失败的日志直接跳过
func DecodeDepositEvents(portal common.Address, logs []*types.Log) []DepositedEvent {
	eventID := portalABI.Events[eventDeposit].ID

	var out []DepositedEvent
	for _, l := range logs {
		if l == nil || l.Address != portal || len(l.Topics) != 4 || l.Topics[0] != eventID {
			continue
		}

		values, err := portalABI.Unpack(eventDeposit, l.Data)
		if err != nil || len(values) != 1 {
			continue
		}
		opaque, ok := values[0].([]byte)
		if !ok {
			continue
		}

		out = append(out, DepositedEvent{
			From:       common.BytesToAddress(l.Topics[1].Bytes()),
			To:         common.BytesToAddress(l.Topics[2].Bytes()),
			Version:    l.Topics[3].Big(),
			OpaqueData: opaque,
			TxHash:     l.TxHash,
			LogIndex:   l.Index,
		})
	}
	return out
}
