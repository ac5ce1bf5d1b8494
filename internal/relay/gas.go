package relay

import (
	"fmt"
	"math/big"
	"strings"

	"bridge-relay/internal/queue"
	"bridge-relay/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

var (
	bufferNum = big.NewInt(3)
	bufferDen = big.NewInt(2)
)

// BufferedGasCost gasEstimate * gasPrice * 3 / 2，整数除法向下取整
// 1.5 倍缓冲是固定策略，不开放配置
func BufferedGasCost(gasEstimate uint64, gasPrice *big.Int) *big.Int {
	cost := new(big.Int).SetUint64(gasEstimate)
	cost.Mul(cost, gasPrice)
	cost.Mul(cost, bufferNum)
	return cost.Div(cost, bufferDen)
}

// TotalValue L1 交易的 msg.value = 桥接金额 + 缓冲后的执行费用
func TotalValue(value, gasCost *big.Int) *big.Int {
	return new(big.Int).Add(value, gasCost)
}

// callParams 解析后的 L2 调用参数
type callParams struct {
	To       common.Address
	Value    *big.Int
	GasLimit uint64
	Data     []byte
}

// parseParams 解析 dApp 发来的参数，数值同时支持 0x 十六进制与十进制
// 缺省值: value=0, gas=100000, data=0x
func parseParams(p queue.TxParams) (callParams, error) {
	if !common.IsHexAddress(p.To) {
		return callParams{}, fmt.Errorf("%w: to %q", errno.ErrInvalidParams, p.To)
	}
	out := callParams{
		To:       common.HexToAddress(p.To),
		Value:    new(big.Int),
		GasLimit: DefaultL2GasLimit,
		Data:     []byte{},
	}

	if v := strings.TrimSpace(p.Value); v != "" {
		value, ok := math.ParseBig256(v)
		if !ok || value.Sign() < 0 {
			return callParams{}, fmt.Errorf("%w: value %q", errno.ErrInvalidParams, p.Value)
		}
		out.Value = value
	}

	if g := strings.TrimSpace(p.Gas); g != "" {
		gas, ok := math.ParseUint64(g)
		if !ok {
			return callParams{}, fmt.Errorf("%w: gas %q", errno.ErrInvalidParams, p.Gas)
		}
		out.GasLimit = gas
	}

	if d := strings.TrimSpace(p.Data); d != "" && d != "0x" {
		data, err := hexutil.Decode(d)
		if err != nil {
			return callParams{}, fmt.Errorf("%w: data: %v", errno.ErrInvalidParams, err)
		}
		out.Data = data
	}
	return out, nil
}
