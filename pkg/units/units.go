// Package units wei 与 ETH 之间的换算，只用于展示
package units

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// WeiToDecimal 转成 decimal (wei 为单位)，nil 视为 0
func WeiToDecimal(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, 0)
}

// FormatEther 例如 1500000000000000000 -> "1.5"
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}

// FormatQuantity dApp 发来的数值字符串 (hex 或十进制) 转成 ETH，解析失败原样返回
func FormatQuantity(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0"
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return s
	}
	return FormatEther(v)
}
