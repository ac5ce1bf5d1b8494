// Package relay 把 L2 dApp 的 eth_sendTransaction 转成 L1 门户合约的 deposit 交易，
// 并一路跟踪到 L1 确认或失败。
//
// 同一时刻只允许一笔交易处于处理中 (由队列的处理槽位保证)，
// 引擎不会自动推进队列，每一笔都需要调用方显式 Submit。
package relay

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"bridge-relay/internal/queue"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	// SignatureTimeout 等待签名/广播的最长时间，超时后进入区块回扫
	SignatureTimeout = 30 * time.Second
	// InitialCheckDelay 广播后首次查询回执的延迟
	InitialCheckDelay = 5 * time.Second
	// GraceDelay 终态 (成功或失败) 展示多久后清理处理字段
	GraceDelay = 3 * time.Second
	// RecoveryDepth 超时回扫的区块数: current, current-1, current-2
	RecoveryDepth = 3
	// DefaultL2GasLimit dApp 未给 gas 时 depositTransaction 使用的 L2 gas limit
	DefaultL2GasLimit uint64 = 100000
	// DefaultPollInterval 自动轮询回执的间隔
	DefaultPollInterval = 5 * time.Second
)

// Mode 中继策略。一个进程只使用一种
type Mode string

const (
	// ModePortal 重新编码为门户合约的 depositTransaction (桥接模式)
	ModePortal Mode = "portal"
	// ModeDirect 直接把原始 to/data 发到 L1
	ModeDirect Mode = "direct"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePortal, "":
		return ModePortal, nil
	case ModeDirect:
		return ModeDirect, nil
	default:
		return "", fmt.Errorf("unknown relay mode %q (portal|direct)", s)
	}
}

// BlockTx 区块中的一笔交易，回扫只关心 from/to
type BlockTx struct {
	Hash common.Hash
	From common.Address
	To   *common.Address // 合约创建时为 nil
}

// ChainClient L1 只读查询能力
type ChainClient interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// TransactionReceipt 未上链时返回 ethereum.NotFound
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTransactions(ctx context.Context, number uint64) ([]BlockTx, error)
}

// TxRequest 交给签名账户的 L1 交易
type TxRequest struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
}

// Account L1 签名账户: 签名并广播
type Account interface {
	Address() common.Address
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
}

// Session 中继引擎对会话层的依赖
type Session interface {
	// CheckSession 是否存在活跃会话
	CheckSession(ctx context.Context) bool
	// RespondTransaction 把 L1 Hash 作为结果回复来源请求
	RespondTransaction(ctx context.Context, topic string, requestID uint64, hash common.Hash) error
	// RejectRequest 拒绝来源请求 (用户取消)
	RejectRequest(ctx context.Context, topic string, requestID uint64) error
}

// Settlement 一笔中继完成后的全部信息，交给 Recorder 落库/推送
type Settlement struct {
	Queued    queue.QueuedTransaction
	Completed queue.CompletedTransaction
	Network   string
	Mode      Mode
	GasCost   *big.Int
	Total     *big.Int
	Reverted  bool
}

// Recorder 中继完成后的旁路记录 (归档、消息推送)，失败不影响队列
type Recorder interface {
	Record(ctx context.Context, s Settlement) error
}
