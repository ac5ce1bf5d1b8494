package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"bridge-relay/internal/relay"
	"bridge-relay/pkg/logger"
	"bridge-relay/pkg/signer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Backend 广播所需的最小节点能力，*Client 满足
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Wallet 用本地私钥签名并广播，实现 relay.Account
type Wallet struct {
	backend Backend
	signer  *signer.Signer
	chainID *big.Int
	log     *zap.Logger

	mu sync.Mutex // 串行化 nonce 读取与广播
}

var _ relay.Account = (*Wallet)(nil)

func NewWallet(backend Backend, s *signer.Signer, chainID *big.Int) *Wallet {
	return &Wallet{
		backend: backend,
		signer:  s,
		chainID: chainID,
		log:     logger.Named("wallet"),
	}
}

func (w *Wallet) Address() common.Address {
	return w.signer.Address()
}

// SendTransaction 构造、签名、广播
func (w *Wallet) SendTransaction(ctx context.Context, req relay.TxRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A. 查询 Nonce
	nonce, err := w.backend.PendingNonceAt(ctx, w.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	// B. 构造并签名
	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    req.Value,
		Gas:      req.Gas,
		GasPrice: req.GasPrice,
		Data:     req.Data,
	})
	signed, err := w.signer.SignTx(tx, w.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("签名失败: %w", err)
	}

	// C. 广播
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	w.log.Info("🚀 交易已广播",
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.String("value", req.Value.String()))
	return signed.Hash(), nil
}

// SignMessage EIP-191 personal_sign
func (w *Wallet) SignMessage(msg []byte) ([]byte, error) {
	return w.signer.SignMessage(msg)
}
