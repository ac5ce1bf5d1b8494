// Package chain 封装 L1 节点访问与签名账户
package chain

import (
	"context"
	"fmt"
	"math/big"

	"bridge-relay/internal/relay"
	"bridge-relay/pkg/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Client L1 节点客户端，实现 relay.ChainClient
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	log     *zap.Logger
}

var _ relay.ChainClient = (*Client)(nil)

// Dial 连接节点并读取 ChainID
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial l1 rpc: %w", err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("l1 chain id: %w", err)
	}

	l := logger.Named("chain")
	l.Info("已连接 L1 节点", zap.String("chain_id", chainID.String()))
	return &Client{eth: eth, chainID: chainID, log: l}, nil
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.eth.EstimateGas(ctx, msg)
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, hash)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, account)
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.eth.SendTransaction(ctx, tx)
}

// BlockTransactions 读取整块交易并恢复发送方
func (c *Client) BlockTransactions(ctx context.Context, number uint64) ([]relay.BlockTx, error) {
	block, err := c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, err
	}
	return blockTxs(block.Transactions(), c.chainID, c.log), nil
}

// blockTxs 恢复不了发送方的交易 (未知类型等) 直接跳过
func blockTxs(txs types.Transactions, chainID *big.Int, l *zap.Logger) []relay.BlockTx {
	signer := types.LatestSignerForChainID(chainID)
	out := make([]relay.BlockTx, 0, len(txs))
	for _, tx := range txs {
		from, err := types.Sender(signer, tx)
		if err != nil {
			l.Debug("跳过无法恢复发送方的交易", zap.String("hash", tx.Hash().Hex()), zap.Error(err))
			continue
		}
		out = append(out, relay.BlockTx{Hash: tx.Hash(), From: from, To: tx.To()})
	}
	return out
}

func (c *Client) Close() {
	c.eth.Close()
}
