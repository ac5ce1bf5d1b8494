package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bridge-relay/internal/queue"
	"bridge-relay/pkg/errno"
	"bridge-relay/pkg/monitor"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

func (m *Manager) handleRequestLocked(ctx context.Context, ev Event) error {
	// 1. topic 必须对应活跃会话
	if _, ok := m.transport.ActiveSessions()[ev.Topic]; !ok {
		m.setConnectedLocked(false)
		m.board.SetText("Invalid session")
		return m.rejectLocked(ctx, ev, ReasonUserRejected,
			fmt.Errorf("%w: topic %s", errno.ErrInvalidSession, ev.Topic))
	}

	// 2. 重复投递抑制 (MQ 至少一次语义)
	key := fmt.Sprintf("session_request:%s:%d", ev.Topic, ev.ID)
	fresh, err := m.dedup.Acquire(ctx, key, m.dedupTTL)
	if err != nil {
		// 去重存储不可用时放行，宁可重复也不丢请求
		m.log.Warn("去重检查失败", zap.String("key", key), zap.Error(err))
	} else if !fresh {
		m.log.Info("⚠️ 重复的签名请求，跳过", zap.String("topic", ev.Topic), zap.Uint64("id", ev.ID))
		return nil
	}

	req, err := ev.Request()
	if err != nil {
		return m.rejectLocked(ctx, ev, ReasonInvalidParams, fmt.Errorf("%w: %v", errno.ErrInvalidParams, err))
	}

	// 3. 按方法分发
	switch method := req.Request.Method; method {
	case "eth_sendTransaction":
		return m.enqueueLocked(ctx, ev, req)
	case "personal_sign", "eth_sign":
		return m.signLocked(ctx, ev, req)
	default:
		m.board.SetText("Request rejected: unsupported method " + method)
		return m.rejectLocked(ctx, ev, ReasonUnsupportedMethods,
			fmt.Errorf("%w: %s", errno.ErrUnsupportedMethod, method))
	}
}

// enqueueLocked eth_sendTransaction: 取第一个参数对象入队，等待显式中继
func (m *Manager) enqueueLocked(ctx context.Context, ev Event, req RequestParams) error {
	var params []json.RawMessage
	if err := json.Unmarshal(req.Request.Params, &params); err != nil || len(params) == 0 {
		m.board.SetText("Request rejected: invalid transaction params")
		return m.rejectLocked(ctx, ev, ReasonInvalidParams,
			fmt.Errorf("%w: eth_sendTransaction expects [tx]", errno.ErrInvalidParams))
	}

	var tx queue.TxParams
	if err := json.Unmarshal(params[0], &tx); err != nil || !common.IsHexAddress(tx.To) {
		m.board.SetText("Request rejected: invalid transaction params")
		return m.rejectLocked(ctx, ev, ReasonInvalidParams,
			fmt.Errorf("%w: transaction object needs a valid to", errno.ErrInvalidParams))
	}

	if req.ChainID != "" && !m.knownChain(req.ChainID) {
		m.log.Warn("请求的链不在注册表中", zap.String("chain_id", req.ChainID))
	}

	queued, err := m.queue.Enqueue(queue.QueuedTransaction{
		Params:    tx,
		Topic:     ev.Topic,
		RequestID: ev.ID,
	})
	if err != nil {
		return m.rejectLocked(ctx, ev, ReasonInvalidParams, err)
	}

	monitor.ObserveQueued(m.registry.Default().Key, m.queue.Len())
	m.board.SetText("Transaction queued")
	m.log.Info("签名请求已入队",
		zap.Int64("id", queued.ID),
		zap.String("topic", ev.Topic),
		zap.Uint64("request_id", ev.ID),
		zap.String("to", tx.To),
		zap.String("value", tx.Value))
	return nil
}

// signLocked personal_sign [message, address] / eth_sign [address, message]
// 直接用 L1 账户签名并答复，不经过中继
func (m *Manager) signLocked(ctx context.Context, ev Event, req RequestParams) error {
	var args []string
	if err := json.Unmarshal(req.Request.Params, &args); err != nil || len(args) < 2 {
		return m.rejectLocked(ctx, ev, ReasonInvalidParams,
			fmt.Errorf("%w: %s expects two string params", errno.ErrInvalidParams, req.Request.Method))
	}

	message, address := args[0], args[1]
	if req.Request.Method == "eth_sign" {
		address, message = args[0], args[1]
	}
	if !common.IsHexAddress(address) || common.HexToAddress(address) != m.account.Address() {
		return m.rejectLocked(ctx, ev, ReasonInvalidParams,
			fmt.Errorf("%w: signer %s is not the session account", errno.ErrInvalidParams, address))
	}

	sig, err := m.account.SignMessage(decodeMessage(message))
	if err != nil {
		return m.rejectLocked(ctx, ev, ReasonUserRejected, err)
	}
	if err := m.transport.RespondSessionRequest(ctx, ev.Topic, NewResult(ev.ID, hexutil.Encode(sig))); err != nil {
		return err
	}
	m.board.SetText("Message signed")
	return nil
}

// decodeMessage 0x 开头按十六进制解码，否则按 UTF-8 原文
func decodeMessage(message string) []byte {
	if strings.HasPrefix(message, "0x") {
		if b, err := hexutil.Decode(message); err == nil {
			return b
		}
	}
	return []byte(message)
}

func (m *Manager) knownChain(caip2 string) bool {
	for _, n := range m.registry.All() {
		if n.CAIP2() == caip2 {
			return true
		}
	}
	return false
}
