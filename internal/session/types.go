// Package session 管理与 L2 dApp 之间的会话: 传输层实例的生命周期、
// 会话提案审批、签名请求的分发，以及会话失效时的队列清理。
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// State 管理器状态机: Uninitialized -> Initializing -> Ready
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Identity L1 签名身份，变化时重建传输层
type Identity struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name,omitempty"`
}

// EventKind 传输层事件类型
type EventKind string

const (
	EventSessionProposal EventKind = "session_proposal"
	EventSessionRequest  EventKind = "session_request"
	EventSessionExpire   EventKind = "session_expire"
	EventSessionDelete   EventKind = "session_delete"
	// EventSessionSettle 由传输层自己消费，用来维护活跃会话表
	EventSessionSettle EventKind = "session_settle"
)

// Event 传输层事件，Params 按 Kind 解析
type Event struct {
	Kind   EventKind       `json:"type"`
	ID     uint64          `json:"id,omitempty"`
	Topic  string          `json:"topic,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ProposalNamespace 提案中对某个命名空间的要求
type ProposalNamespace struct {
	Chains  []string `json:"chains,omitempty"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

type ProposalParams struct {
	ID                 uint64                       `json:"id"`
	RequiredNamespaces map[string]ProposalNamespace `json:"requiredNamespaces"`
	OptionalNamespaces map[string]ProposalNamespace `json:"optionalNamespaces,omitempty"`
	Proposer           struct {
		PublicKey string   `json:"publicKey,omitempty"`
		Metadata  Metadata `json:"metadata"`
	} `json:"proposer"`
}

// RequestParams session_request 的参数
type RequestParams struct {
	Request struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	} `json:"request"`
	ChainID string `json:"chainId,omitempty"`
}

func (e Event) Proposal() (ProposalParams, error) {
	var p ProposalParams
	if len(e.Params) == 0 {
		return p, fmt.Errorf("proposal %d: empty params", e.ID)
	}
	if err := json.Unmarshal(e.Params, &p); err != nil {
		return p, fmt.Errorf("proposal %d: %w", e.ID, err)
	}
	return p, nil
}

func (e Event) Request() (RequestParams, error) {
	var p RequestParams
	if len(e.Params) == 0 {
		return p, fmt.Errorf("request %d: empty params", e.ID)
	}
	if err := json.Unmarshal(e.Params, &p); err != nil {
		return p, fmt.Errorf("request %d: %w", e.ID, err)
	}
	if p.Request.Method == "" {
		return p, fmt.Errorf("request %d: missing method", e.ID)
	}
	return p, nil
}

// Namespace 批准的命名空间
type Namespace struct {
	Chains   []string `json:"chains"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
	Accounts []string `json:"accounts"`
}

type Namespaces map[string]Namespace

// Reason 拒绝/断开原因，与 WalletConnect SDK 的错误码一致
type Reason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var (
	ReasonUserRejected       = Reason{Code: 5000, Message: "User rejected."}
	ReasonUnsupportedMethods = Reason{Code: 5101, Message: "Unsupported methods."}
	ReasonUserDisconnected   = Reason{Code: 6000, Message: "User disconnected."}
	ReasonInvalidParams      = Reason{Code: -32602, Message: "Invalid params."}
)

// RPCResponse JSON-RPC 成功应答
type RPCResponse struct {
	ID      uint64 `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result"`
}

func NewResult(id uint64, result any) RPCResponse {
	return RPCResponse{ID: id, JSONRPC: "2.0", Result: result}
}

// Session 传输层持有的活跃会话
type Session struct {
	Topic      string     `json:"topic"`
	Peer       Metadata   `json:"peer"`
	Expiry     time.Time  `json:"expiry,omitempty"`
	Namespaces Namespaces `json:"namespaces,omitempty"`
}

// Transport 会话传输层 (配对、加密中继、topic 派生都在其内部)
type Transport interface {
	Pair(ctx context.Context, uri string) error
	ActiveSessions() map[string]Session
	ApproveSession(ctx context.Context, id uint64, namespaces Namespaces) error
	RejectSession(ctx context.Context, id uint64, reason Reason) error
	RespondSessionRequest(ctx context.Context, topic string, resp RPCResponse) error
	RejectSessionRequest(ctx context.Context, topic string, id uint64, reason Reason) error
	DisconnectSession(ctx context.Context, topic string, reason Reason) error
	// Events 在 Close 之后关闭
	Events() <-chan Event
	Close() error
}

// TransportFactory 按身份创建新的传输层实例
type TransportFactory func(ctx context.Context, id Identity) (Transport, error)

// MessageSigner personal_sign / eth_sign 所需的签名能力
type MessageSigner interface {
	Address() common.Address
	SignMessage(msg []byte) ([]byte, error)
}
