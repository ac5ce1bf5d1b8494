package queue

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CompletedCapacity 已完成列表只保留最近 10 条
const CompletedCapacity = 10

// TxParams L2 dApp 通过 eth_sendTransaction 发来的原始参数
// 数值字段保持 dApp 发送时的字符串形式 (hex 或十进制)，由中继引擎解析
type TxParams struct {
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
	Gas   string `json:"gas,omitempty"`
}

// QueuedTransaction 待中继的签名请求
// Topic + RequestID 唯一标识来源请求，生命周期内必须且只能回复一次
type QueuedTransaction struct {
	ID        int64    `json:"id"`
	Params    TxParams `json:"params"`
	Topic     string   `json:"topic"`
	RequestID uint64   `json:"request_id"`
}

// CompletedTransaction 已在 L1 确认的中继记录
type CompletedTransaction struct {
	ID        int64       `json:"id"`
	Hash      common.Hash `json:"hash"`
	Timestamp time.Time   `json:"timestamp"`
	To        string      `json:"to"`
	Value     string      `json:"value"`
}

// Kind 区分 Record 的两种形态
type Kind int

const (
	KindQueued Kind = iota + 1
	KindCompleted
)

func (k Kind) String() string {
	switch k {
	case KindQueued:
		return "queued"
	case KindCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Record 队列与历史在展示层的统一形态 (tagged variant)
// Kind 决定 Queued / Completed 中哪一个非空
type Record struct {
	Kind      Kind
	Queued    *QueuedTransaction
	Completed *CompletedTransaction
}

// Snapshot 队列的只读快照，供 HTTP 层与状态推送使用
type Snapshot struct {
	Queued       []QueuedTransaction    `json:"queued"`
	Completed    []CompletedTransaction `json:"completed"`
	ProcessingID *int64                 `json:"processing_id,omitempty"`
	PendingHash  *common.Hash           `json:"pending_hash,omitempty"`
	ManualCheck  bool                   `json:"manual_check_enabled"`
	Settled      bool                   `json:"settled"` // 处理槽位中的交易已确认，等待清理
}

// Records 按 "先队列后历史" 的顺序返回统一记录
func (s Snapshot) Records() []Record {
	out := make([]Record, 0, len(s.Queued)+len(s.Completed))
	for i := range s.Queued {
		out = append(out, Record{Kind: KindQueued, Queued: &s.Queued[i]})
	}
	for i := range s.Completed {
		out = append(out, Record{Kind: KindCompleted, Completed: &s.Completed[i]})
	}
	return out
}
