package event

import "time"

// 事件类型
const (
	TypeStatus         = "status"
	TypeRelayCompleted = "relay_completed"
)

// StatusEvent 状态文本或连接状态变化
// Topic: bridge_relay_status
type StatusEvent struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Connected bool      `json:"connected"`
	At        time.Time `json:"at"`
}

// RelayCompletedEvent 一笔中继在 L1 确认
// Topic: bridge_relay_status
type RelayCompletedEvent struct {
	Type       string    `json:"type"`
	QueueID    int64     `json:"queue_id"`
	TxHash     string    `json:"tx_hash"`
	To         string    `json:"to"`
	Value      string    `json:"value"`       // Decimal string (ETH)
	GasCost    string    `json:"gas_cost"`    // Decimal string (ETH)
	TotalValue string    `json:"total_value"` // Decimal string (ETH)
	Topic      string    `json:"topic"`
	RequestID  uint64    `json:"request_id"`
	Network    string    `json:"network"`
	Mode       string    `json:"mode"`
	Reverted   bool      `json:"reverted"`
	L1TxURL    string    `json:"l1_tx_url,omitempty"`
	At         time.Time `json:"at"`
}
