package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RelayRecord 已在 L1 确认的中继归档
// 内存中只保留最近 10 条，这张表保留全部历史
type RelayRecord struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	QueueID     int64           `gorm:"not null;index" json:"queue_id"`                           // 队列内 ID (毫秒时间戳)
	TxHash      string          `gorm:"type:varchar(66);not null;uniqueIndex" json:"tx_hash"`     // L1 交易 Hash
	ToAddress   string          `gorm:"type:varchar(42);not null" json:"to_address"`              // L2 调用的原始 to
	Value       decimal.Decimal `gorm:"type:decimal(78,0);not null;default:0" json:"value"`       // 原始金额 (wei)
	GasCost     decimal.Decimal `gorm:"type:decimal(78,0);not null;default:0" json:"gas_cost"`    // 1.5 倍缓冲后的 gas 费用 (wei)
	TotalValue  decimal.Decimal `gorm:"type:decimal(78,0);not null;default:0" json:"total_value"` // L1 msg.value
	Topic       string          `gorm:"type:varchar(128);not null;index" json:"topic"`
	RequestID   uint64          `gorm:"not null" json:"request_id"`
	Network     string          `gorm:"type:varchar(32);not null" json:"network"`
	Mode        string          `gorm:"type:varchar(16);not null" json:"mode"` // portal, direct
	Reverted    bool            `gorm:"not null;default:false" json:"reverted"`
	CompletedAt time.Time       `gorm:"not null;index" json:"completed_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (RelayRecord) TableName() string {
	return "relay_records"
}
