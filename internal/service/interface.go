package service

import (
	"context"

	"bridge-relay/internal/model"
	"bridge-relay/internal/relay"
)

// RelayArchive 中继结果归档，完成时写入，HTTP 层按时间倒序读取
type RelayArchive interface {
	relay.Recorder
	// Recent 最近 limit 条归档记录 (按完成时间倒序)
	Recent(ctx context.Context, limit int) ([]model.RelayRecord, error)
}
