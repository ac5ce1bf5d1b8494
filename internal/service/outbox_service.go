package service

import (
	"context"
	"time"

	"bridge-relay/internal/model"
	"bridge-relay/internal/service/mq"
	"bridge-relay/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outboxInterval  = 500 * time.Millisecond
	outboxBatchSize = 50
)

// OutboxService 负责将本地消息表的消息搬运到 MQ
type OutboxService struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
	log      *zap.Logger
}

func NewOutboxService(db *gorm.DB, producer mq.Producer) *OutboxService {
	return &OutboxService{
		db:       db,
		producer: producer,
		interval: outboxInterval, // 500ms 轮询一次
		log:      logger.Named("outbox"),
	}
}

// Start 阻塞直到 ctx 取消
func (s *OutboxService) Start(ctx context.Context) {
	s.log.Info("[Outbox] 启动消息搬运服务...")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("[Outbox] 停止服务")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxService) processPendingMessages(ctx context.Context) {
	// 1. 获取一批 Pending 消息，按 ID 保证顺序
	var messages []model.OutboxMessage
	err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id ASC").
		Limit(outboxBatchSize).
		Find(&messages).Error
	if err != nil {
		s.log.Error("[Outbox] 查询消息失败", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		return
	}

	s.log.Debug("[Outbox] 发现待发送消息", zap.Int("count", len(messages)))

	for _, msg := range messages {
		// 2. 发送 MQ
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			s.log.Warn("[Outbox] 发送失败", zap.Uint64("id", msg.ID), zap.Int("attempts", msg.Attempts+1), zap.Error(err))
			s.db.WithContext(ctx).Model(&msg).Update("attempts", gorm.Expr("attempts + 1"))
			continue
		}

		// 3. 更新状态为 SENT
		// 只有发送成功了才更新状态 => At-least-once (至少一次投递)
		// 如果这里更新失败，下次还会发，Consumer 需做好幂等
		err := s.db.WithContext(ctx).Model(&msg).Updates(map[string]interface{}{
			"status":   model.OutboxSent,
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
		if err != nil {
			s.log.Error("[Outbox] 更新状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
		} else {
			s.log.Info("[Outbox] 消息已投递", zap.Uint64("id", msg.ID), zap.String("topic", msg.Topic))
		}
	}
}
