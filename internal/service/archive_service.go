package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bridge-relay/internal/model"
	"bridge-relay/internal/relay"
	"bridge-relay/pkg/cache"
	"bridge-relay/pkg/logger"
	"bridge-relay/pkg/network"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	recentCacheKey = "relay:history:recent"
	recentCacheTTL = 30 * time.Second
	recentMax      = 100
)

// ArchiveService 把确认的中继写入 relay_records，
// 同一事务写一条 outbox 消息，由 OutboxService 投递到状态 Topic
type ArchiveService struct {
	db       *gorm.DB
	topic    string
	registry *network.Registry
	cache    cache.Cache // 可选，缓存最近 100 条
	log      *zap.Logger
}

var _ RelayArchive = (*ArchiveService)(nil)

func NewArchiveService(db *gorm.DB, statusTopic string, registry *network.Registry) *ArchiveService {
	return &ArchiveService{
		db:       db,
		topic:    statusTopic,
		registry: registry,
		log:      logger.Named("archive"),
	}
}

// WithCache 为 Recent 启用缓存，新归档写入后失效
func (s *ArchiveService) WithCache(c cache.Cache) *ArchiveService {
	s.cache = c
	return s
}

func (s *ArchiveService) Record(ctx context.Context, st relay.Settlement) error {
	record := newRelayRecord(st)
	payload, err := json.Marshal(newCompletedEvent(st, s.registry))
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 归档 (tx_hash 唯一，重复结算直接跳过)
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return fmt.Errorf("create relay record failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			s.log.Info("归档已存在，跳过", zap.String("tx_hash", record.TxHash))
			return nil
		}

		// 2. 本地消息表
		msg := model.OutboxMessage{
			Topic:   s.topic,
			Key:     st.Queued.Topic,
			Payload: payload,
			Status:  model.OutboxPending,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("create outbox message failed: %w", err)
		}

		s.log.Info("📦 中继已归档",
			zap.Uint64("record_id", record.ID),
			zap.String("tx_hash", record.TxHash),
			zap.Uint64("outbox_id", msg.ID))
		return nil
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, recentCacheKey); err != nil {
			s.log.Warn("清理历史缓存失败", zap.Error(err))
		}
	}
	return nil
}

func (s *ArchiveService) Recent(ctx context.Context, limit int) ([]model.RelayRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	records, err := s.recent(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// recent 最近 recentMax 条，先查缓存
func (s *ArchiveService) recent(ctx context.Context) ([]model.RelayRecord, error) {
	var records []model.RelayRecord
	if s.cache != nil {
		if err := s.cache.Get(ctx, recentCacheKey, &records); err == nil {
			return records, nil
		}
	}

	if err := s.db.WithContext(ctx).Order("completed_at DESC").Limit(recentMax).Find(&records).Error; err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, recentCacheKey, records, recentCacheTTL); err != nil {
			s.log.Warn("写入历史缓存失败", zap.Error(err))
		}
	}
	return records, nil
}
