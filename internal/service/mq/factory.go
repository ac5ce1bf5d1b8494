package mq

import (
	"fmt"

	"bridge-relay/pkg/config"

	"github.com/redis/go-redis/v9"
)

// New 按 redis.mq_type 选择实现，redis 模式复用传入的客户端
func New(cfg config.Config, rdb *redis.Client) (Producer, Consumer, error) {
	switch cfg.Redis.MQType {
	case "kafka":
		return NewKafkaProducer(cfg.Kafka.Brokers),
			NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Transport.ConsumerGroup), nil
	case "redis", "":
		if rdb == nil {
			return nil, nil, fmt.Errorf("redis mq requires a redis client")
		}
		return NewRedisProducer(rdb),
			NewRedisConsumer(rdb, cfg.Transport.ConsumerGroup, cfg.Transport.ConsumerName), nil
	default:
		return nil, nil, fmt.Errorf("unknown mq_type %q (redis|kafka)", cfg.Redis.MQType)
	}
}

// NewConsumerFunc 每次调用创建一个新的消费者 (会话传输层重建时使用)
func NewConsumerFunc(cfg config.Config, rdb *redis.Client) (func() Consumer, error) {
	switch cfg.Redis.MQType {
	case "kafka":
		return func() Consumer {
			return NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Transport.ConsumerGroup)
		}, nil
	case "redis", "":
		if rdb == nil {
			return nil, fmt.Errorf("redis mq requires a redis client")
		}
		return func() Consumer {
			return NewRedisConsumer(rdb, cfg.Transport.ConsumerGroup, cfg.Transport.ConsumerName)
		}, nil
	default:
		return nil, fmt.Errorf("unknown mq_type %q (redis|kafka)", cfg.Redis.MQType)
	}
}
