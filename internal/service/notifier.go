package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"bridge-relay/internal/relay"
	"bridge-relay/internal/service/mq"
	"bridge-relay/internal/status"
	"bridge-relay/pkg/logger"
	"bridge-relay/pkg/network"

	"go.uber.org/zap"
)

const (
	defaultNotifyBuffer  = 256
	notifyPublishTimeout = 5 * time.Second
)

type notification struct {
	key     string
	payload []byte
}

// Notifier 把状态变化与中继结果推送到状态 Topic
// OnStatus 在 Board 的调用方 goroutine 上执行，只做入队；满了直接丢弃
type Notifier struct {
	producer mq.Producer
	topic    string
	registry *network.Registry
	log      *zap.Logger

	ch        chan notification
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
}

var (
	_ status.Sink    = (*Notifier)(nil)
	_ relay.Recorder = (*Notifier)(nil)
)

func NewNotifier(producer mq.Producer, topic string, registry *network.Registry, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = defaultNotifyBuffer
	}
	return &Notifier{
		producer: producer,
		topic:    topic,
		registry: registry,
		log:      logger.Named("notifier"),
		ch:       make(chan notification, buffer),
		done:     make(chan struct{}),
	}
}

// Start 阻塞直到 ctx 取消或 Close，退出前尽量发完缓冲
func (n *Notifier) Start(ctx context.Context) {
	n.startOnce.Do(func() {
		for {
			select {
			case <-ctx.Done():
				n.drain()
				return
			case <-n.done:
				n.drain()
				return
			case msg := <-n.ch:
				n.publish(msg)
			}
		}
	})
}

func (n *Notifier) drain() {
	for {
		select {
		case msg := <-n.ch:
			n.publish(msg)
		default:
			return
		}
	}
}

func (n *Notifier) publish(msg notification) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyPublishTimeout)
	defer cancel()
	if err := n.producer.Publish(ctx, n.topic, msg.key, msg.payload); err != nil {
		n.log.Warn("推送状态失败", zap.String("topic", n.topic), zap.Error(err))
	}
}

func (n *Notifier) OnStatus(u status.Update) {
	payload, err := json.Marshal(newStatusEvent(u))
	if err != nil {
		n.log.Error("序列化状态失败", zap.Error(err))
		return
	}
	n.enqueue(notification{key: "status", payload: payload})
}

// Record 未启用数据库时直接推送中继结果 (启用时由 outbox 负责)
func (n *Notifier) Record(_ context.Context, s relay.Settlement) error {
	payload, err := json.Marshal(newCompletedEvent(s, n.registry))
	if err != nil {
		return err
	}
	n.enqueue(notification{key: s.Queued.Topic, payload: payload})
	return nil
}

func (n *Notifier) enqueue(msg notification) {
	select {
	case <-n.done:
		return
	default:
	}
	select {
	case n.ch <- msg:
	default:
		n.log.Warn("推送缓冲已满，丢弃消息", zap.String("key", msg.key))
	}
}

func (n *Notifier) Close() {
	n.closeOnce.Do(func() { close(n.done) })
}
