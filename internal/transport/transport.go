// Package transport 通过消息队列对接外部 WalletConnect 会话进程:
// 事件从 events 主题读入，动作 (配对、审批、应答等) 发布到 actions 主题。
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bridge-relay/internal/service/mq"
	"bridge-relay/internal/session"
	"bridge-relay/pkg/logger"

	"go.uber.org/zap"
)

// 动作类型
const (
	ActionInit          = "init"
	ActionPair          = "pair"
	ActionApprove       = "approve_session"
	ActionRejectSession = "reject_session"
	ActionRespond       = "respond"
	ActionRejectRequest = "reject_request"
	ActionDisconnect    = "disconnect"
)

// Action 发布到 actions 主题的消息
type Action struct {
	Type       string               `json:"type"`
	ID         uint64               `json:"id,omitempty"`
	Topic      string               `json:"topic,omitempty"`
	URI        string               `json:"uri,omitempty"`
	Namespaces session.Namespaces   `json:"namespaces,omitempty"`
	Reason     *session.Reason      `json:"reason,omitempty"`
	Response   *session.RPCResponse `json:"response,omitempty"`
	Identity   *session.Identity    `json:"identity,omitempty"`
	SentAt     time.Time            `json:"sent_at"`
}

type Options struct {
	EventsTopic  string
	ActionsTopic string
	// Buffer 事件通道容量
	Buffer int
}

// MQTransport 实现 session.Transport
type MQTransport struct {
	producer mq.Producer
	consumer mq.Consumer
	opts     Options
	log      *zap.Logger

	mu       sync.RWMutex
	sessions map[string]session.Session

	events    chan session.Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ session.Transport = (*MQTransport)(nil)

// New 发布 init 动作并开始消费事件
func New(ctx context.Context, producer mq.Producer, consumer mq.Consumer, id session.Identity, opts Options) (*MQTransport, error) {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	runCtx, cancel := context.WithCancel(context.Background())
	t := &MQTransport{
		producer: producer,
		consumer: consumer,
		opts:     opts,
		log:      logger.Named("transport"),
		sessions: make(map[string]session.Session),
		events:   make(chan session.Event, opts.Buffer),
		ctx:      runCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if err := t.publish(ctx, "", Action{Type: ActionInit, Identity: &id}); err != nil {
		cancel()
		return nil, fmt.Errorf("init session transport: %w", err)
	}

	go func() {
		defer close(t.done)
		if err := t.consumer.Subscribe(runCtx, opts.EventsTopic, t.handle); err != nil {
			t.log.Error("订阅会话事件失败", zap.String("topic", opts.EventsTopic), zap.Error(err))
		}
	}()
	return t, nil
}

// Factory 每个实例使用独立的消费者
func Factory(producer mq.Producer, newConsumer func() mq.Consumer, opts Options) session.TransportFactory {
	return func(ctx context.Context, id session.Identity) (session.Transport, error) {
		return New(ctx, producer, newConsumer(), id, opts)
	}
}

// handle 维护活跃会话表并把事件转给管理器
// 格式错误的消息直接丢弃 (返回 nil 以便确认)，重放也无法修复
func (t *MQTransport) handle(msg *mq.Message) error {
	var ev session.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.log.Warn("丢弃格式错误的事件", zap.String("id", msg.ID), zap.Error(err))
		return nil
	}

	switch ev.Kind {
	case session.EventSessionSettle:
		var s session.Session
		if len(ev.Params) > 0 {
			if err := json.Unmarshal(ev.Params, &s); err != nil {
				t.log.Warn("丢弃格式错误的 session_settle", zap.Error(err))
				return nil
			}
		}
		if s.Topic == "" {
			s.Topic = ev.Topic
		}
		if s.Topic == "" {
			t.log.Warn("session_settle 缺少 topic")
			return nil
		}
		t.mu.Lock()
		t.sessions[s.Topic] = s
		t.mu.Unlock()
		t.log.Info("会话已建立", zap.String("topic", s.Topic), zap.String("peer", s.Peer.Name))
		return nil
	case session.EventSessionExpire, session.EventSessionDelete:
		t.mu.Lock()
		delete(t.sessions, ev.Topic)
		t.mu.Unlock()
	}

	select {
	case t.events <- ev:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

func (t *MQTransport) publish(ctx context.Context, key string, a Action) error {
	a.SentAt = time.Now().UTC()
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return t.producer.Publish(ctx, t.opts.ActionsTopic, key, payload)
}

func (t *MQTransport) Pair(ctx context.Context, uri string) error {
	if uri == "" {
		return fmt.Errorf("empty pairing uri")
	}
	return t.publish(ctx, "", Action{Type: ActionPair, URI: uri})
}

func (t *MQTransport) ActiveSessions() map[string]session.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]session.Session, len(t.sessions))
	for k, v := range t.sessions {
		out[k] = v
	}
	return out
}

func (t *MQTransport) ApproveSession(ctx context.Context, id uint64, namespaces session.Namespaces) error {
	return t.publish(ctx, "", Action{Type: ActionApprove, ID: id, Namespaces: namespaces})
}

func (t *MQTransport) RejectSession(ctx context.Context, id uint64, reason session.Reason) error {
	return t.publish(ctx, "", Action{Type: ActionRejectSession, ID: id, Reason: &reason})
}

func (t *MQTransport) RespondSessionRequest(ctx context.Context, topic string, resp session.RPCResponse) error {
	return t.publish(ctx, topic, Action{Type: ActionRespond, Topic: topic, ID: resp.ID, Response: &resp})
}

func (t *MQTransport) RejectSessionRequest(ctx context.Context, topic string, id uint64, reason session.Reason) error {
	return t.publish(ctx, topic, Action{Type: ActionRejectRequest, Topic: topic, ID: id, Reason: &reason})
}

// DisconnectSession 本地会话表立即删除，不等待对端确认
func (t *MQTransport) DisconnectSession(ctx context.Context, topic string, reason session.Reason) error {
	t.mu.Lock()
	delete(t.sessions, topic)
	t.mu.Unlock()
	return t.publish(ctx, topic, Action{Type: ActionDisconnect, Topic: topic, Reason: &reason})
}

func (t *MQTransport) Events() <-chan session.Event {
	return t.events
}

// Close 停止消费并关闭事件通道，可重复调用
func (t *MQTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.consumer.Close()
		<-t.done
		close(t.events)
	})
	return err
}
