package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"bridge-relay/internal/queue"
	"bridge-relay/internal/status"
	"bridge-relay/pkg/errno"
	"bridge-relay/pkg/logger"
	"bridge-relay/pkg/monitor"
	"bridge-relay/pkg/network"
	"bridge-relay/pkg/utils/lock"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultDedupTTL 重复投递抑制窗口
const DefaultDedupTTL = 10 * time.Minute

type Options struct {
	// Dedup 为 nil 时使用进程内 MemoryLock
	Dedup    lock.DistributedLock
	DedupTTL time.Duration
	// OnPurge 会话失效清空队列后回调，用来中止进行中的中继
	OnPurge func()
}

// Manager 会话管理器。传输层事件与外部调用都在 mu 下串行执行
type Manager struct {
	factory  TransportFactory
	queue    *queue.Queue
	board    *status.Board
	registry *network.Registry
	account  MessageSigner

	dedup    lock.DistributedLock
	dedupTTL time.Duration
	onPurge  func()
	log      *zap.Logger

	mu         sync.Mutex
	state      State
	transport  Transport
	identity   Identity
	generation uint64
	answered   map[uint64]struct{} // 已答复的提案 id
	loopCancel context.CancelFunc

	wg sync.WaitGroup
}

func NewManager(factory TransportFactory, q *queue.Queue, board *status.Board, registry *network.Registry, account MessageSigner, opts Options) *Manager {
	if opts.Dedup == nil {
		opts.Dedup = lock.NewMemoryLock(time.Minute)
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = DefaultDedupTTL
	}
	return &Manager{
		factory:  factory,
		queue:    q,
		board:    board,
		registry: registry,
		account:  account,
		dedup:    opts.Dedup,
		dedupTTL: opts.DedupTTL,
		onPurge:  opts.OnPurge,
		log:      logger.Named("session"),
		answered: make(map[uint64]struct{}),
	}
}

// Init 为 identity 建立传输层实例。
// 已有实例时先拆除 (断开全部会话、关闭、置空)，旧实例之后投递的事件一律丢弃。
func (m *Manager) Init(ctx context.Context, id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 1. 拆除旧实例
	m.teardownLocked(ctx)

	// 2. 创建新实例
	m.state = StateInitializing
	m.generation++
	gen := m.generation

	t, err := m.factory(ctx, id)
	if err != nil {
		m.state = StateUninitialized
		m.setConnectedLocked(false)
		m.board.SetText("Failed to initialize session transport")
		m.log.Error("初始化会话传输层失败", zap.Error(err))
		return fmt.Errorf("%w: %v", errno.ErrNotInitialized, err)
	}

	// 3. 启动事件循环
	loopCtx, cancel := context.WithCancel(context.Background())
	m.transport = t
	m.identity = id
	m.loopCancel = cancel
	m.state = StateReady

	m.wg.Add(1)
	go m.loop(loopCtx, gen, t.Events())

	// 传输层可能恢复了已有会话
	m.setConnectedLocked(len(t.ActiveSessions()) > 0)
	m.log.Info("会话传输层已就绪",
		zap.String("address", id.Address.Hex()),
		zap.Uint64("generation", gen))
	return nil
}

// teardownLocked 幂等: 没有实例或没有会话时什么也不做
func (m *Manager) teardownLocked(ctx context.Context) {
	if m.transport == nil {
		return
	}
	t := m.transport
	m.transport = nil
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}

	for topic := range t.ActiveSessions() {
		if err := t.DisconnectSession(ctx, topic, ReasonUserDisconnected); err != nil {
			m.log.Warn("断开会话失败", zap.String("topic", topic), zap.Error(err))
		}
	}
	if err := t.Close(); err != nil {
		m.log.Warn("关闭传输层失败", zap.Error(err))
	}

	m.state = StateUninitialized
	m.answered = make(map[uint64]struct{})
	m.setConnectedLocked(false)
}

func (m *Manager) loop(ctx context.Context, gen uint64, events <-chan Event) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := m.dispatch(ctx, gen, ev); err != nil {
				m.log.Warn("处理会话事件失败",
					zap.String("type", string(ev.Kind)),
					zap.Uint64("id", ev.ID),
					zap.Error(err))
			}
		}
	}
}

// Dispatch 处理一条事件 (当前实例)
func (m *Manager) Dispatch(ctx context.Context, ev Event) error {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()
	return m.dispatch(ctx, gen, ev)
}

func (m *Manager) dispatch(ctx context.Context, gen uint64, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.transport == nil {
		m.log.Debug("丢弃旧实例事件", zap.String("type", string(ev.Kind)), zap.Uint64("generation", gen))
		return nil
	}
	monitor.ObserveSessionEvent(string(ev.Kind))

	switch ev.Kind {
	case EventSessionProposal:
		return m.handleProposalLocked(ctx, ev)
	case EventSessionRequest:
		return m.handleRequestLocked(ctx, ev)
	case EventSessionExpire, EventSessionDelete:
		m.handleSessionEndLocked(ev)
		return nil
	default:
		m.log.Debug("忽略未知事件", zap.String("type", string(ev.Kind)))
		return nil
	}
}

func (m *Manager) handleProposalLocked(ctx context.Context, ev Event) error {
	if _, done := m.answered[ev.ID]; done {
		m.log.Info("提案已答复，忽略重复投递", zap.Uint64("id", ev.ID))
		return nil
	}
	m.answered[ev.ID] = struct{}{}

	err := m.approveLocked(ctx, ev)
	if err != nil {
		if rerr := m.transport.RejectSession(ctx, ev.ID, ReasonUserRejected); rerr != nil {
			m.log.Warn("拒绝提案失败", zap.Uint64("id", ev.ID), zap.Error(rerr))
		}
		m.board.SetText("Session rejected")
		return fmt.Errorf("%w: %v", errno.ErrSessionProposalRejected, err)
	}

	m.setConnectedLocked(true)
	m.board.SetText("Connected to L2 dApp")
	return nil
}

func (m *Manager) approveLocked(ctx context.Context, ev Event) error {
	p, err := ev.Proposal()
	if err != nil {
		return err
	}
	ns, err := BuildNamespaces(p, m.registry.ChainIDs(), m.account.Address())
	if err != nil {
		return err
	}
	if err := m.transport.ApproveSession(ctx, ev.ID, ns); err != nil {
		return err
	}
	m.log.Info("会话已批准",
		zap.Uint64("id", ev.ID),
		zap.String("peer", p.Proposer.Metadata.Name),
		zap.Strings("chains", ns[namespaceEIP155].Chains))
	return nil
}

// handleSessionEndLocked 会话过期/删除: 整个队列清空 (保守策略，不区分 topic)
func (m *Manager) handleSessionEndLocked(ev Event) {
	m.setConnectedLocked(false)
	dropped := m.queue.Clear()
	if m.onPurge != nil {
		m.onPurge()
	}
	monitor.ObserveQueueDepth(0)
	m.board.SetText("Session ended")
	m.log.Info("会话结束，清空队列",
		zap.String("type", string(ev.Kind)),
		zap.String("topic", ev.Topic),
		zap.Int("dropped", dropped))
}

// Pair 把配对 URI 交给传输层
func (m *Manager) Pair(ctx context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateReady || m.transport == nil {
		return errno.ErrNotInitialized
	}
	if err := m.transport.Pair(ctx, uri); err != nil {
		m.board.SetText("Pairing failed: " + err.Error())
		return fmt.Errorf("%w: %v", errno.ErrPairingFailed, err)
	}
	m.board.SetText("Pairing... waiting for session proposal")
	return nil
}

// CheckSession 是否存在活跃会话
func (m *Manager) CheckSession(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport != nil && len(m.transport.ActiveSessions()) > 0
}

// Sessions 活跃会话列表 (按 topic 排序)
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transport == nil {
		return nil
	}
	out := make([]Session, 0)
	for _, s := range m.transport.ActiveSessions() {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Identity() Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// RespondTransaction 用 L1 Hash 答复来源请求
func (m *Manager) RespondTransaction(ctx context.Context, topic string, requestID uint64, hash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transport == nil {
		return errno.ErrNotInitialized
	}
	return m.transport.RespondSessionRequest(ctx, topic, NewResult(requestID, hash.Hex()))
}

// RejectRequest 以 USER_REJECTED 拒绝来源请求
func (m *Manager) RejectRequest(ctx context.Context, topic string, requestID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transport == nil {
		return errno.ErrNotInitialized
	}
	return m.transport.RejectSessionRequest(ctx, topic, requestID, ReasonUserRejected)
}

// Close 拆除当前实例并等待事件循环退出
func (m *Manager) Close() {
	m.mu.Lock()
	m.teardownLocked(context.Background())
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) setConnectedLocked(connected bool) {
	m.board.SetConnected(connected)
	monitor.ObserveSession(connected)
}

// rejectLocked 拒绝请求失败只记日志，错误按 cause 返回
func (m *Manager) rejectLocked(ctx context.Context, ev Event, reason Reason, cause error) error {
	if err := m.transport.RejectSessionRequest(ctx, ev.Topic, ev.ID, reason); err != nil {
		m.log.Warn("拒绝请求失败", zap.String("topic", ev.Topic), zap.Uint64("id", ev.ID), zap.Error(err))
		return errors.Join(cause, err)
	}
	return cause
}
