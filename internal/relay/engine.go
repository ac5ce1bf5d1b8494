package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"bridge-relay/internal/contract"
	"bridge-relay/internal/queue"
	"bridge-relay/internal/status"
	"bridge-relay/pkg/errno"
	"bridge-relay/pkg/logger"
	"bridge-relay/pkg/monitor"
	"bridge-relay/pkg/network"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options 引擎可调参数，零值使用默认
type Options struct {
	Mode         Mode
	PollInterval time.Duration
	CheckRate    time.Duration // 手动查询最小间隔
	Recorders    []Recorder
}

// attempt 一笔处理中的中继
type attempt struct {
	cancel  context.CancelFunc
	gasCost *big.Int
	total   *big.Int
}

// Engine 中继引擎
type Engine struct {
	queue   *queue.Queue
	chain   ChainClient
	account Account
	session Session
	board   *status.Board
	network network.L2Network
	mode    Mode

	recorders []Recorder
	limiter   *rate.Limiter
	log       *zap.Logger

	timeout      time.Duration
	initialDelay time.Duration
	pollInterval time.Duration
	grace        time.Duration

	mu       sync.Mutex
	inflight map[int64]*attempt
	settleMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(q *queue.Queue, chain ChainClient, account Account, session Session, board *status.Board, net network.L2Network, opts Options) *Engine {
	if opts.Mode == "" {
		opts.Mode = ModePortal
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CheckRate <= 0 {
		opts.CheckRate = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		queue:        q,
		chain:        chain,
		account:      account,
		session:      session,
		board:        board,
		network:      net,
		mode:         opts.Mode,
		recorders:    opts.Recorders,
		limiter:      rate.NewLimiter(rate.Every(opts.CheckRate), 1),
		log:          logger.Named("relay"),
		timeout:      SignatureTimeout,
		initialDelay: InitialCheckDelay,
		pollInterval: opts.PollInterval,
		grace:        GraceDelay,
		inflight:     make(map[int64]*attempt),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Mode 当前中继策略
func (e *Engine) Mode() Mode { return e.mode }

// Network 目标 L2 网络
func (e *Engine) Network() network.L2Network { return e.network }

// Account L1 签名地址
func (e *Engine) Account() common.Address { return e.account.Address() }

// Submit 中继一笔排队中的交易，返回 L1 Hash。
// 广播成功后立即返回，回执在后台跟踪。
// 本次尝试绑定在引擎生命周期上，调用方 ctx 结束不会中断已开始的签名。
func (e *Engine) Submit(ctx context.Context, id int64) (common.Hash, error) {
	start := time.Now()

	// 1. 校验队列与会话
	tx, ok := e.queue.Get(id)
	if !ok {
		return common.Hash{}, errno.ErrTransactionNotFound
	}
	if !e.session.CheckSession(ctx) {
		e.board.SetText("No active session")
		return common.Hash{}, errno.ErrInvalidSession
	}

	// 2. 占用处理槽位，同一 ID 正在进行中的尝试不允许重入
	attemptCtx, cancel := context.WithCancel(e.ctx)
	att := &attempt{cancel: cancel}
	if !e.track(id, att) {
		cancel()
		return common.Hash{}, fmt.Errorf("%w: %d", errno.ErrProcessingBusy, id)
	}
	if err := e.queue.BeginProcessing(id); err != nil {
		e.untrack(id)
		return common.Hash{}, err
	}

	e.log.Info("开始中继",
		zap.Int64("id", id),
		zap.String("to", tx.Params.To),
		zap.String("mode", string(e.mode)),
		zap.String("network", e.network.Key))
	e.board.SetText("Preparing transaction...")

	// 3. 构造并估算 L1 交易
	req, err := e.prepare(attemptCtx, tx, att)
	if err != nil {
		e.fail(id, err, start)
		return common.Hash{}, err
	}

	// 4. 签名广播 (带超时回扫)
	e.board.SetText("Waiting for signature...")
	hash, err := e.send(attemptCtx, req)
	if err != nil {
		e.fail(id, err, start)
		return common.Hash{}, err
	}

	// 5. 记录 Hash，开启手动查询与后台轮询
	if !e.queue.SetPendingHash(id, hash) {
		// 期间被取消
		return hash, fmt.Errorf("relay %d cancelled: %w", id, context.Canceled)
	}
	e.queue.EnableManualCheck(id)
	e.board.SetText("Transaction submitted: " + hash.Hex())
	monitor.ObserveSubmission(string(e.mode), "submitted", time.Since(start).Seconds())
	e.log.Info("L1 交易已广播", zap.Int64("id", id), zap.String("hash", hash.Hex()))

	e.wg.Add(1)
	go e.watch(attemptCtx, tx, hash)
	return hash, nil
}

// prepare 按模式构造 L1 交易并计算 value = 原始金额 + 1.5 倍 gas 费用
func (e *Engine) prepare(ctx context.Context, tx queue.QueuedTransaction, att *attempt) (TxRequest, error) {
	p, err := parseParams(tx.Params)
	if err != nil {
		return TxRequest{}, err
	}

	var (
		to   common.Address
		data []byte
	)
	switch e.mode {
	case ModeDirect:
		to, data = p.To, p.Data
	default:
		data, err = contract.EncodeDeposit(contract.DepositParams{
			To:       p.To,
			Value:    p.Value,
			GasLimit: p.GasLimit,
			Data:     p.Data,
		})
		if err != nil {
			return TxRequest{}, fmt.Errorf("%w: %v", errno.ErrInvalidParams, err)
		}
		to = e.network.Portal()
	}

	// 估算时带上桥接金额，payable 的目标合约才能按真实 msg.value 执行
	estimate, err := e.chain.EstimateGas(ctx, ethereum.CallMsg{
		From:  e.account.Address(),
		To:    &to,
		Value: p.Value,
		Data:  data,
	})
	if err != nil {
		return TxRequest{}, fmt.Errorf("%w: %v", errno.ErrGasEstimationFailed, err)
	}
	gasPrice, err := e.chain.SuggestGasPrice(ctx)
	if err != nil {
		return TxRequest{}, fmt.Errorf("%w: gas price: %v", errno.ErrGasEstimationFailed, err)
	}

	gasCost := BufferedGasCost(estimate, gasPrice)
	total := TotalValue(p.Value, gasCost)

	e.mu.Lock()
	att.gasCost, att.total = gasCost, total
	e.mu.Unlock()

	e.log.Debug("gas 估算完成",
		zap.Int64("id", tx.ID),
		zap.Uint64("gas", estimate),
		zap.String("gas_price", gasPrice.String()),
		zap.String("gas_cost", gasCost.String()),
		zap.String("total_value", total.String()))

	return TxRequest{To: to, Value: total, Data: data, Gas: estimate, GasPrice: gasPrice}, nil
}

// send 签名广播与超时竞争，超时后回扫最近区块找回可能已广播的交易
func (e *Engine) send(ctx context.Context, req TxRequest) (common.Hash, error) {
	sendCtx, cancelSend := context.WithCancel(ctx)
	defer cancelSend()

	type result struct {
		hash common.Hash
		err  error
	}
	done := make(chan result, 1)
	go func() {
		hash, err := e.account.SendTransaction(sendCtx, req)
		done <- result{hash, err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			if ctx.Err() != nil {
				return common.Hash{}, ctx.Err()
			}
			return common.Hash{}, fmt.Errorf("%w: %v", errno.ErrSubmissionFailed, r.err)
		}
		return r.hash, nil
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	case <-timer.C:
	}

	cancelSend()
	e.log.Warn("签名超时，回扫最近区块", zap.Duration("timeout", e.timeout), zap.String("to", req.To.Hex()))
	hash, found, err := e.recoverByScan(ctx, req.To)
	if err != nil {
		e.log.Warn("回扫区块失败", zap.Error(err))
	}
	if found {
		monitor.ObserveRecovered()
		e.log.Info("回扫找回交易", zap.String("hash", hash.Hex()))
		return hash, nil
	}
	return common.Hash{}, errno.ErrSignatureTimeout
}

// recoverByScan 从最新区块往前扫 RecoveryDepth 个块，
// 找 from=签名账户且 to=recipient 的第一笔交易 (地址按字节比较，与大小写无关)
func (e *Engine) recoverByScan(ctx context.Context, recipient common.Address) (common.Hash, bool, error) {
	head, err := e.chain.BlockNumber(ctx)
	if err != nil {
		return common.Hash{}, false, err
	}
	from := e.account.Address()

	for i := uint64(0); i < RecoveryDepth && i <= head; i++ {
		txs, err := e.chain.BlockTransactions(ctx, head-i)
		if err != nil {
			return common.Hash{}, false, fmt.Errorf("block %d: %w", head-i, err)
		}
		for _, t := range txs {
			if t.To != nil && t.From == from && *t.To == recipient {
				return t.Hash, true, nil
			}
		}
	}
	return common.Hash{}, false, nil
}

// watch 广播后的回执轮询: 先等 initialDelay，然后每 pollInterval 查一次
// 交易离开队列 (完成、取消、会话清空) 或引擎关闭时退出
func (e *Engine) watch(ctx context.Context, tx queue.QueuedTransaction, hash common.Hash) {
	defer e.wg.Done()

	timer := time.NewTimer(e.initialDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		if _, ok := e.queue.Get(tx.ID); !ok {
			e.log.Debug("交易已离开队列，停止轮询", zap.Int64("id", tx.ID))
			e.untrack(tx.ID)
			return
		}

		settled, err := e.checkReceipt(ctx, tx, hash)
		if err != nil {
			e.log.Warn("查询回执失败", zap.Int64("id", tx.ID), zap.Error(err))
		} else if settled {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check 手动查询一次回执 (限流)，返回是否已确认
func (e *Engine) Check(ctx context.Context, id int64) (bool, error) {
	tx, ok := e.queue.Get(id)
	if !ok {
		return false, errno.ErrTransactionNotFound
	}
	if !e.queue.ManualCheckEnabled(id) {
		return false, errno.ErrCheckNotReady
	}
	hash, ok := e.queue.PendingHash(id)
	if !ok {
		return false, errno.ErrCheckNotReady
	}
	if !e.limiter.Allow() {
		return false, errno.ErrCheckThrottled
	}

	e.board.SetText("Checking transaction status...")
	settled, err := e.checkReceipt(ctx, tx, hash)
	if err != nil {
		e.board.SetText("Failed to check transaction status")
		return false, err
	}
	if !settled {
		e.board.SetText("Transaction still pending...")
	}
	return settled, nil
}

// checkReceipt 查询一次回执，有回执则结算
func (e *Engine) checkReceipt(ctx context.Context, tx queue.QueuedTransaction, hash common.Hash) (bool, error) {
	receipt, err := e.chain.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", errno.ErrReceiptCheckFailed, err)
	}
	e.settle(tx, hash, receipt)
	return true, nil
}

// settle 回执到达后的结算，轮询与手动查询可能同时进入，以队列 Complete 的结果为准
func (e *Engine) settle(tx queue.QueuedTransaction, hash common.Hash, receipt *types.Receipt) {
	e.settleMu.Lock()
	defer e.settleMu.Unlock()

	completed, err := e.queue.Complete(tx.ID, hash)
	if err != nil {
		// 已被另一路结算或已取消
		e.log.Debug("跳过结算", zap.Int64("id", tx.ID), zap.Error(err))
		return
	}
	att := e.untrack(tx.ID)
	monitor.ObserveQueueDepth(e.queue.Len())

	reverted := receipt.Status == types.ReceiptStatusFailed
	monitor.ObserveConfirmed(reverted)
	if reverted {
		// 回执状态不影响完成判定，只记录
		e.log.Warn("L1 交易已上链但执行失败", zap.Int64("id", tx.ID), zap.String("hash", hash.Hex()))
	}
	if e.mode == ModePortal {
		for _, ev := range contract.DecodeDepositEvents(e.network.Portal(), receipt.Logs) {
			e.log.Info("TransactionDeposited",
				zap.String("from", ev.From.Hex()),
				zap.String("to", ev.To.Hex()),
				zap.Int("opaque_data_len", len(ev.OpaqueData)),
				zap.String("tx", ev.TxHash.Hex()))
		}
	}

	e.board.SetText("Transaction confirmed")
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	e.log.Info("中继完成",
		zap.Int64("id", tx.ID),
		zap.String("hash", hash.Hex()),
		zap.Uint64("block", block))

	// 回复来源请求，只会发生一次 (Complete 成功才会走到这里)
	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()
	if err := e.session.RespondTransaction(ctx, tx.Topic, tx.RequestID, hash); err != nil {
		e.log.Warn("回复 dApp 请求失败", zap.Int64("id", tx.ID), zap.Error(err))
	}

	s := Settlement{
		Queued:    tx,
		Completed: completed,
		Network:   e.network.Key,
		Mode:      e.mode,
		Reverted:  reverted,
	}
	if att != nil {
		s.GasCost, s.Total = att.gasCost, att.total
	}
	for _, r := range e.recorders {
		if err := r.Record(ctx, s); err != nil {
			e.log.Warn("记录中继结果失败", zap.Int64("id", tx.ID), zap.Error(err))
		}
	}

	e.clearAfterGrace(tx.ID)
}

// Cancel 取消一笔排队中的交易: 中止进行中的尝试、移出队列、尽力拒绝来源请求
func (e *Engine) Cancel(ctx context.Context, id int64) error {
	// 取出与移除在同一次加锁内完成，已 settle 的交易不会再被拒绝
	tx, ok := e.queue.Cancel(id)
	if !ok {
		return errno.ErrTransactionNotFound
	}
	e.untrack(id)
	monitor.ObserveCancelled()
	monitor.ObserveQueueDepth(e.queue.Len())
	e.board.SetText("Transaction cancelled")

	if err := e.session.RejectRequest(ctx, tx.Topic, tx.RequestID); err != nil {
		e.log.Warn("拒绝 dApp 请求失败", zap.Int64("id", id), zap.Error(err))
	}
	e.log.Info("交易已取消", zap.Int64("id", id))
	return nil
}

// fail 本次尝试失败: 展示错误，宽限期后释放槽位，交易留在队列里可重试
func (e *Engine) fail(id int64, err error, start time.Time) {
	e.untrack(id)
	if _, ok := e.queue.Get(id); !ok {
		// 已被取消或会话清空，状态由那一方负责
		return
	}

	outcome := "failed"
	if errors.Is(err, errno.ErrSignatureTimeout) {
		outcome = "timeout"
		e.board.SetText("Signature timed out. The transaction may still have been broadcast; check the explorer before retrying")
	} else {
		_, msg := errno.Decode(err)
		e.board.SetText("Transaction failed: " + msg)
	}
	monitor.ObserveSubmission(string(e.mode), outcome, time.Since(start).Seconds())
	e.log.Error("中继失败", zap.Int64("id", id), zap.Error(err))

	e.clearAfterGrace(id)
}

func (e *Engine) clearAfterGrace(id int64) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		t := time.NewTimer(e.grace)
		defer t.Stop()
		select {
		case <-t.C:
			// 宽限期内同一 ID 被重新提交，槽位归新的尝试
			if !e.inFlight(id) {
				e.queue.ClearProcessing(id)
			}
		case <-e.ctx.Done():
		}
	}()
}

func (e *Engine) track(id int64, att *attempt) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inflight[id]; ok {
		return false
	}
	e.inflight[id] = att
	return true
}

func (e *Engine) inFlight(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[id]
	return ok
}

func (e *Engine) untrack(id int64) *attempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	att, ok := e.inflight[id]
	if !ok {
		return nil
	}
	att.cancel()
	delete(e.inflight, id)
	return att
}

// AbortAll 中止所有进行中的尝试与轮询，会话失效清空队列时调用
func (e *Engine) AbortAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, att := range e.inflight {
		att.cancel()
		delete(e.inflight, id)
	}
}

// Close 停止所有后台轮询与宽限计时
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}
