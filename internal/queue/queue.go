package queue

import (
	"fmt"
	"sync"
	"time"

	"bridge-relay/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
)

// Queue 内存中的交易队列，L2 dApp "欠账" 的唯一来源
// 所有修改都按 ID 进行，不使用下标，避免并发事件下的丢失更新
// 不做任何 I/O
type Queue struct {
	mu sync.Mutex

	queued    []QueuedTransaction
	completed []CompletedTransaction

	// 处理中标记 (单槽位) 及其瞬时字段
	// settled: 已确认、已移入 completed，只等宽限期后清理展示字段
	processing  *int64
	pendingHash *common.Hash
	manualCheck bool
	settled     bool

	lastID int64
	now    func() time.Time
}

func New() *Queue {
	return &Queue{now: time.Now}
}

// NextID 生成基于时间的单调递增 ID (毫秒)，保证永不复用
func (q *Queue) NextID() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextIDLocked()
}

func (q *Queue) nextIDLocked() int64 {
	id := q.now().UnixMilli()
	if id <= q.lastID {
		id = q.lastID + 1
	}
	q.lastID = id
	return id
}

// Enqueue 追加到队尾 (FIFO)。ID 为 0 时自动分配
func (q *Queue) Enqueue(tx QueuedTransaction) (QueuedTransaction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if tx.ID == 0 {
		tx.ID = q.nextIDLocked()
	} else {
		if q.indexLocked(tx.ID) >= 0 || q.completedLocked(tx.ID) {
			return QueuedTransaction{}, fmt.Errorf("transaction id %d already used", tx.ID)
		}
		if tx.ID > q.lastID {
			q.lastID = tx.ID
		}
	}

	q.queued = append(q.queued, tx)
	return tx, nil
}

// Get 按 ID 查询队列中的交易
func (q *Queue) Get(id int64) (QueuedTransaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return QueuedTransaction{}, false
	}
	return q.queued[i], true
}

// Len 队列长度 (不含已完成)
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

// BeginProcessing 占用处理槽位
// 同一时刻最多一个处理中的交易；槽位被其他 ID 占用说明调用方没有串行化，返回 ErrProcessingBusy
func (q *Queue) BeginProcessing(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexLocked(id) < 0 {
		return fmt.Errorf("%w: %d", errno.ErrTransactionNotFound, id)
	}
	if q.processing != nil && *q.processing != id && !q.settled {
		return fmt.Errorf("%w: %d", errno.ErrProcessingBusy, *q.processing)
	}

	pid := id
	q.processing = &pid
	q.pendingHash = nil
	q.manualCheck = false
	q.settled = false
	return nil
}

// ProcessingID 返回当前处理中的 ID (已确认待清理的不算)
func (q *Queue) ProcessingID() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing == nil || q.settled {
		return 0, false
	}
	return *q.processing, true
}

// ClearProcessing 仅当槽位仍属于 id 时才清空 (延迟清理不能误伤下一笔)
func (q *Queue) ClearProcessing(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing == nil || *q.processing != id {
		return false
	}
	q.clearTransientLocked()
	return true
}

// SetPendingHash 记录处理中交易的 L1 Hash
func (q *Queue) SetPendingHash(id int64, hash common.Hash) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing == nil || *q.processing != id {
		return false
	}
	h := hash
	q.pendingHash = &h
	return true
}

// PendingHash 返回 id 对应的待确认 Hash
func (q *Queue) PendingHash(id int64) (common.Hash, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing == nil || *q.processing != id || q.pendingHash == nil {
		return common.Hash{}, false
	}
	return *q.pendingHash, true
}

// EnableManualCheck 打开手动查询回执
func (q *Queue) EnableManualCheck(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing == nil || *q.processing != id || q.settled {
		return false
	}
	q.manualCheck = true
	return true
}

// ManualCheckEnabled 判断 id 是否允许手动查询
func (q *Queue) ManualCheckEnabled(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.processing != nil && *q.processing == id && q.manualCheck && !q.settled
}

// Cancel 无条件移出队列 (不管协议层拒绝是否成功)，返回被移出的交易。
// 不在队列中 (已完成或已清空) 时返回 false，处理字段保持不动
func (q *Queue) Cancel(id int64) (QueuedTransaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return QueuedTransaction{}, false
	}
	tx := q.queued[i]
	q.removeLocked(id)
	if q.processing != nil && *q.processing == id {
		q.clearTransientLocked()
	}
	return tx, true
}

// Complete 移出队列并写入已完成列表 (最新在前，最多 10 条)
// 若 id 正在处理，槽位转为 settled: 不再算作处理中，但 Hash 仍可展示，
// 由调用方在宽限期后 ClearProcessing
func (q *Queue) Complete(id int64, hash common.Hash) (CompletedTransaction, error) {
	if hash == (common.Hash{}) {
		return CompletedTransaction{}, fmt.Errorf("complete %d: empty tx hash", id)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return CompletedTransaction{}, fmt.Errorf("%w: %d", errno.ErrTransactionNotFound, id)
	}
	tx := q.queued[i]

	value := tx.Params.Value
	if value == "" {
		value = "0"
	}
	done := CompletedTransaction{
		ID:        tx.ID,
		Hash:      hash,
		Timestamp: q.now(),
		To:        tx.Params.To,
		Value:     value,
	}

	q.removeLocked(id)
	if q.processing != nil && *q.processing == id {
		h := hash
		q.pendingHash = &h
		q.manualCheck = false
		q.settled = true
	}
	q.completed = append([]CompletedTransaction{done}, q.completed...)
	if len(q.completed) > CompletedCapacity {
		q.completed = q.completed[:CompletedCapacity]
	}
	return done, nil
}

// Clear 会话失效时清空整个队列，返回被丢弃的数量
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.queued)
	q.queued = nil
	q.clearTransientLocked()
	return n
}

// Snapshot 返回深拷贝
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Snapshot{
		Queued:      append([]QueuedTransaction(nil), q.queued...),
		Completed:   append([]CompletedTransaction(nil), q.completed...),
		ManualCheck: q.manualCheck,
		Settled:     q.settled,
	}
	if q.processing != nil {
		id := *q.processing
		s.ProcessingID = &id
	}
	if q.pendingHash != nil {
		h := *q.pendingHash
		s.PendingHash = &h
	}
	return s
}

func (q *Queue) indexLocked(id int64) int {
	for i := range q.queued {
		if q.queued[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) completedLocked(id int64) bool {
	for i := range q.completed {
		if q.completed[i].ID == id {
			return true
		}
	}
	return false
}

func (q *Queue) removeLocked(id int64) bool {
	i := q.indexLocked(id)
	if i < 0 {
		return false
	}
	q.queued = append(q.queued[:i:i], q.queued[i+1:]...)
	return true
}

func (q *Queue) clearTransientLocked() {
	q.processing = nil
	q.pendingHash = nil
	q.manualCheck = false
	q.settled = false
}
