package queue

import (
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"bridge-relay/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue() *Queue {
	q := New()
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }
	return q
}

func enqueue(t *testing.T, q *Queue, to string) QueuedTransaction {
	t.Helper()
	tx, err := q.Enqueue(QueuedTransaction{Params: TxParams{To: to}, Topic: "topic-a", RequestID: 1})
	require.NoError(t, err)
	return tx
}

func TestNextIDMonotonic(t *testing.T) {
	q := newTestQueue()

	// 时钟不动时仍然严格递增
	a := q.NextID()
	b := q.NextID()
	c := q.NextID()
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestEnqueueKeepsFIFO(t *testing.T) {
	q := newTestQueue()
	first := enqueue(t, q, "0x01")
	second := enqueue(t, q, "0x02")
	third := enqueue(t, q, "0x03")

	snap := q.Snapshot()
	require.Len(t, snap.Queued, 3)
	assert.Equal(t, []int64{first.ID, second.ID, third.ID},
		[]int64{snap.Queued[0].ID, snap.Queued[1].ID, snap.Queued[2].ID})
}

func TestEnqueueRejectsReusedID(t *testing.T) {
	q := newTestQueue()
	tx := enqueue(t, q, "0x01")

	_, err := q.Enqueue(QueuedTransaction{ID: tx.ID, Params: TxParams{To: "0x02"}})
	assert.Error(t, err)

	// 已完成的 ID 同样不能复用
	_, err = q.Complete(tx.ID, common.HexToHash("0x01"))
	require.NoError(t, err)
	_, err = q.Enqueue(QueuedTransaction{ID: tx.ID, Params: TxParams{To: "0x02"}})
	assert.Error(t, err)
}

func TestBeginProcessingSingleSlot(t *testing.T) {
	q := newTestQueue()
	a := enqueue(t, q, "0x01")
	b := enqueue(t, q, "0x02")

	require.NoError(t, q.BeginProcessing(a.ID))
	err := q.BeginProcessing(b.ID)
	assert.ErrorIs(t, err, errno.ErrProcessingBusy)

	id, ok := q.ProcessingID()
	require.True(t, ok)
	assert.Equal(t, a.ID, id)

	err = q.BeginProcessing(999)
	assert.ErrorIs(t, err, errno.ErrTransactionNotFound)
}

func TestClearProcessingOnlyOwner(t *testing.T) {
	q := newTestQueue()
	a := enqueue(t, q, "0x01")
	b := enqueue(t, q, "0x02")

	require.NoError(t, q.BeginProcessing(a.ID))
	assert.False(t, q.ClearProcessing(b.ID), "不能清理别人的槽位")
	assert.True(t, q.ClearProcessing(a.ID))

	_, ok := q.ProcessingID()
	assert.False(t, ok)
	require.NoError(t, q.BeginProcessing(b.ID))
}

func TestTransientFields(t *testing.T) {
	q := newTestQueue()
	a := enqueue(t, q, "0x01")
	hash := common.HexToHash("0xbeef")

	assert.False(t, q.SetPendingHash(a.ID, hash), "未处理时不能写入 Hash")
	require.NoError(t, q.BeginProcessing(a.ID))
	assert.True(t, q.SetPendingHash(a.ID, hash))
	assert.True(t, q.EnableManualCheck(a.ID))

	got, ok := q.PendingHash(a.ID)
	require.True(t, ok)
	assert.Equal(t, hash, got)
	assert.True(t, q.ManualCheckEnabled(a.ID))

	snap := q.Snapshot()
	require.NotNil(t, snap.ProcessingID)
	require.NotNil(t, snap.PendingHash)
	assert.Equal(t, a.ID, *snap.ProcessingID)
	assert.True(t, snap.ManualCheck)
}

func TestCancelIsUnconditional(t *testing.T) {
	q := newTestQueue()
	a := enqueue(t, q, "0x01")
	require.NoError(t, q.BeginProcessing(a.ID))
	q.SetPendingHash(a.ID, common.HexToHash("0x01"))

	removed, ok := q.Cancel(a.ID)
	assert.True(t, ok)
	assert.Equal(t, a.ID, removed.ID)
	assert.Equal(t, "0x01", removed.Params.To)
	assert.Equal(t, 0, q.Len())

	snap := q.Snapshot()
	assert.Nil(t, snap.ProcessingID)
	assert.Nil(t, snap.PendingHash)
	assert.False(t, snap.ManualCheck)

	_, ok = q.Cancel(a.ID)
	assert.False(t, ok)
}

func TestCancelAfterCompleteKeepsSettledSlot(t *testing.T) {
	q := newTestQueue()
	a := enqueue(t, q, "0x01")
	require.NoError(t, q.BeginProcessing(a.ID))
	hash := common.HexToHash("0x01")
	q.SetPendingHash(a.ID, hash)
	_, err := q.Complete(a.ID, hash)
	require.NoError(t, err)

	_, ok := q.Cancel(a.ID)
	assert.False(t, ok)

	snap := q.Snapshot()
	require.NotNil(t, snap.ProcessingID)
	assert.Equal(t, a.ID, *snap.ProcessingID)
	assert.True(t, snap.Settled)
	require.NotNil(t, snap.PendingHash)
	assert.Equal(t, hash, *snap.PendingHash)
	assert.Len(t, snap.Completed, 1)
}

func TestCompleteMovesToCompleted(t *testing.T) {
	q := newTestQueue()
	a, err := q.Enqueue(QueuedTransaction{
		Params:    TxParams{To: "0xabc", Value: "1000000000000000000"},
		Topic:     "topic-a",
		RequestID: 7,
	})
	require.NoError(t, err)
	b := enqueue(t, q, "0xdef")
	hash := common.HexToHash("0x1234")

	require.NoError(t, q.BeginProcessing(a.ID))
	done, err := q.Complete(a.ID, hash)
	require.NoError(t, err)

	assert.Equal(t, a.ID, done.ID)
	assert.Equal(t, hash, done.Hash)
	assert.Equal(t, "0xabc", done.To)
	assert.Equal(t, "1000000000000000000", done.Value)
	assert.Equal(t, q.now(), done.Timestamp)

	_, ok := q.Get(a.ID)
	assert.False(t, ok)
	_, ok = q.Get(b.ID)
	assert.True(t, ok)

	// settled 槽位: 不算处理中，但仍展示 Hash，直到 ClearProcessing
	_, processing := q.ProcessingID()
	assert.False(t, processing)
	snap := q.Snapshot()
	assert.True(t, snap.Settled)
	require.NotNil(t, snap.PendingHash)
	assert.Equal(t, hash, *snap.PendingHash)

	require.NoError(t, q.BeginProcessing(b.ID), "settled 槽位不阻塞下一笔")
}

func TestCompleteDefaultsValue(t *testing.T) {
	q := newTestQueue()
	a := enqueue(t, q, "0x01")

	done, err := q.Complete(a.ID, common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, "0", done.Value)
}

func TestCompleteErrors(t *testing.T) {
	q := newTestQueue()
	a := enqueue(t, q, "0x01")

	_, err := q.Complete(a.ID, common.Hash{})
	assert.Error(t, err, "没有 Hash 不允许完成")
	assert.Equal(t, 1, q.Len())

	_, err = q.Complete(12345, common.HexToHash("0x01"))
	assert.ErrorIs(t, err, errno.ErrTransactionNotFound)
}

func TestCompletedBufferBoundedMostRecentFirst(t *testing.T) {
	q := newTestQueue()
	var ids []int64
	for i := 0; i < 15; i++ {
		tx := enqueue(t, q, fmt.Sprintf("0x%02x", i))
		ids = append(ids, tx.ID)
	}
	for i, id := range ids {
		_, err := q.Complete(id, common.BigToHash(big.NewInt(int64(i+1))))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(q.Snapshot().Completed), CompletedCapacity)
	}

	completed := q.Snapshot().Completed
	require.Len(t, completed, CompletedCapacity)
	// 最新在前: 第 15 笔排第一，前 5 笔已被淘汰
	for i, c := range completed {
		assert.Equal(t, ids[len(ids)-1-i], c.ID)
	}
}

func TestClearDropsEverything(t *testing.T) {
	q := newTestQueue()
	a := enqueue(t, q, "0x01")
	enqueue(t, q, "0x02")
	require.NoError(t, q.BeginProcessing(a.ID))

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())
	_, ok := q.ProcessingID()
	assert.False(t, ok)
}

func TestRecordsTaggedVariant(t *testing.T) {
	q := newTestQueue()
	a := enqueue(t, q, "0x01")
	b := enqueue(t, q, "0x02")
	_, err := q.Complete(a.ID, common.HexToHash("0x01"))
	require.NoError(t, err)

	records := q.Snapshot().Records()
	require.Len(t, records, 2)

	assert.Equal(t, KindQueued, records[0].Kind)
	require.NotNil(t, records[0].Queued)
	assert.Nil(t, records[0].Completed)
	assert.Equal(t, b.ID, records[0].Queued.ID)

	assert.Equal(t, KindCompleted, records[1].Kind)
	require.NotNil(t, records[1].Completed)
	assert.Nil(t, records[1].Queued)
	assert.Equal(t, a.ID, records[1].Completed.ID)
}

// 生产者 (会话管理) 与消费者 (中继引擎) 并发按 ID 修改，不能丢失更新
func TestConcurrentMutationsByID(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	ids := make(chan int64, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := q.Enqueue(QueuedTransaction{Params: TxParams{To: fmt.Sprintf("0x%x", i)}})
			if err == nil {
				ids <- tx.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	var all []int64
	for id := range ids {
		all = append(all, id)
	}
	require.Len(t, all, 100)

	for i, id := range all {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = q.Cancel(id)
			} else {
				_, _ = q.Complete(id, common.BigToHash(big.NewInt(id)))
			}
		}(i, id)
	}
	wg.Wait()

	snap := q.Snapshot()
	assert.Empty(t, snap.Queued)
	assert.Len(t, snap.Completed, CompletedCapacity)
}
