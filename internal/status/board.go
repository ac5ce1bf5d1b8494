package status

import (
	"sync"
	"time"
)

// Update 状态面板的一次变更
type Update struct {
	Text      string    `json:"text"`
	Connected bool      `json:"connected"`
	At        time.Time `json:"at"`
}

// Sink 接收状态变更 (例如推送到 MQ)
// 在 Board 的锁之外调用，实现方可以做 I/O，但不应长时间阻塞
type Sink interface {
	OnStatus(u Update)
}

// SinkFunc 函数适配
type SinkFunc func(u Update)

func (f SinkFunc) OnStatus(u Update) { f(u) }

// Board 对外输出的状态面: 一段自由文本 + 连接标记
// 会话管理和中继引擎都会写，HTTP 层读
type Board struct {
	mu        sync.RWMutex
	text      string
	connected bool
	updatedAt time.Time
	sinks     []Sink
}

func NewBoard() *Board {
	return &Board{}
}

// Subscribe 注册变更监听
func (b *Board) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// SetText 更新状态文本
func (b *Board) SetText(text string) {
	b.mu.Lock()
	b.text = text
	u, sinks := b.snapshotLocked()
	b.mu.Unlock()

	notify(sinks, u)
}

// SetConnected 更新连接标记，未变化时不通知
func (b *Board) SetConnected(connected bool) {
	b.mu.Lock()
	if b.connected == connected {
		b.mu.Unlock()
		return
	}
	b.connected = connected
	u, sinks := b.snapshotLocked()
	b.mu.Unlock()

	notify(sinks, u)
}

// Get 读取当前状态
func (b *Board) Get() Update {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Update{Text: b.text, Connected: b.connected, At: b.updatedAt}
}

func (b *Board) snapshotLocked() (Update, []Sink) {
	b.updatedAt = time.Now()
	return Update{Text: b.text, Connected: b.connected, At: b.updatedAt}, append([]Sink(nil), b.sinks...)
}

func notify(sinks []Sink, u Update) {
	for _, s := range sinks {
		s.OnStatus(u)
	}
}
