package handler

import (
	"context"
	"strconv"
	"time"

	"bridge-relay/internal/handler/request"
	"bridge-relay/internal/handler/response"
	"bridge-relay/internal/model"
	"bridge-relay/internal/queue"
	"bridge-relay/internal/relay"
	"bridge-relay/internal/session"
	"bridge-relay/internal/status"
	"bridge-relay/pkg/errno"
	"bridge-relay/pkg/network"
	"bridge-relay/pkg/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// SessionService 会话管理器对 HTTP 暴露的部分
type SessionService interface {
	Init(ctx context.Context, id session.Identity) error
	Pair(ctx context.Context, uri string) error
	Sessions() []session.Session
	State() session.State
	Identity() session.Identity
}

// RelayService 中继引擎对 HTTP 暴露的部分
type RelayService interface {
	Submit(ctx context.Context, id int64) (common.Hash, error)
	Check(ctx context.Context, id int64) (bool, error)
	Cancel(ctx context.Context, id int64) error
	Mode() relay.Mode
	Network() network.L2Network
	Account() common.Address
}

// HistoryReader 归档读取 (未启用数据库时为 nil)
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]model.RelayRecord, error)
}

type RelayHandler struct {
	sessions SessionService
	relay    RelayService
	queue    *queue.Queue
	board    *status.Board
	registry *network.Registry
	history  HistoryReader
}

func NewRelayHandler(sessions SessionService, rs RelayService, q *queue.Queue, board *status.Board, registry *network.Registry, history HistoryReader) *RelayHandler {
	return &RelayHandler{
		sessions: sessions,
		relay:    rs,
		queue:    q,
		board:    board,
		registry: registry,
		history:  history,
	}
}

// StatusView 状态面 + 运行信息
type StatusView struct {
	Text      string           `json:"text"`
	Connected bool             `json:"connected"`
	UpdatedAt time.Time        `json:"updated_at"`
	State     string           `json:"state"`
	Identity  session.Identity `json:"identity"`
	Account   string           `json:"account"`
	Network   string           `json:"network"`
	Mode      string           `json:"mode"`
	Queued    int              `json:"queued"`
}

// TransactionView 队列/历史条目的展示形态，金额换算成 ETH
type TransactionView struct {
	ID        int64      `json:"id"`
	Status    string     `json:"status"` // queued, processing, pending, completed
	To        string     `json:"to"`
	Value     string     `json:"value"`
	Data      string     `json:"data,omitempty"`
	Topic     string     `json:"topic,omitempty"`
	RequestID uint64     `json:"request_id,omitempty"`
	Hash      string     `json:"hash,omitempty"`
	L1TxURL   string     `json:"l1_tx_url,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// GetStatus 当前状态
// @Summary 当前状态
// @Tags Relay
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/status [get]
func (h *RelayHandler) GetStatus(c *gin.Context) {
	st := h.board.Get()
	response.Success(c, StatusView{
		Text:      st.Text,
		Connected: st.Connected,
		UpdatedAt: st.At,
		State:     h.sessions.State().String(),
		Identity:  h.sessions.Identity(),
		Account:   h.relay.Account().Hex(),
		Network:   h.relay.Network().Key,
		Mode:      string(h.relay.Mode()),
		Queued:    h.queue.Len(),
	})
}

// InitSession 以 L1 账户为身份 (重新) 初始化会话传输层，已有会话会被断开
// @Summary 初始化会话
// @Tags Session
// @Accept json
// @Produce json
// @Param request body request.InitSessionRequest false "Init Request"
// @Success 200 {object} response.Response
// @Router /api/v1/session/init [post]
func (h *RelayHandler) InitSession(c *gin.Context) {
	var req request.InitSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errno.ErrBind)
			return
		}
	}

	id := session.Identity{Address: h.relay.Account(), Name: req.Name}
	if err := h.sessions.Init(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"state": h.sessions.State().String(), "identity": id})
}

// Pair 提交 WalletConnect 配对 URI
// @Summary 配对
// @Tags Session
// @Accept json
// @Produce json
// @Param request body request.PairRequest true "Pair Request"
// @Success 200 {object} response.Response
// @Router /api/v1/session/pair [post]
func (h *RelayHandler) Pair(c *gin.Context) {
	var req request.PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	if err := h.sessions.Pair(c.Request.Context(), req.URI); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"status": h.board.Get().Text})
}

// ListSessions 活跃会话
// @Summary 活跃会话
// @Tags Session
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/sessions [get]
func (h *RelayHandler) ListSessions(c *gin.Context) {
	sessions := h.sessions.Sessions()
	if sessions == nil {
		sessions = []session.Session{}
	}
	response.Success(c, sessions)
}

// ListTransactions 队列 + 最近完成 (先队列后历史)
// @Summary 交易列表
// @Tags Relay
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/transactions [get]
func (h *RelayHandler) ListTransactions(c *gin.Context) {
	snap := h.queue.Snapshot()
	net := h.relay.Network()

	views := make([]TransactionView, 0, len(snap.Queued)+len(snap.Completed))
	for _, r := range snap.Records() {
		switch r.Kind {
		case queue.KindQueued:
			views = append(views, queuedView(*r.Queued, snap, net))
		case queue.KindCompleted:
			views = append(views, completedView(*r.Completed, net))
		}
	}
	response.Success(c, gin.H{
		"items":                views,
		"manual_check_enabled": snap.ManualCheck,
	})
}

// SubmitTransaction 中继一笔排队中的交易 (阻塞到广播完成或签名超时)
// @Summary 中继交易
// @Tags Relay
// @Produce json
// @Param id path int true "Queue ID"
// @Success 200 {object} response.Response
// @Router /api/v1/transactions/{id}/submit [post]
func (h *RelayHandler) SubmitTransaction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	hash, err := h.relay.Submit(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"id":        id,
		"hash":      hash.Hex(),
		"l1_tx_url": h.relay.Network().L1TxURL(hash.Hex()),
	})
}

// CheckTransaction 手动查询回执
// @Summary 查询回执
// @Tags Relay
// @Produce json
// @Param id path int true "Queue ID"
// @Success 200 {object} response.Response
// @Router /api/v1/transactions/{id}/check [post]
func (h *RelayHandler) CheckTransaction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	confirmed, err := h.relay.Check(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "confirmed": confirmed, "status": h.board.Get().Text})
}

// CancelTransaction 取消排队中的交易并拒绝来源请求
// @Summary 取消交易
// @Tags Relay
// @Produce json
// @Param id path int true "Queue ID"
// @Success 200 {object} response.Response
// @Router /api/v1/transactions/{id}/cancel [post]
func (h *RelayHandler) CancelTransaction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.relay.Cancel(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

// ListHistory 归档历史，未启用数据库时退回内存中的最近 10 条
// @Summary 中继历史
// @Tags Relay
// @Produce json
// @Param limit query int false "Limit"
// @Success 200 {object} response.Response
// @Router /api/v1/history [get]
func (h *RelayHandler) ListHistory(c *gin.Context) {
	var q request.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	if h.history == nil {
		net := h.relay.Network()
		completed := h.queue.Snapshot().Completed
		views := make([]TransactionView, 0, len(completed))
		for _, tx := range completed {
			views = append(views, completedView(tx, net))
		}
		response.Success(c, gin.H{"source": "memory", "items": views})
		return
	}

	records, err := h.history.Recent(c.Request.Context(), q.Limit)
	if err != nil {
		response.Error(c, errno.ErrDatabase)
		return
	}
	response.Success(c, gin.H{"source": "database", "items": records})
}

// ListNetworks 已注册的 L2 网络
// @Summary 网络列表
// @Tags Relay
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/networks [get]
func (h *RelayHandler) ListNetworks(c *gin.Context) {
	response.Success(c, gin.H{
		"default":  h.registry.Default().Key,
		"networks": h.registry.All(),
	})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, errno.ErrBind)
		return 0, false
	}
	return id, true
}

func queuedView(tx queue.QueuedTransaction, snap queue.Snapshot, net network.L2Network) TransactionView {
	v := TransactionView{
		ID:        tx.ID,
		Status:    "queued",
		To:        tx.Params.To,
		Value:     units.FormatQuantity(tx.Params.Value),
		Data:      tx.Params.Data,
		Topic:     tx.Topic,
		RequestID: tx.RequestID,
	}
	if snap.ProcessingID != nil && *snap.ProcessingID == tx.ID && !snap.Settled {
		v.Status = "processing"
		if snap.PendingHash != nil {
			v.Status = "pending"
			v.Hash = snap.PendingHash.Hex()
			v.L1TxURL = net.L1TxURL(v.Hash)
		}
	}
	return v
}

func completedView(tx queue.CompletedTransaction, net network.L2Network) TransactionView {
	ts := tx.Timestamp
	return TransactionView{
		ID:        tx.ID,
		Status:    "completed",
		To:        tx.To,
		Value:     units.FormatQuantity(tx.Value),
		Hash:      tx.Hash.Hex(),
		L1TxURL:   net.L1TxURL(tx.Hash.Hex()),
		Timestamp: &ts,
	}
}
