package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bridge-relay/internal/handler"
	"bridge-relay/internal/handler/response"
	"bridge-relay/internal/model"
	"bridge-relay/internal/queue"
	"bridge-relay/internal/relay"
	"bridge-relay/internal/session"
	"bridge-relay/internal/status"
	"bridge-relay/pkg/errno"
	"bridge-relay/pkg/network"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var account = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

type fakeSessions struct {
	state    session.State
	identity session.Identity
	sessions []session.Session
	pairErr  error
	paired   []string
}

func (f *fakeSessions) Init(_ context.Context, id session.Identity) error {
	f.identity = id
	f.state = session.StateReady
	return nil
}

func (f *fakeSessions) Pair(_ context.Context, uri string) error {
	if f.pairErr != nil {
		return f.pairErr
	}
	f.paired = append(f.paired, uri)
	return nil
}

func (f *fakeSessions) Sessions() []session.Session { return f.sessions }
func (f *fakeSessions) State() session.State { return f.state }
func (f *fakeSessions) Identity() session.Identity { return f.identity }

type fakeRelay struct {
	net       network.L2Network
	submitErr error
	hash      common.Hash
	cancelled []int64
	checked   []int64
}

func (f *fakeRelay) Submit(_ context.Context, id int64) (common.Hash, error) {
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return f.hash, nil
}

func (f *fakeRelay) Check(_ context.Context, id int64) (bool, error) {
	f.checked = append(f.checked, id)
	return false, nil
}

func (f *fakeRelay) Cancel(_ context.Context, id int64) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeRelay) Mode() relay.Mode { return relay.ModePortal }
func (f *fakeRelay) Network() network.L2Network { return f.net }
func (f *fakeRelay) Account() common.Address { return account }

type fakeHistory struct {
	records []model.RelayRecord
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]model.RelayRecord, error) {
	return f.records, nil
}

type fixture struct {
	router   *gin.Engine
	queue    *queue.Queue
	board    *status.Board
	sessions *fakeSessions
	relay    *fakeRelay
}

func newFixture(t *testing.T, history handler.HistoryReader) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := network.NewRegistry(network.DefaultNetwork)
	require.NoError(t, err)

	f := &fixture{
		queue:    queue.New(),
		board:    status.NewBoard(),
		sessions: &fakeSessions{},
		relay:    &fakeRelay{net: registry.Default(), hash: common.HexToHash("0xbeef")},
	}
	h := handler.NewRelayHandler(f.sessions, f.relay, f.queue, f.board, registry, history)
	f.router = NewHTTPRouter(h)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) response.Response {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestHealthAndPing(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, errno.OK.Code, resp.Code)
	assert.Equal(t, "UP", dataMap(t, resp)["status"])

	resp = f.do(t, http.MethodGet, "/api/v1/ping", "")
	assert.Equal(t, true, dataMap(t, resp)["pong"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.board.SetText("Transaction queued")
	f.board.SetConnected(true)

	data := dataMap(t, f.do(t, http.MethodGet, "/api/v1/status", ""))
	assert.Equal(t, "Transaction queued", data["text"])
	assert.Equal(t, true, data["connected"])
	assert.Equal(t, "unichain", data["network"])
	assert.Equal(t, "portal", data["mode"])
	assert.Equal(t, account.Hex(), data["account"])
}

func TestInitAndPair(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/v1/session/init", `{"name":"relay"}`)
	assert.Equal(t, errno.OK.Code, resp.Code)
	assert.Equal(t, account, f.sessions.identity.Address)
	assert.Equal(t, "relay", f.sessions.identity.Name)

	resp = f.do(t, http.MethodPost, "/api/v1/session/pair", `{"uri":"wc:abc@2?relay-protocol=irn"}`)
	assert.Equal(t, errno.OK.Code, resp.Code)
	assert.Equal(t, []string{"wc:abc@2?relay-protocol=irn"}, f.sessions.paired)
}

func TestPairValidation(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/v1/session/pair", `{"uri":"https://example.com"}`)
	assert.Equal(t, errno.ErrBind.Code, resp.Code)

	f.sessions.pairErr = errno.ErrNotInitialized
	resp = f.do(t, http.MethodPost, "/api/v1/session/pair", `{"uri":"wc:abc@2"}`)
	code, _ := errno.Decode(errno.ErrNotInitialized)
	assert.Equal(t, code, resp.Code)
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t, nil)
	a, err := f.queue.Enqueue(queue.QueuedTransaction{
		Params:    queue.TxParams{To: "0x1111111111111111111111111111111111111111", Value: "0xde0b6b3a7640000"},
		Topic:     "t1",
		RequestID: 1,
	})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(queue.QueuedTransaction{
		Params:    queue.TxParams{To: "0x2222222222222222222222222222222222222222"},
		Topic:     "t1",
		RequestID: 2,
	})
	require.NoError(t, err)
	require.NoError(t, f.queue.BeginProcessing(a.ID))
	require.True(t, f.queue.SetPendingHash(a.ID, common.HexToHash("0x01")))

	data := dataMap(t, f.do(t, http.MethodGet, "/api/v1/transactions", ""))
	items, ok := data["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)

	first := items[0].(map[string]interface{})
	assert.Equal(t, "pending", first["status"])
	assert.Equal(t, "1", first["value"])
	assert.Contains(t, first["l1_tx_url"], "/tx/0x")

	second := items[1].(map[string]interface{})
	assert.Equal(t, "queued", second["status"])
	assert.Equal(t, "0", second["value"])
}

func TestTransactionActions(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/v1/transactions/42/submit", "")
	assert.Equal(t, errno.OK.Code, resp.Code)
	assert.Equal(t, common.HexToHash("0xbeef").Hex(), dataMap(t, resp)["hash"])

	f.do(t, http.MethodPost, "/api/v1/transactions/42/check", "")
	assert.Equal(t, []int64{42}, f.relay.checked)

	f.do(t, http.MethodPost, "/api/v1/transactions/42/cancel", "")
	assert.Equal(t, []int64{42}, f.relay.cancelled)

	resp = f.do(t, http.MethodPost, "/api/v1/transactions/abc/submit", "")
	assert.Equal(t, errno.ErrBind.Code, resp.Code)
}

func TestSubmitErrorCodes(t *testing.T) {
	f := newFixture(t, nil)
	f.relay.submitErr = errno.ErrInvalidSession

	resp := f.do(t, http.MethodPost, "/api/v1/transactions/1/submit", "")
	code, _ := errno.Decode(errno.ErrInvalidSession)
	assert.Equal(t, code, resp.Code)
	assert.NotEqual(t, errno.OK.Code, resp.Code)
}

func TestHistory(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		f := newFixture(t, nil)
		tx, err := f.queue.Enqueue(queue.QueuedTransaction{
			Params: queue.TxParams{To: "0x1111111111111111111111111111111111111111"},
			Topic:  "t1",
		})
		require.NoError(t, err)
		_, err = f.queue.Complete(tx.ID, common.HexToHash("0x02"))
		require.NoError(t, err)

		data := dataMap(t, f.do(t, http.MethodGet, "/api/v1/history", ""))
		assert.Equal(t, "memory", data["source"])
		assert.Len(t, data["items"], 1)
	})

	t.Run("database", func(t *testing.T) {
		h := &fakeHistory{records: []model.RelayRecord{{TxHash: "0x02", Value: decimal.NewFromInt(1)}}}
		f := newFixture(t, h)

		data := dataMap(t, f.do(t, http.MethodGet, "/api/v1/history?limit=5", ""))
		assert.Equal(t, "database", data["source"])
		assert.Len(t, data["items"], 1)

		resp := f.do(t, http.MethodGet, "/api/v1/history?limit=1000", "")
		assert.Equal(t, errno.ErrBind.Code, resp.Code)
	})
}

func TestNetworks(t *testing.T) {
	f := newFixture(t, nil)

	data := dataMap(t, f.do(t, http.MethodGet, "/api/v1/networks", ""))
	assert.Equal(t, "unichain", data["default"])
	assert.Len(t, data["networks"], 3)
}
