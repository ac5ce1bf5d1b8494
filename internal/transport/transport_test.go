package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"bridge-relay/internal/service/mq"
	"bridge-relay/internal/session"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	Topic  string
	Key    string
	Action Action
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	var a Action
	if err := json.Unmarshal(payload, &a); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, key, a})
	return nil
}

func (p *fakeProducer) last(t *testing.T) published {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.msgs)
	return p.msgs[len(p.msgs)-1]
}

// fakeConsumer 把 feed 中的消息交给 handler
type fakeConsumer struct {
	feed   chan *mq.Message
	topic  chan string
	closed chan struct{}
	once   sync.Once
}

func newFakeConsumer() *fakeConsumer {
	return &fakeConsumer{
		feed:   make(chan *mq.Message),
		topic:  make(chan string, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *mq.Message) error) error {
	c.topic <- topic
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-c.feed:
			_ = handler(m)
		}
	}
}

func (c *fakeConsumer) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConsumer) send(t *testing.T, ev any) {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	select {
	case c.feed <- &mq.Message{ID: "1-0", Payload: payload}:
	case <-time.After(time.Second):
		t.Fatalf("consumer not reading")
	}
}

var testOpts = Options{EventsTopic: "walletconnect_events", ActionsTopic: "walletconnect_actions"}

func newTestTransport(t *testing.T) (*MQTransport, *fakeProducer, *fakeConsumer) {
	t.Helper()
	p := &fakeProducer{}
	c := newFakeConsumer()
	id := session.Identity{Address: common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")}
	tr, err := New(context.Background(), p, c, id, testOpts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	assert.Equal(t, "walletconnect_events", <-c.topic)
	return tr, p, c
}

func receive(t *testing.T, tr *MQTransport) session.Event {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event")
		return session.Event{}
	}
}

func TestNewPublishesInit(t *testing.T) {
	_, p, _ := newTestTransport(t)

	first := p.last(t)
	assert.Equal(t, "walletconnect_actions", first.Topic)
	assert.Equal(t, ActionInit, first.Action.Type)
	require.NotNil(t, first.Action.Identity)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), first.Action.Identity.Address)
}

func TestNewFailsWhenPublishFails(t *testing.T) {
	p := &fakeProducer{err: errors.New("connection refused")}
	_, err := New(context.Background(), p, newFakeConsumer(), session.Identity{}, testOpts)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSessionTable(t *testing.T) {
	tr, _, c := newTestTransport(t)

	c.send(t, map[string]any{
		"type":   "session_settle",
		"topic":  "topic-a",
		"params": map[string]any{"peer": map[string]string{"name": "L2 dApp"}},
	})
	assert.Eventually(t, func() bool {
		_, ok := tr.ActiveSessions()["topic-a"]
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "L2 dApp", tr.ActiveSessions()["topic-a"].Peer.Name)

	// 请求原样转发
	c.send(t, map[string]any{
		"type":   "session_request",
		"topic":  "topic-a",
		"id":     9,
		"params": map[string]any{"request": map[string]any{"method": "eth_sendTransaction", "params": []any{}}},
	})
	ev := receive(t, tr)
	assert.Equal(t, session.EventSessionRequest, ev.Kind)
	assert.Equal(t, uint64(9), ev.ID)
	req, err := ev.Request()
	require.NoError(t, err)
	assert.Equal(t, "eth_sendTransaction", req.Request.Method)

	// 格式错误的消息被丢弃，不影响后续
	c.feed <- &mq.Message{ID: "2-0", Payload: []byte("{not json")}

	c.send(t, map[string]any{"type": "session_delete", "topic": "topic-a"})
	ev = receive(t, tr)
	assert.Equal(t, session.EventSessionDelete, ev.Kind)
	assert.Empty(t, tr.ActiveSessions())
}

func TestActionsPublished(t *testing.T) {
	tr, p, _ := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Pair(ctx, "wc:abc@2?relay-protocol=irn"))
	assert.Equal(t, ActionPair, p.last(t).Action.Type)
	assert.Equal(t, "wc:abc@2?relay-protocol=irn", p.last(t).Action.URI)
	assert.False(t, p.last(t).Action.SentAt.IsZero())
	assert.Error(t, tr.Pair(ctx, ""))

	ns := session.Namespaces{"eip155": {Chains: []string{"eip155:1301"}}}
	require.NoError(t, tr.ApproveSession(ctx, 4, ns))
	assert.Equal(t, ActionApprove, p.last(t).Action.Type)
	assert.Equal(t, []string{"eip155:1301"}, p.last(t).Action.Namespaces["eip155"].Chains)

	require.NoError(t, tr.RejectSession(ctx, 5, session.ReasonUserRejected))
	assert.Equal(t, session.ReasonUserRejected, *p.last(t).Action.Reason)

	require.NoError(t, tr.RespondSessionRequest(ctx, "topic-a", session.NewResult(9, "0xabc")))
	last := p.last(t)
	assert.Equal(t, "topic-a", last.Key)
	assert.Equal(t, ActionRespond, last.Action.Type)
	assert.Equal(t, "0xabc", last.Action.Response.Result)

	require.NoError(t, tr.RejectSessionRequest(ctx, "topic-a", 10, session.ReasonUnsupportedMethods))
	assert.Equal(t, uint64(10), p.last(t).Action.ID)
	assert.Equal(t, 5101, p.last(t).Action.Reason.Code)
}

func TestDisconnectRemovesSession(t *testing.T) {
	tr, p, c := newTestTransport(t)
	c.send(t, map[string]any{"type": "session_settle", "topic": "topic-a"})
	assert.Eventually(t, func() bool { return len(tr.ActiveSessions()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.DisconnectSession(context.Background(), "topic-a", session.ReasonUserDisconnected))
	assert.Empty(t, tr.ActiveSessions())
	assert.Equal(t, ActionDisconnect, p.last(t).Action.Type)
	assert.Equal(t, 6000, p.last(t).Action.Reason.Code)
}

func TestCloseClosesEvents(t *testing.T) {
	tr, _, c := newTestTransport(t)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	_, ok := <-tr.Events()
	assert.False(t, ok)

	select {
	case <-c.closed:
	default:
		t.Fatalf("consumer not closed")
	}
}
