package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bitget-connector/internal/cache"
	"bitget-connector/internal/sign"
	"bitget-connector/pkg/apierr"
	"bitget-connector/pkg/interfaces"
	"bitget-connector/pkg/schema"
)

// fakeConn is a scriptable in-memory connection standing in for the exchange.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 32),
		out:    make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.out <- b
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.in:
		return websocket.TextMessage, b, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// push injects one inbound frame as the exchange.
func (c *fakeConn) push(s string) { c.in <- []byte(s) }

// nextWrite returns the next outbound frame, decoded.
func (c *fakeConn) nextWrite(t *testing.T) map[string]any {
	t.Helper()
	select {
	case b := <-c.out:
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("outbound frame not json: %s", b)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

// expectSilence fails when anything is written within the window.
func (c *fakeConn) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case b := <-c.out:
		t.Fatalf("unexpected outbound frame: %s", b)
	case <-time.After(d):
	}
}

// dialScript hands out one scripted connection per dial attempt.
func dialScript(conns ...*fakeConn) DialFunc {
	var idx atomic.Int32
	return func(ctx context.Context, url string) (interfaces.WSConn, error) {
		i := int(idx.Add(1)) - 1
		if i >= len(conns) {
			return nil, errors.New("no more scripted connections")
		}
		return conns[i], nil
	}
}

func testCreds() schema.Credentials {
	return schema.Credentials{
		APIKey:     "test-api-key",
		SecretKey:  "test-secret",
		Passphrase: "test-pass",
	}
}

func testConfig(name string, private bool, dial DialFunc) Config {
	return Config{
		Name:          name,
		URL:           "wss://example.invalid/ws",
		Credentials:   testCreds(),
		Private:       private,
		Dial:          dial,
		AuthTimeout:   2 * time.Second,
		SubAckTimeout: 200 * time.Millisecond,
		BackoffBase:   time.Millisecond,
		BackoffCap:    10 * time.Millisecond,
	}
}

func waitState(t *testing.T, s *Session, want schema.SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", s.State(), want)
}

func TestPrivateHandshakeOrdering(t *testing.T) {
	conn := newFakeConn()
	s, err := NewSession(testConfig("private-test", true, dialScript(conn)), cache.NewSubscriptionSet())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	got := make(chan schema.Frame, 8)
	sub := schema.Subscription{InstType: schema.SPOT, Channel: schema.ChannelTicker, InstID: "BTCUSDT"}
	if err := s.Subscribe([]schema.Subscription{sub}, func(f schema.Frame) { got <- f }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	connectErr := make(chan error, 1)
	go func() { connectErr <- s.Connect(context.Background()) }()

	// 首帧必须是login,不能是subscribe
	login := conn.nextWrite(t)
	if login["op"] != "login" {
		t.Fatalf("first outbound frame is %v, want login", login["op"])
	}
	args := login["args"].([]any)
	arg := args[0].(map[string]any)
	if arg["passphrase"] != "test-pass" || arg["apiKey"] != "test-api-key" {
		t.Fatalf("bad login arg: %v", arg)
	}
	wantSig, _ := sign.SignWsLogin("test-secret", arg["timestamp"].(string))
	if arg["sign"] != wantSig {
		t.Fatal("login signature does not verify")
	}

	// 登录确认前到达的推送必须被丢弃
	conn.push(`{"arg":{"instType":"SPOT","channel":"ticker","instId":"BTCUSDT"},"action":"snapshot","data":[{"instId":"BTCUSDT","lastPr":"1"}]}`)
	time.Sleep(50 * time.Millisecond)
	select {
	case <-got:
		t.Fatal("channel data dispatched before login ack")
	default:
	}

	conn.push(`{"event":"login","code":0}`)
	subscribe := conn.nextWrite(t)
	if subscribe["op"] != "subscribe" {
		t.Fatalf("after login ack expected subscribe, got %v", subscribe["op"])
	}
	conn.push(`{"event":"subscribe","arg":{"instType":"SPOT","channel":"ticker","instId":"BTCUSDT"}}`)

	if err := <-connectErr; err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, s, schema.StateStreaming)

	conn.push(`{"arg":{"instType":"SPOT","channel":"ticker","instId":"BTCUSDT"},"action":"update","data":[{"instId":"BTCUSDT","lastPr":"2"}]}`)
	select {
	case f := <-got:
		if f.Action != "update" {
			t.Fatalf("bad frame action %q", f.Action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("streaming data was not dispatched")
	}
}

func TestKeepAlivePong(t *testing.T) {
	conn := newFakeConn()
	s, err := NewSession(testConfig("public-test", false, dialScript(conn)), cache.NewSubscriptionSet())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	// 无订阅的公共会话直接进入streaming
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, s, schema.StateStreaming)

	conn.push(`{"ping":123}`)
	pong := conn.nextWrite(t)
	raw, _ := json.Marshal(pong["pong"])
	if string(raw) != "123" {
		t.Fatalf("pong echoed %s, want 123", raw)
	}
	// 只回一个pong,状态不变
	conn.expectSilence(t, 100*time.Millisecond)
	if s.State() != schema.StateStreaming {
		t.Fatalf("state after ping = %s", s.State())
	}
}

func TestLoginRejected(t *testing.T) {
	conn := newFakeConn()
	s, err := NewSession(testConfig("private-test", true, dialScript(conn)), cache.NewSubscriptionSet())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	connectErr := make(chan error, 1)
	go func() { connectErr <- s.Connect(context.Background()) }()

	conn.nextWrite(t) // login
	conn.push(`{"event":"login","code":30005,"msg":"Invalid ACCESS-KEY"}`)

	err = <-connectErr
	var ae *apierr.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if ae.Code != 30005 {
		t.Fatalf("auth code = %d", ae.Code)
	}
	if s.State() != schema.StateDisconnected {
		t.Fatalf("state = %s, want disconnected", s.State())
	}
}

func TestLoginTimeout(t *testing.T) {
	conn := newFakeConn()
	cfg := testConfig("private-test", true, dialScript(conn))
	cfg.AuthTimeout = 50 * time.Millisecond
	s, err := NewSession(cfg, cache.NewSubscriptionSet())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	err = s.Connect(context.Background())
	var ate *apierr.AuthTimeoutError
	if !errors.As(err, &ate) {
		t.Fatalf("expected AuthTimeoutError, got %T: %v", err, err)
	}
	if !apierr.IsTransient(err) {
		t.Fatal("auth timeout should be transient")
	}
}

func TestReconnectResubscribesExactSet(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	s, err := NewSession(testConfig("public-test", false, dialScript(conn1, conn2)), cache.NewSubscriptionSet())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	subA := schema.Subscription{InstType: schema.SPOT, Channel: schema.ChannelTicker, InstID: "BTCUSDT"}
	subB := schema.Subscription{InstType: schema.SPOT, Channel: schema.ChannelTicker, InstID: "ETHUSDT"}
	s.Subscribe([]schema.Subscription{subA, subB}, func(schema.Frame) {})

	connectErr := make(chan error, 1)
	go func() { connectErr <- s.Connect(context.Background()) }()
	first := conn1.nextWrite(t)
	if first["op"] != "subscribe" {
		t.Fatalf("expected subscribe, got %v", first["op"])
	}
	conn1.push(`{"event":"subscribe","arg":{"instType":"SPOT","channel":"ticker","instId":"BTCUSDT"}}`)
	if err := <-connectErr; err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, s, schema.StateStreaming)

	// 模拟连接意外断开
	conn1.Close()

	resub := conn2.nextWrite(t)
	if resub["op"] != "subscribe" {
		t.Fatalf("reconnect sent %v, want subscribe", resub["op"])
	}
	gotKeys := map[string]bool{}
	for _, a := range resub["args"].([]any) {
		m := a.(map[string]any)
		arg := schema.SubscribeArg{
			InstType: schema.InstType(m["instType"].(string)),
			Channel:  m["channel"].(string),
		}
		if v, ok := m["instId"].(string); ok {
			arg.InstID = v
		}
		gotKeys[arg.Subscription().Key()] = true
	}
	// 重订阅集合必须与断开前完全一致,不多不少
	if len(gotKeys) != 2 || !gotKeys[subA.Key()] || !gotKeys[subB.Key()] {
		t.Fatalf("resubscribed set = %v", gotKeys)
	}
	conn2.push(`{"event":"subscribe","arg":{"instType":"SPOT","channel":"ticker","instId":"BTCUSDT"}}`)
	waitState(t, s, schema.StateStreaming)
}

func TestDynamicSubscribeIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	s, err := NewSession(testConfig("public-test", false, dialScript(conn)), cache.NewSubscriptionSet())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, s, schema.StateStreaming)

	sub := schema.Subscription{InstType: schema.USDTFutures, Channel: schema.ChannelTicker, InstID: "BTCUSDT"}
	if err := s.Subscribe([]schema.Subscription{sub}, func(schema.Frame) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	frame := conn.nextWrite(t)
	if frame["op"] != "subscribe" {
		t.Fatalf("expected subscribe, got %v", frame["op"])
	}

	// 重复订阅不应产生新的出站帧
	if err := s.Subscribe([]schema.Subscription{sub}, nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	conn.expectSilence(t, 100*time.Millisecond)
}

func TestCloseKeepsSubscriptionSet(t *testing.T) {
	conn := newFakeConn()
	s, err := NewSession(testConfig("public-test", false, dialScript(conn)), cache.NewSubscriptionSet())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sub := schema.Subscription{InstType: schema.SPOT, Channel: schema.ChannelBooks, InstID: "BTCUSDT"}
	s.Subscribe([]schema.Subscription{sub}, nil)

	connectErr := make(chan error, 1)
	go func() { connectErr <- s.Connect(context.Background()) }()
	conn.nextWrite(t) // subscribe
	conn.push(`{"event":"subscribe","arg":{"instType":"SPOT","channel":"books","instId":"BTCUSDT"}}`)
	if err := <-connectErr; err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// 关闭后订阅集保留,便于检视断开前的活跃流
	if got := s.Subscriptions(); len(got) != 1 || got[0].Key() != sub.Key() {
		t.Fatalf("subscriptions after close = %v", got)
	}
	if s.State() != schema.StateDisconnected {
		t.Fatalf("state after close = %s", s.State())
	}
	if err := s.Subscribe([]schema.Subscription{sub}, nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Subscribe after close = %v", err)
	}
}

func TestMalformedFrameDoesNotKillReadLoop(t *testing.T) {
	conn := newFakeConn()
	s, err := NewSession(testConfig("public-test", false, dialScript(conn)), cache.NewSubscriptionSet())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, s, schema.StateStreaming)

	conn.push(`{not json`)
	select {
	case err := <-s.Errors():
		var pe *apierr.ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProtocolError in sink, got %T: %v", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("protocol error never reached the sink")
	}

	// 读循环仍然存活
	conn.push(`{"ping":7}`)
	pong := conn.nextWrite(t)
	raw, _ := json.Marshal(pong["pong"])
	if string(raw) != "7" {
		t.Fatalf("read loop dead after bad frame, pong = %s", raw)
	}
}
