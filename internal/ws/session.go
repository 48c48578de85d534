// Package ws owns the WebSocket side of the connector: one Session per
// physical connection, a read loop that owns the socket, and a dispatcher
// that fans pushes out to consumers.
package ws

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"bitget-connector/internal/sign"
	"bitget-connector/pkg/apierr"
	"bitget-connector/pkg/interfaces"
	"bitget-connector/pkg/logger"
	"bitget-connector/pkg/metrics"
	"bitget-connector/pkg/schema"
)

const (
	defaultAuthTimeout   = 10 * time.Second
	defaultSubAckTimeout = 5 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	defaultBackoffBase   = time.Second
	defaultBackoffCap    = 30 * time.Second
	defaultMaxAuthRetry  = 3
	defaultErrorBuffer   = 16
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("ws: session closed")

// DialFunc opens one WebSocket connection; injectable for tests.
type DialFunc func(ctx context.Context, url string) (interfaces.WSConn, error)

func defaultDial(ctx context.Context, url string) (interfaces.WSConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return interfaces.WSShim{Conn: conn}, nil
}

// Config for one session. Credentials are required only for private sessions.
type Config struct {
	Name        string // label for logs/metrics, e.g. "public" / "private"
	URL         string
	Credentials schema.Credentials
	Private     bool

	Dial           DialFunc
	AuthTimeout    time.Duration
	SubAckTimeout  time.Duration
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	MaxAuthRetries int // consecutive login failures before giving up
	QueueSize      int // per-consumer buffer
}

func (c *Config) fillDefaults() {
	if c.Dial == nil {
		c.Dial = defaultDial
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = defaultAuthTimeout
	}
	if c.SubAckTimeout <= 0 {
		c.SubAckTimeout = defaultSubAckTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if c.MaxAuthRetries <= 0 {
		c.MaxAuthRetries = defaultMaxAuthRetry
	}
}

// Session drives one connection through its lifecycle:
//
//	Disconnected -> Connecting -> Connected -> [Authenticating -> Authenticated]
//	             -> Subscribing -> Streaming -> Closing -> Disconnected
//
// The read loop owns the socket for reads; all writes (login, subscribe,
// pong) are serialized through writeJSON. On an unexpected drop the session
// reconnects with backoff and replays the subscription set.
type Session struct {
	cfg        Config
	dispatcher *Dispatcher
	subs       interfaces.SubscriptionStore

	state atomic.Int32

	mu   sync.Mutex // guards conn and serializes writes
	conn interfaces.WSConn

	errs   chan error
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewSession builds a session; it does not connect.
func NewSession(cfg Config, store interfaces.SubscriptionStore) (*Session, error) {
	if cfg.URL == "" {
		return nil, errors.New("ws: URL is required")
	}
	if cfg.Private && !cfg.Credentials.HasAPIKeys() {
		return nil, errors.New("ws: private session requires api credentials")
	}
	cfg.fillDefaults()
	return &Session{
		cfg:        cfg,
		dispatcher: NewDispatcher(cfg.QueueSize),
		subs:       store,
		errs:       make(chan error, defaultErrorBuffer),
		done:       make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() schema.SessionState {
	return schema.SessionState(s.state.Load())
}

func (s *Session) setState(st schema.SessionState) {
	old := schema.SessionState(s.state.Swap(int32(st)))
	if old != st && logger.IsDebugEnabled() {
		logger.Debug("ws session %s 状态: %s -> %s", s.cfg.Name, old, st)
	}
}

// Errors is the session-level error sink, separate from the data path.
// Consumers of channel data never see connection lifecycle errors here.
func (s *Session) Errors() <-chan error {
	return s.errs
}

// Subscriptions returns the active set; it survives disconnects and Close so
// callers can inspect what was live.
func (s *Session) Subscriptions() []schema.Subscription {
	return s.subs.Snapshot()
}

// Connect dials and runs the handshake synchronously, so credential problems
// surface to the caller immediately, then hands the connection to the
// reconnect supervisor.
func (s *Session) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	connDone, err := s.connect(ctx)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go s.supervise(connDone)
	return nil
}

// connect performs dial + login + resubscribe and leaves the session in
// Streaming. The returned channel closes when the read loop exits.
func (s *Session) connect(ctx context.Context) (<-chan struct{}, error) {
	s.setState(schema.StateConnecting)
	conn, err := s.cfg.Dial(ctx, s.cfg.URL)
	if err != nil {
		s.setState(schema.StateDisconnected)
		return nil, &apierr.TransportError{Op: "dial " + s.cfg.Name, Err: err}
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	if s.closed.Load() {
		// Close raced with the dial; do not leak the fresh connection.
		conn.Close()
		return nil, ErrSessionClosed
	}
	s.setState(schema.StateConnected)

	connDone := make(chan struct{})
	loginAck := make(chan schema.Frame, 1)
	subAck := make(chan schema.Frame, 1)
	s.wg.Add(1)
	go s.readLoop(conn, connDone, loginAck, subAck)

	if s.cfg.Private {
		if err := s.login(ctx, loginAck); err != nil {
			conn.Close()
			s.setState(schema.StateDisconnected)
			return nil, err
		}
	}
	if err := s.resubscribe(ctx, subAck); err != nil {
		conn.Close()
		s.setState(schema.StateDisconnected)
		return nil, err
	}
	s.setState(schema.StateStreaming)
	logger.Info("ws session %s 已就绪 (订阅数=%d)", s.cfg.Name, len(s.subs.Snapshot()))
	return connDone, nil
}

// login sends the login op and waits for its ack within a bounded window.
func (s *Session) login(ctx context.Context, loginAck <-chan schema.Frame) error {
	s.setState(schema.StateAuthenticating)
	ts := sign.WsTimestamp(time.Now())
	signature, err := sign.SignWsLogin(s.cfg.Credentials.SecretKey, ts)
	if err != nil {
		return err
	}
	req := schema.WsRequest{Op: "login", Args: []any{schema.LoginArg{
		APIKey:     s.cfg.Credentials.APIKey,
		Passphrase: s.cfg.Credentials.Passphrase,
		Timestamp:  ts,
		Sign:       signature,
	}}}
	logger.Info("ws session %s 登录中 key=%s", s.cfg.Name, s.cfg.Credentials.Redacted())
	if err := s.writeJSON(req); err != nil {
		return &apierr.TransportError{Op: "login " + s.cfg.Name, Err: err}
	}

	timer := time.NewTimer(s.cfg.AuthTimeout)
	defer timer.Stop()
	select {
	case f := <-loginAck:
		if f.Code != 0 {
			return &apierr.AuthError{Code: f.Code, Msg: f.Msg}
		}
		s.setState(schema.StateAuthenticated)
		return nil
	case <-timer.C:
		return &apierr.AuthTimeoutError{Timeout: s.cfg.AuthTimeout}
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// resubscribe replays the whole active set on a fresh connection. The sub
// ack wait is advisory: the exchange does not guarantee an ack per
// subscribe, so a timeout proceeds to Streaming instead of failing.
func (s *Session) resubscribe(ctx context.Context, subAck <-chan schema.Frame) error {
	snapshot := s.subs.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	s.setState(schema.StateSubscribing)
	if err := s.sendSubscribe("subscribe", snapshot); err != nil {
		return err
	}

	timer := time.NewTimer(s.cfg.SubAckTimeout)
	defer timer.Stop()
	select {
	case <-subAck:
	case <-timer.C:
		logger.Warn("ws session %s 订阅确认超时,继续进入streaming", s.cfg.Name)
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) sendSubscribe(op string, subs []schema.Subscription) error {
	args := make([]any, 0, len(subs))
	for _, sub := range subs {
		args = append(args, sub.Arg())
	}
	if err := s.writeJSON(schema.WsRequest{Op: op, Args: args}); err != nil {
		return &apierr.TransportError{Op: op + " " + s.cfg.Name, Err: err}
	}
	return nil
}

// Subscribe registers a consumer and adds subscriptions to the active set.
// Already-present subscriptions are not re-sent. Safe before Connect (the
// handshake replays the set) and after Streaming (dynamic subscription).
func (s *Session) Subscribe(subs []schema.Subscription, consumer Consumer) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if consumer != nil {
		for _, sub := range subs {
			s.dispatcher.Register(sub, consumer)
		}
	}
	newlyAdded := s.subs.Add(subs)
	if len(newlyAdded) == 0 || !s.canSend() {
		return nil
	}
	return s.sendSubscribe("subscribe", newlyAdded)
}

// Unsubscribe removes subscriptions and their consumers.
func (s *Session) Unsubscribe(subs []schema.Subscription) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	for _, sub := range subs {
		s.dispatcher.Unregister(sub)
	}
	removed := s.subs.Remove(subs)
	if len(removed) == 0 || !s.canSend() {
		return nil
	}
	return s.sendSubscribe("unsubscribe", removed)
}

// canSend reports whether a subscribe frame may go out now. A private
// session never sends subscribes before the login ack.
func (s *Session) canSend() bool {
	switch s.State() {
	case schema.StateStreaming, schema.StateSubscribing:
		return true
	case schema.StateAuthenticated:
		return true
	case schema.StateConnected:
		return !s.cfg.Private
	}
	return false
}

// readLoop owns the socket for reads until the connection dies. Pongs are
// written inline before anything else so consumer processing can never delay
// the keep-alive.
func (s *Session) readLoop(conn interfaces.WSConn, connDone chan<- struct{}, loginAck, subAck chan<- schema.Frame) {
	defer s.wg.Done()
	defer close(connDone)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.emitErr(&apierr.TransportError{Op: "read " + s.cfg.Name, Err: err})
			}
			return
		}
		frame, err := schema.DecodeFrame(raw)
		if err != nil {
			// 单个坏帧不能中断读循环
			metrics.RecordDroppedFrame("malformed")
			s.emitErr(&apierr.ProtocolError{Reason: "undecodable frame", Err: err})
			continue
		}
		metrics.RecordFrame(frame.Kind.String())

		switch frame.Kind {
		case schema.FramePing:
			if err := s.writeJSON(schema.Pong{Pong: frame.Ping}); err != nil {
				s.emitErr(&apierr.TransportError{Op: "pong " + s.cfg.Name, Err: err})
			} else {
				metrics.RecordPong()
			}
		case schema.FrameLoginAck:
			select {
			case loginAck <- frame:
			default:
			}
		case schema.FrameSubscribeAck:
			select {
			case subAck <- frame:
			default:
			}
		case schema.FrameError:
			s.emitErr(&apierr.ExchangeError{Code: strconv.Itoa(frame.Code), Msg: frame.Msg})
		case schema.FrameChannelData:
			st := s.State()
			if st == schema.StateSubscribing {
				// 交易所不保证订阅确认帧,数据到达即视为订阅生效
				s.setState(schema.StateStreaming)
				st = schema.StateStreaming
			}
			if st != schema.StateStreaming {
				// 握手完成前的数据一律丢弃,不进入分发
				metrics.RecordDroppedFrame("premature")
				continue
			}
			s.dispatcher.Dispatch(frame)
		}
	}
}

// supervise waits for the read loop to exit and reconnects with backoff,
// replaying the preserved subscription set. Consecutive login rejections are
// capped to avoid exchange-side lockouts.
func (s *Session) supervise(connDone <-chan struct{}) {
	defer s.wg.Done()
	bo := newBackoff(s.cfg.BackoffBase, s.cfg.BackoffCap)
	authFailures := 0
	for {
		select {
		case <-s.done:
			return
		case <-connDone:
		}
		s.setState(schema.StateDisconnected)

		for {
			delay := bo.Next()
			logger.Warn("ws session %s 连接断开,%s后重连", s.cfg.Name, delay)
			select {
			case <-s.done:
				return
			case <-time.After(delay):
			}
			metrics.RecordReconnect(s.cfg.Name)

			done, err := s.connect(context.Background())
			if err == nil {
				bo.Reset()
				authFailures = 0
				connDone = done
				break
			}
			s.emitErr(err)
			if apierr.IsAuth(err) {
				authFailures++
				if authFailures >= s.cfg.MaxAuthRetries {
					logger.Error("ws session %s 登录连续失败%d次,停止重连", s.cfg.Name, authFailures)
					return
				}
			}
		}
	}
}

// writeJSON is the single send path; concurrent writers (pong from the read
// loop, subscribes from callers) serialize here.
func (s *Session) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrSessionClosed
	}
	s.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return s.conn.WriteJSON(v)
}

// emitErr delivers to the error sink without ever blocking the read loop.
func (s *Session) emitErr(err error) {
	select {
	case s.errs <- err:
	default:
		logger.Warn("ws session %s 错误通道已满,丢弃: %v", s.cfg.Name, err)
	}
}

// Close stops the read loop and supervisor and releases the socket. The
// subscription set stays intact so callers can inspect or reuse it.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.setState(schema.StateClosing)
	close(s.done)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
	s.dispatcher.Close()
	s.setState(schema.StateDisconnected)
	return nil
}
