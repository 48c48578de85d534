// Package sdk is the high-level facade of the connector: one REST client,
// up to two WebSocket sessions (public/private) and an in-memory cache of
// the latest market data.
package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"bitget-connector/internal/cache"
	"bitget-connector/internal/rest"
	"bitget-connector/internal/ws"
	"bitget-connector/pkg/interfaces"
	"bitget-connector/pkg/logger"
	"bitget-connector/pkg/schema"
)

// Default endpoints.
const (
	DefaultRestBaseURL  = "https://api.bitget.com"
	DefaultPublicWsURL  = "wss://ws.bitget.com/v2/ws/public"
	DefaultPrivateWsURL = "wss://ws.bitget.com/v2/ws/private"
)

// Config is the single explicit configuration value; nothing is read from
// files or globals.
type Config struct {
	Credentials    schema.Credentials
	RequestTimeout time.Duration // REST timeout, default 30s
	ReconnectBase  time.Duration // default 1s
	ReconnectCap   time.Duration // default 30s
	Locale         string
}

// ConfigFromEnv builds a config from BITGET_* environment variables. Loading
// a .env file beforehand is the caller's choice.
func ConfigFromEnv() Config {
	creds := schema.Credentials{
		APIKey:       os.Getenv("BITGET_API_KEY"),
		SecretKey:    os.Getenv("BITGET_SECRET_KEY"),
		Passphrase:   os.Getenv("BITGET_PASSPHRASE"),
		RestBaseURL:  os.Getenv("BITGET_REST_URL"),
		PublicWsURL:  os.Getenv("BITGET_PUBLIC_WS_URL"),
		PrivateWsURL: os.Getenv("BITGET_PRIVATE_WS_URL"),
	}
	return Config{Credentials: creds}
}

func (c *Config) fillDefaults() {
	if c.Credentials.RestBaseURL == "" {
		c.Credentials.RestBaseURL = DefaultRestBaseURL
	}
	if c.Credentials.PublicWsURL == "" {
		c.Credentials.PublicWsURL = DefaultPublicWsURL
	}
	if c.Credentials.PrivateWsURL == "" {
		c.Credentials.PrivateWsURL = DefaultPrivateWsURL
	}
}

// SDK bundles the connector's entry points. Safe for concurrent use.
type SDK struct {
	cfg   Config
	rest  *rest.Client
	cache *cache.MemoryCache

	// dial is overridable so the whole facade can run against a scripted
	// exchange.
	dial ws.DialFunc

	mu      sync.Mutex
	public  *ws.Session
	private *ws.Session

	errs chan error
}

// New builds the SDK and its REST client; WebSocket sessions are created
// lazily on first subscribe.
func New(cfg Config) (*SDK, error) {
	cfg.fillDefaults()
	restClient, err := rest.New(rest.Config{
		Credentials: cfg.Credentials,
		Timeout:     cfg.RequestTimeout,
		Locale:      cfg.Locale,
	})
	if err != nil {
		return nil, err
	}
	return &SDK{
		cfg:   cfg,
		rest:  restClient,
		cache: cache.NewMemoryCache(),
		errs:  make(chan error, 32),
	}, nil
}

// REST exposes the signed call entry point for per-endpoint callers.
func (s *SDK) REST() interfaces.RestCaller { return s.rest }

// Cache exposes the latest-data store fed by WebSocket subscriptions.
func (s *SDK) Cache() *cache.MemoryCache { return s.cache }

// Call forwards one signed REST request.
func (s *SDK) Call(ctx context.Context, method, path string, query []interfaces.Param, body any) (json.RawMessage, error) {
	return s.rest.Call(ctx, method, path, query, body)
}

// Errors merges the session-level error sinks of both connections.
func (s *SDK) Errors() <-chan error { return s.errs }

// session returns the public or private session, connecting it on first use.
func (s *SDK) session(ctx context.Context, private bool) (*ws.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.public
	if private {
		existing = s.private
	}
	if existing != nil {
		return existing, nil
	}

	cfg := ws.Config{
		Name:        "public",
		URL:         s.cfg.Credentials.PublicWsURL,
		Credentials: s.cfg.Credentials,
		Private:     private,
		Dial:        s.dial,
		BackoffBase: s.cfg.ReconnectBase,
		BackoffCap:  s.cfg.ReconnectCap,
	}
	if private {
		cfg.Name = "private"
		cfg.URL = s.cfg.Credentials.PrivateWsURL
	}
	sess, err := ws.NewSession(cfg, cache.NewSubscriptionSet())
	if err != nil {
		return nil, err
	}
	if err := sess.Connect(ctx); err != nil {
		return nil, err
	}
	go s.forwardErrors(sess)

	if private {
		s.private = sess
	} else {
		s.public = sess
	}
	return sess, nil
}

func (s *SDK) forwardErrors(sess *ws.Session) {
	for err := range sess.Errors() {
		select {
		case s.errs <- err:
		default:
			logger.Warn("sdk错误通道已满,丢弃: %v", err)
		}
	}
}

// Subscribe routes subscriptions to the right connection: private channels
// go to the authenticated session, everything else to the public one.
func (s *SDK) Subscribe(ctx context.Context, subs []schema.Subscription, consumer ws.Consumer) error {
	var publicSubs, privateSubs []schema.Subscription
	for _, sub := range subs {
		if schema.IsPrivateChannel(sub.Channel) {
			privateSubs = append(privateSubs, sub)
		} else {
			publicSubs = append(publicSubs, sub)
		}
	}
	if len(privateSubs) > 0 && !s.cfg.Credentials.HasAPIKeys() {
		return fmt.Errorf("sdk: private channels require api credentials")
	}
	if len(publicSubs) > 0 {
		sess, err := s.session(ctx, false)
		if err != nil {
			return err
		}
		if err := sess.Subscribe(publicSubs, consumer); err != nil {
			return err
		}
	}
	if len(privateSubs) > 0 {
		sess, err := s.session(ctx, true)
		if err != nil {
			return err
		}
		if err := sess.Subscribe(privateSubs, consumer); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe removes subscriptions from whichever session carries them.
func (s *SDK) Unsubscribe(subs []schema.Subscription) error {
	s.mu.Lock()
	public, private := s.public, s.private
	s.mu.Unlock()

	for _, sub := range subs {
		sess := public
		if schema.IsPrivateChannel(sub.Channel) {
			sess = private
		}
		if sess == nil {
			continue
		}
		if err := sess.Unsubscribe([]schema.Subscription{sub}); err != nil {
			return err
		}
	}
	return nil
}

// SubscribeTicker streams tickers into the cache.
func (s *SDK) SubscribeTicker(ctx context.Context, instType schema.InstType, instIDs ...string) error {
	subs := make([]schema.Subscription, 0, len(instIDs))
	for _, id := range instIDs {
		subs = append(subs, schema.Subscription{InstType: instType, Channel: schema.ChannelTicker, InstID: id})
	}
	return s.Subscribe(ctx, subs, func(f schema.Frame) {
		tickers, err := schema.ParseTickers(instType, f.Data)
		if err != nil {
			logger.Warn("解析ticker推送失败: %v", err)
			return
		}
		for _, tk := range tickers {
			if tk.InstID == "" {
				tk.InstID = f.Arg.InstID
			}
			s.cache.SetTicker(tk)
		}
	})
}

// SubscribeCandle streams klines of one interval into the cache.
func (s *SDK) SubscribeCandle(ctx context.Context, instType schema.InstType, interval schema.Interval, instIDs ...string) error {
	channel := schema.CandleChannel(interval)
	subs := make([]schema.Subscription, 0, len(instIDs))
	for _, id := range instIDs {
		subs = append(subs, schema.Subscription{InstType: instType, Channel: channel, InstID: id})
	}
	return s.Subscribe(ctx, subs, func(f schema.Frame) {
		candles, err := schema.ParseCandles(instType, f.Arg.InstID, f.Arg.Channel, f.Data)
		if err != nil {
			logger.Warn("解析candle推送失败: %v", err)
			return
		}
		for _, c := range candles {
			s.cache.SetCandle(c)
		}
	})
}

// SubscribeDepth streams order book snapshots into the cache.
func (s *SDK) SubscribeDepth(ctx context.Context, instType schema.InstType, instIDs ...string) error {
	subs := make([]schema.Subscription, 0, len(instIDs))
	for _, id := range instIDs {
		subs = append(subs, schema.Subscription{InstType: instType, Channel: schema.ChannelBooks, InstID: id})
	}
	return s.Subscribe(ctx, subs, func(f schema.Frame) {
		depth, err := schema.ParseDepth(instType, f.Arg.InstID, f.Data)
		if err != nil {
			logger.Warn("解析depth推送失败: %v", err)
			return
		}
		s.cache.SetDepth(depth)
	})
}

// WatchTicker reads the latest streamed ticker from the cache.
func (s *SDK) WatchTicker(instType schema.InstType, instID string) (schema.Ticker, bool) {
	return s.cache.GetTicker(instType, instID)
}

// WatchCandle reads the latest streamed kline from the cache.
func (s *SDK) WatchCandle(instType schema.InstType, instID string, interval schema.Interval) (schema.Candle, bool) {
	return s.cache.GetCandle(instType, instID, interval)
}

// WatchDepth reads the latest streamed order book from the cache.
func (s *SDK) WatchDepth(instType schema.InstType, instID string) (schema.Depth, bool) {
	return s.cache.GetDepth(instType, instID)
}

// FetchTicker pulls a ticker over REST and caches it.
func (s *SDK) FetchTicker(ctx context.Context, instType schema.InstType, instID string) (schema.Ticker, error) {
	t, err := s.rest.GetTicker(ctx, instType, instID)
	if err != nil {
		return schema.Ticker{}, err
	}
	s.cache.SetTicker(t)
	return t, nil
}

// FetchCandles pulls historical klines over REST.
func (s *SDK) FetchCandles(ctx context.Context, instType schema.InstType, instID string, interval schema.Interval, limit int) ([]schema.Candle, error) {
	return s.rest.GetCandles(ctx, instType, instID, interval, limit)
}

// FetchDepth pulls an order book snapshot over REST and caches it.
func (s *SDK) FetchDepth(ctx context.Context, instType schema.InstType, instID string, limit int) (schema.Depth, error) {
	d, err := s.rest.GetDepth(ctx, instType, instID, limit)
	if err != nil {
		return schema.Depth{}, err
	}
	s.cache.SetDepth(d)
	return d, nil
}

// FetchServerTime pulls the exchange clock.
func (s *SDK) FetchServerTime(ctx context.Context) (time.Time, error) {
	return s.rest.GetServerTime(ctx)
}

// FetchAccountAssets pulls spot balances (signed).
func (s *SDK) FetchAccountAssets(ctx context.Context, coin string) ([]schema.AccountAssetData, error) {
	return s.rest.GetAccountAssets(ctx, coin)
}

// SessionState reports the lifecycle state of the public or private session.
func (s *SDK) SessionState(private bool) schema.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.public
	if private {
		sess = s.private
	}
	if sess == nil {
		return schema.StateDisconnected
	}
	return sess.State()
}

// Close shuts both sessions down. The REST client needs no teardown.
func (s *SDK) Close() error {
	s.mu.Lock()
	public, private := s.public, s.private
	s.mu.Unlock()

	if public != nil {
		public.Close()
	}
	if private != nil {
		private.Close()
	}
	return nil
}
