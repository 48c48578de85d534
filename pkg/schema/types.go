package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InstType categorizes market segments the exchange exposes.
type InstType string

const (
	SPOT        InstType = "SPOT"         // 现货
	USDTFutures InstType = "USDT-FUTURES" // U本位合约
	CoinFutures InstType = "COIN-FUTURES" // 币本位合约
)

// WebSocket channel names.
const (
	ChannelTicker    = "ticker"
	ChannelTrade     = "trade"
	ChannelBooks     = "books"
	ChannelAccount   = "account"
	ChannelOrders    = "orders"
	ChannelPositions = "positions"
	ChannelFill      = "fill"
	ChannelPlanOrder = "orders-algo"
)

// IsPrivateChannel reports whether a channel requires an authenticated session.
func IsPrivateChannel(channel string) bool {
	switch channel {
	case ChannelAccount, ChannelOrders, ChannelPositions, ChannelFill, ChannelPlanOrder:
		return true
	}
	return false
}

// Interval for candle channels.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1H"
	Interval4h  Interval = "4H"
	Interval1d  Interval = "1D"
)

// CandleChannel builds the candle channel name for an interval, e.g. "candle1m".
func CandleChannel(interval Interval) string {
	return "candle" + string(interval)
}

// Credentials bundles everything needed to reach the exchange. Treated as an
// immutable value after construction and shared freely across sessions.
// 密钥不允许完整输出到日志，打印时必须使用 Redacted()
type Credentials struct {
	APIKey       string
	SecretKey    string
	Passphrase   string
	RestBaseURL  string
	PublicWsURL  string
	PrivateWsURL string
}

// HasAPIKeys reports whether private endpoints/streams can be used.
func (c Credentials) HasAPIKeys() bool {
	return c.APIKey != "" && c.SecretKey != "" && c.Passphrase != ""
}

// Redacted returns a loggable form of the API key.
func (c Credentials) Redacted() string {
	if len(c.APIKey) <= 6 {
		return "***"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-2:]
}

// SessionState is the lifecycle state of one WebSocket session.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateSubscribing
	StateStreaming
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// DefaultInstID is the routing fallback used when the exchange omits instId
// for aggregate streams (e.g. all-positions pushes).
const DefaultInstID = "default"

// Subscription identifies one logical stream on a session.
type Subscription struct {
	InstType InstType
	Channel  string
	InstID   string
}

// Normalize fills the instId fallback so map keys stay stable.
func (s Subscription) Normalize() Subscription {
	if s.InstID == "" {
		s.InstID = DefaultInstID
	}
	return s
}

// Key returns the dispatch key "instType:channel:instId".
func (s Subscription) Key() string {
	n := s.Normalize()
	return string(n.InstType) + ":" + n.Channel + ":" + n.InstID
}

// Arg converts the subscription to its wire representation.
func (s Subscription) Arg() SubscribeArg {
	arg := SubscribeArg{InstType: s.InstType, Channel: s.Channel}
	if s.InstID != DefaultInstID {
		arg.InstID = s.InstID
	}
	return arg
}

// Ticker is the normalized latest-price snapshot.
type Ticker struct {
	InstType    InstType        `json:"instType"`
	InstID      string          `json:"instId"`
	Last        decimal.Decimal `json:"last"`
	BidPrice    decimal.Decimal `json:"bidPrice"`
	AskPrice    decimal.Decimal `json:"askPrice"`
	High24h     decimal.Decimal `json:"high24h"`
	Low24h      decimal.Decimal `json:"low24h"`
	BaseVolume  decimal.Decimal `json:"baseVolume"`
	QuoteVolume decimal.Decimal `json:"quoteVolume"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Candle is a normalized kline.
type Candle struct {
	InstType    InstType        `json:"instType"`
	InstID      string          `json:"instId"`
	Interval    Interval        `json:"interval"`
	OpenTime    time.Time       `json:"openTime"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	BaseVolume  decimal.Decimal `json:"baseVolume"`
	QuoteVolume decimal.Decimal `json:"quoteVolume"`
}

// PriceLevel represents a single order book level.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Depth represents an order book snapshot.
type Depth struct {
	InstType  InstType     `json:"instType"`
	InstID    string       `json:"instId"`
	Bids      []PriceLevel `json:"bids"` // 买盘,由大到小排序
	Asks      []PriceLevel `json:"asks"` // 卖盘,由小到大排序
	UpdatedAt time.Time    `json:"updatedAt"`
}
