package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"bitget-connector/pkg/apierr"
	"bitget-connector/pkg/interfaces"
	"bitget-connector/pkg/schema"
)

// REST paths, v2 API.
const (
	pathServerTime  = "/api/v2/public/time"
	pathSpotTickers = "/api/v2/spot/market/tickers"
	pathSpotCandles = "/api/v2/spot/market/candles"
	pathSpotDepth   = "/api/v2/spot/market/orderbook"
	pathMixTicker   = "/api/v2/mix/market/ticker"
	pathMixCandles  = "/api/v2/mix/market/candles"
	pathMixDepth    = "/api/v2/mix/market/merge-depth"
)

// GetServerTime fetches the exchange clock; useful for detecting local drift
// before signed calls start failing.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	data, err := c.Call(ctx, "GET", pathServerTime, nil, nil)
	if err != nil {
		return time.Time{}, err
	}
	var payload schema.ServerTimeData
	if err := json.Unmarshal(data, &payload); err != nil {
		return time.Time{}, &apierr.ProtocolError{Reason: "server time payload", Err: err}
	}
	ms, err := strconv.ParseInt(payload.ServerTime, 10, 64)
	if err != nil {
		return time.Time{}, &apierr.ProtocolError{Reason: "server time not numeric", Err: err}
	}
	return time.UnixMilli(ms), nil
}

// GetTicker fetches the latest price snapshot for one instrument.
func (c *Client) GetTicker(ctx context.Context, instType schema.InstType, instID string) (schema.Ticker, error) {
	var path string
	var query []interfaces.Param
	if instType == schema.SPOT {
		path = pathSpotTickers
		query = []interfaces.Param{{Key: "symbol", Value: instID}}
	} else {
		path = pathMixTicker
		query = []interfaces.Param{
			{Key: "symbol", Value: instID},
			{Key: "productType", Value: string(instType)},
		}
	}
	data, err := c.Call(ctx, "GET", path, query, nil)
	if err != nil {
		return schema.Ticker{}, err
	}
	tickers, err := schema.ParseTickers(instType, data)
	if err != nil {
		return schema.Ticker{}, &apierr.ProtocolError{Reason: "ticker payload", Err: err}
	}
	if len(tickers) == 0 {
		return schema.Ticker{}, fmt.Errorf("rest: no ticker returned for %s %s", instType, instID)
	}
	t := tickers[0]
	if t.InstID == "" {
		t.InstID = instID
	}
	return t, nil
}

// GetCandles fetches up to limit historical klines, newest last per the
// exchange convention. limit <= 0 means the server default.
func (c *Client) GetCandles(ctx context.Context, instType schema.InstType, instID string, interval schema.Interval, limit int) ([]schema.Candle, error) {
	var path string
	query := []interfaces.Param{{Key: "symbol", Value: instID}}
	if instType == schema.SPOT {
		path = pathSpotCandles
		query = append(query, interfaces.Param{Key: "granularity", Value: spotGranularity(interval)})
	} else {
		path = pathMixCandles
		query = append(query,
			interfaces.Param{Key: "productType", Value: string(instType)},
			interfaces.Param{Key: "granularity", Value: string(interval)},
		)
	}
	if limit > 0 {
		query = append(query, interfaces.Param{Key: "limit", Value: strconv.Itoa(limit)})
	}
	data, err := c.Call(ctx, "GET", path, query, nil)
	if err != nil {
		return nil, err
	}
	candles, err := schema.ParseCandles(instType, instID, schema.CandleChannel(interval), data)
	if err != nil {
		return nil, &apierr.ProtocolError{Reason: "candle payload", Err: err}
	}
	return candles, nil
}

// GetDepth fetches an order book snapshot with up to limit levels per side.
func (c *Client) GetDepth(ctx context.Context, instType schema.InstType, instID string, limit int) (schema.Depth, error) {
	var path string
	query := []interfaces.Param{{Key: "symbol", Value: instID}}
	if instType == schema.SPOT {
		path = pathSpotDepth
	} else {
		path = pathMixDepth
		query = append(query, interfaces.Param{Key: "productType", Value: string(instType)})
	}
	if limit > 0 {
		query = append(query, interfaces.Param{Key: "limit", Value: strconv.Itoa(limit)})
	}
	data, err := c.Call(ctx, "GET", path, query, nil)
	if err != nil {
		return schema.Depth{}, err
	}
	depth, err := schema.ParseDepth(instType, instID, data)
	if err != nil {
		return schema.Depth{}, &apierr.ProtocolError{Reason: "depth payload", Err: err}
	}
	return depth, nil
}

// spotGranularity maps the shared interval notation onto the spot endpoint's
// granularity values. 现货与合约的K线周期参数格式不一致
func spotGranularity(interval schema.Interval) string {
	switch interval {
	case schema.Interval1m:
		return "1min"
	case schema.Interval5m:
		return "5min"
	case schema.Interval15m:
		return "15min"
	case schema.Interval30m:
		return "30min"
	case schema.Interval1h:
		return "1h"
	case schema.Interval4h:
		return "4h"
	case schema.Interval1d:
		return "1day"
	}
	return string(interval)
}
