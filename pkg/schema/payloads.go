package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseTickers decodes a ticker push/response payload into normalized tickers.
func ParseTickers(instType InstType, data json.RawMessage) ([]Ticker, error) {
	var raw []TickerData
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ticker payload: %w", err)
	}
	out := make([]Ticker, 0, len(raw))
	for _, t := range raw {
		tk := Ticker{InstType: instType, InstID: t.InstID}
		tk.Last = mustDecimal(t.LastPr)
		tk.BidPrice = mustDecimal(t.BidPr)
		tk.AskPrice = mustDecimal(t.AskPr)
		tk.High24h = mustDecimal(t.High24h)
		tk.Low24h = mustDecimal(t.Low24h)
		tk.BaseVolume = mustDecimal(t.BaseVolume)
		tk.QuoteVolume = mustDecimal(t.QuoteVolume)
		if ms, err := strconv.ParseInt(t.Ts, 10, 64); err == nil {
			tk.Timestamp = time.UnixMilli(ms)
		}
		out = append(out, tk)
	}
	return out, nil
}

// ParseCandles decodes a candle array payload. The channel name carries the
// interval ("candle1m" etc.); instId comes from the subscription arg.
func ParseCandles(instType InstType, instID, channel string, data json.RawMessage) ([]Candle, error) {
	var raw CandleData
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("candle payload: %w", err)
	}
	interval := Interval(strings.TrimPrefix(channel, "candle"))
	out := make([]Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 5 {
			continue
		}
		c := Candle{InstType: instType, InstID: instID, Interval: interval}
		if ms, err := strconv.ParseInt(row[0], 10, 64); err == nil {
			c.OpenTime = time.UnixMilli(ms)
		}
		c.Open = mustDecimal(row[1])
		c.High = mustDecimal(row[2])
		c.Low = mustDecimal(row[3])
		c.Close = mustDecimal(row[4])
		if len(row) > 5 {
			c.BaseVolume = mustDecimal(row[5])
		}
		if len(row) > 6 {
			c.QuoteVolume = mustDecimal(row[6])
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseDepth decodes a books push/response payload into a sorted snapshot.
// WS pushes wrap the book in a one-element array; REST returns the bare object.
func ParseDepth(instType InstType, instID string, data json.RawMessage) (Depth, error) {
	var raw DepthData
	if err := json.Unmarshal(data, &raw); err != nil {
		var list []DepthData
		if err2 := json.Unmarshal(data, &list); err2 != nil || len(list) == 0 {
			return Depth{}, fmt.Errorf("depth payload: %w", err)
		}
		raw = list[0]
	}
	d := Depth{
		InstType: instType,
		InstID:   instID,
		Bids:     parseLevels(raw.Bids),
		Asks:     parseLevels(raw.Asks),
	}
	if ms, err := strconv.ParseInt(raw.Ts, 10, 64); err == nil {
		d.UpdatedAt = time.UnixMilli(ms)
	} else {
		d.UpdatedAt = time.Now()
	}
	return d, nil
}

func parseLevels(levels [][]string) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, lv := range levels {
		if len(lv) < 2 {
			continue
		}
		p, _ := decimal.NewFromString(lv[0])
		q, _ := decimal.NewFromString(lv[1])
		out = append(out, PriceLevel{Price: p, Quantity: q})
	}
	return out
}

// mustDecimal parses a price/volume string, treating blanks as zero.
// 交易所部分字段可能为空字符串
func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
