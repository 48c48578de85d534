package schema

import "encoding/json"

// ApiResponse is the uniform REST envelope `{code, msg, data}`.
type ApiResponse struct {
	Code        string          `json:"code"`
	Msg         string          `json:"msg"`
	RequestTime int64           `json:"requestTime"`
	Data        json.RawMessage `json:"data"`
}

// CodeOK is the exchange's success code.
const CodeOK = "00000"

// OK reports whether the envelope carries a success code.
func (r ApiResponse) OK() bool { return r.Code == CodeOK }

// TickerData is one raw REST/WS ticker entry.
type TickerData struct {
	InstID      string `json:"instId"`
	LastPr      string `json:"lastPr"`
	BidPr       string `json:"bidPr"`
	AskPr       string `json:"askPr"`
	High24h     string `json:"high24h"`
	Low24h      string `json:"low24h"`
	BaseVolume  string `json:"baseVolume"`
	QuoteVolume string `json:"quoteVolume"`
	Ts          string `json:"ts"`
}

// CandleData is the raw candle array payload:
// [0] ts(ms), [1] open, [2] high, [3] low, [4] close, [5] base volume, [6] quote volume
type CandleData [][]string

// DepthData is the raw order book payload.
type DepthData struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

// ServerTimeData is the public time endpoint payload.
type ServerTimeData struct {
	ServerTime string `json:"serverTime"`
}

// AccountAssetData is one raw spot account asset entry.
type AccountAssetData struct {
	Coin      string `json:"coin"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
	Locked    string `json:"locked"`
	UTime     string `json:"uTime"`
}
