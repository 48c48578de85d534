// Package rest executes signed HTTP calls against the exchange and maps
// HTTP/exchange-level failures into the typed error taxonomy.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"bitget-connector/internal/sign"
	"bitget-connector/pkg/apierr"
	"bitget-connector/pkg/interfaces"
	"bitget-connector/pkg/logger"
	"bitget-connector/pkg/metrics"
	"bitget-connector/pkg/schema"
)

const defaultTimeout = 30 * time.Second

// Config carries everything the client needs; no globals, no file I/O.
type Config struct {
	Credentials schema.Credentials
	Timeout     time.Duration // per-request timeout, default 30s
	Locale      string        // "locale" header, default en-US
}

// Client executes one signed call at a time and is safe for concurrent use.
type Client struct {
	http  *resty.Client
	creds schema.Credentials

	// now is the send-time clock; injectable for tests.
	// 签名时间戳必须取发送时刻,服务端容忍±5s时钟偏移
	now func() time.Time
}

// New creates a REST client. The base URL must be set; API keys are optional
// for public-only usage.
func New(cfg Config) (*Client, error) {
	if cfg.Credentials.RestBaseURL == "" {
		return nil, fmt.Errorf("rest: RestBaseURL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	locale := cfg.Locale
	if locale == "" {
		locale = "en-US"
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Credentials.RestBaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("locale", locale)
	return &Client{
		http:  httpClient,
		creds: cfg.Credentials,
		now:   time.Now,
	}, nil
}

// Call signs and executes one request, returning the envelope's data field.
//
// Query parameters keep the caller's order and are joined literally into
// "k=v&k=v": the exchange signs over the literal query string, so any
// client-side reordering or re-encoding silently invalidates the signature.
//
// Error mapping: transport failure or non-200 status yields *TransportError;
// HTTP 200 with a non-"00000" envelope code yields *ExchangeError. No retry
// happens here; callers may retry transport errors, never exchange errors.
func (c *Client) Call(ctx context.Context, method, path string, query []interfaces.Param, body any) (json.RawMessage, error) {
	method = strings.ToUpper(method)

	rawQuery := encodeQuery(query)
	bodyStr := ""
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("rest: marshal body: %w", err)
		}
		bodyStr = string(b)
	}

	req := c.http.R().SetContext(ctx)
	if c.creds.HasAPIKeys() {
		ts := sign.RestTimestamp(c.now())
		signature, err := sign.SignRest(c.creds.SecretKey, ts, method, path, rawQuery, bodyStr)
		if err != nil {
			return nil, err
		}
		req.SetHeader("ACCESS-KEY", c.creds.APIKey)
		req.SetHeader("ACCESS-SIGN", signature)
		req.SetHeader("ACCESS-TIMESTAMP", ts)
		req.SetHeader("ACCESS-PASSPHRASE", c.creds.Passphrase)
	}
	if bodyStr != "" {
		req.SetBody(bodyStr)
	}

	url := path
	if rawQuery != "" {
		url = path + "?" + rawQuery
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		metrics.RecordRestRequest(method, "transport_error")
		return nil, &apierr.TransportError{Op: method + " " + path, Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		metrics.RecordRestRequest(method, "transport_error")
		logger.Warn("REST %s %s 返回非200状态: %d", method, path, resp.StatusCode())
		return nil, &apierr.TransportError{Op: method + " " + path, Status: resp.StatusCode()}
	}

	var envelope schema.ApiResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		metrics.RecordRestRequest(method, "transport_error")
		return nil, &apierr.ProtocolError{Reason: "non-envelope response for " + path, Err: err}
	}
	if !envelope.OK() {
		metrics.RecordRestRequest(method, "exchange_error")
		logger.Debug("REST %s %s 交易所拒绝: code=%s msg=%s", method, path, envelope.Code, envelope.Msg)
		return nil, &apierr.ExchangeError{Code: envelope.Code, Msg: envelope.Msg}
	}

	metrics.RecordRestRequest(method, "ok")
	return envelope.Data, nil
}

// encodeQuery joins ordered params literally; no escaping, no reordering.
func encodeQuery(query []interfaces.Param) string {
	if len(query) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range query {
		if i > 0 {
			b.WriteString("&")
		}
		b.WriteString(p.Key)
		b.WriteString("=")
		b.WriteString(p.Value)
	}
	return b.String()
}
