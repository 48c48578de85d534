package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FrameKind tags a decoded inbound WebSocket message.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameLoginAck
	FrameSubscribeAck
	FramePing
	FrameChannelData
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameLoginAck:
		return "login_ack"
	case FrameSubscribeAck:
		return "subscribe_ack"
	case FramePing:
		return "ping"
	case FrameChannelData:
		return "channel_data"
	case FrameError:
		return "error"
	}
	return "unknown"
}

// WsRequest is an outbound "op" frame (login/subscribe/unsubscribe).
type WsRequest struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

// LoginArg is the single argument of the login op.
// 字段名固定为小写passphrase,大小写错误会导致登录静默失败
type LoginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

// SubscribeArg identifies one channel in subscribe/unsubscribe ops and in
// inbound push frames.
type SubscribeArg struct {
	InstType InstType `json:"instType"`
	Channel  string   `json:"channel"`
	InstID   string   `json:"instId,omitempty"`
}

// Subscription converts the wire arg back to a routing subscription.
func (a SubscribeArg) Subscription() Subscription {
	return Subscription{InstType: a.InstType, Channel: a.Channel, InstID: a.InstID}.Normalize()
}

// Pong is the reply to an inbound ping; the value is echoed verbatim.
type Pong struct {
	Pong json.RawMessage `json:"pong"`
}

// Frame is a decoded inbound message. Created on receipt, consumed by the
// session/dispatcher, never persisted.
type Frame struct {
	Kind   FrameKind
	Event  string
	Code   int
	Msg    string
	Ping   json.RawMessage // ping payload, echoed back in the pong
	Arg    SubscribeArg
	Action string // "snapshot" | "update"
	Data   json.RawMessage
	Raw    json.RawMessage
}

// DecodeFrame classifies one raw inbound message. A JSON-level failure returns
// an error (the caller drops the frame); an unrecognized but well-formed shape
// comes back as FrameUnknown with no error.
func DecodeFrame(raw []byte) (Frame, error) {
	var probe struct {
		Event  string          `json:"event"`
		Code   json.RawMessage `json:"code"`
		Msg    string          `json:"msg"`
		Ping   json.RawMessage `json:"ping"`
		Arg    *SubscribeArg   `json:"arg"`
		Action string          `json:"action"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Frame{Kind: FrameUnknown, Raw: raw}, fmt.Errorf("malformed frame: %w", err)
	}

	f := Frame{Kind: FrameUnknown, Event: probe.Event, Msg: probe.Msg, Raw: raw}
	f.Code = parseWireCode(probe.Code)

	switch {
	case probe.Ping != nil:
		f.Kind = FramePing
		f.Ping = probe.Ping
	case probe.Event == "login":
		f.Kind = FrameLoginAck
	case probe.Event == "subscribe" || probe.Event == "unsubscribe":
		f.Kind = FrameSubscribeAck
		if probe.Arg != nil {
			f.Arg = *probe.Arg
		}
	case probe.Event == "error":
		f.Kind = FrameError
		if probe.Arg != nil {
			f.Arg = *probe.Arg
		}
	case probe.Arg != nil && probe.Data != nil:
		f.Kind = FrameChannelData
		f.Arg = *probe.Arg
		f.Action = probe.Action
		f.Data = probe.Data
	}
	return f, nil
}

// parseWireCode tolerates both numeric and quoted string codes; the exchange
// is not consistent across handshake frames.
func parseWireCode(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	s := strings.Trim(string(raw), `"`)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
