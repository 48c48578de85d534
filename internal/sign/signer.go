// Package sign computes the exchange's request signatures. Pure functions,
// no I/O, safe for concurrent use.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrEmptySecret is returned when signing is attempted without a secret key.
// 调用方配置错误,必须快速失败,绝不能用空密钥计算签名
var ErrEmptySecret = errors.New("sign: empty secret key")

// wsLoginPath is the fixed pseudo-path signed for WebSocket logins.
const wsLoginPath = "/user/verify"

// SignRest signs one REST request. The message is
//
//	timestamp + METHOD + path + ("?" + query when non-empty) + body
//
// keyed HMAC-SHA256, base64-encoded. The method is upper-cased; an extra "?"
// on an empty query invalidates the signature server-side.
func SignRest(secretKey, timestamp, method, path, rawQuery, body string) (string, error) {
	if secretKey == "" {
		return "", ErrEmptySecret
	}
	var b strings.Builder
	b.WriteString(timestamp)
	b.WriteString(strings.ToUpper(method))
	b.WriteString(path)
	if rawQuery != "" {
		b.WriteString("?")
		b.WriteString(rawQuery)
	}
	b.WriteString(body)
	return digest(secretKey, b.String()), nil
}

// SignWsLogin signs the WebSocket login payload: timestamp + "GET" + "/user/verify".
func SignWsLogin(secretKey, timestamp string) (string, error) {
	if secretKey == "" {
		return "", ErrEmptySecret
	}
	return digest(secretKey, timestamp+"GET"+wsLoginPath), nil
}

// RestTimestamp returns the wall-clock timestamp in epoch milliseconds, the
// unit the REST API expects. Taken at send time, not request construction
// time (server tolerance is about ±5s).
func RestTimestamp(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// WsTimestamp returns the epoch-seconds timestamp the WS login expects.
func WsTimestamp(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10)
}

func digest(secretKey, message string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
