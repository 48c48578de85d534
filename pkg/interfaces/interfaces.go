package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"bitget-connector/pkg/schema"
)

// SubscriptionStore tracks the set of active logical streams on a session.
type SubscriptionStore interface {
	// Add records subscriptions, returning only the ones not already present.
	Add(subs []schema.Subscription) []schema.Subscription

	// Remove deletes subscriptions, returning the ones actually removed.
	Remove(subs []schema.Subscription) []schema.Subscription

	// Snapshot returns all active subscriptions.
	Snapshot() []schema.Subscription

	// Contains reports whether a subscription is active.
	Contains(sub schema.Subscription) bool

	// Clear removes everything.
	Clear()
}

// RestCaller is the single entry point per-endpoint code builds on. Query
// parameters keep the caller's order: the exchange signs over the literal
// query string.
type RestCaller interface {
	Call(ctx context.Context, method, path string, query []Param, body any) (json.RawMessage, error)
}

// Param is one ordered query parameter.
type Param struct {
	Key   string
	Value string
}

// WSConn abstracts websocket Conn for testability.
type WSConn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// WSShim adapts a real *websocket.Conn to WSConn.
type WSShim struct{ *websocket.Conn }

func (w WSShim) WriteJSON(v any) error                         { return w.Conn.WriteJSON(v) }
func (w WSShim) ReadMessage() (int, []byte, error)             { return w.Conn.ReadMessage() }
func (w WSShim) SetReadDeadline(t time.Time) error             { return w.Conn.SetReadDeadline(t) }
func (w WSShim) SetWriteDeadline(t time.Time) error            { return w.Conn.SetWriteDeadline(t) }
func (w WSShim) Close() error                                  { return w.Conn.Close() }
