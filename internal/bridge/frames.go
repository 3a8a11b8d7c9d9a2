// ABOUTME: Wire frame types and the WebSocket transport for the gateway connection.
// ABOUTME: Text frames carry JSON objects tagged by a "type" discriminator.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Frame type discriminators.
const (
	frameTypeRequest  = "req"
	frameTypeResponse = "res"
	frameTypeEvent    = "event"
)

// Gateway events the bridge reacts to.
const (
	eventChallenge     = "connect.challenge"
	eventInvokeRequest = "node.invoke.request"
)

// Outbound methods.
const (
	methodConnect      = "connect"
	methodInvokeResult = "node.invoke.result"
)

// Reserved node.invoke.result error codes.
const (
	// CodeStale rejects invokes buffered before authentication completed.
	CodeStale = "STALE"
	// CodeEvicted rejects the oldest invoke when the store is full.
	CodeEvicted = "EVICTED"
	// CodeUserPending tells the agent a human is still reviewing the invoke.
	CodeUserPending = "USER_PENDING"
)

// Frame is one wire message in either direction.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ResultError    `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

// ResultError is the structured error carried by res frames and by
// node.invoke.result params.
type ResultError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *ResultError) String() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrServerClosed is returned by a Transport when the gateway closes the
// connection with a close frame.
var ErrServerClosed = errors.New("server closed connection")

// Transport is one duplex message-framed connection to the gateway.
type Transport interface {
	// ReadText returns the next text frame. Binary frames are skipped; a
	// close frame surfaces as ErrServerClosed.
	ReadText(ctx context.Context) ([]byte, error)
	// WriteJSON serializes v as one text frame.
	WriteJSON(ctx context.Context, v any) error
	Close() error
}

// DialFunc opens a Transport to the given endpoint.
type DialFunc func(ctx context.Context, url string) (Transport, error)

// DialWebSocket is the default DialFunc.
func DialWebSocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("node websocket connection failed: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadText(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				return nil, ErrServerClosed
			}
			return nil, err
		}
		if typ != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (t *wsTransport) WriteJSON(ctx context.Context, v any) error {
	return wsjson.Write(ctx, t.conn, v)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "disconnect")
}
