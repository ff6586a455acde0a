package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// wsConn is the slice of *websocket.Conn the watcher uses.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
}

type subscribeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
}

type notification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Parent *uint64 `json:"parent"`
			Root   *uint64 `json:"root"`
			Slot   *uint64 `json:"slot"`
		} `json:"result"`
	} `json:"params"`
}

// watch subscribes to slot finalization and forwards finalized slot numbers
// to slots until the connection closes. An orderly close returns nil; a
// transport error surfaces as a failure. There is no auto-reconnect: losing
// the connection ends the pipeline run.
func (p *Pipeline) watch(ctx context.Context, conn wsConn, slots chan<- uint64) error {
	sub, err := json.Marshal(subscribeRequest{JSONRPC: "2.0", ID: "1", Method: "slotSubscribe"})
	if err != nil {
		return fmt.Errorf("marshal slotSubscribe: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("send slotSubscribe: %w", err)
	}
	p.logger.Printf("subscribed to slot finalization notifications")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Printf("subscription closed by node")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read notification: %w", err)
		}

		var msg notification
		if err := json.Unmarshal(data, &msg); err != nil {
			p.logger.Printf("ignoring malformed message: %v", err)
			continue
		}

		switch msg.Method {
		case "slotNotification":
			if msg.Params.Result.Root == nil {
				p.logger.Printf("ignoring slot notification without root: %s", data)
				continue
			}
			select {
			case slots <- *msg.Params.Result.Root:
			case <-ctx.Done():
				return ctx.Err()
			}
		case "accountNotification":
			// Observed on shared endpoints, not acted upon.
			p.logger.Printf("account change observed")
		case "":
			// RPC reply, e.g. the subscription confirmation.
		default:
			p.logger.Printf("ignoring %q notification", msg.Method)
		}
	}
}
