package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Text frames understood by the ping-pong endpoint.
const (
	pingPongServe = "serve"
	pingPongPing  = "ping"
	pingPongPong  = "pong"
)

// PingPong is the per-connection state of the ping-pong endpoint. A "ping"
// is answered only after a "serve" has been seen; served never resets.
type PingPong struct {
	served bool
}

// Handle advances the state machine with one text frame and returns the
// reply to send, if any.
func (p *PingPong) Handle(text string) (string, bool) {
	switch text {
	case pingPongServe:
		p.served = true
	case pingPongPing:
		if p.served {
			return pingPongPong, true
		}
	}
	return "", false
}

// servePingPong runs the ping-pong protocol on conn until it closes or ctx
// is cancelled.
func servePingPong(ctx context.Context, conn *websocket.Conn, addr string, cfg Config) {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	defer func() {
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Debug("error closing ping-pong connection", "addr", addr, "error", err)
		}
	}()

	conn.SetReadLimit(cfg.MaxMessageSize)
	var state PingPong

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!isExpectedCloseError(err) {
				slog.Debug("ping-pong read error", "addr", addr, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		reply, ok := state.Handle(string(raw))
		if !ok {
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			slog.Debug("ping-pong write error", "addr", addr, "error", err)
			return
		}
	}
}
